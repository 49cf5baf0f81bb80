// Package testutil provides helpers for enforcing package boundary rules from tests.
package testutil

import (
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

type fatalLogger interface {
	Helper()
	Fatalf(format string, args ...any)
}

// AssertNoDirectImports parses the non-test .go files in dir and fails if any
// import path satisfies forbidden.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := DirectImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	failIfViolations(t, "direct imports", reason, viols)
}

// AssertNoTransitiveDependency loads pattern (e.g. "." or "./...") with its
// full dependency graph and fails if any reachable package satisfies forbidden.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden func(path string) bool, reason string) {
	t.Helper()
	viols, err := TransitiveDependencyViolations(pattern, forbidden)
	if err != nil {
		t.Fatalf("load %s: %v", pattern, err)
	}
	failIfViolations(t, "transitive dependency", reason, viols)
}

// DirectImportViolations lists "import (in file)" entries matching forbidden.
func DirectImportViolations(dir string, forbidden func(importPath string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range file.Imports {
			path := strings.Trim(imp.Path.Value, `"`)
			if forbidden(path) {
				viols = append(viols, fmt.Sprintf("%s (in %s)", path, name))
			}
		}
	}
	sort.Strings(viols)
	return viols, nil
}

// TransitiveDependencyViolations returns every package reachable from pattern
// whose import path matches forbidden, with the package that first pulled it in.
func TransitiveDependencyViolations(pattern string, forbidden func(path string) bool) ([]string, error) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports | packages.NeedDeps}
	roots, err := packages.Load(cfg, pattern)
	if err != nil {
		return nil, err
	}
	var loadErrs []string
	seen := make(map[string]string)
	packages.Visit(roots, nil, func(pkg *packages.Package) {
		for _, e := range pkg.Errors {
			loadErrs = append(loadErrs, e.Error())
		}
		for path := range pkg.Imports {
			if _, ok := seen[path]; !ok && forbidden(path) {
				seen[path] = pkg.PkgPath
			}
		}
	})
	if len(loadErrs) > 0 {
		return nil, fmt.Errorf("package errors:\n%s", strings.Join(loadErrs, "\n"))
	}
	viols := make([]string, 0, len(seen))
	for path, from := range seen {
		viols = append(viols, fmt.Sprintf("%s (via %s)", path, from))
	}
	sort.Strings(viols)
	return viols, nil
}

// InternalImportForbidden matches any import path containing an internal/ element.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/") || strings.HasSuffix(path, "/internal")
}

// NonStdlibImport matches import paths outside the standard library, i.e.
// those whose first element contains a dot, plus module-local paths under module.
func NonStdlibImport(module string) func(string) bool {
	return func(path string) bool {
		first, _, _ := strings.Cut(path, "/")
		return strings.Contains(first, ".") || path == module || strings.HasPrefix(path, module+"/")
	}
}

// PrefixForbidden matches import paths equal to or nested under any prefix.
func PrefixForbidden(prefixes ...string) func(string) bool {
	return func(path string) bool {
		for _, p := range prefixes {
			if path == p || strings.HasPrefix(path, p+"/") {
				return true
			}
		}
		return false
	}
}

func failIfViolations(t fatalLogger, kind, reason string, viols []string) {
	t.Helper()
	if len(viols) > 0 {
		t.Fatalf("forbidden %s detected (%s):\n%s", kind, reason, strings.Join(viols, "\n"))
	}
}
