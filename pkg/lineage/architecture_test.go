package lineage

import (
	"testing"

	"lineagecore/testutil"
)

func TestLineageUsesOnlyTheStandardLibrary(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.NonStdlibImport("lineagecore"), "the tree model is a leaf package")
}
