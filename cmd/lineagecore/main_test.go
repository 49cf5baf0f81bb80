package main

import (
	"bytes"
	"context"
	"encoding/json"
	"expvar"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lineagecore/pkg/lineage"
)

const trace = `# two founders
{"type":"found","cell":"0","time":0}
{"type":"found","cell":"f","time":2,"label":"control"}

{"type":"divide","mother":"0","daughters":["1","2"],"time":5}
{"type":"divide","mother":"1","daughters":["3","4"],"time":8}
`

func runCLI(t *testing.T, input string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := cli(context.Background(), args, strings.NewReader(input), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestCLIPrintsArrangedLayout(t *testing.T) {
	code, out, errOut := runCLI(t, trace, "-t-end", "10", "-log-level", "error")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	var layout lineage.Layout
	if err := json.Unmarshal([]byte(out), &layout); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if layout.Width != 4 || len(layout.Segments) != 8 {
		t.Fatalf("unexpected layout width=%d segments=%d", layout.Width, len(layout.Segments))
	}
}

func TestCLIDefaultsEndTimeToLastEvent(t *testing.T) {
	code, out, errOut := runCLI(t, trace, "-format", "segments", "-log-level", "error")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if !strings.HasPrefix(out, "width 4\n") {
		t.Fatalf("unexpected segments output:\n%s", out)
	}
	var found bool
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "vertical 3 ") && strings.HasSuffix(line, " t=8..8") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected zero-length stem for cell 3 born at the end time:\n%s", out)
	}
}

func TestCLIContains(t *testing.T) {
	cases := []struct {
		cell string
		want string
	}{
		{"3", "cell 3: lineage "},
		{"1", "(founder 0, divided)"},
		{"f", "[control] (founder f, live)"},
		{"zz", "cell zz: not found"},
	}
	for _, tc := range cases {
		code, out, errOut := runCLI(t, trace, "-contains", tc.cell, "-log-level", "error")
		if code != 0 || !strings.Contains(out, tc.want) {
			t.Fatalf("contains %s: exit %d, out %q, err %q", tc.cell, code, out, errOut)
		}
	}
}

func TestCLIEventErrors(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"unknown mother", `{"type":"divide","mother":"9","daughters":["a","b"],"time":1}`, "line 1"},
		{"bad json", "{nope", "decode event"},
		{"unknown type", `{"type":"merge"}`, "unknown event type"},
		{"found without cell", `{"type":"found","time":0}`, "requires a cell id"},
		{"duplicate founder", "{\"type\":\"found\",\"cell\":\"0\"}\n{\"type\":\"found\",\"cell\":\"0\"}", "line 2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, _, errOut := runCLI(t, tc.input, "-log-level", "error")
			if code != 1 || !strings.Contains(errOut, tc.want) {
				t.Fatalf("expected exit 1 with %q, got %d: %s", tc.want, code, errOut)
			}
		})
	}
}

func TestCLIFlagErrors(t *testing.T) {
	if code, _, _ := runCLI(t, "", "-bogus"); code != 2 {
		t.Fatalf("expected exit 2 for unknown flag, got %d", code)
	}
	if code, _, _ := runCLI(t, "", "-format", "svg"); code != 2 {
		t.Fatalf("expected exit 2 for bad format, got %d", code)
	}
	if code, _, errOut := runCLI(t, "", "-events", filepath.Join(t.TempDir(), "missing.jsonl")); code != 1 || !strings.Contains(errOut, "open events") {
		t.Fatalf("expected open failure, got %d: %s", code, errOut)
	}
}

func TestCLIExportAndPersist(t *testing.T) {
	dir := t.TempDir()
	events := filepath.Join(dir, "trace.jsonl")
	if err := os.WriteFile(events, []byte(trace), 0o600); err != nil {
		t.Fatalf("write trace: %v", err)
	}
	blobRoot := filepath.Join(dir, "blobs")
	t.Setenv("LINEAGECORE_BLOB_DRIVER", "fs")
	t.Setenv("LINEAGECORE_BLOB_FS_ROOT", blobRoot)
	t.Setenv("LINEAGECORE_STORAGE_DRIVER", "sqlite")
	t.Setenv("LINEAGECORE_SQLITE_PATH", filepath.Join(dir, "lineages.db"))

	code, _, errOut := runCLI(t, "", "-events", events, "-t-end", "10", "-export", "-persist", "-log-level", "error")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if strings.Count(errOut, "exported layouts/") != 2 {
		t.Fatalf("expected two exports, got %s", errOut)
	}
	matches, _ := filepath.Glob(filepath.Join(blobRoot, "layouts", "*", "10.json"))
	if len(matches) != 2 {
		t.Fatalf("expected 2 exported layout files, got %v", matches)
	}
	if _, err := os.Stat(filepath.Join(dir, "lineages.db")); err != nil {
		t.Fatalf("expected sqlite database: %v", err)
	}
}

func TestCLIMetricsServerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var stdout, stderr bytes.Buffer
	code := cli(ctx, []string{"-metrics-addr", "127.0.0.1:0", "-log-level", "info"}, strings.NewReader(trace), &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "serving metrics") {
		t.Fatalf("expected metrics log, got %s", stderr.String())
	}
}

func TestCLITraceWritesSpans(t *testing.T) {
	code, _, errOut := runCLI(t, trace, "-trace", "-log-level", "error")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	var ops []string
	for _, line := range strings.Split(strings.TrimSpace(errOut), "\n") {
		var span struct {
			Op string `json:"op"`
			OK bool   `json:"ok"`
		}
		if err := json.Unmarshal([]byte(line), &span); err != nil {
			t.Fatalf("trace line %q: %v", line, err)
		}
		if !span.OK {
			t.Fatalf("unexpected failed span %q", line)
		}
		ops = append(ops, span.Op)
	}
	want := []string{"create_lineage", "create_lineage", "apply_division", "apply_division", "arrange_layout"}
	if strings.Join(ops, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected spans %v", ops)
	}
}

func TestServeMetricsExposesVars(t *testing.T) {
	addr, stop, err := serveMetrics("127.0.0.1:0", http.NotFoundHandler(), expvar.Handler())
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	defer stop()
	resp, err := http.Get("http://" + addr + "/debug/vars")
	if err != nil {
		t.Fatalf("get vars: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	var vars map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&vars); err != nil {
		t.Fatalf("decode vars: %v", err)
	}
	if _, ok := vars["cmdline"]; !ok {
		t.Fatalf("expected expvar payload, got keys %v", len(vars))
	}
}
