// Command lineagecore replays a cell division trace and prints the lineage
// diagram geometry for every founder at a chosen end time.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"lineagecore/internal/blob"
	"lineagecore/internal/core"
	"lineagecore/internal/infra/persistence/memory"
	"lineagecore/internal/logging"
	"lineagecore/pkg/lineage"
	"math"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

var exitFunc = os.Exit

type options struct {
	eventsPath  string
	tEnd        float64
	contains    string
	persist     bool
	export      bool
	format      string
	logLevel    string
	metricsAddr string
	trace       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	exitFunc(code)
}

func cli(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("lineagecore", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := options{}
	fs.StringVar(&opts.eventsPath, "events", "-", "JSON-lines event trace (- for stdin)")
	fs.Float64Var(&opts.tEnd, "t-end", math.NaN(), "end time for the layout (default: last event time)")
	fs.StringVar(&opts.contains, "contains", "", "report which lineage holds this cell id and exit")
	fs.BoolVar(&opts.persist, "persist", false, "use the storage driver from LINEAGECORE_STORAGE_DRIVER instead of memory")
	fs.BoolVar(&opts.export, "export", false, "write each lineage layout to the blob store from LINEAGECORE_BLOB_DRIVER")
	fs.StringVar(&opts.format, "format", "json", "layout output format: json|segments")
	fs.StringVar(&opts.logLevel, "log-level", os.Getenv("LINEAGECORE_LOG_LEVEL"), "log level: error|warn|info|debug|trace")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics and /debug/vars on this address until interrupted")
	fs.BoolVar(&opts.trace, "trace", false, "write one JSON line per service operation to stderr")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if opts.format != "json" && opts.format != "segments" {
		_, _ = fmt.Fprintf(stderr, "unknown format %q\n", opts.format)
		return 2
	}
	if err := run(ctx, opts, stdin, stdout, stderr); err != nil {
		_, _ = fmt.Fprintf(stderr, "lineagecore: %v\n", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, opts options, stdin io.Reader, stdout, stderr io.Writer) error {
	logger := logging.NewLogger(opts.logLevel, os.Getenv("LINEAGECORE_LOG_FORMAT"), stderr)
	metrics := core.NewPrometheusMetricsRecorder("")
	counters := core.NewExpvarMetricsRecorder("")

	var store core.PersistentStore = memory.NewStore(core.NewDefaultRulesEngine())
	if opts.persist {
		var err error
		if store, err = core.OpenPersistentStore(core.NewDefaultRulesEngine()); err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		if closer, ok := store.(io.Closer); ok {
			defer func() { _ = closer.Close() }()
		}
	}
	svcOpts := []core.ServiceOption{
		core.WithLogger(logger),
		core.WithMetricsRecorder(core.TeeMetrics(metrics, counters)),
	}
	if opts.trace {
		svcOpts = append(svcOpts, core.WithTracer(core.NewJSONTracer(stderr)))
	}
	if opts.export {
		blobs, err := blob.Open(ctx)
		if err != nil {
			return fmt.Errorf("open blob store: %w", err)
		}
		svcOpts = append(svcOpts, core.WithBlobStore(blobs))
	}
	svc := core.NewService(store, svcOpts...)

	var stopMetrics func()
	if opts.metricsAddr != "" {
		addr, stop, err := serveMetrics(opts.metricsAddr, metrics.Handler(), counters.Handler())
		if err != nil {
			return err
		}
		stopMetrics = stop
		defer stop()
		logger.Info("serving metrics", "addr", addr)
	}

	in, closeIn, err := openEvents(opts.eventsPath, stdin)
	if err != nil {
		return err
	}
	stats, err := replay(ctx, svc, in)
	closeIn()
	if err != nil {
		return err
	}
	logger.Info("replay complete", "lineages", stats.Lineages, "divisions", stats.Divisions, "warnings", stats.Warnings)

	if opts.contains != "" {
		return reportMembership(ctx, svc, lineage.CellID(opts.contains), stdout)
	}

	tEnd := opts.tEnd
	if math.IsNaN(tEnd) {
		tEnd = stats.LastTime
	}
	layout, err := svc.ArrangeLayouts(ctx, tEnd)
	if err != nil {
		return err
	}
	if opts.export {
		for _, l := range svc.ListLineages(ctx) {
			info, err := svc.ExportLayout(ctx, l.ID, tEnd)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(stderr, "exported %s\n", info.Key)
		}
	}
	if err := writeLayout(stdout, layout, opts.format); err != nil {
		return err
	}
	if stopMetrics != nil {
		<-ctx.Done()
	}
	return nil
}

func openEvents(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "-" || path == "" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path) //nolint:gosec // operator supplied trace path
	if err != nil {
		return nil, nil, fmt.Errorf("open events: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func reportMembership(ctx context.Context, svc *core.Service, cell lineage.CellID, w io.Writer) error {
	id, ok := svc.LocateCell(ctx, cell)
	if !ok {
		_, err := fmt.Fprintf(w, "cell %s: not found\n", cell)
		return err
	}
	l, err := svc.GetLineage(ctx, id)
	if err != nil {
		return err
	}
	state := "divided"
	if l.Tree.IsLive(cell) {
		state = "live"
	}
	name := id
	if l.Label != "" {
		name = fmt.Sprintf("%s [%s]", id, l.Label)
	}
	_, err = fmt.Fprintf(w, "cell %s: lineage %s (founder %s, %s)\n", cell, name, l.Founder(), state)
	return err
}

func writeLayout(w io.Writer, layout lineage.Layout, format string) error {
	if format == "segments" {
		var b strings.Builder
		fmt.Fprintf(&b, "width %d\n", layout.Width)
		for _, s := range layout.Segments {
			fmt.Fprintf(&b, "%s %s x=%g..%g t=%g..%g\n", s.Kind, s.CellID, s.X0, s.X1, s.T0, s.T1)
		}
		_, err := io.WriteString(w, b.String())
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(layout)
}

func serveMetrics(addr string, metrics, vars http.Handler) (string, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics)
	mux.Handle("/debug/vars", vars)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = ln.Close()
		}
	}()
	stop := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	return ln.Addr().String(), stop, nil
}
