package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/d1lod/internal/config"
	"github.com/roach88/d1lod/internal/graph"
	"github.com/roach88/d1lod/internal/harvest"
	"github.com/roach88/d1lod/internal/metrics"
	"github.com/roach88/d1lod/internal/sesame"
	"github.com/roach88/d1lod/internal/store"
)

// HarvestOptions holds flags for the harvest command.
type HarvestOptions struct {
	*RootOptions
	From        string
	To          string
	Reset       bool
	MetricsAddr string
	Workers     int
	StateDB     string

	// RunIDs allows overriding the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs harvest.RunIDGenerator

	// Now allows overriding the wall clock (for testing).
	Now func() time.Time
}

// NewHarvestCommand creates the harvest command.
func NewHarvestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HarvestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Harvest datasets uploaded in a time window",
		Long: `Harvest every dataset uploaded to DataONE in [from, to] into the
configured graphs.

Without --from the window starts where the last completed harvest ended.
The first harvest against a state database therefore needs --from.
--reset clears every configured repository and the cursor first.

Example:
  d1lod harvest --from 2024-01-01 --to 2024-02-01
  d1lod harvest --config d1lod.cue --workers 8 --metrics-addr :9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHarvest(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "", "window start (RFC 3339 or YYYY-MM-DD); defaults to the cursor")
	cmd.Flags().StringVar(&opts.To, "to", "", "window end (RFC 3339 or YYYY-MM-DD); defaults to now")
	cmd.Flags().BoolVar(&opts.Reset, "reset", false, "clear every configured repository and the cursor before harvesting")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while harvesting")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent document workers (overrides harvest.workers)")
	cmd.Flags().StringVar(&opts.StateDB, "db", "", "path to SQLite state database (overrides harvest.state_db)")

	return cmd
}

// harvestOutput is the printed summary of a run.
type harvestOutput struct {
	harvest.Result
}

func (h harvestOutput) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Harvest %s\n", h.RunID)
	fmt.Fprintf(&b, "  window:    %s .. %s\n", h.From.Format(time.RFC3339), h.To.Format(time.RFC3339))
	fmt.Fprintf(&b, "  found:     %d (%d pages)\n", h.Found, h.Pages)
	fmt.Fprintf(&b, "  processed: %d\n", h.Processed)
	fmt.Fprintf(&b, "  skipped:   %d\n", h.Skipped)
	fmt.Fprintf(&b, "  failed:    %d\n", h.Failed)
	b.WriteString(reportOutput{h.Graph}.String())
	return strings.TrimRight(b.String(), "\n")
}

func runHarvest(cmd *cobra.Command, opts *HarvestOptions) error {
	out := opts.formatter(cmd)
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	st, err := openStore(cmd, opts.RootOptions, cfg, opts.StateDB, store.WithClock(now))
	if err != nil {
		return err
	}
	defer closeStore(st)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeFailed, "failed to register metrics", err)
	}
	if opts.MetricsAddr != "" {
		shutdown, err := serveMetrics(opts.MetricsAddr, reg)
		if err != nil {
			return out.Fail(ExitCommandError, ErrCodeArgument, "failed to serve metrics", err)
		}
		defer shutdown()
	}

	srv := newServer(cfg, m)
	if opts.Reset {
		if err := resetState(ctx, srv, cfg, st); err != nil {
			return out.Fail(ExitCommandError, ErrCodeServer, "failed to reset", err)
		}
	}

	from, to, err := harvestWindow(ctx, opts, st, now())
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeArgument, "invalid harvest window", err)
	}

	coord, err := graph.Open(ctx, srv, cfg.Graphs.Repositories(), cfg.NamespaceTable(), graph.WithMetrics(m))
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeServer, "failed to open graphs", err)
	}

	client := httpClient(cfg)
	index := harvest.NewSolrIndex(cfg.Harvest.IndexURL, cfg.Harvest.PageSize, client)
	fetcher := harvest.NewObjectFetcher(cfg.Harvest.ObjectURL, client, st)

	workers := cfg.Harvest.Workers
	if opts.Workers > 0 {
		workers = opts.Workers
	}
	driverOpts := []harvest.Option{
		harvest.WithWorkers(workers),
		harvest.WithSkipExisting(cfg.Harvest.SkipExisting),
		harvest.WithMetrics(m),
		harvest.WithClock(now),
	}
	if opts.RunIDs != nil {
		driverOpts = append(driverOpts, harvest.WithRunIDGenerator(opts.RunIDs))
	}
	driver := harvest.New(index, fetcher, coord, st, driverOpts...)

	res, err := driver.Run(ctx, from, to)
	if err != nil {
		return out.Fail(ExitFailure, ErrCodeFailed, "harvest failed", err)
	}
	return out.SuccessWithRun(res.RunID, harvestOutput{res})
}

// harvestWindow resolves --from and --to. A missing --from falls back to
// the cursor; with no cursor either, the window is undefined.
func harvestWindow(ctx context.Context, opts *HarvestOptions, st *store.Store, now time.Time) (time.Time, time.Time, error) {
	to := now.UTC()
	if opts.To != "" {
		t, err := parseTime(opts.To)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--to: %w", err)
		}
		to = t
	}

	if opts.From != "" {
		from, err := parseTime(opts.From)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--from: %w", err)
		}
		return from, to, nil
	}

	from, err := st.GetCursor(ctx, store.CursorSince)
	if errors.Is(err, store.ErrNotFound) {
		return time.Time{}, time.Time{}, errors.New("no previous harvest recorded; --from is required")
	}
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	slog.Info("resuming from cursor", "from", from)
	return from, to, nil
}

// resetState clears every configured repository and the cursor.
func resetState(ctx context.Context, srv *sesame.Server, cfg *config.Config, st *store.Store) error {
	for _, name := range repositoryNames(cfg) {
		repo, err := readRepository(ctx, srv, cfg, name)
		if err != nil {
			return fmt.Errorf("repository %s: %w", name, err)
		}
		if !repo.Exists(ctx) {
			continue
		}
		if err := repo.Clear(ctx); err != nil {
			return fmt.Errorf("repository %s: %w", name, err)
		}
		slog.Info("repository cleared", "repository", name)
	}
	return st.ClearCursor(ctx, store.CursorSince)
}

// serveMetrics exposes reg over HTTP until the returned function is called.
func serveMetrics(addr string, reg *prometheus.Registry) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server stopped", "error", err)
		}
	}()
	slog.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Warn("metrics server shutdown", "error", err)
		}
	}, nil
}

// signalContext returns the command's context, cancelled on SIGINT or
// SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
