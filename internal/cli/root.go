package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/d1lod/internal/config"
	"github.com/roach88/d1lod/internal/ir"
	"github.com/roach88/d1lod/internal/metrics"
	"github.com/roach88/d1lod/internal/namespace"
	"github.com/roach88/d1lod/internal/sesame"
	"github.com/roach88/d1lod/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Config is the path of a CUE configuration file. Empty means the
	// built-in defaults.
	Config string

	// Host and Port override server.host and server.port when set.
	Host string
	Port int
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the d1lod CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "d1lod",
		Short: "d1lod - DataONE Linked Open Data harvester",
		Long: `Harvest DataONE dataset metadata into Sesame graph repositories.

People, organizations and datasets are written to separate graphs with
deterministic URIs, so repeated harvests converge instead of duplicating.`,
		Version:       ir.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			setupLogging(opts, cmd.ErrOrStderr())
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "path to CUE configuration file")
	cmd.PersistentFlags().StringVar(&opts.Host, "host", "", "Sesame host (overrides server.host)")
	cmd.PersistentFlags().IntVar(&opts.Port, "port", 0, "Sesame port (overrides server.port)")

	// Add subcommands
	cmd.AddCommand(NewHarvestCommand(opts))
	cmd.AddCommand(NewLoadCommand(opts))
	cmd.AddCommand(NewSizeCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewNamespacesCommand(opts))
	cmd.AddCommand(NewFindCommand(opts))
	cmd.AddCommand(NewClearCommand(opts))
	cmd.AddCommand(NewCursorCommand(opts))
	cmd.AddCommand(NewRunsCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// setupLogging installs the process-wide logger: text on stderr, JSON when
// the output format is JSON, debug level under --verbose.
func setupLogging(opts *RootOptions, w io.Writer) {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(w, hopts)
	if opts.Format == "json" {
		handler = slog.NewJSONHandler(w, hopts)
	}
	slog.SetDefault(slog.New(handler))
}

// formatter returns the output formatter of a command.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// loadConfig reads --config, or the defaults, and applies flag overrides.
func (o *RootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if o.Config != "" {
		loaded, err := config.Load(o.Config)
		if err != nil {
			return nil, o.formatter(cmd).Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
		}
		cfg = loaded
	}
	if f := cmd.Flag("host"); f != nil && f.Changed {
		cfg.Server.Host = o.Host
	}
	if f := cmd.Flag("port"); f != nil && f.Changed {
		cfg.Server.Port = o.Port
	}
	slog.Debug("configuration loaded",
		"file", o.Config,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port)
	return cfg, nil
}

// newServer builds the Sesame client of a configuration.
func newServer(cfg *config.Config, m *metrics.Metrics) *sesame.Server {
	return sesame.NewServer(cfg.Server.Host, cfg.Server.Port, sesame.Options{
		SesamePath:    cfg.Server.SesamePath,
		WorkbenchPath: cfg.Server.WorkbenchPath,
		Timeout:       cfg.Server.TimeoutDuration(),
		Rate:          cfg.Server.Rate,
		Burst:         cfg.Server.Burst,
		Metrics:       m,
	})
}

// httpClient is the client used for DataONE index and object requests.
func httpClient(cfg *config.Config) *http.Client {
	return &http.Client{Timeout: cfg.Server.TimeoutDuration()}
}

// repositoryNames returns the distinct configured repositories, sorted.
func repositoryNames(cfg *config.Config) []string {
	seen := make(map[string]struct{})
	for _, name := range cfg.Graphs.Repositories() {
		seen[name] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen))
}

// readRepository returns a client for name whose namespace table mirrors
// the remote one, completed with the configured table. Nothing is written
// to the server.
func readRepository(ctx context.Context, srv *sesame.Server, cfg *config.Config, name string) (*sesame.Repository, error) {
	reg := namespace.New()
	repo := srv.Repository(name, reg)
	remote, err := repo.Namespaces(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range slices.Sorted(maps.Keys(remote)) {
		reg.Bind(p, remote[p])
	}
	table := cfg.NamespaceTable()
	for _, p := range slices.Sorted(maps.Keys(table)) {
		reg.Bind(p, table[p])
	}
	return repo, nil
}

// openStore opens the state database, preferring path over the configured
// one.
func openStore(cmd *cobra.Command, o *RootOptions, cfg *config.Config, path string, opts ...store.Option) (*store.Store, error) {
	if path == "" {
		path = cfg.Harvest.StateDB
	}
	slog.Debug("opening state database", "path", path)
	st, err := store.Open(path, opts...)
	if err != nil {
		return nil, o.formatter(cmd).Fail(ExitCommandError, ErrCodeState, "failed to open state database", err)
	}
	return st, nil
}

// closeStore closes st, logging failures.
func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}
