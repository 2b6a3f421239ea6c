package cli

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/d1lod/internal/harness"
	"github.com/roach88/d1lod/internal/ir"
	"github.com/roach88/d1lod/internal/sesame"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Filter string // scenario filter (glob pattern)
	Reset  bool   // clear scenario repositories before each run
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

func (r TestResult) String() string {
	if r.Total == 0 {
		return "No scenarios found."
	}
	var b strings.Builder
	for _, s := range r.Scenarios {
		mark := "PASS"
		if !s.Pass {
			mark = "FAIL"
		}
		fmt.Fprintf(&b, "%s %s\n", mark, s.Name)
		for _, e := range s.Errors {
			fmt.Fprintf(&b, "  %s\n", e)
		}
	}
	fmt.Fprintf(&b, "\n%d passed, %d failed, %d total", r.Passed, r.Failed, r.Total)
	return b.String()
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenario-file-or-dir>...",
		Short: "Run conformance scenarios against the server",
		Long: `Run YAML conformance scenarios against the configured Sesame server.

Each scenario names its own repositories, opens a coordinator over them,
runs its flow and checks its assertions. Scenarios write to the server, so
point them at repositories that hold nothing of value.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, unreachable server, etc.)

Examples:
  d1lod test ./scenarios
  d1lod test ./scenarios --filter "ambiguous_*"
  d1lod test ./scenarios --reset --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().BoolVar(&opts.Reset, "reset", false, "clear each scenario's repositories before running it")

	return cmd
}

func runTests(cmd *cobra.Command, opts *TestOptions, paths []string) error {
	out := opts.formatter(cmd)
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}

	var files []string
	for _, p := range paths {
		found, err := findScenarioFiles(p, opts.Filter)
		if err != nil {
			return out.Fail(ExitCommandError, ErrCodeArgument, "failed to find scenarios", err)
		}
		files = append(files, found...)
	}

	ctx, stop := signalContext(cmd)
	defer stop()
	srv := newServer(cfg, nil)

	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	for _, file := range files {
		sr := ScenarioResult{Name: filepath.Base(file)}
		scenario, err := harness.LoadScenario(file)
		if err != nil {
			sr.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
			result.add(sr)
			continue
		}
		sr.Name = scenario.Name

		if opts.Reset {
			if err := resetScenario(ctx, srv, scenario); err != nil {
				return out.Fail(ExitCommandError, ErrCodeServer, "failed to reset scenario repositories", err)
			}
		}

		res, err := harness.Run(ctx, srv, scenario)
		if err != nil {
			sr.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
			result.add(sr)
			continue
		}
		out.VerboseLog("ran %s: %d steps", scenario.Name, len(res.Trace))
		sr.Pass = res.Pass
		sr.Errors = res.Errors
		result.add(sr)
	}

	if result.Failed > 0 {
		_ = out.Error(ErrCodeFailed, fmt.Sprintf("%d of %d scenarios failed", result.Failed, result.Total), result)
		return NewExitError(ExitFailure, "scenarios failed")
	}
	return out.Success(result)
}

func (r *TestResult) add(s ScenarioResult) {
	r.Scenarios = append(r.Scenarios, s)
	if s.Pass {
		r.Passed++
	} else {
		r.Failed++
	}
}

// resetScenario empties every repository a scenario names, bindings
// included, so setup namespaces start from a clean table.
func resetScenario(ctx context.Context, srv *sesame.Server, scenario *harness.Scenario) error {
	repos := scenario.Repositories()
	names := make([]string, 0, len(repos))
	for _, g := range ir.Graphs {
		names = append(names, repos[g])
	}
	slices.Sort(names)
	for _, name := range slices.Compact(names) {
		repo := srv.Repository(name, nil)
		if !repo.Exists(ctx) {
			continue
		}
		if err := repo.Clear(ctx); err != nil {
			return err
		}
		if err := repo.RemoveNamespaces(ctx); err != nil {
			return err
		}
	}
	return nil
}

// findScenarioFiles returns the YAML scenario files under path, sorted.
// A file path is returned as is.
func findScenarioFiles(path, filter string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(p)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(d.Name(), ext))
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}
