package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/d1lod/internal/store"
)

// runOutput is one run as printed.
type runOutput struct {
	ID         string          `json:"id"`
	From       time.Time       `json:"from"`
	To         time.Time       `json:"to"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Status     string          `json:"status"`
	Report     json.RawMessage `json:"report,omitempty"`
	Failures   []failureOutput `json:"failures,omitempty"`
}

type failureOutput struct {
	Identifier string `json:"identifier"`
	Reason     string `json:"reason"`
}

func newRunOutput(r store.Run) runOutput {
	out := runOutput{
		ID:        r.ID,
		From:      r.From,
		To:        r.To,
		StartedAt: r.StartedAt,
		Status:    string(r.Status),
	}
	if !r.FinishedAt.IsZero() {
		finished := r.FinishedAt
		out.FinishedAt = &finished
	}
	return out
}

func (r runOutput) line() string {
	return fmt.Sprintf("%s\t%-9s\t%s .. %s", r.ID, r.Status, r.From.Format(time.RFC3339), r.To.Format(time.RFC3339))
}

func (r runOutput) String() string {
	var b strings.Builder
	b.WriteString(r.line())
	if len(r.Report) > 0 {
		fmt.Fprintf(&b, "\n  report: %s", r.Report)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(&b, "\n  failed %s: %s", f.Identifier, f.Reason)
	}
	return b.String()
}

type runsOutput []runOutput

func (rs runsOutput) String() string {
	if len(rs) == 0 {
		return "No runs recorded"
	}
	lines := make([]string, len(rs))
	for i, r := range rs {
		lines[i] = r.line()
	}
	return strings.Join(lines, "\n")
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		dbPath string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List harvest runs or show one run",
		Long: `List recent harvest runs, newest first. With a run ID, show that run's
report and the documents it failed to process.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			return withStore(cmd, rootOpts, dbPath, func(st *store.Store) error {
				ctx := cmd.Context()
				if len(args) == 0 {
					runs, err := st.ListRuns(ctx, limit)
					if err != nil {
						return out.Fail(ExitCommandError, ErrCodeState, "failed to list runs", err)
					}
					res := make(runsOutput, 0, len(runs))
					for _, r := range runs {
						res = append(res, newRunOutput(r))
					}
					return out.Success(res)
				}

				run, err := st.GetRun(ctx, args[0])
				if errors.Is(err, store.ErrNotFound) {
					return out.Fail(ExitCommandError, ErrCodeArgument, "no such run "+args[0], err)
				}
				if err != nil {
					return out.Fail(ExitCommandError, ErrCodeState, "failed to read run", err)
				}
				failures, err := st.Failures(ctx, run.ID)
				if err != nil {
					return out.Fail(ExitCommandError, ErrCodeState, "failed to read failures", err)
				}
				res := newRunOutput(run)
				res.Report = run.Report
				for _, f := range failures {
					res.Failures = append(res.Failures, failureOutput{Identifier: f.Identifier, Reason: f.Reason})
				}
				return out.SuccessWithRun(run.ID, res)
			})
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "path to SQLite state database (overrides harvest.state_db)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list (0 for all)")
	return cmd
}
