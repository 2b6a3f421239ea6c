package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/d1lod/internal/graph"
	"github.com/roach88/d1lod/internal/harness"
	"github.com/roach88/d1lod/internal/ir"
)

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load <documents.yaml>",
		Short: "Write extracted documents from a YAML file",
		Long: `Write documents from a YAML file into the configured graphs, in the same
order a harvest does: organizations, then people, then the dataset.

The file is a list of documents:

  - identifier: "doi:10.5063/F1K0"
    organizations:
      - { type: organization, attrs: { name: [NCEAS] } }
    people:
      - { type: person, attrs: { name: [A. Smith], organization: [NCEAS] } }
    dataset:
      type: dataset
      attrs: { identifier: ["doi:10.5063/F1K0"], title: [Kelp survey] }

Example:
  d1lod load fixtures.yaml
  d1lod load --format json fixtures.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd, rootOpts, args[0])
		},
	}
	return cmd
}

// reportOutput prints a coordinator report.
type reportOutput struct {
	graph.Report
}

func (r reportOutput) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Documents: %d (%d failed)\n", r.Documents, r.DocumentsFailed)
	for _, g := range ir.Graphs {
		c := r.Graphs[g]
		fmt.Fprintf(&b, "  %-14s created=%d existing=%d failed=%d\n", g, c.Created, c.Existing, c.Failed)
	}
	if r.Ambiguous > 0 {
		fmt.Fprintf(&b, "Ambiguous resolutions: %d\n", r.Ambiguous)
	}
	if r.NamespaceConflicts > 0 {
		fmt.Fprintf(&b, "Namespace conflicts: %d\n", r.NamespaceConflicts)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(&b, "  failure: %s\n", f)
	}
	return strings.TrimRight(b.String(), "\n")
}

func runLoad(cmd *cobra.Command, opts *RootOptions, path string) error {
	out := opts.formatter(cmd)
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}

	docs, err := harness.LoadDocuments(path)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeArgument, "failed to load documents", err)
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	coord, err := graph.Open(ctx, newServer(cfg, nil), cfg.Graphs.Repositories(), cfg.NamespaceTable())
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeServer, "failed to open graphs", err)
	}

	for _, doc := range docs {
		res, err := coord.AddDocument(ctx, doc)
		if err != nil {
			slog.Error("document failed", "identifier", res.Identifier, "error", err)
			continue
		}
		out.VerboseLog("loaded %s", res.Identifier)
	}

	report, err := coord.Save(ctx)
	if err != nil {
		slog.Warn("namespace registration incomplete", "error", err)
	}
	if report.DocumentsFailed > 0 {
		_ = out.Error(ErrCodeFailed, fmt.Sprintf("%d of %d documents failed", report.DocumentsFailed, report.Documents), report)
		return NewExitError(ExitFailure, "documents failed to load")
	}
	return out.Success(reportOutput{report})
}
