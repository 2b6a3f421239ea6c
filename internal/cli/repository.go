package cli

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/d1lod/internal/ir"
	"github.com/roach88/d1lod/internal/namespace"
	"github.com/roach88/d1lod/internal/sparql"
)

// sizeOutput maps repository names to statement counts.
type sizeOutput map[string]int64

func (s sizeOutput) String() string {
	var b strings.Builder
	for _, name := range slices.Sorted(maps.Keys(s)) {
		if s[name] < 0 {
			fmt.Fprintf(&b, "%s\t(missing)\n", name)
			continue
		}
		fmt.Fprintf(&b, "%s\t%d\n", name, s[name])
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewSizeCommand creates the size command.
func NewSizeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "size [repository...]",
		Short: "Print repository statement counts",
		Long: `Print the number of statements in each repository. Without arguments
every configured repository is listed. Missing repositories print as
missing (-1 in JSON).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			cfg, err := rootOpts.loadConfig(cmd)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				args = repositoryNames(cfg)
			}
			srv := newServer(cfg, nil)
			sizes := make(sizeOutput, len(args))
			for _, name := range args {
				n, err := srv.Repository(name, namespace.New()).Size(cmd.Context())
				if err != nil {
					return out.Fail(ExitCommandError, ErrCodeServer, "failed to read size of "+name, err)
				}
				sizes[name] = n
			}
			return out.Success(sizes)
		},
	}
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <repository>",
		Short: "Export a repository as Turtle",
		Long: `Export every statement of a repository as Turtle, to stdout or to the
file named by --output.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			cfg, err := rootOpts.loadConfig(cmd)
			if err != nil {
				return err
			}
			data, err := newServer(cfg, nil).Repository(args[0], namespace.New()).Export(cmd.Context(), "turtle")
			if err != nil {
				return out.Fail(ExitCommandError, ErrCodeServer, "failed to export "+args[0], err)
			}
			if output != "" {
				if err := os.WriteFile(output, data, 0644); err != nil {
					return out.Fail(ExitCommandError, ErrCodeArgument, "failed to write export", err)
				}
				return out.Success(fmt.Sprintf("Exported %s to %s (%d bytes)", args[0], output, len(data)))
			}
			if rootOpts.Format == "json" {
				return out.Success(map[string]string{"repository": args[0], "turtle": string(data)})
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write Turtle to this file")
	return cmd
}

// namespacesOutput maps prefixes to namespace IRIs.
type namespacesOutput map[string]string

func (n namespacesOutput) String() string {
	var b strings.Builder
	for _, p := range slices.Sorted(maps.Keys(n)) {
		fmt.Fprintf(&b, "%s\t%s\n", p, n[p])
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewNamespacesCommand creates the namespaces command.
func NewNamespacesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "namespaces <repository>",
		Short:         "List a repository's namespace bindings",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			cfg, err := rootOpts.loadConfig(cmd)
			if err != nil {
				return err
			}
			ns, err := newServer(cfg, nil).Repository(args[0], namespace.New()).Namespaces(cmd.Context())
			if err != nil {
				return out.Fail(ExitCommandError, ErrCodeServer, "failed to read namespaces of "+args[0], err)
			}
			return out.Success(namespacesOutput(ns))
		},
	}
}

// findOutput is the rendered solutions of a pattern.
type findOutput struct {
	Vars []string            `json:"vars"`
	Rows []map[string]string `json:"rows"`
}

func (f findOutput) String() string {
	var b strings.Builder
	for _, row := range f.Rows {
		parts := make([]string, 0, len(f.Vars))
		for _, v := range f.Vars {
			parts = append(parts, row[v])
		}
		b.WriteString(strings.Join(parts, "\t"))
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "(%d rows)", len(f.Rows))
	return b.String()
}

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "find <repository> <subject> <predicate> <object>",
		Short: "Match one triple pattern",
		Long: `Match one triple pattern against a repository and print the bindings of
its variables. Terms are written ?var, <iri>, prefix:local, "literal",
"literal"@lang or "literal"^^datatype; bare words are plain literals.

Example:
  d1lod find geolink ?s rdf:type glview:Person
  d1lod find geolink d1org:NCEAS ?p ?o`,
		Args:          cobra.ExactArgs(4),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			cfg, err := rootOpts.loadConfig(cmd)
			if err != nil {
				return err
			}
			repo, err := readRepository(cmd.Context(), newServer(cfg, nil), cfg, args[0])
			if err != nil {
				return out.Fail(ExitCommandError, ErrCodeServer, "failed to read namespaces of "+args[0], err)
			}

			terms := make([]ir.Term, 3)
			var vars []string
			for i, s := range args[1:] {
				t, err := sparql.ParseTerm(s, repo.Registry())
				if err != nil {
					return out.Fail(ExitCommandError, ErrCodeArgument, "invalid term", err)
				}
				if v, ok := t.(ir.Var); ok && !slices.Contains(vars, string(v)) {
					vars = append(vars, string(v))
				}
				terms[i] = t
			}

			rows, err := repo.Find(cmd.Context(), terms[0], terms[1], terms[2])
			if err != nil {
				return out.Fail(ExitCommandError, ErrCodeServer, "query failed", err)
			}
			res := findOutput{Vars: vars, Rows: make([]map[string]string, 0, len(rows))}
			if res.Vars == nil {
				res.Vars = []string{}
			}
			for _, row := range rows {
				m := make(map[string]string, len(vars))
				for _, v := range vars {
					if s, ok := row.Render(v); ok {
						m[v] = s
					}
				}
				res.Rows = append(res.Rows, m)
			}
			return out.Success(res)
		},
	}
}

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	var yes, namespaces bool
	cmd := &cobra.Command{
		Use:   "clear [repository...]",
		Short: "Delete every statement of repositories",
		Long: `Delete every statement of the named repositories, or of every configured
repository when none is named. --namespaces also removes the namespace
bindings. Nothing is deleted without --yes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			if !yes {
				return out.Fail(ExitCommandError, ErrCodeArgument, "refusing to clear without --yes", nil)
			}
			cfg, err := rootOpts.loadConfig(cmd)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				args = repositoryNames(cfg)
			}
			srv := newServer(cfg, nil)
			for _, name := range args {
				repo := srv.Repository(name, namespace.New())
				if err := repo.Clear(cmd.Context()); err != nil {
					return out.Fail(ExitCommandError, ErrCodeServer, "failed to clear "+name, err)
				}
				if namespaces {
					if err := repo.RemoveNamespaces(cmd.Context()); err != nil {
						return out.Fail(ExitCommandError, ErrCodeServer, "failed to remove namespaces of "+name, err)
					}
				}
				out.VerboseLog("cleared %s", name)
			}
			return out.Success(fmt.Sprintf("Cleared %s", strings.Join(args, ", ")))
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	cmd.Flags().BoolVar(&namespaces, "namespaces", false, "also remove namespace bindings")
	return cmd
}
