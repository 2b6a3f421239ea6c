package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/d1lod/internal/graph"
	"github.com/roach88/d1lod/internal/ir"
	"github.com/roach88/d1lod/internal/sparql"
)

// AssertionError describes an assertion failure.
type AssertionError struct {
	Index   int    // Assertion index in scenario
	Type    string // Assertion type
	Message string // Human-readable failure message
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion[%d] (%s): %s", e.Index, e.Type, e.Message)
}

// evaluateAssertions runs every assertion and returns the failure messages.
func (h *Harness) evaluateAssertions(ctx context.Context, result *Result) []string {
	var errs []string
	for i, a := range h.scenario.Assertions {
		if err := h.evaluate(ctx, i, a, result.Report); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func (h *Harness) evaluate(ctx context.Context, i int, a Assertion, report graph.Report) error {
	fail := func(format string, args ...any) error {
		return &AssertionError{Index: i, Type: a.Type, Message: fmt.Sprintf(format, args...)}
	}

	switch a.Type {
	case AssertSize:
		repo, err := h.repository(ctx, a.Repository)
		if err != nil {
			return fail("%v", err)
		}
		n, err := repo.Size(ctx)
		if err != nil {
			return fail("%v", err)
		}
		if n != int64(a.Count) {
			return fail("repository %s has %d statements, want %d", a.Repository, n, a.Count)
		}

	case AssertContains, AssertAbsent:
		repo, err := h.repository(ctx, a.Repository)
		if err != nil {
			return fail("%v", err)
		}
		terms := make([]ir.Term, 3)
		for j, s := range a.Triple {
			t, err := sparql.ParseTerm(s, repo.Registry())
			if err != nil {
				return fail("%v", err)
			}
			terms[j] = t
		}
		rows, err := repo.Find(ctx, terms[0], terms[1], terms[2])
		if err != nil {
			return fail("%v", err)
		}
		pattern := strings.Join(a.Triple, " ")
		if a.Type == AssertContains && len(rows) == 0 {
			return fail("no statement matches %s", pattern)
		}
		if a.Type == AssertAbsent && len(rows) > 0 {
			return fail("%d statement(s) match %s", len(rows), pattern)
		}

	case AssertNamespace:
		repo, err := h.repository(ctx, a.Repository)
		if err != nil {
			return fail("%v", err)
		}
		uri, err := repo.GetNamespace(ctx, a.Prefix)
		if err != nil {
			return fail("%v", err)
		}
		if uri != a.URI {
			return fail("prefix %s is bound to %q, want %q", a.Prefix, uri, a.URI)
		}

	case AssertReport:
		got, ok := reportField(report, a.Field)
		if !ok {
			return fail("unknown report field %q", a.Field)
		}
		if got != a.Count {
			return fail("%s = %d, want %d", a.Field, got, a.Count)
		}

	default:
		return fail("unknown assertion type")
	}
	return nil
}

// reportField reads a named counter from a report.
func reportField(r graph.Report, field string) (int, bool) {
	switch field {
	case "documents":
		return r.Documents, true
	case "documents_failed":
		return r.DocumentsFailed, true
	case "ambiguous":
		return r.Ambiguous, true
	case "namespace_conflicts":
		return r.NamespaceConflicts, true
	}

	g, counter, ok := strings.Cut(field, ".")
	if !ok {
		return 0, false
	}
	c := r.Graphs[ir.Graph(g)]
	switch counter {
	case "created":
		return c.Created, true
	case "existing":
		return c.Existing, true
	case "failed":
		return c.Failed, true
	}
	return 0, false
}
