package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/d1lod/internal/graph"
	"github.com/roach88/d1lod/internal/namespace"
	"github.com/roach88/d1lod/internal/sesame"
	"github.com/roach88/d1lod/internal/vocab"
)

// Harness executes one scenario against one server.
type Harness struct {
	srv      *sesame.Server
	scenario *Scenario
	desired  map[string]string
	coord    *graph.Coordinator
	logger   *slog.Logger
}

// Run executes a scenario against srv and returns the result.
//
// Execution flow:
//  1. Bind setup namespaces remotely
//  2. Open the coordinator over the scenario's graphs
//  3. Execute setup steps (untraced)
//  4. Execute flow steps, tracing outcomes and checking expect clauses
//  5. Evaluate assertions against the repositories
//
// An error is returned only when the scenario cannot be executed; failed
// expectations and assertions are reported in the result.
func Run(ctx context.Context, srv *sesame.Server, scenario *Scenario) (*Result, error) {
	desired := vocab.Defaults()
	maps.Copy(desired, scenario.Namespaces)

	h := &Harness{
		srv:      srv,
		scenario: scenario,
		desired:  desired,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	if err := h.bindSetupNamespaces(ctx); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	coord, err := graph.Open(ctx, srv, scenario.Repositories(), desired, graph.WithLogger(h.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open graphs: %w", err)
	}
	h.coord = coord

	result := NewResult()
	if scenario.Setup != nil {
		for i, step := range scenario.Setup.Flow {
			ev := h.execute(ctx, i, step)
			if ev.Error != "" {
				return nil, fmt.Errorf("setup step %d (%s): %s", i, step.Invoke, ev.Error)
			}
		}
	}

	for i, step := range scenario.Flow {
		ev := h.execute(ctx, i, step)
		result.AddTrace(ev)
		for _, msg := range checkExpect(ev, step.Expect) {
			result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Invoke, msg))
		}
	}
	result.Report = coord.Report()

	for _, msg := range h.evaluateAssertions(ctx, result) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) bindSetupNamespaces(ctx context.Context) error {
	if h.scenario.Setup == nil {
		return nil
	}
	for _, name := range slices.Sorted(maps.Keys(h.scenario.Setup.Namespaces)) {
		repo := h.srv.Repository(name, namespace.New())
		if err := repo.Create(ctx); err != nil {
			return err
		}
		bindings := h.scenario.Setup.Namespaces[name]
		for _, prefix := range slices.Sorted(maps.Keys(bindings)) {
			if err := repo.AddNamespace(ctx, prefix, bindings[prefix]); err != nil {
				return err
			}
		}
	}
	return nil
}

// execute runs one step and records what happened.
func (h *Harness) execute(ctx context.Context, i int, step Step) TraceEvent {
	ev := TraceEvent{Step: i, Invoke: step.Invoke}
	record := func(out graph.Outcome, err error) {
		ev.Outcome = &out
		if err != nil {
			ev.Error = err.Error()
		}
	}

	switch step.Invoke {
	case OpAddOrganization:
		record(h.coord.AddOrganization(ctx, *step.Record))
	case OpAddPerson:
		record(h.coord.AddPerson(ctx, *step.Record))
	case OpAddDataset:
		record(h.coord.AddDataset(ctx, *step.Record))
	case OpAddDocument:
		out, err := h.coord.AddDocument(ctx, *step.Document)
		ev.Document = &out
		if err != nil {
			ev.Error = err.Error()
		}
	case OpDatasetExists:
		exists, err := h.coord.DatasetExists(ctx, step.Identifier)
		if err != nil {
			ev.Error = err.Error()
		} else {
			ev.Exists = &exists
		}
	case OpSave:
		if _, err := h.coord.Save(ctx); err != nil {
			ev.Error = err.Error()
		}
	}
	h.logger.Info("step executed", "step", i, "invoke", step.Invoke, "error", ev.Error)
	return ev
}

// checkExpect compares an event with its expect clause.
func checkExpect(ev TraceEvent, want *Expect) []string {
	if want == nil {
		if ev.Error != "" {
			return []string{"unexpected error: " + ev.Error}
		}
		return nil
	}

	var errs []string
	if want.Error != (ev.Error != "") {
		errs = append(errs, fmt.Sprintf("error = %q, want error %v", ev.Error, want.Error))
	}

	out := ev.Outcome
	if ev.Document != nil {
		out = ev.Document.Dataset
	}
	if want.Status != "" || want.URI != "" || want.Ambiguous != nil {
		if out == nil {
			return append(errs, "no outcome to check")
		}
		if want.Status != "" && string(out.Status) != want.Status {
			errs = append(errs, fmt.Sprintf("status = %s, want %s", out.Status, want.Status))
		}
		if want.URI != "" && string(out.URI) != want.URI {
			errs = append(errs, fmt.Sprintf("uri = %s, want %s", out.URI, want.URI))
		}
		if want.Ambiguous != nil && out.Ambiguous != *want.Ambiguous {
			errs = append(errs, fmt.Sprintf("ambiguous = %v, want %v", out.Ambiguous, *want.Ambiguous))
		}
	}
	if want.Exists != nil {
		if ev.Exists == nil || *ev.Exists != *want.Exists {
			errs = append(errs, fmt.Sprintf("exists = %v, want %v", ev.Exists, *want.Exists))
		}
	}
	return errs
}

// repository returns a read client whose namespace table mirrors the
// remote one, falling back to the scenario's desired bindings. It never
// writes to the server.
func (h *Harness) repository(ctx context.Context, name string) (*sesame.Repository, error) {
	reg := namespace.New()
	repo := h.srv.Repository(name, reg)
	remote, err := repo.Namespaces(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range slices.Sorted(maps.Keys(remote)) {
		reg.Bind(p, remote[p])
	}
	for _, p := range slices.Sorted(maps.Keys(h.desired)) {
		reg.Bind(p, h.desired[p])
	}
	return repo, nil
}
