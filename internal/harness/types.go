package harness

import "github.com/roach88/d1lod/internal/graph"

// TraceEvent is the recorded outcome of one flow step.
type TraceEvent struct {
	Step     int                    `json:"step"`
	Invoke   string                 `json:"invoke"`
	Outcome  *graph.Outcome         `json:"outcome,omitempty"`
	Document *graph.DocumentOutcome `json:"document,omitempty"`
	Exists   *bool                  `json:"exists,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success: every expect clause and
	// assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per flow step, in order.
	Trace []TraceEvent `json:"trace"`

	// Report is the coordinator report after the flow.
	Report graph.Report `json:"report"`

	// Errors contains expectation and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step event.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
