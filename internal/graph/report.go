package graph

import (
	"github.com/roach88/d1lod/internal/ir"
)

// Status is the result of one entity upsert.
type Status string

const (
	StatusCreated  Status = "created"
	StatusExisting Status = "existing"
	StatusFailed   Status = "failed"
)

// Outcome describes one entity upsert.
type Outcome struct {
	Graph     ir.Graph `json:"graph"`
	URI       ir.IRI   `json:"uri,omitempty"`
	Status    Status   `json:"status"`
	Ambiguous bool     `json:"ambiguous,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// Settled reports whether the entity exists in its graph after the upsert.
func (o Outcome) Settled() bool {
	return o.Status == StatusCreated || o.Status == StatusExisting
}

// DocumentOutcome describes one AddDocument call.
type DocumentOutcome struct {
	Identifier    string    `json:"identifier"`
	Organizations []Outcome `json:"organizations,omitempty"`
	People        []Outcome `json:"people,omitempty"`
	Dataset       *Outcome  `json:"dataset,omitempty"`
}

// Failed reports whether the document's dataset did not settle.
func (d DocumentOutcome) Failed() bool {
	return d.Dataset == nil || !d.Dataset.Settled()
}

// GraphCounts aggregates upsert outcomes of one graph.
type GraphCounts struct {
	Created  int `json:"created"`
	Existing int `json:"existing"`
	Failed   int `json:"failed"`
}

// Report aggregates a coordinator's work since it was opened.
type Report struct {
	Documents          int                      `json:"documents"`
	DocumentsFailed    int                      `json:"documents_failed"`
	Graphs             map[ir.Graph]GraphCounts `json:"graphs"`
	Ambiguous          int                      `json:"ambiguous"`
	NamespaceConflicts int                      `json:"namespace_conflicts"`
	Failures           []string                 `json:"failures,omitempty"`
}

func newReport() Report {
	return Report{Graphs: make(map[ir.Graph]GraphCounts, len(ir.Graphs))}
}

func (r Report) clone() Report {
	out := r
	out.Graphs = make(map[ir.Graph]GraphCounts, len(r.Graphs))
	for g, c := range r.Graphs {
		out.Graphs[g] = c
	}
	out.Failures = append([]string(nil), r.Failures...)
	return out
}

func (r *Report) add(o Outcome) {
	c := r.Graphs[o.Graph]
	switch o.Status {
	case StatusCreated:
		c.Created++
	case StatusExisting:
		c.Existing++
	case StatusFailed:
		c.Failed++
	}
	r.Graphs[o.Graph] = c
	if o.Ambiguous {
		r.Ambiguous++
	}
}
