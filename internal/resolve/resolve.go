// Package resolve finds the existing URI of an entity record in a graph.
//
// Resolution matches exact identifying values, never free text. A record
// resolves to NotFound only when the store answered and nothing matched; a
// failed query is an error, so a flaky store can never cause a duplicate
// write.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/d1lod/internal/ir"
	"github.com/roach88/d1lod/internal/vocab"
)

// ErrUnidentifiable is returned for records lacking every identifying
// attribute of their kind.
var ErrUnidentifiable = vocab.ErrUnidentifiable

// Querier runs a conjunction of triple patterns against one graph.
type Querier interface {
	FindPatterns(ctx context.Context, patterns ...ir.Triple) ([]ir.Row, error)
}

// Resolution is the answer for one record.
type Resolution struct {
	Found bool
	URI   ir.IRI

	// Candidates lists every matching subject, sorted. It has more than one
	// element only when the resolution is ambiguous.
	Candidates []ir.IRI
	Ambiguous  bool
}

// Error is a resolution that could not be answered.
type Error struct {
	Kind ir.Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

const subject = ir.Var("s")

// Resolver resolves records of every kind.
type Resolver struct{}

// New creates a Resolver.
func New() *Resolver { return &Resolver{} }

// Resolve looks up rec in the graph behind q. When several subjects match,
// the lexicographically smallest URI wins and the resolution is flagged
// ambiguous.
func (r *Resolver) Resolve(ctx context.Context, rec ir.Record, q Querier) (Resolution, error) {
	patterns, err := Patterns(rec)
	if err != nil {
		return Resolution{}, err
	}
	rows, err := q.FindPatterns(ctx, patterns...)
	if err != nil {
		return Resolution{}, &Error{Kind: rec.Kind, Err: err}
	}

	var candidates []ir.IRI
	for _, row := range rows {
		iri, ok := row.IRI(string(subject))
		if !ok {
			continue
		}
		if !slices.Contains(candidates, iri) {
			candidates = append(candidates, iri)
		}
	}
	if len(candidates) == 0 {
		return Resolution{}, nil
	}
	slices.Sort(candidates)

	res := Resolution{Found: true, URI: candidates[0], Candidates: candidates, Ambiguous: len(candidates) > 1}
	if res.Ambiguous {
		slog.Warn("ambiguous resolution",
			"type", rec.Kind,
			"chosen", res.URI,
			"candidates", len(candidates))
	}
	return res, nil
}

// Patterns builds the identifying triple patterns of a record, binding the
// entity to ?s.
func Patterns(rec ir.Record) ([]ir.Triple, error) {
	switch rec.Kind {
	case ir.KindOrganization:
		if ror := vocab.BareROR(rec.Get(ir.AttrROR)); ror != "" {
			return []ir.Triple{ir.T(subject, vocab.HasRORID, ir.NewLiteral(ror))}, nil
		}
		name := rec.Get(ir.AttrName)
		if name == "" {
			return nil, fmt.Errorf("resolve organization: %w", ErrUnidentifiable)
		}
		return []ir.Triple{
			ir.T(subject, vocab.RDFType, vocab.ClassOrganization),
			ir.T(subject, vocab.NameFull, ir.NewLiteral(name)),
		}, nil

	case ir.KindPerson:
		if orcid := vocab.BareORCID(rec.Get(ir.AttrORCID)); orcid != "" {
			return []ir.Triple{ir.T(subject, vocab.HasORCID, ir.NewLiteral(orcid))}, nil
		}
		name := rec.Get(ir.AttrName)
		if name == "" {
			return nil, fmt.Errorf("resolve person: %w", ErrUnidentifiable)
		}
		patterns := []ir.Triple{
			ir.T(subject, vocab.RDFType, vocab.ClassPerson),
			ir.T(subject, vocab.NameFull, ir.NewLiteral(name)),
		}
		switch {
		case rec.Has(ir.AttrEmail):
			patterns = append(patterns, ir.T(subject, vocab.HasEmail, vocab.MailtoIRI(rec.Get(ir.AttrEmail))))
		case rec.Has(ir.AttrAffiliation):
			patterns = append(patterns, ir.T(subject, vocab.HasAffiliation, ir.IRI(rec.Get(ir.AttrAffiliation))))
		}
		return patterns, nil

	case ir.KindDataset:
		id := rec.Get(ir.AttrIdentifier)
		if id == "" {
			return nil, fmt.Errorf("resolve dataset: %w", ErrUnidentifiable)
		}
		return []ir.Triple{
			ir.T(subject, vocab.RDFType, vocab.ClassDataset),
			ir.T(subject, vocab.HasIdentifier, ir.NewLiteral(id)),
		}, nil

	default:
		return nil, fmt.Errorf("resolve: unknown record type %q", rec.Kind)
	}
}

// IsQueryFailure reports whether err is a failed resolution query, as
// opposed to a record that could not be resolved at all.
func IsQueryFailure(err error) bool {
	var re *Error
	return errors.As(err, &re)
}
