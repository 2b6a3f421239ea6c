package ir

import (
	"slices"
	"strings"
)

// Term is a sealed interface representing an RDF term or a query variable.
// Only IRI, QName, Literal, Var and BlankNode implement it.
//
// Values decoded from a query result are only ever IRI, Literal or BlankNode;
// QName and Var appear in query construction.
type Term interface {
	term() // Sealed - only these types implement it

	// Value returns the raw lexical value (no brackets, quotes or sigils).
	Value() string
}

// IRI is an absolute IRI, stored without angle brackets.
type IRI string

func (IRI) term() {}

// Value returns the IRI text.
func (i IRI) Value() string { return string(i) }

// String renders the IRI in bracketed form, e.g. "<https://dataone.org/organization/NCEAS>".
func (i IRI) String() string { return "<" + string(i) + ">" }

// QName is a prefixed name such as "foaf:name". The prefix must be bound
// in the namespace registry of the repository the term is sent to.
type QName string

func (QName) term() {}

// Value returns the prefixed name text.
func (q QName) Value() string { return string(q) }

// Prefix returns the part before the first colon.
func (q QName) Prefix() string {
	prefix, _, _ := strings.Cut(string(q), ":")
	return prefix
}

// Local returns the part after the first colon.
func (q QName) Local() string {
	_, local, _ := strings.Cut(string(q), ":")
	return local
}

// Literal is an RDF literal with optional datatype or language tag.
// Datatype, when set, is an IRI or QName.
type Literal struct {
	Lexical  string
	Datatype Term
	Lang     string
}

func (Literal) term() {}

// Value returns the lexical form.
func (l Literal) Value() string { return l.Lexical }

// Var is a SPARQL variable name without the leading '?'.
type Var string

func (Var) term() {}

// Value returns the variable name.
func (v Var) Value() string { return string(v) }

// BlankNode is a blank node label as reported by the store.
type BlankNode string

func (BlankNode) term() {}

// Value returns the blank node label.
func (b BlankNode) Value() string { return string(b) }

// NewLiteral creates a plain string literal.
func NewLiteral(s string) Literal {
	return Literal{Lexical: s}
}

// NewTypedLiteral creates a literal with a datatype.
func NewTypedLiteral(s string, datatype Term) Literal {
	return Literal{Lexical: s, Datatype: datatype}
}

// Triple is a single subject-predicate-object statement. It is the atomic
// unit written to and removed from a repository.
type Triple struct {
	Subject   Term
	Predicate Term
	Object    Term
}

// T is a shorthand for constructing a Triple.
func T(s, p, o Term) Triple {
	return Triple{Subject: s, Predicate: p, Object: o}
}

// Row is one solution of a SELECT query: variable name -> bound value.
// Unbound variables are absent from the map.
type Row map[string]Term

// Render returns the legacy string rendering of a bound variable:
// "<uri>" for IRIs and the raw value for everything else.
func (r Row) Render(name string) (string, bool) {
	t, ok := r[name]
	if !ok {
		return "", false
	}
	if iri, isIRI := t.(IRI); isIRI {
		return iri.String(), true
	}
	return t.Value(), true
}

// IRI returns the variable's value if it is bound to an IRI.
func (r Row) IRI(name string) (IRI, bool) {
	iri, ok := r[name].(IRI)
	return iri, ok
}

// Vars returns the bound variable names in sorted order.
func (r Row) Vars() []string {
	names := make([]string, 0, len(r))
	for k := range r {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}
