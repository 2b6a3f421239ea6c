package sparql

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/d1lod/internal/ir"
)

var (
	// ErrUnboundPrefix is returned when a prefixed name uses a prefix the
	// repository's namespace table does not bind.
	ErrUnboundPrefix = errors.New("unbound namespace prefix")

	// ErrInvalidTerm is returned for terms that cannot be written as SPARQL.
	ErrInvalidTerm = errors.New("invalid term")
)

// Namespaces is the view of a namespace table the builder needs.
type Namespaces interface {
	Lookup(prefix string) (string, bool)
	Header() string
}

var (
	prefixRE = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.\-]*$`)
	localRE  = regexp.MustCompile(`^[A-Za-z0-9_:]([A-Za-z0-9_.:\-]*[A-Za-z0-9_:\-])?$`)
	varRE    = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

// Builder renders terms and statements against one namespace table.
type Builder struct {
	ns Namespaces
}

// NewBuilder creates a builder bound to a namespace table.
func NewBuilder(ns Namespaces) *Builder {
	return &Builder{ns: ns}
}

// Format renders a single term.
//
// Prefixed names whose local part is not a valid SPARQL local name (for
// example a percent-escaped DOI) are written as full IRIs instead.
func (b *Builder) Format(t ir.Term) (string, error) {
	switch v := t.(type) {
	case ir.IRI:
		return formatIRI(string(v))
	case ir.QName:
		prefix, local := v.Prefix(), v.Local()
		if !strings.Contains(string(v), ":") || !prefixRE.MatchString(prefix) {
			return "", fmt.Errorf("%w: prefixed name %q", ErrInvalidTerm, string(v))
		}
		base, ok := b.ns.Lookup(prefix)
		if !ok {
			return "", fmt.Errorf("%w: %q in %s", ErrUnboundPrefix, prefix, string(v))
		}
		if local == "" || localRE.MatchString(local) {
			return string(v), nil
		}
		return formatIRI(base + local)
	case ir.Literal:
		return b.formatLiteral(v)
	case ir.Var:
		if !varRE.MatchString(string(v)) {
			return "", fmt.Errorf("%w: variable %q", ErrInvalidTerm, string(v))
		}
		return "?" + string(v), nil
	case ir.BlankNode:
		if !varRE.MatchString(string(v)) {
			return "", fmt.Errorf("%w: blank node %q", ErrInvalidTerm, string(v))
		}
		return "_:" + string(v), nil
	case nil:
		return "", fmt.Errorf("%w: nil term", ErrInvalidTerm)
	default:
		return "", fmt.Errorf("%w: unsupported term type %T", ErrInvalidTerm, t)
	}
}

func (b *Builder) formatLiteral(l ir.Literal) (string, error) {
	s := `"` + escapeLiteral(l.Lexical) + `"`
	switch {
	case l.Lang != "":
		return s + "@" + l.Lang, nil
	case l.Datatype != nil:
		switch l.Datatype.(type) {
		case ir.IRI, ir.QName:
		default:
			return "", fmt.Errorf("%w: literal datatype %T", ErrInvalidTerm, l.Datatype)
		}
		dt, err := b.Format(l.Datatype)
		if err != nil {
			return "", err
		}
		return s + "^^" + dt, nil
	}
	return s, nil
}

func formatIRI(s string) (string, error) {
	if s == "" || strings.ContainsAny(s, "<>\"{}|^`\\ \t\r\n") {
		return "", fmt.Errorf("%w: iri %q", ErrInvalidTerm, s)
	}
	return "<" + s + ">", nil
}

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func escapeLiteral(s string) string {
	return literalEscaper.Replace(s)
}
