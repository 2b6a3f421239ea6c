package sparql

import (
	"fmt"
	"strings"

	"github.com/roach88/d1lod/internal/ir"
)

// ParseTerm reads the compact term notation used by command-line patterns
// and scenario files:
//
//	?name               variable
//	<iri>               IRI
//	_:label             blank node
//	"text"              plain literal
//	"text"@en           language-tagged literal
//	"text"^^xsd:date    typed literal (datatype in either IRI form)
//	prefix:local        prefixed name, when ns binds prefix
//	http://... https:// bare IRI
//
// Anything else is a plain literal.
func ParseTerm(s string, ns Namespaces) (ir.Term, error) {
	switch {
	case strings.HasPrefix(s, "?"):
		name := s[1:]
		if !varRE.MatchString(name) {
			return nil, fmt.Errorf("%w: variable %q", ErrInvalidTerm, s)
		}
		return ir.Var(name), nil
	case strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">"):
		return ir.IRI(s[1 : len(s)-1]), nil
	case strings.HasPrefix(s, "_:"):
		return ir.BlankNode(s[2:]), nil
	case strings.HasPrefix(s, `"`):
		return parseLiteral(s, ns)
	case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"):
		return ir.IRI(s), nil
	}
	if prefix, _, ok := strings.Cut(s, ":"); ok && ns != nil {
		if _, bound := ns.Lookup(prefix); bound {
			return ir.QName(s), nil
		}
	}
	return ir.NewLiteral(s), nil
}

func parseLiteral(s string, ns Namespaces) (ir.Term, error) {
	end := strings.LastIndex(s, `"`)
	if end == 0 {
		return nil, fmt.Errorf("%w: unterminated literal %s", ErrInvalidTerm, s)
	}
	lit := ir.Literal{Lexical: s[1:end]}
	switch rest := s[end+1:]; {
	case rest == "":
	case strings.HasPrefix(rest, "@") && len(rest) > 1:
		lit.Lang = rest[1:]
	case strings.HasPrefix(rest, "^^"):
		dt, err := ParseTerm(rest[2:], ns)
		if err != nil {
			return nil, err
		}
		switch dt.(type) {
		case ir.IRI, ir.QName:
			lit.Datatype = dt
		default:
			return nil, fmt.Errorf("%w: datatype %q", ErrInvalidTerm, rest[2:])
		}
	default:
		return nil, fmt.Errorf("%w: trailing %q after literal", ErrInvalidTerm, rest)
	}
	return lit, nil
}
