package sparql

import (
	"fmt"
	"strings"

	"github.com/roach88/d1lod/internal/ir"
)

// Select renders SELECT over the given patterns. With no variables listed
// the projection is "*".
func (b *Builder) Select(patterns []ir.Triple, vars ...ir.Var) (string, error) {
	if len(patterns) == 0 {
		return "", fmt.Errorf("select: no patterns")
	}
	proj := "*"
	if len(vars) > 0 {
		parts := make([]string, len(vars))
		for i, v := range vars {
			s, err := b.Format(v)
			if err != nil {
				return "", fmt.Errorf("select: %w", err)
			}
			parts[i] = s
		}
		proj = strings.Join(parts, " ")
	}
	body, err := b.block(patterns)
	if err != nil {
		return "", fmt.Errorf("select: %w", err)
	}
	return b.ns.Header() + "SELECT " + proj + " WHERE {\n" + body + "}\n", nil
}

// InsertData renders INSERT DATA for ground triples. Variables are
// rejected.
func (b *Builder) InsertData(triples []ir.Triple) (string, error) {
	if len(triples) == 0 {
		return "", fmt.Errorf("insert data: no triples")
	}
	for _, t := range triples {
		if hasVar(t) {
			return "", fmt.Errorf("insert data: %w: variable in ground triple", ErrInvalidTerm)
		}
	}
	body, err := b.block(triples)
	if err != nil {
		return "", fmt.Errorf("insert data: %w", err)
	}
	return b.ns.Header() + "INSERT DATA {\n" + body + "}\n", nil
}

// DeleteWhere renders DELETE { patterns } WHERE { patterns }, removing every
// statement the patterns match.
func (b *Builder) DeleteWhere(patterns []ir.Triple) (string, error) {
	if len(patterns) == 0 {
		return "", fmt.Errorf("delete: no patterns")
	}
	body, err := b.block(patterns)
	if err != nil {
		return "", fmt.Errorf("delete: %w", err)
	}
	return b.ns.Header() + "DELETE {\n" + body + "}\nWHERE {\n" + body + "}\n", nil
}

func (b *Builder) block(triples []ir.Triple) (string, error) {
	var sb strings.Builder
	for _, t := range triples {
		line, err := b.triple(t)
		if err != nil {
			return "", err
		}
		sb.WriteString("  ")
		sb.WriteString(line)
		sb.WriteString(" .\n")
	}
	return sb.String(), nil
}

func (b *Builder) triple(t ir.Triple) (string, error) {
	s, err := b.Format(t.Subject)
	if err != nil {
		return "", fmt.Errorf("subject: %w", err)
	}
	if _, ok := t.Subject.(ir.Literal); ok {
		return "", fmt.Errorf("subject: %w: literal subject", ErrInvalidTerm)
	}
	p, err := b.Format(t.Predicate)
	if err != nil {
		return "", fmt.Errorf("predicate: %w", err)
	}
	switch t.Predicate.(type) {
	case ir.IRI, ir.QName, ir.Var:
	default:
		return "", fmt.Errorf("predicate: %w: %T", ErrInvalidTerm, t.Predicate)
	}
	o, err := b.Format(t.Object)
	if err != nil {
		return "", fmt.Errorf("object: %w", err)
	}
	return s + " " + p + " " + o, nil
}

func hasVar(t ir.Triple) bool {
	for _, term := range []ir.Term{t.Subject, t.Predicate, t.Object} {
		if _, ok := term.(ir.Var); ok {
			return true
		}
	}
	return false
}
