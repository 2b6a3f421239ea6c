package testutil

import (
	"fmt"
	"strings"

	"github.com/roach88/d1lod/internal/ir"
)

// operation is a parsed request in the SPARQL fragment d1lod emits.
type operation struct {
	kind     string // "select", "insert", "delete"
	vars     []string
	template []ir.Triple
	where    []ir.Triple
}

type tokKind int

const (
	tkWord tokKind = iota
	tkPunct
	tkTerm
)

type token struct {
	kind tokKind
	text string
	term ir.Term
	// datatype word of a literal, resolved once prefixes are known
	dtWord string
}

type lexer struct {
	s string
	i int
}

func (l *lexer) skipSpace() {
	for l.i < len(l.s) {
		switch l.s[l.i] {
		case ' ', '\t', '\r', '\n':
			l.i++
		case '#':
			for l.i < len(l.s) && l.s[l.i] != '\n' {
				l.i++
			}
		default:
			return
		}
	}
}

func (l *lexer) tokens() ([]token, error) {
	var out []token
	for {
		l.skipSpace()
		if l.i >= len(l.s) {
			return out, nil
		}
		c := l.s[l.i]
		switch {
		case c == '{' || c == '}':
			out = append(out, token{kind: tkPunct, text: string(c)})
			l.i++
		case c == '<':
			iri, err := l.iri()
			if err != nil {
				return nil, err
			}
			out = append(out, token{kind: tkTerm, term: ir.IRI(iri)})
		case c == '"':
			tok, err := l.literal()
			if err != nil {
				return nil, err
			}
			out = append(out, tok)
		default:
			w := l.word()
			switch {
			case w == ".":
				out = append(out, token{kind: tkPunct, text: "."})
			case strings.HasPrefix(w, "?"):
				out = append(out, token{kind: tkTerm, term: ir.Var(w[1:])})
			case strings.HasPrefix(w, "_:"):
				out = append(out, token{kind: tkTerm, term: ir.BlankNode(w[2:])})
			default:
				out = append(out, token{kind: tkWord, text: w})
			}
		}
	}
}

func (l *lexer) word() string {
	start := l.i
	for l.i < len(l.s) {
		switch l.s[l.i] {
		case ' ', '\t', '\r', '\n', '<', '{', '}':
			return l.s[start:l.i]
		}
		l.i++
	}
	return l.s[start:]
}

func (l *lexer) iri() (string, error) {
	end := strings.IndexByte(l.s[l.i:], '>')
	if end < 0 {
		return "", fmt.Errorf("unterminated IRI at offset %d", l.i)
	}
	iri := l.s[l.i+1 : l.i+end]
	l.i += end + 1
	if strings.ContainsAny(iri, " \t\n\"") {
		return "", fmt.Errorf("invalid IRI %q", iri)
	}
	return iri, nil
}

func (l *lexer) literal() (token, error) {
	l.i++
	var b strings.Builder
	for {
		if l.i >= len(l.s) {
			return token{}, fmt.Errorf("unterminated literal")
		}
		c := l.s[l.i]
		if c == '"' {
			l.i++
			break
		}
		if c == '\\' && l.i+1 < len(l.s) {
			l.i++
			switch l.s[l.i] {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case '"', '\\', '\'':
				b.WriteByte(l.s[l.i])
			default:
				return token{}, fmt.Errorf("unknown escape \\%c", l.s[l.i])
			}
			l.i++
			continue
		}
		b.WriteByte(c)
		l.i++
	}
	lit := ir.Literal{Lexical: b.String()}
	tok := token{kind: tkTerm}
	switch {
	case strings.HasPrefix(l.s[l.i:], "@"):
		l.i++
		lit.Lang = l.word()
	case strings.HasPrefix(l.s[l.i:], "^^<"):
		l.i += 2
		iri, err := l.iri()
		if err != nil {
			return token{}, err
		}
		lit.Datatype = ir.IRI(iri)
	case strings.HasPrefix(l.s[l.i:], "^^"):
		l.i += 2
		tok.dtWord = l.word()
	}
	tok.term = lit
	return tok, nil
}

type parser struct {
	toks     []token
	pos      int
	prefixes map[string]string
}

// parseOperation parses one PREFIX-headed SELECT, INSERT DATA or
// DELETE/WHERE request. Prefixed names must be declared in the header.
func parseOperation(text string) (*operation, error) {
	lx := &lexer{s: text}
	toks, err := lx.tokens()
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, prefixes: make(map[string]string)}
	for p.keyword("PREFIX") {
		ns := p.next()
		if ns.kind != tkWord || !strings.HasSuffix(ns.text, ":") {
			return nil, fmt.Errorf("expected prefix name, got %q", ns.text)
		}
		iri := p.next()
		if _, ok := iri.term.(ir.IRI); !ok || iri.kind != tkTerm {
			return nil, fmt.Errorf("expected namespace IRI after %s", ns.text)
		}
		p.prefixes[strings.TrimSuffix(ns.text, ":")] = iri.term.Value()
	}

	op := &operation{}
	switch {
	case p.keyword("SELECT"):
		op.kind = "select"
		for !p.keyword("WHERE") {
			t := p.next()
			switch {
			case t.kind == tkWord && t.text == "*":
			case t.kind == tkTerm:
				v, ok := t.term.(ir.Var)
				if !ok {
					return nil, fmt.Errorf("expected variable in projection")
				}
				op.vars = append(op.vars, string(v))
			default:
				return nil, fmt.Errorf("unexpected %q in projection", t.text)
			}
		}
		if op.where, err = p.block(); err != nil {
			return nil, err
		}
	case p.keyword("INSERT"):
		if !p.keyword("DATA") {
			return nil, fmt.Errorf("only INSERT DATA is supported")
		}
		op.kind = "insert"
		if op.template, err = p.block(); err != nil {
			return nil, err
		}
		for _, t := range op.template {
			for _, term := range []ir.Term{t.Subject, t.Predicate, t.Object} {
				if _, ok := term.(ir.Var); ok {
					return nil, fmt.Errorf("variable in INSERT DATA")
				}
			}
		}
	case p.keyword("DELETE"):
		op.kind = "delete"
		if op.template, err = p.block(); err != nil {
			return nil, err
		}
		if !p.keyword("WHERE") {
			return nil, fmt.Errorf("expected WHERE after DELETE template")
		}
		if op.where, err = p.block(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported operation")
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("trailing input after operation")
	}
	return op, nil
}

func (p *parser) next() token {
	if p.pos >= len(p.toks) {
		return token{kind: tkPunct, text: "<eof>"}
	}
	t := p.toks[p.pos]
	p.pos++
	return t
}

func (p *parser) keyword(kw string) bool {
	if p.pos < len(p.toks) && p.toks[p.pos].kind == tkWord && strings.EqualFold(p.toks[p.pos].text, kw) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) punct(s string) bool {
	if p.pos < len(p.toks) && p.toks[p.pos].kind == tkPunct && p.toks[p.pos].text == s {
		p.pos++
		return true
	}
	return false
}

func (p *parser) block() ([]ir.Triple, error) {
	if !p.punct("{") {
		return nil, fmt.Errorf("expected '{'")
	}
	var out []ir.Triple
	for !p.punct("}") {
		var terms [3]ir.Term
		for i := range terms {
			t, err := p.term()
			if err != nil {
				return nil, err
			}
			terms[i] = t
		}
		out = append(out, ir.T(terms[0], terms[1], terms[2]))
		if !p.punct(".") && !(p.pos < len(p.toks) && p.toks[p.pos].text == "}") {
			return nil, fmt.Errorf("expected '.' after triple")
		}
	}
	return out, nil
}

func (p *parser) term() (ir.Term, error) {
	t := p.next()
	switch t.kind {
	case tkTerm:
		if lit, ok := t.term.(ir.Literal); ok && t.dtWord != "" {
			dt, err := p.expand(t.dtWord)
			if err != nil {
				return nil, err
			}
			lit.Datatype = dt
			return lit, nil
		}
		return t.term, nil
	case tkWord:
		if t.text == "a" {
			return ir.IRI("http://www.w3.org/1999/02/22-rdf-syntax-ns#type"), nil
		}
		return p.expand(t.text)
	default:
		return nil, fmt.Errorf("expected term, got %q", t.text)
	}
}

func (p *parser) expand(word string) (ir.IRI, error) {
	prefix, local, ok := strings.Cut(word, ":")
	if !ok {
		return "", fmt.Errorf("unexpected %q", word)
	}
	base, ok := p.prefixes[prefix]
	if !ok {
		return "", fmt.Errorf("undeclared prefix %q", prefix)
	}
	return ir.IRI(base + local), nil
}

// solve evaluates a basic graph pattern against data.
func solve(patterns []ir.Triple, data []ir.Triple) []ir.Row {
	var out []ir.Row
	var walk func(i int, b ir.Row)
	walk = func(i int, b ir.Row) {
		if i == len(patterns) {
			out = append(out, cloneRow(b))
			return
		}
		pt := patterns[i]
		for _, d := range data {
			nb := cloneRow(b)
			if unify(pt.Subject, d.Subject, nb) && unify(pt.Predicate, d.Predicate, nb) && unify(pt.Object, d.Object, nb) {
				walk(i+1, nb)
			}
		}
	}
	walk(0, ir.Row{})
	return out
}

func unify(pattern, value ir.Term, b ir.Row) bool {
	var name string
	switch v := pattern.(type) {
	case ir.Var:
		name = string(v)
	case ir.BlankNode:
		name = "_:" + string(v)
	default:
		return pattern == value
	}
	if bound, ok := b[name]; ok {
		return bound == value
	}
	b[name] = value
	return true
}

func instantiate(t ir.Triple, b ir.Row) (ir.Triple, bool) {
	var terms [3]ir.Term
	for i, term := range []ir.Term{t.Subject, t.Predicate, t.Object} {
		switch v := term.(type) {
		case ir.Var:
			bound, ok := b[string(v)]
			if !ok {
				return ir.Triple{}, false
			}
			terms[i] = bound
		default:
			terms[i] = term
		}
	}
	return ir.T(terms[0], terms[1], terms[2]), true
}

func cloneRow(r ir.Row) ir.Row {
	out := make(ir.Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ntriple renders one statement as an N-Triples line.
func ntriple(t ir.Triple) string {
	return ntTerm(t.Subject) + " " + ntTerm(t.Predicate) + " " + ntTerm(t.Object) + " ."
}

var ntEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)

func ntTerm(t ir.Term) string {
	switch v := t.(type) {
	case ir.IRI:
		return "<" + string(v) + ">"
	case ir.BlankNode:
		return "_:" + string(v)
	case ir.Literal:
		s := `"` + ntEscaper.Replace(v.Lexical) + `"`
		if v.Lang != "" {
			return s + "@" + v.Lang
		}
		if v.Datatype != nil {
			return s + "^^<" + v.Datatype.Value() + ">"
		}
		return s
	default:
		return t.Value()
	}
}
