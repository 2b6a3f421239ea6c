package sparql

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/d1lod/internal/ir"
)

// ResultsMediaType is the Accept header for SELECT results.
const ResultsMediaType = "application/sparql-results+json"

type envelope struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results *struct {
		Bindings []map[string]binding `json:"bindings"`
	} `json:"results"`
}

type binding struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype,omitempty"`
	Lang     string `json:"xml:lang,omitempty"`
}

// ParseResults decodes a SPARQL JSON results document into rows. A document
// without a results.bindings member yields no rows; malformed JSON and
// unknown value types are errors.
func ParseResults(data []byte) ([]ir.Row, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}
	if env.Results == nil {
		return []ir.Row{}, nil
	}
	rows := make([]ir.Row, 0, len(env.Results.Bindings))
	for i, b := range env.Results.Bindings {
		row := make(ir.Row, len(b))
		for name, v := range b {
			t, err := v.term()
			if err != nil {
				return nil, fmt.Errorf("parse results: row %d, ?%s: %w", i, name, err)
			}
			row[name] = t
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (b binding) term() (ir.Term, error) {
	switch b.Type {
	case "uri":
		return ir.IRI(b.Value), nil
	case "bnode":
		return ir.BlankNode(b.Value), nil
	case "literal", "typed-literal":
		l := ir.Literal{Lexical: b.Value, Lang: b.Lang}
		if b.Datatype != "" {
			l.Datatype = ir.IRI(b.Datatype)
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unknown value type %q", b.Type)
	}
}

// Bindings encodes rows as a results document with the given variables. It
// is the inverse of ParseResults and is used by test servers and exports.
func Bindings(vars []string, rows []ir.Row) ([]byte, error) {
	var env envelope
	env.Head.Vars = vars
	if env.Head.Vars == nil {
		env.Head.Vars = []string{}
	}
	env.Results = &struct {
		Bindings []map[string]binding `json:"bindings"`
	}{Bindings: make([]map[string]binding, 0, len(rows))}
	for _, row := range rows {
		m := make(map[string]binding, len(row))
		for name, t := range row {
			m[name] = encodeTerm(t)
		}
		env.Results.Bindings = append(env.Results.Bindings, m)
	}
	return json.Marshal(env)
}

func encodeTerm(t ir.Term) binding {
	switch v := t.(type) {
	case ir.IRI:
		return binding{Type: "uri", Value: string(v)}
	case ir.BlankNode:
		return binding{Type: "bnode", Value: string(v)}
	case ir.Literal:
		b := binding{Type: "literal", Value: v.Lexical, Lang: v.Lang}
		if v.Datatype != nil {
			b.Datatype = v.Datatype.Value()
		}
		return b
	default:
		return binding{Type: "literal", Value: t.Value()}
	}
}
