package harvest

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/d1lod/internal/ir"
)

// ErrInvalidRecord is returned for records that cannot be identified after
// normalization.
var ErrInvalidRecord = errors.New("invalid record")

// Validator normalizes an extracted record or rejects it.
type Validator interface {
	Validate(rec ir.Record) (ir.Record, error)
}

// DefaultValidator applies the standard normalization:
//   - values are NFC-normalized, trimmed, and internal whitespace collapsed
//   - empty values and attributes are dropped
//   - emails are lowercased and lose any mailto: scheme
//   - person names are split into given/family names when those are absent,
//     and built from them when the name is absent
//
// People and organizations need a name, ORCID or ROR identifier; datasets
// need an identifier.
type DefaultValidator struct{}

// Validate returns a normalized copy of rec.
func (DefaultValidator) Validate(rec ir.Record) (ir.Record, error) {
	out := ir.NewRecord(rec.Kind)
	for _, key := range rec.Keys() {
		var vals []string
		for _, v := range rec.All(key) {
			v = normalizeSpace(v)
			if key == ir.AttrEmail {
				v = strings.TrimPrefix(strings.ToLower(v), "mailto:")
			}
			if v != "" {
				vals = append(vals, v)
			}
		}
		out.Set(key, vals...)
	}

	switch rec.Kind {
	case ir.KindPerson:
		completeName(&out)
		if !out.Has(ir.AttrName) && !out.Has(ir.AttrORCID) {
			return ir.Record{}, fmt.Errorf("%w: person without name or orcid", ErrInvalidRecord)
		}
	case ir.KindOrganization:
		if !out.Has(ir.AttrName) && !out.Has(ir.AttrROR) {
			return ir.Record{}, fmt.Errorf("%w: organization without name or ror", ErrInvalidRecord)
		}
	case ir.KindDataset:
		if !out.Has(ir.AttrIdentifier) {
			return ir.Record{}, fmt.Errorf("%w: dataset without identifier", ErrInvalidRecord)
		}
	default:
		return ir.Record{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidRecord, rec.Kind)
	}
	return out, nil
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// completeName fills whichever of name and given/family name is missing.
// "Family, Given" is recognized; otherwise the last word is the family name.
func completeName(rec *ir.Record) {
	name := rec.Get(ir.AttrName)
	given, family := rec.Get(ir.AttrGivenName), rec.Get(ir.AttrFamilyName)

	if name == "" {
		if full := strings.TrimSpace(given + " " + family); full != "" {
			rec.Set(ir.AttrName, full)
		}
		return
	}
	if given != "" || family != "" {
		return
	}

	if f, g, ok := strings.Cut(name, ","); ok {
		f, g = strings.TrimSpace(f), strings.TrimSpace(g)
		if f != "" && g != "" {
			rec.Set(ir.AttrName, g+" "+f)
			rec.Set(ir.AttrGivenName, g)
			rec.Set(ir.AttrFamilyName, f)
		}
		return
	}
	words := strings.Fields(name)
	if len(words) < 2 {
		return
	}
	rec.Set(ir.AttrGivenName, strings.Join(words[:len(words)-1], " "))
	rec.Set(ir.AttrFamilyName, words[len(words)-1])
}
