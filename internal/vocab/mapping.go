package vocab

import (
	"maps"
	"net/url"
	"slices"
	"strings"

	"github.com/roach88/d1lod/internal/ir"
)

// OrganizationTriples maps an organization record onto its graph.
func OrganizationTriples(uri ir.IRI, rec ir.Record) []ir.Triple {
	ts := []ir.Triple{ir.T(uri, RDFType, ClassOrganization)}
	ts = appendLiterals(ts, uri, NameFull, rec.Get(ir.AttrName))
	ts = appendLiterals(ts, uri, HasRORID, BareROR(rec.Get(ir.AttrROR)))
	ts = appendLiterals(ts, uri, HasAddress, rec.All(ir.AttrAddress)...)
	ts = appendLiterals(ts, uri, HasPhone, rec.All(ir.AttrPhone)...)
	for _, email := range rec.All(ir.AttrEmail) {
		ts = append(ts, ir.T(uri, HasEmail, MailtoIRI(email)))
	}
	return ts
}

// PersonTriples maps a person record onto its graph. affiliation is the
// settled organization IRI, or "" when the person has none.
func PersonTriples(uri ir.IRI, rec ir.Record, affiliation ir.IRI) []ir.Triple {
	ts := []ir.Triple{ir.T(uri, RDFType, ClassPerson)}
	ts = appendLiterals(ts, uri, NameFull, rec.Get(ir.AttrName))
	ts = appendLiterals(ts, uri, NameGiven, rec.Get(ir.AttrGivenName))
	ts = appendLiterals(ts, uri, NameFamily, rec.Get(ir.AttrFamilyName))
	ts = appendLiterals(ts, uri, HasORCID, BareORCID(rec.Get(ir.AttrORCID)))
	ts = appendLiterals(ts, uri, HasAddress, rec.All(ir.AttrAddress)...)
	ts = appendLiterals(ts, uri, HasPhone, rec.All(ir.AttrPhone)...)
	for _, email := range rec.All(ir.AttrEmail) {
		ts = append(ts, ir.T(uri, HasEmail, MailtoIRI(email)))
	}
	if affiliation != "" {
		ts = append(ts, ir.T(uri, HasAffiliation, affiliation))
	}
	return ts
}

// DatasetTriples maps a dataset record onto its graph. creators and
// contributors are settled person or organization IRIs.
func DatasetTriples(uri ir.IRI, rec ir.Record, creators, contributors []ir.IRI) []ir.Triple {
	ts := []ir.Triple{ir.T(uri, RDFType, ClassDataset)}
	id := rec.Get(ir.AttrIdentifier)
	ts = appendLiterals(ts, uri, HasIdentifier, id)
	ts = appendLiterals(ts, uri, Title, rec.Get(ir.AttrTitle))
	ts = appendLiterals(ts, uri, Description, rec.Get(ir.AttrAbstract))
	ts = appendLiterals(ts, uri, HasFormat, rec.Get(ir.AttrMetadataFormat))
	ts = appendTyped(ts, uri, HasStartDate, XSDDateTime, rec.Get(ir.AttrStartDate))
	ts = appendTyped(ts, uri, HasEndDate, XSDDateTime, rec.Get(ir.AttrEndDate))
	ts = appendTyped(ts, uri, DateUploaded, XSDDateTime, rec.Get(ir.AttrDateUploaded))
	ts = appendTyped(ts, uri, NorthBound, XSDDecimal, rec.Get(ir.AttrNorthBound))
	ts = appendTyped(ts, uri, EastBound, XSDDecimal, rec.Get(ir.AttrEastBound))
	ts = appendTyped(ts, uri, SouthBound, XSDDecimal, rec.Get(ir.AttrSouthBound))
	ts = appendTyped(ts, uri, WestBound, XSDDecimal, rec.Get(ir.AttrWestBound))
	if mn := rec.Get(ir.AttrMemberNode); mn != "" {
		ts = append(ts, ir.T(uri, HasMemberNode, NodeIRI(mn)))
	}
	if ds := rec.Get(ir.AttrDatasource); ds != "" {
		ts = append(ts, ir.T(uri, HasDatasource, NodeIRI(ds)))
	}
	if id != "" {
		ts = append(ts, ir.T(uri, HasLandingPage, ir.IRI(landingPage+url.PathEscape(id))))
	}
	for _, c := range creators {
		ts = append(ts, ir.T(uri, HasCreator, c))
	}
	for _, c := range contributors {
		ts = append(ts, ir.T(uri, HasContributor, c))
	}
	return ts
}

// MailtoIRI turns an email address into its mailto: IRI.
func MailtoIRI(email string) ir.IRI {
	return ir.IRI("mailto:" + strings.ToLower(strings.TrimSpace(email)))
}

// NodeIRI names a DataONE member node such as "urn:node:KNB".
func NodeIRI(id string) ir.IRI {
	return ir.IRI(NamespaceNode + url.PathEscape(strings.TrimSpace(id)))
}

// UsedPrefixes returns the prefixes of every QName appearing in the triples,
// including literal datatypes, sorted.
func UsedPrefixes(triples []ir.Triple) []string {
	seen := make(map[string]struct{})
	note := func(t ir.Term) {
		switch v := t.(type) {
		case ir.QName:
			seen[v.Prefix()] = struct{}{}
		case ir.Literal:
			if q, ok := v.Datatype.(ir.QName); ok {
				seen[q.Prefix()] = struct{}{}
			}
		}
	}
	for _, t := range triples {
		note(t.Subject)
		note(t.Predicate)
		note(t.Object)
	}
	return slices.Sorted(maps.Keys(seen))
}

var landingPage = defaults[PrefixLanding]

func appendLiterals(ts []ir.Triple, s ir.IRI, p ir.QName, vals ...string) []ir.Triple {
	for _, v := range vals {
		if v != "" {
			ts = append(ts, ir.T(s, p, ir.NewLiteral(v)))
		}
	}
	return ts
}

func appendTyped(ts []ir.Triple, s ir.IRI, p, datatype ir.QName, v string) []ir.Triple {
	if v == "" {
		return ts
	}
	return append(ts, ir.T(s, p, ir.NewTypedLiteral(v, datatype)))
}
