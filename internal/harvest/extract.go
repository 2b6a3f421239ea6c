package harvest

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/roach88/d1lod/internal/graph"
	"github.com/roach88/d1lod/internal/ir"
)

// Extractor turns an index document and its science metadata into the
// records of one graph.Document.
type Extractor interface {
	Extract(ctx context.Context, doc IndexDocument, scimeta []byte) (graph.Document, error)
}

// CreatorParser extracts the people and organizations credited by a
// science-metadata document.
type CreatorParser func(scimeta []byte) (people, orgs []ir.Record, err error)

// IndexExtractor builds the dataset record from index fields. Creators come
// from the first CreatorParser whose format prefix matches the document's
// formatId; without one, or when it finds nobody, people are taken from the
// index "origin" and "author" names.
type IndexExtractor struct {
	Parsers map[string]CreatorParser
}

// NewIndexExtractor returns an extractor with the EML creator parser
// registered.
func NewIndexExtractor() *IndexExtractor {
	return &IndexExtractor{Parsers: map[string]CreatorParser{
		"eml://ecoinformatics.org/eml-":       ParseEMLCreators,
		"https://eml.ecoinformatics.org/eml-": ParseEMLCreators,
	}}
}

var indexAttrs = []struct {
	field, attr string
}{
	{"identifier", ir.AttrIdentifier},
	{"title", ir.AttrTitle},
	{"abstract", ir.AttrAbstract},
	{"formatId", ir.AttrMetadataFormat},
	{"startDate", ir.AttrStartDate},
	{"endDate", ir.AttrEndDate},
	{"dateUploaded", ir.AttrDateUploaded},
	{"northBoundCoord", ir.AttrNorthBound},
	{"eastBoundCoord", ir.AttrEastBound},
	{"southBoundCoord", ir.AttrSouthBound},
	{"westBoundCoord", ir.AttrWestBound},
	{"authoritativeMN", ir.AttrMemberNode},
	{"datasource", ir.AttrDatasource},
}

// Extract implements Extractor.
func (e *IndexExtractor) Extract(_ context.Context, doc IndexDocument, scimeta []byte) (graph.Document, error) {
	id := doc.Identifier()
	if id == "" {
		return graph.Document{}, fmt.Errorf("extract: index document without identifier")
	}

	dataset := ir.NewRecord(ir.KindDataset)
	for _, m := range indexAttrs {
		if v := doc.Get(m.field); v != "" {
			dataset.Set(m.attr, v)
		}
	}
	out := graph.Document{Identifier: id, Dataset: dataset}

	if parse := e.parserFor(doc.Get("formatId")); parse != nil && len(scimeta) > 0 {
		people, orgs, err := parse(scimeta)
		if err != nil {
			return graph.Document{}, fmt.Errorf("extract %s: %w", id, err)
		}
		out.People, out.Organizations = people, orgs
	}
	if len(out.People) == 0 {
		out.People = originPeople(doc)
	}
	return out, nil
}

func (e *IndexExtractor) parserFor(formatID string) CreatorParser {
	best := ""
	for prefix := range e.Parsers {
		if strings.HasPrefix(formatID, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return nil
	}
	return e.Parsers[best]
}

// originPeople returns one person per distinct origin or author name.
func originPeople(doc IndexDocument) []ir.Record {
	seen := make(map[string]bool)
	var people []ir.Record
	for _, name := range append(doc.All("origin"), doc.All("author")...) {
		key := strings.ToLower(strings.Join(strings.Fields(name), " "))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		p := ir.NewRecord(ir.KindPerson)
		p.Set(ir.AttrName, name)
		p.Set(ir.AttrDocument, doc.Identifier())
		p.Set(ir.AttrRole, "creator")
		people = append(people, p)
	}
	return people
}

type emlDocument struct {
	Creators []emlParty `xml:"dataset>creator"`
}

type emlParty struct {
	GivenNames   []string    `xml:"individualName>givenName"`
	SurName      string      `xml:"individualName>surName"`
	Organization string      `xml:"organizationName"`
	Emails       []string    `xml:"electronicMailAddress"`
	Phones       []string    `xml:"phone"`
	UserIDs      []emlUserID `xml:"userId"`
}

type emlUserID struct {
	Directory string `xml:"directory,attr"`
	Value     string `xml:",chardata"`
}

// ParseEMLCreators reads dataset/creator parties from an EML document. An
// individual becomes a person (affiliated by organization name when one is
// given); every organization name becomes an organization.
func ParseEMLCreators(scimeta []byte) ([]ir.Record, []ir.Record, error) {
	var doc emlDocument
	if err := xml.NewDecoder(bytes.NewReader(scimeta)).Decode(&doc); err != nil {
		return nil, nil, fmt.Errorf("parse eml: %w", err)
	}

	var people, orgs []ir.Record
	seenOrg := make(map[string]bool)
	for _, c := range doc.Creators {
		org := strings.TrimSpace(c.Organization)
		if org != "" && !seenOrg[org] {
			seenOrg[org] = true
			o := ir.NewRecord(ir.KindOrganization)
			o.Set(ir.AttrName, org)
			orgs = append(orgs, o)
		}

		sur := strings.TrimSpace(c.SurName)
		if sur == "" {
			continue
		}
		given := strings.TrimSpace(strings.Join(c.GivenNames, " "))
		p := ir.NewRecord(ir.KindPerson)
		p.Set(ir.AttrName, strings.TrimSpace(given+" "+sur))
		if given != "" {
			p.Set(ir.AttrGivenName, given)
		}
		p.Set(ir.AttrFamilyName, sur)
		if org != "" {
			p.Set(ir.AttrOrganization, org)
		}
		for _, e := range c.Emails {
			if e = strings.TrimSpace(e); e != "" {
				p.Add(ir.AttrEmail, e)
			}
		}
		for _, ph := range c.Phones {
			if ph = strings.TrimSpace(ph); ph != "" {
				p.Add(ir.AttrPhone, ph)
			}
		}
		for _, uid := range c.UserIDs {
			v := strings.TrimSpace(uid.Value)
			if strings.Contains(uid.Directory, "orcid") || strings.Contains(v, "orcid.org") {
				p.Set(ir.AttrORCID, v)
				break
			}
		}
		p.Set(ir.AttrRole, "creator")
		people = append(people, p)
	}
	return people, orgs, nil
}
