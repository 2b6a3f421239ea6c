package ir

import (
	"fmt"
	"slices"
)

// Kind tags an entity record.
type Kind string

const (
	KindPerson       Kind = "person"
	KindOrganization Kind = "organization"
	KindDataset      Kind = "dataset"
)

// ParseKind parses a record type tag.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindPerson, KindOrganization, KindDataset:
		return k, nil
	default:
		return "", fmt.Errorf("unknown record type %q", s)
	}
}

// Graph names one of the three logically separate graphs.
type Graph string

const (
	GraphDatasets      Graph = "datasets"
	GraphPeople        Graph = "people"
	GraphOrganizations Graph = "organizations"
)

// Graphs lists every graph in write order: organizations are settled before
// people, and both before datasets.
var Graphs = []Graph{GraphOrganizations, GraphPeople, GraphDatasets}

// GraphFor returns the graph that owns entities of the given kind.
func GraphFor(k Kind) Graph {
	switch k {
	case KindPerson:
		return GraphPeople
	case KindOrganization:
		return GraphOrganizations
	default:
		return GraphDatasets
	}
}

// Common record attribute names.
const (
	AttrName         = "name"
	AttrGivenName    = "first_name"
	AttrFamilyName   = "last_name"
	AttrEmail        = "email"
	AttrOrganization = "organization"
	AttrORCID        = "orcid"
	AttrROR          = "ror"
	AttrAddress      = "address"
	AttrPhone        = "phone"
	AttrRole         = "role"
	AttrDocument     = "document"
	AttrFormat       = "format"

	// AttrAffiliation carries the settled organization IRI of a person.
	AttrAffiliation = "affiliation"

	AttrIdentifier     = "identifier"
	AttrTitle          = "title"
	AttrAbstract       = "abstract"
	AttrCreator        = "creator"
	AttrContributor    = "contributor"
	AttrStartDate      = "start_date"
	AttrEndDate        = "end_date"
	AttrNorthBound     = "north_bound"
	AttrEastBound      = "east_bound"
	AttrSouthBound     = "south_bound"
	AttrWestBound      = "west_bound"
	AttrMemberNode     = "authoritative_mn"
	AttrDatasource     = "datasource"
	AttrDateUploaded   = "date_uploaded"
	AttrMetadataFormat = "format_id"
)

// Record is an extracted entity: a type tag plus an attribute bag.
// Attribute values are multi-valued; most attributes carry a single value.
type Record struct {
	Kind  Kind                `json:"type" yaml:"type"`
	Attrs map[string][]string `json:"attrs" yaml:"attrs"`
}

// NewRecord creates an empty record of the given kind.
func NewRecord(k Kind) Record {
	return Record{Kind: k, Attrs: make(map[string][]string)}
}

// Get returns the first value of an attribute, or "".
func (r Record) Get(key string) string {
	if vals := r.Attrs[key]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// All returns every value of an attribute.
func (r Record) All(key string) []string {
	return r.Attrs[key]
}

// Has reports whether the attribute has a non-empty first value.
func (r Record) Has(key string) bool {
	return r.Get(key) != ""
}

// Set replaces an attribute's values.
func (r *Record) Set(key string, vals ...string) {
	if r.Attrs == nil {
		r.Attrs = make(map[string][]string)
	}
	if len(vals) == 0 {
		delete(r.Attrs, key)
		return
	}
	r.Attrs[key] = vals
}

// Add appends a value to an attribute.
func (r *Record) Add(key, val string) {
	if r.Attrs == nil {
		r.Attrs = make(map[string][]string)
	}
	r.Attrs[key] = append(r.Attrs[key], val)
}

// Keys returns attribute names in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r.Attrs))
	for k := range r.Attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := Record{Kind: r.Kind, Attrs: make(map[string][]string, len(r.Attrs))}
	for k, v := range r.Attrs {
		out.Attrs[k] = slices.Clone(v)
	}
	return out
}
