package vocab

import (
	"maps"
	"slices"
)

// Namespace prefixes.
const (
	PrefixFOAF     = "foaf"
	PrefixDCTerms  = "dcterms"
	PrefixDatacite = "datacite"
	PrefixOWL      = "owl"
	PrefixXSD      = "xsd"
	PrefixRDFS     = "rdfs"
	PrefixRDF      = "rdf"
	PrefixGLView   = "glview"
	PrefixPeople   = "d1people"
	PrefixOrg      = "d1org"
	PrefixResolve  = "d1resolve"
	PrefixProv     = "prov"
	PrefixNode     = "d1node"
	PrefixLanding  = "d1landing"
	PrefixRepo     = "d1repo"
)

// Namespace IRIs.
const (
	NamespacePeople  = "https://dataone.org/person/"
	NamespaceOrg     = "https://dataone.org/organization/"
	NamespaceResolve = "https://cn.dataone.org/cn/v1/resolve/"
	NamespaceNode    = "https://cn.dataone.org/cn/v1/node/"
	NamespaceGLView  = "http://schema.geolink.org/dev/view/"
	NamespaceXSD     = "http://www.w3.org/2001/XMLSchema#"
)

var defaults = map[string]string{
	PrefixFOAF:     "http://xmlns.com/foaf/0.1/",
	PrefixDCTerms:  "http://purl.org/dc/terms/",
	PrefixDatacite: "http://purl.org/spar/datacite/",
	PrefixOWL:      "http://www.w3.org/2002/07/owl#",
	PrefixXSD:      NamespaceXSD,
	PrefixRDFS:     "http://www.w3.org/2000/01/rdf-schema#",
	PrefixRDF:      "http://www.w3.org/1999/02/22-rdf-syntax-ns#",
	PrefixGLView:   NamespaceGLView,
	PrefixPeople:   NamespacePeople,
	PrefixOrg:      NamespaceOrg,
	PrefixResolve:  NamespaceResolve,
	PrefixProv:     "http://www.w3.org/ns/prov#",
	PrefixNode:     NamespaceNode,
	PrefixLanding:  "https://search.dataone.org/#view/",
	PrefixRepo:     NamespaceNode,
}

// Defaults returns a copy of the default namespace table.
func Defaults() map[string]string {
	return maps.Clone(defaults)
}

// Lookup returns the default IRI bound to a prefix.
func Lookup(prefix string) (string, bool) {
	uri, ok := defaults[prefix]
	return uri, ok
}

// DefaultPrefixes returns the default prefixes in sorted order.
func DefaultPrefixes() []string {
	return slices.Sorted(maps.Keys(defaults))
}
