// Package ir provides the shared value types of the harvester: RDF terms,
// triples, query-result rows, entity records and the canonical identity
// encoding used to mint deterministic entity URIs.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Terms are a sealed interface (IRI, QName, Literal, Var, BlankNode)
//   - Query-result values are only ever IRI, Literal or BlankNode
//   - Identity hashes use RFC 8785 canonical JSON with domain separation
package ir
