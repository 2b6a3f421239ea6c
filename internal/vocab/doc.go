// Package vocab provides the namespace table, classes and predicates used to
// describe datasets, people and organizations, and the deterministic minting
// of their entity URIs.
//
// Predicates are expressed as ir.QName values so that every triple built here
// abbreviates through a prefix from Defaults; writers must make sure the
// prefixes a triple uses are bound before sending it (see UsedPrefixes).
package vocab
