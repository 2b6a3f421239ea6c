// Package sparql renders the SPARQL fragment d1lod speaks and decodes the
// JSON results envelope the store answers with.
//
// Only three shapes of text are produced:
//
//	SELECT * WHERE { patterns }
//	INSERT DATA { triples }
//	DELETE { patterns } WHERE { patterns }
//
// each preceded by the PREFIX header of the target repository. Every prefixed
// name in a rendered term must be bound in that header; rendering fails with
// ErrUnboundPrefix otherwise. Output is deterministic: the same input always
// renders byte-identical text.
package sparql
