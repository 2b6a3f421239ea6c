// Package graph coordinates writes across the datasets, people and
// organizations graphs.
//
// The graphs live in separate repositories (or share one) and reference
// each other only by IRI. There are no cross-repository transactions, so
// consistency is a write-ordering discipline: within a document,
// organizations are settled before the people affiliated with them, and
// people before the dataset that credits them. A document whose
// organizations or people cannot be resolved is abandoned before its dataset
// is written.
//
// Every upsert is query-then-write. The entity is resolved by its
// identifying attributes; if it exists its URI is reused, otherwise a
// deterministic URI is minted and the entity written with one INSERT DATA.
// Upserts of the same minted URI are serialized by a keyed lock, so parallel
// documents mentioning the same organization write it once.
package graph
