// Package harvest drives a DataONE harvest.
//
// A run pages the coordinating node's Solr index between two timestamps,
// fetches each dataset's science metadata (through the local document
// cache), extracts and validates entity records, and hands one
// graph.Document per dataset to the multi-graph coordinator. Documents are
// processed by a bounded worker pool. Per-document failures are counted and
// recorded against the run; they never abort it.
//
// On success the store's "since" cursor is advanced to the end of the
// window so the next run resumes from there.
package harvest
