// Package sesame is an HTTP client for Sesame/RDF4J graph repositories.
//
// A Server addresses one host and owns the shared HTTP client, request rate
// limiter and per-call timeout. A Repository is bound to one repository name
// on that server and to the namespace table used to render its queries.
//
// Reads degrade where it is safe to: Exists reports false on any failure,
// Size reports -1 and Namespaces an empty table for unknown repositories.
// Queries never degrade; a failed query is always an error so callers cannot
// mistake it for an empty result.
package sesame
