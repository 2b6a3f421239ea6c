// Package harness provides conformance testing for d1lod graph writes.
//
// The harness runs YAML scenarios of coordinator operations against a
// Sesame server, records a trace of every outcome, and evaluates assertions
// against the repositories through the same HTTP client production code
// uses. Tests run scenarios against testutil.FakeSesame and compare traces
// with golden files.
//
// # Scenario Format
//
//	name: nceas_affiliation
//	description: "People are affiliated with their settled organization"
//	graphs:
//	  organizations: geolink
//	  people: geolink
//	  datasets: geolink
//	setup:
//	  namespaces:
//	    geolink: { d1org: "https://example.org/org/" }
//	  flow:
//	    - invoke: add_organization
//	      record: { type: organization, attrs: { name: [NCEAS] } }
//	flow:
//	  - invoke: add_person
//	    record:
//	      type: person
//	      attrs: { name: ["A. Smith"], organization: [NCEAS] }
//	    expect: { status: created }
//	  - invoke: save
//	assertions:
//	  - type: size
//	    repository: geolink
//	    count: 9
//	  - type: contains
//	    repository: geolink
//	    triple: ["<https://dataone.org/organization/NCEAS>", "rdf:type", "glview:Organization"]
//
// # Operations
//
//   - add_organization, add_person, add_dataset: upsert one record
//   - add_document: upsert a graph.Document in dependency order
//   - dataset_exists: check an identifier in the datasets graph
//   - save: flush namespaces and snapshot the report
//
// # Assertion Types
//
//   - size: repository statement count
//   - contains / absent: a triple is present or absent
//   - namespace: the remote binding of a prefix
//   - report: a coordinator report counter
//
// # Record Fixtures
//
// LoadDocuments reads a YAML list of graph.Document values; `d1lod load`
// uses it to write fixtures into a live server.
package harness
