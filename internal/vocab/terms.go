package vocab

import "github.com/roach88/d1lod/internal/ir"

// Classes.
const (
	ClassPerson       ir.QName = "glview:Person"
	ClassOrganization ir.QName = "glview:Organization"
	ClassDataset      ir.QName = "glview:Dataset"
)

// RDFType is rdf:type.
const RDFType ir.QName = "rdf:type"

// Person and organization predicates.
const (
	NameFull       ir.QName = "glview:nameFull"
	NameGiven      ir.QName = "glview:nameGiven"
	NameFamily     ir.QName = "glview:nameFamily"
	HasEmail       ir.QName = "glview:hasEmail"
	HasAddress     ir.QName = "glview:hasAddress"
	HasPhone       ir.QName = "glview:hasPhone"
	HasORCID       ir.QName = "glview:hasORCID"
	HasRORID       ir.QName = "glview:hasRORID"
	HasAffiliation ir.QName = "glview:hasAffiliation"
)

// Dataset predicates.
const (
	HasIdentifier  ir.QName = "glview:hasIdentifier"
	Title          ir.QName = "dcterms:title"
	Description    ir.QName = "glview:description"
	HasCreator     ir.QName = "glview:hasCreator"
	HasContributor ir.QName = "glview:hasContributor"
	HasStartDate   ir.QName = "glview:hasStartDate"
	HasEndDate     ir.QName = "glview:hasEndDate"
	NorthBound     ir.QName = "glview:hasNorthBoundCoordinate"
	EastBound      ir.QName = "glview:hasEastBoundCoordinate"
	SouthBound     ir.QName = "glview:hasSouthBoundCoordinate"
	WestBound      ir.QName = "glview:hasWestBoundCoordinate"
	HasMemberNode  ir.QName = "glview:hasAuthoritativeDigitalRepository"
	HasDatasource  ir.QName = "glview:hasOriginDigitalRepository"
	DateUploaded   ir.QName = "dcterms:dateSubmitted"
	HasFormat      ir.QName = "dcterms:format"
	HasLandingPage ir.QName = "foaf:page"
)

// Datatypes.
const (
	XSDDateTime ir.QName = "xsd:dateTime"
	XSDDecimal  ir.QName = "xsd:decimal"
)
