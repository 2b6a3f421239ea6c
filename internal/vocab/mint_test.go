package vocab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/d1lod/internal/ir"
)

func record(k ir.Kind, attrs map[string]string) ir.Record {
	rec := ir.NewRecord(k)
	for key, v := range attrs {
		rec.Set(key, v)
	}
	return rec
}

func TestOrganizationURI(t *testing.T) {
	uri, err := OrganizationURI(record(ir.KindOrganization, map[string]string{"name": "NCEAS"}))
	require.NoError(t, err)
	assert.Equal(t, ir.IRI("https://dataone.org/organization/NCEAS"), uri)

	uri, err = OrganizationURI(record(ir.KindOrganization, map[string]string{
		"name": "NCEAS",
		"ror":  "https://ror.org/0168r3w48/",
	}))
	require.NoError(t, err)
	assert.Equal(t, ir.IRI("https://dataone.org/organization/0168r3w48"), uri)

	_, err = OrganizationURI(ir.NewRecord(ir.KindOrganization))
	assert.ErrorIs(t, err, ErrUnidentifiable)
}

func TestPersonURI_ORCID(t *testing.T) {
	for _, orcid := range []string{"0000-0002-1825-0097", "https://orcid.org/0000-0002-1825-0097"} {
		uri, err := PersonURI(record(ir.KindPerson, map[string]string{"name": "A. Smith", "orcid": orcid}))
		require.NoError(t, err)
		assert.Equal(t, ir.IRI("https://dataone.org/person/0000-0002-1825-0097"), uri)
	}
}

func TestPersonURI_HashedIdentity(t *testing.T) {
	rec := record(ir.KindPerson, map[string]string{"name": "A. Smith", "organization": "NCEAS"})
	uri, err := PersonURI(rec)
	require.NoError(t, err)

	h := ir.MustIdentityHash(ir.DomainPerson, map[string]string{"name": "A. Smith", "organization": "NCEAS"})
	assert.Equal(t, ir.IRI("https://dataone.org/person/A._Smith-"+h[:12]), uri)

	again, err := PersonURI(rec.Clone())
	require.NoError(t, err)
	assert.Equal(t, uri, again, "minting must be deterministic")

	// Email takes precedence over organization and is case-insensitive.
	a, err := PersonURI(record(ir.KindPerson, map[string]string{"name": "A. Smith", "email": "A@Example.org", "organization": "X"}))
	require.NoError(t, err)
	b, err := PersonURI(record(ir.KindPerson, map[string]string{"name": "A. Smith", "email": "a@example.org"}))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.NotEqual(t, uri, a)
}

func TestPersonURI_Unidentifiable(t *testing.T) {
	_, err := PersonURI(record(ir.KindPerson, map[string]string{"email": "a@example.org"}))
	assert.ErrorIs(t, err, ErrUnidentifiable)
}

func TestDatasetURI(t *testing.T) {
	uri, err := DatasetURI("doi:10.5063/F1/X")
	require.NoError(t, err)
	assert.Equal(t, ir.IRI("https://cn.dataone.org/cn/v1/resolve/doi:10.5063%2FF1%2FX"), uri)

	_, err = DatasetURI("  ")
	assert.ErrorIs(t, err, ErrUnidentifiable)
}

func TestEntityURI_Dispatch(t *testing.T) {
	uri, err := EntityURI(record(ir.KindDataset, map[string]string{"identifier": "abc"}))
	require.NoError(t, err)
	assert.Equal(t, ir.IRI(NamespaceResolve+"abc"), uri)

	_, err = EntityURI(ir.Record{Kind: "thing"})
	assert.Error(t, err)
}

func TestBareROR(t *testing.T) {
	for _, ror := range []string{"0168r3w48", "https://ror.org/0168r3w48", "https://ror.org/0168r3w48/ "} {
		assert.Equal(t, "0168r3w48", BareROR(ror), ror)
	}
	assert.Empty(t, BareROR("  "))
}
