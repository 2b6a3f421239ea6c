package graph

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/d1lod/internal/ir"
	"github.com/roach88/d1lod/internal/sesame"
	"github.com/roach88/d1lod/internal/testutil"
	"github.com/roach88/d1lod/internal/vocab"
)

const glview = "http://schema.geolink.org/dev/view/"

func sameRepo(name string) map[ir.Graph]string {
	return map[ir.Graph]string{
		ir.GraphOrganizations: name,
		ir.GraphPeople:        name,
		ir.GraphDatasets:      name,
	}
}

func openTest(t *testing.T, fake *testutil.FakeSesame, repos map[ir.Graph]string) *Coordinator {
	t.Helper()
	srv := sesame.NewServer(fake.Host(), fake.Port(), sesame.Options{Timeout: 2 * time.Second})
	c, err := Open(context.Background(), srv, repos, vocab.Defaults())
	require.NoError(t, err)
	return c
}

func rec(k ir.Kind, kv ...string) ir.Record {
	r := ir.NewRecord(k)
	for i := 0; i+1 < len(kv); i += 2 {
		r.Add(kv[i], kv[i+1])
	}
	return r
}

func TestNCEASScenario(t *testing.T) {
	fake := testutil.NewFakeSesame(t)
	c := openTest(t, fake, sameRepo("geolink"))
	ctx := context.Background()

	org, err := c.AddOrganization(ctx, rec(ir.KindOrganization, "name", "NCEAS"))
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, org.Status)
	assert.Equal(t, ir.IRI("https://dataone.org/organization/NCEAS"), org.URI)

	person, err := c.AddPerson(ctx, rec(ir.KindPerson, "name", "A. Smith", "organization", "NCEAS"))
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, person.Status)
	assert.Contains(t, fake.Triples("geolink"),
		ir.T(person.URI, ir.IRI(glview+"hasAffiliation"), ir.IRI("https://dataone.org/organization/NCEAS")))

	size := fake.Size("geolink")
	updates := fake.Count(testutil.OpUpdate)

	// Re-running adds nothing.
	org2, err := c.AddOrganization(ctx, rec(ir.KindOrganization, "name", "NCEAS"))
	require.NoError(t, err)
	assert.Equal(t, StatusExisting, org2.Status)
	assert.Equal(t, org.URI, org2.URI)

	person2, err := c.AddPerson(ctx, rec(ir.KindPerson, "name", "A. Smith", "organization", "NCEAS"))
	require.NoError(t, err)
	assert.Equal(t, StatusExisting, person2.Status)
	assert.Equal(t, person.URI, person2.URI)

	assert.Equal(t, size, fake.Size("geolink"))
	assert.Equal(t, updates, fake.Count(testutil.OpUpdate))

	report, err := c.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, GraphCounts{Created: 1, Existing: 3}, report.Graphs[ir.GraphOrganizations])
	assert.Equal(t, GraphCounts{Created: 1, Existing: 1}, report.Graphs[ir.GraphPeople])
}

func testDocument(id string) Document {
	return Document{
		Identifier: id,
		Dataset:    rec(ir.KindDataset, "identifier", id, "title", "Kelp survey "+id),
		Organizations: []ir.Record{
			rec(ir.KindOrganization, "name", "NCEAS"),
			rec(ir.KindOrganization, "name", "University of Kansas"),
		},
		People: []ir.Record{
			rec(ir.KindPerson, "name", "A. Smith", "organization", "NCEAS", "email", "a.smith@example.org"),
			rec(ir.KindPerson, "name", "B. Jones", "organization", "University of Kansas", "role", "contributor"),
		},
	}
}

func TestAddDocument_Idempotent(t *testing.T) {
	fake := testutil.NewFakeSesame(t)
	c := openTest(t, fake, sameRepo("geolink"))
	ctx := context.Background()

	first, err := c.AddDocument(ctx, testDocument("doi:10.5063/F1"))
	require.NoError(t, err)
	require.NotNil(t, first.Dataset)
	assert.Equal(t, StatusCreated, first.Dataset.Status)
	assert.False(t, first.Failed())
	triples := fake.Triples("geolink")

	second, err := c.AddDocument(ctx, testDocument("doi:10.5063/F1"))
	require.NoError(t, err)
	assert.Equal(t, StatusExisting, second.Dataset.Status)
	for _, o := range append(second.Organizations, second.People...) {
		assert.Equal(t, StatusExisting, o.Status)
	}
	assert.Equal(t, triples, fake.Triples("geolink"))

	exists, err := c.DatasetExists(ctx, "doi:10.5063/F1")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = c.DatasetExists(ctx, "doi:10.5063/F2")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAddDocument_OrderingInvariant(t *testing.T) {
	fake := testutil.NewFakeSesame(t)
	repos := map[ir.Graph]string{
		ir.GraphOrganizations: "organizations",
		ir.GraphPeople:        "people",
		ir.GraphDatasets:      "datasets",
	}
	c := openTest(t, fake, repos)
	ctx := context.Background()

	out, err := c.AddDocument(ctx, testDocument("abc"))
	require.NoError(t, err)
	require.False(t, out.Failed())

	subjects := func(repo string) map[ir.Term]bool {
		m := make(map[ir.Term]bool)
		for _, t := range fake.Triples(repo) {
			m[t.Subject] = true
		}
		return m
	}
	orgs, people := subjects("organizations"), subjects("people")

	for _, tr := range fake.Triples("people") {
		if tr.Predicate == ir.IRI(glview+"hasAffiliation") {
			assert.True(t, orgs[tr.Object], "affiliation %s must exist", tr.Object.Value())
		}
	}
	var creators, contributors int
	for _, tr := range fake.Triples("datasets") {
		switch tr.Predicate {
		case ir.IRI(glview + "hasCreator"):
			creators++
			assert.True(t, people[tr.Object], "creator %s must exist", tr.Object.Value())
		case ir.IRI(glview + "hasContributor"):
			contributors++
			assert.True(t, people[tr.Object], "contributor %s must exist", tr.Object.Value())
		}
	}
	assert.Equal(t, 1, creators)
	assert.Equal(t, 1, contributors)
}

func TestAddDocument_AbortsOnResolutionFailure(t *testing.T) {
	fake := testutil.NewFakeSesame(t)
	c := openTest(t, fake, sameRepo("geolink"))
	ctx := context.Background()

	fake.Fail(testutil.OpQuery, http.StatusInternalServerError, "boom", 1)
	out, err := c.AddDocument(ctx, testDocument("abc"))
	require.Error(t, err)
	assert.Nil(t, out.Dataset, "dataset must not be attempted")
	assert.True(t, out.Failed())
	assert.Zero(t, fake.Size("geolink"))

	report := c.Report()
	assert.Equal(t, 1, report.Documents)
	assert.Equal(t, 1, report.DocumentsFailed)
	assert.NotEmpty(t, report.Failures)
}

func TestAddOrganization_WriteFailureIsWarning(t *testing.T) {
	fake := testutil.NewFakeSesame(t)
	c := openTest(t, fake, sameRepo("geolink"))
	fake.Fail(testutil.OpUpdate, http.StatusServiceUnavailable, "busy", 1)

	out, err := c.AddOrganization(context.Background(), rec(ir.KindOrganization, "name", "NCEAS"))
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, out.Status)
	assert.NotEmpty(t, out.Warnings)
	report := c.Report()
	assert.Equal(t, 1, report.Graphs[ir.GraphOrganizations].Failed)
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0], "write https://dataone.org/organization/NCEAS: ")
}

func TestAddPerson_UnwrittenAffiliation(t *testing.T) {
	fake := testutil.NewFakeSesame(t)
	c := openTest(t, fake, sameRepo("geolink"))
	fake.Fail(testutil.OpUpdate, http.StatusServiceUnavailable, "busy", 1)

	out, err := c.AddPerson(context.Background(), rec(ir.KindPerson, "name", "A. Smith", "organization", "NCEAS"))
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, out.Status)
	assert.NotEmpty(t, out.Warnings)
	assert.Empty(t, fake.Subjects("geolink", ir.IRI(glview+"hasAffiliation"), nil))
}

func TestAddOrganization_Ambiguous(t *testing.T) {
	fake := testutil.NewFakeSesame(t)
	rdfType := ir.IRI("http://www.w3.org/1999/02/22-rdf-syntax-ns#type")
	for _, u := range []string{"https://dataone.org/organization/b", "https://dataone.org/organization/a"} {
		fake.Seed("geolink",
			ir.T(ir.IRI(u), rdfType, ir.IRI(glview+"Organization")),
			ir.T(ir.IRI(u), ir.IRI(glview+"nameFull"), ir.NewLiteral("NCEAS")))
	}
	c := openTest(t, fake, sameRepo("geolink"))

	out, err := c.AddOrganization(context.Background(), rec(ir.KindOrganization, "name", "NCEAS"))
	require.NoError(t, err)
	assert.Equal(t, StatusExisting, out.Status)
	assert.True(t, out.Ambiguous)
	assert.Equal(t, ir.IRI("https://dataone.org/organization/a"), out.URI)
	assert.Equal(t, []string{"2 entities match; chose https://dataone.org/organization/a"}, out.Warnings)
	assert.Equal(t, 1, c.Report().Ambiguous)
}

func TestAddOrganization_RORForms(t *testing.T) {
	fake := testutil.NewFakeSesame(t)
	c := openTest(t, fake, sameRepo("geolink"))
	ctx := context.Background()

	first, err := c.AddOrganization(ctx, rec(ir.KindOrganization, "name", "NCEAS", "ror", "https://ror.org/0abc12345"))
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, first.Status)
	size := fake.Size("geolink")

	second, err := c.AddOrganization(ctx, rec(ir.KindOrganization, "name", "NCEAS", "ror", "0abc12345"))
	require.NoError(t, err)
	assert.Equal(t, StatusExisting, second.Status)
	assert.Equal(t, first.URI, second.URI)
	assert.Equal(t, size, fake.Size("geolink"))
	var rorIDs []ir.Term
	for _, tr := range fake.Triples("geolink") {
		if tr.Predicate == vocab.HasRORID {
			rorIDs = append(rorIDs, tr.Object)
		}
	}
	assert.Equal(t, []ir.Term{ir.NewLiteral("0abc12345")}, rorIDs)
}

func TestAddOrganization_Concurrent(t *testing.T) {
	fake := testutil.NewFakeSesame(t)
	c := openTest(t, fake, sameRepo("geolink"))

	var wg sync.WaitGroup
	outcomes := make([]Outcome, 20)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := c.AddOrganization(context.Background(), rec(ir.KindOrganization, "name", "NCEAS"))
			assert.NoError(t, err)
			outcomes[i] = out
		}(i)
	}
	wg.Wait()

	created := 0
	for _, o := range outcomes {
		if o.Status == StatusCreated {
			created++
		}
		assert.Equal(t, ir.IRI("https://dataone.org/organization/NCEAS"), o.URI)
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 2, fake.Size("geolink"))
	assert.Zero(t, c.locks.size(), "idle locks are dropped")
}

func TestAddDocument_ConcurrentSharedEntities(t *testing.T) {
	fake := testutil.NewFakeSesame(t)
	c := openTest(t, fake, sameRepo("geolink"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.AddDocument(context.Background(), testDocument(fmt.Sprintf("doc-%d", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	orgs := fake.Subjects("geolink", ir.IRI("http://www.w3.org/1999/02/22-rdf-syntax-ns#type"), ir.IRI(glview+"Organization"))
	people := fake.Subjects("geolink", ir.IRI("http://www.w3.org/1999/02/22-rdf-syntax-ns#type"), ir.IRI(glview+"Person"))
	datasets := fake.Subjects("geolink", ir.IRI("http://www.w3.org/1999/02/22-rdf-syntax-ns#type"), ir.IRI(glview+"Dataset"))
	assert.Len(t, orgs, 2)
	assert.Len(t, people, 2)
	assert.Len(t, datasets, 8)

	report := c.Report()
	assert.Equal(t, 8, report.Documents)
	assert.Zero(t, report.DocumentsFailed)
}

func TestAddDataset_DropsNonIRICreators(t *testing.T) {
	fake := testutil.NewFakeSesame(t)
	c := openTest(t, fake, sameRepo("geolink"))

	out, err := c.AddDataset(context.Background(), rec(ir.KindDataset,
		"identifier", "abc", "creator", "A. Smith", "creator", "https://dataone.org/person/x"))
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, out.Status)
	require.Len(t, out.Warnings, 1)
	assert.Len(t, fake.Subjects("geolink", ir.IRI(glview+"hasCreator"), nil), 1)
}

func TestAdd_WrongKindAndUnidentifiable(t *testing.T) {
	fake := testutil.NewFakeSesame(t)
	c := openTest(t, fake, sameRepo("geolink"))
	ctx := context.Background()

	_, err := c.AddPerson(ctx, rec(ir.KindOrganization, "name", "NCEAS"))
	assert.Error(t, err)

	_, err = c.AddDataset(ctx, ir.NewRecord(ir.KindDataset))
	assert.ErrorIs(t, err, vocab.ErrUnidentifiable)
}

func TestOpen_ProvisionsAndSyncs(t *testing.T) {
	fake := testutil.NewFakeSesame(t)
	fake.SetNamespace("people", "foaf", "http://example.org/foaf#")
	repos := map[ir.Graph]string{
		ir.GraphOrganizations: "organizations",
		ir.GraphPeople:        "people",
		ir.GraphDatasets:      "organizations",
	}
	c := openTest(t, fake, repos)

	assert.True(t, fake.HasRepository("organizations"))
	assert.True(t, fake.HasRepository("people"))
	assert.Equal(t, "http://xmlns.com/foaf/0.1/", fake.Namespaces("organizations")["foaf"])
	assert.Equal(t, "http://example.org/foaf#", fake.Namespaces("people")["foaf"])
	assert.Equal(t, 1, c.Report().NamespaceConflicts)
	assert.Same(t, c.clients[ir.GraphOrganizations], c.clients[ir.GraphDatasets])
}

func openWithTimeout(t *testing.T, fake *testutil.FakeSesame, timeout time.Duration) *Coordinator {
	t.Helper()
	srv := sesame.NewServer(fake.Host(), fake.Port(), sesame.Options{Timeout: timeout})
	c, err := Open(context.Background(), srv, sameRepo("geolink"), vocab.Defaults())
	require.NoError(t, err)
	return c
}

func TestUpsert_ResolutionTimeoutIsError(t *testing.T) {
	fake := testutil.NewFakeSesame(t)
	c := openWithTimeout(t, fake, 100*time.Millisecond)
	fake.SetOpLatency(testutil.OpQuery, time.Second)

	out, err := c.AddOrganization(context.Background(), rec(ir.KindOrganization, "name", "NCEAS"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Zero(t, fake.Count(testutil.OpUpdate), "a timed-out lookup is never treated as not found")
	assert.Equal(t, 1, c.Report().Graphs[ir.GraphOrganizations].Failed)
}

func TestUpsert_WriteTimeoutIsWarning(t *testing.T) {
	fake := testutil.NewFakeSesame(t)
	c := openWithTimeout(t, fake, 100*time.Millisecond)
	fake.SetOpLatency(testutil.OpUpdate, time.Second)

	out, err := c.AddOrganization(context.Background(), rec(ir.KindOrganization, "name", "NCEAS"))
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, ir.IRI("https://dataone.org/organization/NCEAS"), out.URI)
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], context.DeadlineExceeded.Error())
	assert.Zero(t, fake.Size("geolink"))
}

func TestOpen_FatalOnNamespaceFailure(t *testing.T) {
	fake := testutil.NewFakeSesame(t)
	fake.Fail(testutil.OpNamespaces, http.StatusInternalServerError, "boom", -1)
	srv := sesame.NewServer(fake.Host(), fake.Port(), sesame.Options{Timeout: 2 * time.Second})

	_, err := Open(context.Background(), srv, sameRepo("geolink"), vocab.Defaults())
	assert.Error(t, err)
}

func TestOpen_FatalOnProvisionFailure(t *testing.T) {
	fake := testutil.NewFakeSesame(t)
	fake.Fail(testutil.OpCreate, http.StatusInternalServerError, "boom", -1)
	srv := sesame.NewServer(fake.Host(), fake.Port(), sesame.Options{Timeout: 2 * time.Second})

	_, err := Open(context.Background(), srv, sameRepo("geolink"), vocab.Defaults())
	assert.Error(t, err)
}

func TestNew_RequiresEveryGraph(t *testing.T) {
	_, err := New(map[ir.Graph]Client{})
	assert.Error(t, err)
}
