package harvest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/d1lod/internal/graph"
	"github.com/roach88/d1lod/internal/ir"
	"github.com/roach88/d1lod/internal/sesame"
	"github.com/roach88/d1lod/internal/store"
	"github.com/roach88/d1lod/internal/testutil"
	"github.com/roach88/d1lod/internal/vocab"
)

const (
	rdfType        = ir.IRI("http://www.w3.org/1999/02/22-rdf-syntax-ns#type")
	glOrganization = ir.IRI(vocab.NamespaceGLView + "Organization")
	glDataset      = ir.IRI(vocab.NamespaceGLView + "Dataset")
	glPerson       = ir.IRI(vocab.NamespaceGLView + "Person")
)

type harvestEnv struct {
	fake    *testutil.FakeSesame
	solr    *fakeSolr
	objects *fakeObjects
	state   *store.Store
	coord   *graph.Coordinator
}

func newHarvestEnv(t *testing.T, docs []IndexDocument, objects map[string]string) *harvestEnv {
	t.Helper()
	fake := testutil.NewFakeSesame(t)
	srv := sesame.NewServer(fake.Host(), fake.Port(), sesame.Options{Timeout: 2 * time.Second})
	repos := map[ir.Graph]string{
		ir.GraphOrganizations: "geolink",
		ir.GraphPeople:        "geolink",
		ir.GraphDatasets:      "geolink",
	}
	coord, err := graph.Open(context.Background(), srv, repos, vocab.Defaults())
	require.NoError(t, err)

	return &harvestEnv{
		fake:    fake,
		solr:    newFakeSolr(t, docs...),
		objects: newFakeObjects(t, objects),
		state:   createTestStore(t),
		coord:   coord,
	}
}

func (e *harvestEnv) driver(opts ...Option) *Driver {
	clock := testutil.NewStepClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Second)
	base := []Option{
		WithRunIDGenerator(testutil.NewFixedRunIDGenerator("run-1")),
		WithClock(clock.Now),
	}
	return New(
		NewSolrIndex(e.solr.URL(), 2, nil),
		NewObjectFetcher(e.objects.URL(), nil, e.state),
		e.coord,
		e.state,
		append(base, opts...)...,
	)
}

func threeDocs() ([]IndexDocument, map[string]string) {
	docs := []IndexDocument{
		{
			"identifier": {"doi:10.5063/AA/1"},
			"title":      {"Plankton counts"},
			"formatId":   {"eml://ecoinformatics.org/eml-2.1.1"},
		},
		{
			"identifier": {"urn:uuid:missing"},
			"title":      {"No metadata"},
			"origin":     {"Nobody Atall"},
		},
		{
			"identifier": {"knb.42.1"},
			"title":      {"Kelp survey"},
			"formatId":   {"FGDC-STD-001-1998"},
			"origin":     {"Carol White"},
		},
	}
	objects := map[string]string{
		"doi:10.5063/AA/1": emlNCEAS,
		"knb.42.1":         "<metadata/>",
	}
	return docs, objects
}

func TestDriver_Run(t *testing.T) {
	docs, objects := threeDocs()
	env := newHarvestEnv(t, docs, objects)
	ctx := context.Background()

	res, err := env.driver().Run(ctx, winFrom, winTo)
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, 3, res.Found)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Failed)
	assert.Zero(t, res.Skipped)
	assert.Equal(t, 2, res.Graph.Documents)

	// Entities landed.
	for _, id := range []string{"doi:10.5063/AA/1", "knb.42.1"} {
		uri, err := vocab.DatasetURI(id)
		require.NoError(t, err)
		assert.Contains(t, env.fake.Subjects("geolink", rdfType, glDataset), ir.Term(uri))
	}
	assert.Equal(t,
		[]ir.Term{ir.IRI(vocab.NamespaceOrg + "NCEAS")},
		env.fake.Subjects("geolink", rdfType, glOrganization))
	assert.Len(t, env.fake.Subjects("geolink", rdfType, glPerson), 3)

	// Run log and cursor.
	cursor, err := env.state.GetCursor(ctx, store.CursorSince)
	require.NoError(t, err)
	assert.True(t, cursor.Equal(winTo))

	run, err := env.state.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, store.RunCompleted, run.Status)
	var stored Result
	require.NoError(t, json.Unmarshal(run.Report, &stored))
	assert.Equal(t, 2, stored.Processed)

	failures, err := env.state.Failures(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "urn:uuid:missing", failures[0].Identifier)
	assert.Contains(t, failures[0].Reason, ErrNoMetadata.Error())
}

func TestDriver_RerunIsIdempotent(t *testing.T) {
	docs, objects := threeDocs()
	env := newHarvestEnv(t, docs, objects)
	ctx := context.Background()

	_, err := env.driver(WithRunIDGenerator(testutil.NewFixedRunIDGenerator("first"))).Run(ctx, winFrom, winTo)
	require.NoError(t, err)
	size := env.fake.Size("geolink")
	updates := env.fake.Count(testutil.OpUpdate)

	t.Run("without skip", func(t *testing.T) {
		res, err := env.driver(WithRunIDGenerator(testutil.NewFixedRunIDGenerator("second"))).Run(ctx, winFrom, winTo)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Processed)
		assert.Equal(t, size, env.fake.Size("geolink"))
		assert.Equal(t, updates, env.fake.Count(testutil.OpUpdate))
	})

	t.Run("skip existing", func(t *testing.T) {
		res, err := env.driver(
			WithRunIDGenerator(testutil.NewFixedRunIDGenerator("third")),
			WithSkipExisting(true),
		).Run(ctx, winFrom, winTo)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Skipped)
		assert.Equal(t, 1, res.Failed)
		assert.Zero(t, res.Processed)
	})

	// Cached metadata was only fetched once.
	assert.Equal(t, 1, env.objects.Hits("doi:10.5063/AA/1"))
}

func TestDriver_IndexFailureFailsRun(t *testing.T) {
	docs, objects := threeDocs()
	env := newHarvestEnv(t, docs, objects)
	env.solr.failWith(http.StatusInternalServerError)
	ctx := context.Background()

	_, err := env.driver().Run(ctx, winFrom, winTo)
	require.Error(t, err)

	run, err := env.state.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, store.RunFailed, run.Status)

	_, err = env.state.GetCursor(ctx, store.CursorSince)
	assert.True(t, errors.Is(err, store.ErrNotFound), "cursor must not advance on a failed run")
}

func TestDriver_WriteFailureCountsDocument(t *testing.T) {
	docs, objects := threeDocs()
	env := newHarvestEnv(t, docs[2:], objects)
	env.fake.Fail(testutil.OpUpdate, http.StatusInternalServerError, "boom", -1)

	res, err := env.driver().Run(context.Background(), winFrom, winTo)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Zero(t, res.Processed)
	assert.Zero(t, env.fake.Size("geolink"))
}

func TestDriver_ParallelWorkersShareEntities(t *testing.T) {
	var docs []IndexDocument
	objects := make(map[string]string)
	for i := range 10 {
		id := fmt.Sprintf("doi:10.5063/P/%d", i)
		docs = append(docs, IndexDocument{
			"identifier": {id},
			"formatId":   {"eml://ecoinformatics.org/eml-2.1.1"},
		})
		objects[id] = emlNCEAS
	}
	env := newHarvestEnv(t, docs, objects)

	res, err := env.driver(WithWorkers(4)).Run(context.Background(), winFrom, winTo)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Processed)
	assert.Equal(t, 5, res.Pages)

	assert.Len(t, env.fake.Subjects("geolink", rdfType, glOrganization), 1)
	assert.Len(t, env.fake.Subjects("geolink", rdfType, glPerson), 2)
	assert.Len(t, env.fake.Subjects("geolink", rdfType, glDataset), 10)
	assert.Equal(t, 1, res.Graph.Graphs[ir.GraphOrganizations].Created)
}

func TestDriver_InvertedWindow(t *testing.T) {
	env := newHarvestEnv(t, nil, nil)
	_, err := env.driver().Run(context.Background(), winTo, winFrom)
	assert.Error(t, err)
}

func TestDriver_EmptyWindowAdvancesCursor(t *testing.T) {
	env := newHarvestEnv(t, nil, nil)
	ctx := context.Background()

	res, err := env.driver().Run(ctx, winFrom, winTo)
	require.NoError(t, err)
	assert.Zero(t, res.Found)
	assert.Zero(t, res.Pages)

	cursor, err := env.state.GetCursor(ctx, store.CursorSince)
	require.NoError(t, err)
	assert.True(t, cursor.Equal(winTo))
}

func TestUUIDv7Generator(t *testing.T) {
	gen := UUIDv7Generator{}
	a, b := gen.Generate(), gen.Generate()
	assert.Regexp(t, `^[0-9a-f]{8}-[0-9a-f]{4}-7[0-9a-f]{3}-[0-9a-f]{4}-[0-9a-f]{12}$`, a)
	assert.NotEqual(t, a, b)
}
