package harvest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	winFrom = time.Date(2015, 3, 15, 23, 21, 15, 567000000, time.UTC)
	winTo   = time.Date(2015, 5, 30, 23, 21, 15, 567000000, time.UTC)
)

func TestNumPages(t *testing.T) {
	tests := []struct {
		n, size, want int
	}{
		{0, 1000, 0},
		{1, 1000, 1},
		{1000, 1000, 1},
		{1001, 1000, 2},
		{2500, 1000, 3},
		{5, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NumPages(tt.n, tt.size), "NumPages(%d, %d)", tt.n, tt.size)
	}
}

func TestSinceQuery(t *testing.T) {
	assert.Equal(t,
		"dateUploaded:[2015-03-15T23:21:15.567Z TO 2015-05-30T23:21:15.567Z]",
		SinceQuery(winFrom, winTo))

	pst := time.FixedZone("PST", -8*60*60)
	assert.Equal(t,
		"dateUploaded:[2015-01-01T08:00:00.000Z TO 2015-01-01T08:00:00.000Z]",
		SinceQuery(time.Date(2015, 1, 1, 0, 0, 0, 0, pst), time.Date(2015, 1, 1, 8, 0, 0, 0, time.UTC)))
}

func TestSolrIndex_CountAndPage(t *testing.T) {
	var docs []IndexDocument
	for i := range 5 {
		docs = append(docs, IndexDocument{
			"identifier": {fmt.Sprintf("doc-%d", i)},
			"origin":     {"Alice Smith", "Bob Jones"},
		})
	}
	solr := newFakeSolr(t, docs...)
	idx := NewSolrIndex(solr.URL(), 2, nil)
	ctx := context.Background()

	n, err := idx.Count(ctx, winFrom, winTo)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 3, NumPages(n, idx.PageSize()))

	page3, err := idx.Page(ctx, winFrom, winTo, 3)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, "doc-4", page3[0].Identifier())
	assert.Equal(t, []string{"Alice Smith", "Bob Jones"}, page3[0].All("origin"))

	qs := solr.queries()
	require.Len(t, qs, 2)
	assert.Equal(t, "0", qs[0].Get("rows"))
	assert.Equal(t, SinceQuery(winFrom, winTo), qs[0].Get("q"))
	assert.Equal(t, "formatType:METADATA", qs[0].Get("fq"))
	assert.Empty(t, qs[0].Get("fl"))
	assert.Empty(t, qs[0].Get("sort"))

	assert.Equal(t, "4", qs[1].Get("start"))
	assert.Equal(t, "2", qs[1].Get("rows"))
	assert.Equal(t, "dateUploaded asc,id asc", qs[1].Get("sort"))
	assert.Equal(t, strings.Join(IndexFields, ","), qs[1].Get("fl"))
}

func TestSolrIndex_Errors(t *testing.T) {
	solr := newFakeSolr(t)
	idx := NewSolrIndex(solr.URL(), 0, nil)
	assert.Equal(t, DefaultPageSize, idx.PageSize())

	_, err := idx.Page(context.Background(), winFrom, winTo, 0)
	assert.Error(t, err)

	solr.failWith(http.StatusServiceUnavailable)
	_, err = idx.Count(context.Background(), winFrom, winTo)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestSolrDoc_TypedFields(t *testing.T) {
	body := `<response><result numFound="1"><doc>
		<str name="identifier">doi:10.1/x</str>
		<float name="northBoundCoord">34.5</float>
		<date name="dateUploaded">2015-04-01T00:00:00Z</date>
		<arr name="author"><str> Alice </str></arr>
	</doc></result></response>`
	srv := newRawServer(t, body)
	idx := NewSolrIndex(srv, 10, nil)

	docs, err := idx.Page(context.Background(), winFrom, winTo, 1)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "34.5", docs[0].Get("northBoundCoord"))
	assert.Equal(t, "2015-04-01T00:00:00Z", docs[0].Get("dateUploaded"))
	assert.Equal(t, []string{"Alice"}, docs[0].All("author"))
	assert.Empty(t, docs[0].Get("missing"))
}
