package harvest

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/roach88/d1lod/internal/store"
)

// fakeSolr serves a fixed document list in Solr's XML response format,
// honoring start and rows.
type fakeSolr struct {
	srv *httptest.Server

	mu       sync.Mutex
	docs     []IndexDocument
	requests []url.Values
	status   int
}

func newFakeSolr(t *testing.T, docs ...IndexDocument) *fakeSolr {
	t.Helper()
	f := &fakeSolr{docs: docs}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeSolr) URL() string { return f.srv.URL + "/cn/v1/query/solr/" }

func (f *fakeSolr) failWith(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

func (f *fakeSolr) queries() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.requests...)
}

func (f *fakeSolr) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := r.URL.Query()
	f.requests = append(f.requests, q)
	if f.status != 0 {
		http.Error(w, "solr unavailable", f.status)
		return
	}

	start, _ := strconv.Atoi(q.Get("start"))
	rows, _ := strconv.Atoi(q.Get("rows"))
	end := min(start+rows, len(f.docs))

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n<response>\n")
	b.WriteString(`<lst name="responseHeader"><int name="status">0</int></lst>` + "\n")
	fmt.Fprintf(&b, "<result name=\"response\" numFound=\"%d\" start=\"%d\">\n", len(f.docs), start)
	for i := start; i < end; i++ {
		b.WriteString("<doc>")
		for name, vals := range f.docs[i] {
			if len(vals) == 1 {
				fmt.Fprintf(&b, `<str name="%s">%s</str>`, name, escape(vals[0]))
				continue
			}
			fmt.Fprintf(&b, `<arr name="%s">`, name)
			for _, v := range vals {
				fmt.Fprintf(&b, "<str>%s</str>", escape(v))
			}
			b.WriteString("</arr>")
		}
		b.WriteString("</doc>\n")
	}
	b.WriteString("</result>\n</response>\n")

	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write([]byte(b.String()))
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// fakeObjects serves science-metadata documents by identifier.
type fakeObjects struct {
	srv *httptest.Server

	mu      sync.Mutex
	objects map[string]string
	hits    map[string]int
}

func newFakeObjects(t *testing.T, objects map[string]string) *fakeObjects {
	t.Helper()
	f := &fakeObjects{objects: objects, hits: make(map[string]int)}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := url.PathUnescape(strings.TrimPrefix(r.URL.EscapedPath(), "/cn/v1/object/"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.hits[id]++
		body, ok := f.objects[id]
		if !ok {
			http.Error(w, "NotFound", http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeObjects) URL() string { return f.srv.URL + "/cn/v1/object/" }

func (f *fakeObjects) Hits(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[id]
}

func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

const emlNCEAS = `<?xml version="1.0" encoding="UTF-8"?>
<eml:eml xmlns:eml="eml://ecoinformatics.org/eml-2.1.1" packageId="doi:10.5063/AA/1">
  <dataset>
    <title>Plankton counts</title>
    <creator>
      <individualName>
        <givenName>Alice</givenName>
        <surName>Smith</surName>
      </individualName>
      <organizationName>NCEAS</organizationName>
      <electronicMailAddress>Alice.Smith@Example.ORG</electronicMailAddress>
      <userId directory="https://orcid.org">https://orcid.org/0000-0002-1825-0097</userId>
    </creator>
    <creator>
      <organizationName>NCEAS</organizationName>
    </creator>
    <creator>
      <individualName>
        <givenName>Bob</givenName>
        <givenName>J.</givenName>
        <surName>Jones</surName>
      </individualName>
    </creator>
  </dataset>
</eml:eml>
`

func newRawServer(t *testing.T, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}
