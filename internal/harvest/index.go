package harvest

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultPageSize is the number of index documents requested per page.
const DefaultPageSize = 1000

// IndexFields is the Solr field list requested for every page.
var IndexFields = []string{
	"identifier", "title", "abstract", "author",
	"authorLastName", "origin", "submitter", "rightsHolder", "documents",
	"resourceMap", "authoritativeMN", "obsoletes", "northBoundCoord",
	"eastBoundCoord", "southBoundCoord", "westBoundCoord", "startDate", "endDate",
	"datasource", "replicaMN", "formatId", "dateUploaded",
}

// IndexDocument is one Solr result document: field name -> values.
// Single-valued fields hold one value; arrays hold one value per element.
type IndexDocument map[string][]string

// Get returns the first value of a field, or "".
func (d IndexDocument) Get(field string) string {
	if vals := d[field]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// All returns every value of a field.
func (d IndexDocument) All(field string) []string {
	return d[field]
}

// Identifier returns the document's identifier field.
func (d IndexDocument) Identifier() string {
	return d.Get("identifier")
}

// Index pages search-index documents uploaded in a time window.
// Pages are numbered from 1.
type Index interface {
	Count(ctx context.Context, from, to time.Time) (int, error)
	Page(ctx context.Context, from, to time.Time, page int) ([]IndexDocument, error)
	PageSize() int
}

// NumPages returns how many pages of size pageSize hold n documents.
func NumPages(n, pageSize int) int {
	if n <= 0 || pageSize <= 0 {
		return 0
	}
	return (n + pageSize - 1) / pageSize
}

// SinceQuery returns the Solr query selecting documents uploaded in
// [from, to].
func SinceQuery(from, to time.Time) string {
	return fmt.Sprintf("dateUploaded:[%s TO %s]", solrTime(from), solrTime(to))
}

func solrTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// SolrIndex queries a DataONE coordinating node Solr endpoint.
type SolrIndex struct {
	baseURL  string
	pageSize int
	client   *http.Client
}

// NewSolrIndex creates an index client. A pageSize of zero selects
// DefaultPageSize; a nil client selects http.DefaultClient.
func NewSolrIndex(baseURL string, pageSize int, client *http.Client) *SolrIndex {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &SolrIndex{baseURL: baseURL, pageSize: pageSize, client: client}
}

// PageSize returns the number of documents per page.
func (s *SolrIndex) PageSize() int {
	return s.pageSize
}

// Count returns the number of metadata documents uploaded in the window.
func (s *SolrIndex) Count(ctx context.Context, from, to time.Time) (int, error) {
	resp, err := s.query(ctx, from, to, 0, 0, nil)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return resp.Result.NumFound, nil
}

// Page returns page number page (1-based) of the window.
func (s *SolrIndex) Page(ctx context.Context, from, to time.Time, page int) ([]IndexDocument, error) {
	if page < 1 {
		return nil, fmt.Errorf("page %d: pages are numbered from 1", page)
	}
	resp, err := s.query(ctx, from, to, (page-1)*s.pageSize, s.pageSize, IndexFields)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", page, err)
	}
	docs := make([]IndexDocument, 0, len(resp.Result.Docs))
	for _, d := range resp.Result.Docs {
		docs = append(docs, d.document())
	}
	return docs, nil
}

// pageSort orders a window by upload time, then by the unique key, so that
// start/rows pages neither overlap nor skip documents.
const pageSort = "dateUploaded asc,id asc"

func (s *SolrIndex) query(ctx context.Context, from, to time.Time, start, rows int, fields []string) (*solrResponse, error) {
	params := url.Values{}
	params.Set("q", SinceQuery(from, to))
	params.Set("fq", "formatType:METADATA")
	params.Set("start", strconv.Itoa(start))
	params.Set("rows", strconv.Itoa(rows))
	if rows > 0 {
		params.Set("sort", pageSort)
	}
	if len(fields) > 0 {
		params.Set("fl", strings.Join(fields, ","))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/xml")

	res, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("solr: status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var out solrResponse
	if err := xml.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("solr: decode response: %w", err)
	}
	return &out, nil
}

type solrResponse struct {
	Result struct {
		NumFound int       `xml:"numFound,attr"`
		Docs     []solrDoc `xml:"doc"`
	} `xml:"result"`
}

type solrDoc struct {
	Fields []solrField `xml:",any"`
}

// solrField is a typed Solr field (<str>, <date>, <float>, ...) or an <arr>
// of them.
type solrField struct {
	XMLName xml.Name
	Name    string      `xml:"name,attr"`
	Value   string      `xml:",chardata"`
	Items   []solrField `xml:",any"`
}

func (d solrDoc) document() IndexDocument {
	doc := make(IndexDocument, len(d.Fields))
	for _, f := range d.Fields {
		if f.XMLName.Local == "arr" {
			for _, item := range f.Items {
				doc[f.Name] = append(doc[f.Name], strings.TrimSpace(item.Value))
			}
			continue
		}
		doc[f.Name] = append(doc[f.Name], strings.TrimSpace(f.Value))
	}
	return doc
}
