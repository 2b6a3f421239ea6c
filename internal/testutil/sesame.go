package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/roach88/d1lod/internal/ir"
)

// Default deployment paths of the Sesame server and workbench.
const (
	SesamePath    = "/openrdf-sesame"
	WorkbenchPath = "/openrdf-workbench"
)

// Op names a class of request the fake server answers.
type Op string

const (
	OpList       Op = "list"
	OpCreate     Op = "create"
	OpSize       Op = "size"
	OpNamespaces Op = "namespaces"
	OpNamespace  Op = "namespace"
	OpExport     Op = "export"
	OpStatements Op = "statements"
	OpQuery      Op = "query"
	OpUpdate     Op = "update"
)

type fakeRepo struct {
	triples    map[ir.Triple]struct{}
	namespaces map[string]string
}

type failure struct {
	status int
	body   string
	count  int // <0: forever
}

// FakeSesame is an in-memory Sesame server speaking the REST protocol and
// evaluating the SPARQL fragment d1lod emits. It is safe for concurrent use.
type FakeSesame struct {
	srv *httptest.Server

	mu       sync.Mutex
	repos    map[string]*fakeRepo
	failures map[Op]*failure
	counts   map[Op]int
	latency  time.Duration
	opDelay  map[Op]time.Duration
	queries  []string
	updates  []string
}

// NewFakeSesame starts a fake server, closed when the test ends.
func NewFakeSesame(t testing.TB) *FakeSesame {
	t.Helper()
	f := &FakeSesame{
		repos:    make(map[string]*fakeRepo),
		failures: make(map[Op]*failure),
		counts:   make(map[Op]int),
		opDelay:  make(map[Op]time.Duration),
	}
	f.srv = httptest.NewServer(f.routes())
	t.Cleanup(f.srv.Close)
	return f
}

// URL returns the base URL, e.g. "http://127.0.0.1:41234".
func (f *FakeSesame) URL() string { return f.srv.URL }

// Host returns the listening host.
func (f *FakeSesame) Host() string {
	host, _, _ := net.SplitHostPort(f.srv.Listener.Addr().String())
	return host
}

// Port returns the listening port.
func (f *FakeSesame) Port() int {
	_, port, _ := net.SplitHostPort(f.srv.Listener.Addr().String())
	n, _ := strconv.Atoi(port)
	return n
}

// AddRepository creates an empty repository.
func (f *FakeSesame) AddRepository(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addLocked(name)
}

func (f *FakeSesame) addLocked(name string) *fakeRepo {
	if r, ok := f.repos[name]; ok {
		return r
	}
	r := &fakeRepo{triples: make(map[ir.Triple]struct{}), namespaces: make(map[string]string)}
	f.repos[name] = r
	return r
}

// HasRepository reports whether the repository exists.
func (f *FakeSesame) HasRepository(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.repos[name]
	return ok
}

// Seed adds statements to a repository, creating it if needed. QNames are
// not accepted; terms must be fully expanded.
func (f *FakeSesame) Seed(name string, triples ...ir.Triple) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.addLocked(name)
	for _, t := range triples {
		r.triples[t] = struct{}{}
	}
}

// SetNamespace binds a prefix in a repository's namespace table.
func (f *FakeSesame) SetNamespace(name, prefix, uri string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addLocked(name).namespaces[prefix] = uri
}

// Namespaces returns a copy of a repository's namespace table.
func (f *FakeSesame) Namespaces(name string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string)
	if r, ok := f.repos[name]; ok {
		for k, v := range r.namespaces {
			out[k] = v
		}
	}
	return out
}

// Triples returns a repository's statements sorted by their N-Triples form.
func (f *FakeSesame) Triples(name string) []ir.Triple {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.repos[name]
	if !ok {
		return nil
	}
	return r.sorted()
}

// Size returns the number of statements in a repository.
func (f *FakeSesame) Size(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.repos[name]; ok {
		return len(r.triples)
	}
	return 0
}

// Subjects returns the distinct subjects of statements matching predicate
// and object. A nil object matches anything.
func (f *FakeSesame) Subjects(name string, predicate ir.IRI, object ir.Term) []ir.Term {
	var out []ir.Term
	for _, t := range f.Triples(name) {
		if t.Predicate != predicate || (object != nil && t.Object != object) {
			continue
		}
		if !slices.Contains(out, t.Subject) {
			out = append(out, t.Subject)
		}
	}
	return out
}

// Fail makes the next count requests of op fail with status and body.
// A negative count fails every request until ClearFailures.
func (f *FakeSesame) Fail(op Op, status int, body string, count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = &failure{status: status, body: body, count: count}
}

// ClearFailures removes every injected failure.
func (f *FakeSesame) ClearFailures() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = make(map[Op]*failure)
}

// SetLatency delays every response.
func (f *FakeSesame) SetLatency(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latency = d
}

// SetOpLatency delays responses to op only, overriding SetLatency.
func (f *FakeSesame) SetOpLatency(op Op, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opDelay[op] = d
}

// Count returns how many requests of op were received.
func (f *FakeSesame) Count(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[op]
}

// Updates returns the text of every SPARQL update received, in order.
func (f *FakeSesame) Updates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.updates)
}

// Queries returns the text of every SPARQL query received, in order.
func (f *FakeSesame) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.queries)
}

func (r *fakeRepo) sorted() []ir.Triple {
	out := make([]ir.Triple, 0, len(r.triples))
	for t := range r.triples {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b ir.Triple) int {
		return strings.Compare(ntriple(a), ntriple(b))
	})
	return out
}

func (f *FakeSesame) routes() http.Handler {
	mux := http.NewServeMux()
	s, w := SesamePath+"/repositories", WorkbenchPath+"/repositories"

	mux.HandleFunc("GET "+s, f.handleList)
	mux.HandleFunc("POST "+w+"/NONE/create", f.handleCreate)
	mux.HandleFunc("GET "+s+"/{repo}/size", f.handleSize)
	mux.HandleFunc("GET "+s+"/{repo}/namespaces", f.handleNamespaces)
	mux.HandleFunc("DELETE "+s+"/{repo}/namespaces", f.handleClearNamespaces)
	mux.HandleFunc("GET "+s+"/{repo}/namespaces/{prefix}", f.handleGetNamespace)
	mux.HandleFunc("PUT "+s+"/{repo}/namespaces/{prefix}", f.handlePutNamespace)
	mux.HandleFunc("DELETE "+s+"/{repo}/namespaces/{prefix}", f.handleDeleteNamespace)
	mux.HandleFunc("GET "+w+"/{repo}/export", f.handleExport)
	mux.HandleFunc("GET "+s+"/{repo}/statements", f.handleStatements)
	mux.HandleFunc("POST "+s+"/{repo}/statements", f.handleUpdate)
	mux.HandleFunc("POST "+s+"/{repo}", f.handleQuery)
	return mux
}

// begin counts the request, applies latency and injected failures. It
// reports false when the response has already been written.
func (f *FakeSesame) begin(w http.ResponseWriter, r *http.Request, op Op) bool {
	f.mu.Lock()
	f.counts[op]++
	latency := f.latency
	if d, ok := f.opDelay[op]; ok {
		latency = d
	}
	fail := f.failures[op]
	var status int
	var body string
	if fail != nil && fail.count != 0 {
		status, body = fail.status, fail.body
		if fail.count > 0 {
			fail.count--
		}
	}
	f.mu.Unlock()

	if latency > 0 {
		if err := sleepCtx(r.Context(), latency); err != nil {
			return false
		}
	}
	if status != 0 {
		http.Error(w, body, status)
		return false
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// repo looks up the path repository, writing the unknown-repository
// response when it does not exist. Callers must hold f.mu.
func (f *FakeSesame) repoLocked(w http.ResponseWriter, r *http.Request) *fakeRepo {
	name := r.PathValue("repo")
	repo, ok := f.repos[name]
	if !ok {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, "Unknown repository: %s", name)
		return nil
	}
	return repo
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/sparql-results+json")
	_ = json.NewEncoder(w).Encode(v)
}

type jsonValue struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype,omitempty"`
	Lang     string `json:"xml:lang,omitempty"`
}

type jsonResults struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []map[string]jsonValue `json:"bindings"`
	} `json:"results"`
}

func toJSONValue(t ir.Term) jsonValue {
	switch v := t.(type) {
	case ir.IRI:
		return jsonValue{Type: "uri", Value: string(v)}
	case ir.BlankNode:
		return jsonValue{Type: "bnode", Value: string(v)}
	case ir.Literal:
		jv := jsonValue{Type: "literal", Value: v.Lexical, Lang: v.Lang}
		if v.Datatype != nil {
			jv.Type = "typed-literal"
			jv.Datatype = v.Datatype.Value()
		}
		return jv
	default:
		return jsonValue{Type: "literal", Value: t.Value()}
	}
}

func (f *FakeSesame) handleList(w http.ResponseWriter, r *http.Request) {
	if !f.begin(w, r, OpList) {
		return
	}
	f.mu.Lock()
	var res jsonResults
	res.Head.Vars = []string{"uri", "id", "title", "readable", "writable"}
	res.Results.Bindings = []map[string]jsonValue{}
	names := make([]string, 0, len(f.repos))
	for name := range f.repos {
		names = append(names, name)
	}
	f.mu.Unlock()
	slices.Sort(names)
	for _, name := range names {
		res.Results.Bindings = append(res.Results.Bindings, map[string]jsonValue{
			"uri":      {Type: "uri", Value: f.srv.URL + SesamePath + "/repositories/" + name},
			"id":       {Type: "literal", Value: name},
			"title":    {Type: "literal", Value: name},
			"readable": {Type: "literal", Value: "true"},
			"writable": {Type: "literal", Value: "true"},
		})
	}
	writeJSON(w, res)
}

func (f *FakeSesame) handleCreate(w http.ResponseWriter, r *http.Request) {
	if !f.begin(w, r, OpCreate) {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	name := r.PostForm.Get("Repository ID")
	if name == "" || r.PostForm.Get("type") != "native" {
		http.Error(w, "missing repository id or type", http.StatusBadRequest)
		return
	}
	f.AddRepository(name)
	w.Header().Set("Location", WorkbenchPath+"/repositories/"+name+"/summary")
	w.WriteHeader(http.StatusOK)
}

func (f *FakeSesame) handleSize(w http.ResponseWriter, r *http.Request) {
	if !f.begin(w, r, OpSize) {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	repo := f.repoLocked(w, r)
	if repo == nil {
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "%d", len(repo.triples))
}

func (f *FakeSesame) handleNamespaces(w http.ResponseWriter, r *http.Request) {
	if !f.begin(w, r, OpNamespaces) {
		return
	}
	f.mu.Lock()
	repo := f.repoLocked(w, r)
	if repo == nil {
		f.mu.Unlock()
		return
	}
	prefixes := make([]string, 0, len(repo.namespaces))
	for p := range repo.namespaces {
		prefixes = append(prefixes, p)
	}
	slices.Sort(prefixes)
	var res jsonResults
	res.Head.Vars = []string{"prefix", "namespace"}
	res.Results.Bindings = []map[string]jsonValue{}
	for _, p := range prefixes {
		res.Results.Bindings = append(res.Results.Bindings, map[string]jsonValue{
			"prefix":    {Type: "literal", Value: p},
			"namespace": {Type: "literal", Value: repo.namespaces[p]},
		})
	}
	f.mu.Unlock()
	writeJSON(w, res)
}

func (f *FakeSesame) handleClearNamespaces(w http.ResponseWriter, r *http.Request) {
	if !f.begin(w, r, OpNamespaces) {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	repo := f.repoLocked(w, r)
	if repo == nil {
		return
	}
	repo.namespaces = make(map[string]string)
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeSesame) handleGetNamespace(w http.ResponseWriter, r *http.Request) {
	if !f.begin(w, r, OpNamespace) {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	repo := f.repoLocked(w, r)
	if repo == nil {
		return
	}
	uri, ok := repo.namespaces[r.PathValue("prefix")]
	if !ok {
		http.Error(w, "Undefined prefix: "+r.PathValue("prefix"), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, uri)
}

func (f *FakeSesame) handlePutNamespace(w http.ResponseWriter, r *http.Request) {
	if !f.begin(w, r, OpNamespace) {
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil || len(strings.TrimSpace(string(body))) == 0 {
		http.Error(w, "missing namespace", http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	repo := f.repoLocked(w, r)
	if repo == nil {
		return
	}
	repo.namespaces[r.PathValue("prefix")] = strings.TrimSpace(string(body))
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeSesame) handleDeleteNamespace(w http.ResponseWriter, r *http.Request) {
	if !f.begin(w, r, OpNamespace) {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	repo := f.repoLocked(w, r)
	if repo == nil {
		return
	}
	delete(repo.namespaces, r.PathValue("prefix"))
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeSesame) handleExport(w http.ResponseWriter, r *http.Request) {
	if !f.begin(w, r, OpExport) {
		return
	}
	f.writeStatements(w, r, "text/turtle")
}

func (f *FakeSesame) handleStatements(w http.ResponseWriter, r *http.Request) {
	if !f.begin(w, r, OpStatements) {
		return
	}
	f.writeStatements(w, r, "application/n-triples")
}

func (f *FakeSesame) writeStatements(w http.ResponseWriter, r *http.Request, contentType string) {
	f.mu.Lock()
	repo := f.repoLocked(w, r)
	if repo == nil {
		f.mu.Unlock()
		return
	}
	triples := repo.sorted()
	f.mu.Unlock()

	w.Header().Set("Content-Type", contentType)
	for _, t := range triples {
		io.WriteString(w, ntriple(t)+"\n")
	}
}

func (f *FakeSesame) handleQuery(w http.ResponseWriter, r *http.Request) {
	if !f.begin(w, r, OpQuery) {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	text := r.PostForm.Get("query")
	f.mu.Lock()
	f.queries = append(f.queries, text)
	repo := f.repoLocked(w, r)
	if repo == nil {
		f.mu.Unlock()
		return
	}
	op, err := parseOperation(text)
	if err == nil && op.kind != "select" {
		err = fmt.Errorf("not a query")
	}
	if err != nil {
		f.mu.Unlock()
		http.Error(w, "MALFORMED QUERY: "+err.Error(), http.StatusBadRequest)
		return
	}
	rows := solve(op.where, repo.sorted())
	f.mu.Unlock()

	vars := op.vars
	if len(vars) == 0 {
		vars = patternVars(op.where)
	}
	var res jsonResults
	res.Head.Vars = vars
	res.Results.Bindings = []map[string]jsonValue{}
	for _, row := range rows {
		b := make(map[string]jsonValue)
		for _, v := range vars {
			if t, ok := row[v]; ok {
				b[v] = toJSONValue(t)
			}
		}
		res.Results.Bindings = append(res.Results.Bindings, b)
	}
	writeJSON(w, res)
}

func (f *FakeSesame) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if !f.begin(w, r, OpUpdate) {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	text := r.PostForm.Get("update")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, text)
	repo := f.repoLocked(w, r)
	if repo == nil {
		return
	}
	op, err := parseOperation(text)
	if err == nil && op.kind == "select" {
		err = fmt.Errorf("not an update")
	}
	if err != nil {
		http.Error(w, "MALFORMED QUERY: "+err.Error(), http.StatusBadRequest)
		return
	}
	switch op.kind {
	case "insert":
		for _, t := range op.template {
			repo.triples[t] = struct{}{}
		}
	case "delete":
		for _, row := range solve(op.where, repo.sorted()) {
			for _, t := range op.template {
				if g, ok := instantiate(t, row); ok {
					delete(repo.triples, g)
				}
			}
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func patternVars(patterns []ir.Triple) []string {
	var vars []string
	for _, t := range patterns {
		for _, term := range []ir.Term{t.Subject, t.Predicate, t.Object} {
			if v, ok := term.(ir.Var); ok && !slices.Contains(vars, string(v)) {
				vars = append(vars, string(v))
			}
		}
	}
	return vars
}
