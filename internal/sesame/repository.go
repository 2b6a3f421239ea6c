package sesame

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/d1lod/internal/ir"
	"github.com/roach88/d1lod/internal/namespace"
	"github.com/roach88/d1lod/internal/sparql"
	"github.com/roach88/d1lod/internal/vocab"
)

// Handle identifies a repository on a server.
type Handle struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Name string `json:"name"`
}

func (h Handle) String() string {
	return h.Host + ":" + strconv.Itoa(h.Port) + "/" + h.Name
}

// Repository is a client bound to one repository.
type Repository struct {
	srv     *Server
	name    string
	ns      *namespace.Registry
	builder *sparql.Builder
}

// Handle returns the repository's identity.
func (r *Repository) Handle() Handle {
	return Handle{Host: r.srv.host, Port: r.srv.port, Name: r.name}
}

// Name returns the repository name.
func (r *Repository) Name() string { return r.name }

// Registry returns the namespace table used to render queries.
func (r *Repository) Registry() *namespace.Registry { return r.ns }

// Exists reports whether the repository is listed on the server. Any
// failure to list counts as absent.
func (r *Repository) Exists(ctx context.Context) bool {
	ids, err := r.srv.Repositories(ctx)
	if err != nil {
		slog.Warn("listing repositories failed", "repository", r.name, "error", err)
		return false
	}
	return slices.Contains(ids, r.name)
}

// Create provisions the repository unless it already exists.
func (r *Repository) Create(ctx context.Context) error {
	if r.Exists(ctx) {
		return nil
	}
	if err := r.srv.CreateRepository(ctx, r.name); err != nil {
		return err
	}
	if !r.Exists(ctx) {
		return fmt.Errorf("create repository %s: not listed after creation", r.name)
	}
	return nil
}

// Size returns the number of statements, or -1 if the repository does not
// exist.
func (r *Repository) Size(ctx context.Context) (int64, error) {
	resp, err := r.srv.do(ctx, "size", http.MethodGet, r.srv.sesameURL("repositories", r.name, "size"), "text/plain", nil, "")
	if err != nil {
		return 0, err
	}
	if resp.unknownRepository() {
		return -1, nil
	}
	if resp.code != http.StatusOK {
		return 0, resp.statusError()
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(resp.body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("size: %w", err)
	}
	return n, nil
}

// Namespaces returns the remote namespace table, empty if the repository
// does not exist.
func (r *Repository) Namespaces(ctx context.Context) (map[string]string, error) {
	resp, err := r.srv.do(ctx, "namespaces", http.MethodGet, r.srv.sesameURL("repositories", r.name, "namespaces"),
		sparql.ResultsMediaType, nil, "")
	if err != nil {
		return nil, err
	}
	if resp.unknownRepository() {
		return map[string]string{}, nil
	}
	if resp.code != http.StatusOK {
		return nil, resp.statusError()
	}
	rows, err := sparql.ParseResults(resp.body)
	if err != nil {
		return nil, fmt.Errorf("namespaces: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		p, okP := row["prefix"]
		ns, okN := row["namespace"]
		if okP && okN {
			out[p.Value()] = ns.Value()
		}
	}
	return out, nil
}

// GetNamespace returns the IRI the remote table binds to prefix.
func (r *Repository) GetNamespace(ctx context.Context, prefix string) (string, error) {
	resp, err := r.srv.do(ctx, "get namespace", http.MethodGet,
		r.srv.sesameURL("repositories", r.name, "namespaces", prefix), "text/plain", nil, "")
	if err != nil {
		return "", err
	}
	if resp.code != http.StatusOK {
		return "", resp.statusError()
	}
	return strings.TrimSpace(string(resp.body)), nil
}

// AddNamespace binds prefix to uri in the remote table.
func (r *Repository) AddNamespace(ctx context.Context, prefix, uri string) error {
	resp, err := r.srv.do(ctx, "add namespace", http.MethodPut,
		r.srv.sesameURL("repositories", r.name, "namespaces", prefix), "", strings.NewReader(uri), "text/plain")
	if err != nil {
		return err
	}
	if resp.code != http.StatusNoContent {
		return resp.statusError()
	}
	return nil
}

// RemoveNamespaces clears the remote namespace table.
func (r *Repository) RemoveNamespaces(ctx context.Context) error {
	resp, err := r.srv.do(ctx, "remove namespaces", http.MethodDelete,
		r.srv.sesameURL("repositories", r.name, "namespaces"), "", nil, "")
	if err != nil {
		return err
	}
	if resp.code != http.StatusNoContent && resp.code != http.StatusOK {
		return resp.statusError()
	}
	return nil
}

// Export dumps the repository. Only "turtle" is supported.
func (r *Repository) Export(ctx context.Context, format string) ([]byte, error) {
	if format != "turtle" {
		return nil, fmt.Errorf("export %q: %w", format, ErrUnsupportedFormat)
	}
	resp, err := r.srv.do(ctx, "export", http.MethodGet, r.srv.workbenchURL("repositories", r.name, "export"),
		"text/turtle", nil, "")
	if err != nil {
		return nil, err
	}
	if resp.code != http.StatusOK {
		return nil, resp.statusError()
	}
	return resp.body, nil
}

// Statements returns the raw, non-inferred statement listing.
func (r *Repository) Statements(ctx context.Context) ([]byte, error) {
	u := r.srv.sesameURL("repositories", r.name, "statements") + "?" + url.Values{"infer": {"false"}}.Encode()
	resp, err := r.srv.do(ctx, "statements", http.MethodGet, u, "application/n-triples", nil, "")
	if err != nil {
		return nil, err
	}
	if resp.code != http.StatusOK {
		return nil, resp.statusError()
	}
	return resp.body, nil
}

// Query runs a SELECT and returns its rows. Every failure is an error.
func (r *Repository) Query(ctx context.Context, text string) ([]ir.Row, error) {
	form := url.Values{"query": {text}}
	resp, err := r.srv.do(ctx, "query", http.MethodPost, r.srv.sesameURL("repositories", r.name),
		sparql.ResultsMediaType, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return nil, err
	}
	if resp.code != http.StatusOK {
		return nil, resp.statusError()
	}
	rows, err := sparql.ParseResults(resp.body)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", r.name, err)
	}
	return rows, nil
}

// Update runs a SPARQL update. Only 204 No Content is success.
func (r *Repository) Update(ctx context.Context, text string) error {
	form := url.Values{"update": {text}}
	resp, err := r.srv.do(ctx, "update", http.MethodPost, r.srv.sesameURL("repositories", r.name, "statements"),
		"", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return err
	}
	if resp.code != http.StatusNoContent {
		return resp.statusError()
	}
	return nil
}

// InsertTriples writes ground triples in a single INSERT DATA. Prefixes the
// triples use are bound from the default vocabulary when missing.
func (r *Repository) InsertTriples(ctx context.Context, triples []ir.Triple) error {
	if err := r.ns.Require(vocab.UsedPrefixes(triples)...); err != nil {
		return err
	}
	text, err := r.builder.InsertData(triples)
	if err != nil {
		return err
	}
	return r.Update(ctx, text)
}

// Insert writes one statement.
func (r *Repository) Insert(ctx context.Context, s, p, o ir.Term) error {
	return r.InsertTriples(ctx, []ir.Triple{ir.T(s, p, o)})
}

// Delete removes every statement matching the pattern.
func (r *Repository) Delete(ctx context.Context, s, p, o ir.Term) error {
	patterns := []ir.Triple{ir.T(s, p, o)}
	if err := r.ns.Require(vocab.UsedPrefixes(patterns)...); err != nil {
		return err
	}
	text, err := r.builder.DeleteWhere(patterns)
	if err != nil {
		return err
	}
	return r.Update(ctx, text)
}

// Find returns the solutions of a single triple pattern.
func (r *Repository) Find(ctx context.Context, s, p, o ir.Term) ([]ir.Row, error) {
	return r.FindPatterns(ctx, ir.T(s, p, o))
}

// FindPatterns returns the solutions of a conjunction of triple patterns.
func (r *Repository) FindPatterns(ctx context.Context, patterns ...ir.Triple) ([]ir.Row, error) {
	if err := r.ns.Require(vocab.UsedPrefixes(patterns)...); err != nil {
		return nil, err
	}
	text, err := r.builder.Select(patterns)
	if err != nil {
		return nil, err
	}
	return r.Query(ctx, text)
}

// All returns every statement as rows binding s, p and o.
func (r *Repository) All(ctx context.Context) ([]ir.Row, error) {
	return r.Find(ctx, ir.Var("s"), ir.Var("p"), ir.Var("o"))
}

// Clear deletes every statement.
func (r *Repository) Clear(ctx context.Context) error {
	return r.Delete(ctx, ir.Var("s"), ir.Var("p"), ir.Var("o"))
}

// SyncNamespaces reconciles the namespace table with the remote one; see
// namespace.Registry.Sync.
func (r *Repository) SyncNamespaces(ctx context.Context, desired map[string]string) ([]namespace.Conflict, error) {
	conflicts, err := r.ns.Sync(ctx, r, desired)
	if err != nil {
		return nil, fmt.Errorf("sync namespaces of %s: %w", r.name, err)
	}
	for _, c := range conflicts {
		slog.Warn("namespace conflict", "repository", r.name, "prefix", c.Prefix, "existing", c.Existing, "desired", c.Desired)
	}
	return conflicts, nil
}

// FlushNamespaces registers prefixes bound since the last sync.
func (r *Repository) FlushNamespaces(ctx context.Context) error {
	return r.ns.Flush(ctx, r)
}
