// Package namespace holds the prefix-to-IRI table of one repository.
//
// A Registry is first-writer-wins: once a prefix is bound it is never
// rebound. Attempts to bind a prefix to a different IRI are recorded as
// conflicts and surfaced as warnings; the existing binding stays in force and
// is the one rendered into query headers.
package namespace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/d1lod/internal/ir"
	"github.com/roach88/d1lod/internal/vocab"
)

// ErrUnknownPrefix is returned for prefixes that are neither bound nor part
// of the default vocabulary.
var ErrUnknownPrefix = errors.New("unknown namespace prefix")

// Binding is a single prefix -> IRI pair.
type Binding struct {
	Prefix string `json:"prefix"`
	URI    string `json:"uri"`
}

// Conflict records a rejected attempt to rebind a prefix.
type Conflict struct {
	Prefix   string `json:"prefix"`
	Existing string `json:"existing"`
	Desired  string `json:"desired"`
}

func (c Conflict) String() string {
	return fmt.Sprintf("prefix %q bound to %s, wanted %s", c.Prefix, c.Existing, c.Desired)
}

// Remote is the namespace table of a repository.
type Remote interface {
	Namespaces(ctx context.Context) (map[string]string, error)
	AddNamespace(ctx context.Context, prefix, uri string) error
}

// Registry is a concurrency-safe, append-only namespace table.
type Registry struct {
	mu        sync.RWMutex
	bindings  map[string]string
	pending   map[string]string
	conflicts []Conflict
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		bindings: make(map[string]string),
		pending:  make(map[string]string),
	}
}

// Bind binds prefix to uri unless the prefix is already bound. Rebinding to
// the same IRI is a no-op; rebinding to a different IRI returns the conflict
// and reports true.
func (r *Registry) Bind(prefix, uri string) (Conflict, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bindLocked(prefix, uri)
}

func (r *Registry) bindLocked(prefix, uri string) (Conflict, bool) {
	existing, ok := r.bindings[prefix]
	if !ok {
		r.bindings[prefix] = uri
		return Conflict{}, false
	}
	if existing == uri {
		return Conflict{}, false
	}
	c := Conflict{Prefix: prefix, Existing: existing, Desired: uri}
	r.conflicts = append(r.conflicts, c)
	return c, true
}

// Lookup returns the IRI bound to prefix.
func (r *Registry) Lookup(prefix string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	uri, ok := r.bindings[prefix]
	return uri, ok
}

// Bindings returns every binding sorted by prefix.
func (r *Registry) Bindings() []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedBindings(r.bindings)
}

// Conflicts returns every conflict recorded so far, in the order seen.
func (r *Registry) Conflicts() []Conflict {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.conflicts)
}

// Header renders the PREFIX lines for every binding, sorted by prefix.
func (r *Registry) Header() string {
	var b strings.Builder
	for _, bd := range r.Bindings() {
		fmt.Fprintf(&b, "PREFIX %s:<%s>\n", bd.Prefix, bd.URI)
	}
	return b.String()
}

// Expand resolves a prefixed name to its full IRI.
func (r *Registry) Expand(q ir.QName) (ir.IRI, error) {
	uri, ok := r.Lookup(q.Prefix())
	if !ok {
		return "", fmt.Errorf("expand %s: %w", q, ErrUnknownPrefix)
	}
	return ir.IRI(uri + q.Local()), nil
}

// Require makes sure every prefix is bound, taking missing bindings from the
// default vocabulary. Newly bound prefixes are queued for remote
// registration; see Flush.
func (r *Registry) Require(prefixes ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range prefixes {
		if _, ok := r.bindings[p]; ok {
			continue
		}
		uri, ok := vocab.Lookup(p)
		if !ok {
			return fmt.Errorf("require %q: %w", p, ErrUnknownPrefix)
		}
		r.bindings[p] = uri
		r.pending[p] = uri
	}
	return nil
}

// Pending returns the bindings awaiting remote registration.
func (r *Registry) Pending() []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedBindings(r.pending)
}

// Flush registers pending bindings with the remote table. Bindings that
// fail stay pending; their errors are joined into the result.
func (r *Registry) Flush(ctx context.Context, remote Remote) error {
	var errs []error
	for _, b := range r.Pending() {
		if err := remote.AddNamespace(ctx, b.Prefix, b.URI); err != nil {
			errs = append(errs, fmt.Errorf("register %s: %w", b.Prefix, err))
			continue
		}
		r.mu.Lock()
		delete(r.pending, b.Prefix)
		r.mu.Unlock()
	}
	return errors.Join(errs...)
}

// Sync reconciles the registry with the remote table. Every remote binding is
// adopted; desired bindings missing remotely are registered; desired bindings
// that disagree with the remote one are returned as conflicts and the remote
// binding is kept. Only a failure to read the remote table is an error.
func (r *Registry) Sync(ctx context.Context, remote Remote, desired map[string]string) ([]Conflict, error) {
	existing, err := remote.Namespaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("read remote namespaces: %w", err)
	}

	var conflicts []Conflict
	r.mu.Lock()
	for _, p := range slices.Sorted(maps.Keys(existing)) {
		if c, ok := r.bindLocked(p, existing[p]); ok {
			conflicts = append(conflicts, c)
		}
	}
	r.mu.Unlock()

	for _, p := range slices.Sorted(maps.Keys(desired)) {
		uri := desired[p]
		if have, ok := existing[p]; ok {
			if c, ok := r.Bind(p, uri); ok && have != uri {
				conflicts = append(conflicts, c)
			}
			continue
		}
		if c, ok := r.Bind(p, uri); ok {
			conflicts = append(conflicts, c)
			continue
		}
		if err := remote.AddNamespace(ctx, p, uri); err != nil {
			slog.Warn("namespace registration failed", "prefix", p, "uri", uri, "error", err)
			r.mu.Lock()
			r.pending[p] = uri
			r.mu.Unlock()
		}
	}
	return conflicts, nil
}

func sortedBindings(m map[string]string) []Binding {
	out := make([]Binding, 0, len(m))
	for _, p := range slices.Sorted(maps.Keys(m)) {
		out = append(out, Binding{Prefix: p, URI: m[p]})
	}
	return out
}
