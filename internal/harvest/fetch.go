package harvest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/roach88/d1lod/internal/store"
)

// ErrNoMetadata is returned when a document's science metadata cannot be
// retrieved.
var ErrNoMetadata = errors.New("science metadata unavailable")

// Fetcher retrieves the science-metadata document of a dataset.
type Fetcher interface {
	Fetch(ctx context.Context, identifier, formatID string) ([]byte, error)
}

// DocumentCache is the local metadata document cache.
type DocumentCache interface {
	GetDocument(ctx context.Context, identifier string) (store.Document, error)
	PutDocument(ctx context.Context, doc store.Document) error
}

// ObjectFetcher fetches objects from a DataONE object endpoint, consulting
// the cache first and populating it on success.
type ObjectFetcher struct {
	baseURL string
	client  *http.Client
	cache   DocumentCache
}

// NewObjectFetcher creates a fetcher. cache may be nil to disable caching.
func NewObjectFetcher(baseURL string, client *http.Client, cache DocumentCache) *ObjectFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &ObjectFetcher{baseURL: baseURL, client: client, cache: cache}
}

// Fetch returns the science metadata for identifier.
// A cache read failure is logged and treated as a miss.
func (f *ObjectFetcher) Fetch(ctx context.Context, identifier, formatID string) ([]byte, error) {
	if f.cache != nil {
		doc, err := f.cache.GetDocument(ctx, identifier)
		switch {
		case err == nil:
			return doc.Content, nil
		case !errors.Is(err, store.ErrNotFound):
			slog.Warn("document cache read failed", "identifier", identifier, "error", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+url.PathEscape(identifier), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %q: %w", identifier, err)
	}
	res, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %q: %w: %v", identifier, ErrNoMetadata, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch %q: %w: %v", identifier, ErrNoMetadata, err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %q: %w: status %d", identifier, ErrNoMetadata, res.StatusCode)
	}

	if f.cache != nil {
		if err := f.cache.PutDocument(ctx, store.Document{Identifier: identifier, FormatID: formatID, Content: body}); err != nil {
			slog.Warn("document cache write failed", "identifier", identifier, "error", err)
		}
	}
	return body, nil
}
