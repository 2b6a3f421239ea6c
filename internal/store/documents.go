package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/d1lod/internal/ir"
)

// Document is a cached science-metadata document.
type Document struct {
	Identifier string
	FormatID   string
	Content    []byte
	FetchedAt  time.Time
}

// PutDocument caches a document, replacing any earlier copy with the same
// identifier. A zero FetchedAt is filled from the store clock.
func (s *Store) PutDocument(ctx context.Context, doc Document) error {
	if doc.Identifier == "" {
		return fmt.Errorf("put document: empty identifier")
	}
	fetched := s.timestamp()
	if !doc.FetchedAt.IsZero() {
		fetched = formatTime(doc.FetchedAt)
	}
	content := doc.Content
	if content == nil {
		content = []byte{}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, identifier, format_id, content, fetched_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			format_id = excluded.format_id,
			content = excluded.content,
			fetched_at = excluded.fetched_at
	`,
		ir.ContentID(doc.Identifier),
		doc.Identifier,
		doc.FormatID,
		content,
		fetched,
	)
	if err != nil {
		return fmt.Errorf("put document %q: %w", doc.Identifier, err)
	}
	return nil
}

// GetDocument returns the cached document for an identifier.
// Returns ErrNotFound if it has never been cached.
func (s *Store) GetDocument(ctx context.Context, identifier string) (Document, error) {
	var (
		doc     Document
		fetched string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT identifier, format_id, content, fetched_at
		FROM documents
		WHERE id = ?
	`, ir.ContentID(identifier)).Scan(&doc.Identifier, &doc.FormatID, &doc.Content, &fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("get document %q: %w", identifier, ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document %q: %w", identifier, err)
	}
	if doc.FetchedAt, err = parseTime(fetched); err != nil {
		return Document{}, fmt.Errorf("get document %q: fetched_at: %w", identifier, err)
	}
	return doc, nil
}

// HasDocument reports whether a document is cached.
func (s *Store) HasDocument(ctx context.Context, identifier string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM documents WHERE id = ?)
	`, ir.ContentID(identifier)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has document %q: %w", identifier, err)
	}
	return exists, nil
}

// CountDocuments returns the number of cached documents.
func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}
