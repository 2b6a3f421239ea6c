package store

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func TestPutDocument_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(fixedClock(now))

	doc := Document{
		Identifier: "doi:10.5063/F1Q81B6M",
		FormatID:   "eml://ecoinformatics.org/eml-2.1.1",
		Content:    []byte("<eml:eml/>"),
	}
	if err := s.PutDocument(ctx, doc); err != nil {
		t.Fatalf("PutDocument() failed: %v", err)
	}

	got, err := s.GetDocument(ctx, doc.Identifier)
	if err != nil {
		t.Fatalf("GetDocument() failed: %v", err)
	}
	if got.Identifier != doc.Identifier || got.FormatID != doc.FormatID {
		t.Errorf("got %+v, want %+v", got, doc)
	}
	if !bytes.Equal(got.Content, doc.Content) {
		t.Errorf("Content = %q, want %q", got.Content, doc.Content)
	}
	if !got.FetchedAt.Equal(now) {
		t.Errorf("FetchedAt = %v, want %v", got.FetchedAt, now)
	}
}

func TestPutDocument_ReplacesEarlierCopy(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := Document{Identifier: "urn:uuid:1", Content: []byte("v1"), FetchedAt: time.Unix(100, 0)}
	second := Document{Identifier: "urn:uuid:1", Content: []byte("v2"), FetchedAt: time.Unix(200, 0)}
	if err := s.PutDocument(ctx, first); err != nil {
		t.Fatalf("first PutDocument() failed: %v", err)
	}
	if err := s.PutDocument(ctx, second); err != nil {
		t.Fatalf("second PutDocument() failed: %v", err)
	}

	got, err := s.GetDocument(ctx, "urn:uuid:1")
	if err != nil {
		t.Fatalf("GetDocument() failed: %v", err)
	}
	if string(got.Content) != "v2" {
		t.Errorf("Content = %q, want v2", got.Content)
	}
	if !got.FetchedAt.Equal(time.Unix(200, 0)) {
		t.Errorf("FetchedAt = %v, want %v", got.FetchedAt, time.Unix(200, 0))
	}

	n, err := s.CountDocuments(ctx)
	if err != nil {
		t.Fatalf("CountDocuments() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("CountDocuments() = %d, want 1", n)
	}
}

func TestPutDocument_EmptyIdentifier(t *testing.T) {
	s := createTestStore(t)
	if err := s.PutDocument(context.Background(), Document{}); err == nil {
		t.Error("PutDocument() should reject an empty identifier")
	}
}

func TestGetDocument_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.GetDocument(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDocument() error = %v, want ErrNotFound", err)
	}
}

func TestHasDocument(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	has, err := s.HasDocument(ctx, "a")
	if err != nil {
		t.Fatalf("HasDocument() failed: %v", err)
	}
	if has {
		t.Error("HasDocument() = true before put")
	}

	if err := s.PutDocument(ctx, Document{Identifier: "a"}); err != nil {
		t.Fatalf("PutDocument() failed: %v", err)
	}
	has, err = s.HasDocument(ctx, "a")
	if err != nil {
		t.Fatalf("HasDocument() failed: %v", err)
	}
	if !has {
		t.Error("HasDocument() = false after put")
	}
}
