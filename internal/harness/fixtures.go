package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/d1lod/internal/graph"
	"github.com/roach88/d1lod/internal/ir"
)

// LoadDocuments reads a YAML list of documents, rejecting unknown fields.
func LoadDocuments(path string) ([]graph.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read documents file: %w", err)
	}
	return ParseDocuments(data)
}

// ParseDocuments decodes a YAML list of documents. Every document needs a
// dataset record and an identifier, given directly or on the dataset.
func ParseDocuments(data []byte) ([]graph.Document, error) {
	var docs []graph.Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&docs); err != nil {
		return nil, fmt.Errorf("failed to parse documents YAML: %w", err)
	}
	for i, doc := range docs {
		if doc.Identifier == "" && doc.Dataset.Get(ir.AttrIdentifier) == "" {
			return nil, fmt.Errorf("documents[%d]: identifier is required", i)
		}
		if doc.Dataset.Kind != ir.KindDataset {
			return nil, fmt.Errorf("documents[%d]: dataset record is required", i)
		}
	}
	return docs, nil
}
