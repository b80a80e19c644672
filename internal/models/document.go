// Package models defines core data structures for documents, search results, and cluster health.
package models

// Document represents a stored document with its embedding and metadata.
// Writes are full replacements keyed by ID; there is no partial update.
type Document struct {
	ID        string                 `json:"id"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Embedding []float32              `json:"embedding"`
}

// DocumentInput is the input for indexing a document. The embedding is
// generated server-side; an empty ID gets a generated UUID.
type DocumentInput struct {
	ID       string                 `json:"id,omitempty"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
