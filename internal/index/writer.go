package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/hyperjump/kensaku/internal/models"
	"go.uber.org/zap"
)

// Writer persists documents with their embeddings into the index. Writes
// are idempotent by ID: re-storing replaces the prior document wholesale.
type Writer struct {
	es     *elasticsearch.Client
	index  string
	dims   int
	logger *zap.Logger
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithWriterLogger sets a logger for write events.
func WithWriterLogger(l *zap.Logger) WriterOption {
	return func(w *Writer) { w.logger = l }
}

// NewWriter creates a writer for the named index. dims is the embedding
// dimension every stored document must carry.
func NewWriter(es *elasticsearch.Client, indexName string, dims int, opts ...WriterOption) *Writer {
	w := &Writer{es: es, index: indexName, dims: dims, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// StoreDocument writes the document body (ID, content, embedding, metadata)
// as one atomic document. The embedding length is checked before any
// network call; a mismatch is a DimensionMismatchError.
func (w *Writer) StoreDocument(ctx context.Context, doc *models.Document) error {
	if len(doc.Embedding) != w.dims {
		return &DimensionMismatchError{Want: w.dims, Got: len(doc.Embedding)}
	}
	if doc.ID == "" {
		return fmt.Errorf("document ID must not be empty")
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document %s: %w", doc.ID, err)
	}

	res, err := w.es.Index(
		w.index,
		bytes.NewReader(body),
		w.es.Index.WithDocumentID(doc.ID),
		w.es.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("store document %s: %w", doc.ID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return fmt.Errorf("store document %s: status %d: %s", doc.ID, res.StatusCode, raw)
	}

	w.logger.Debug("document stored", zap.String("id", doc.ID), zap.String("index", w.index))
	return nil
}
