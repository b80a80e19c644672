// Package index provides the vector index layer on Elasticsearch: schema
// management, document writes, nearest-neighbor search, and cluster health.
package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"
)

// Similarity metrics accepted by Schema. They map to the store's
// dense_vector similarity values.
const (
	MetricCosine = "cosine"
	MetricL2     = "l2"
)

// Schema declares the vector index: its name, the embedding dimension of
// its vector field, and the similarity metric. The dimension must equal the
// model's embedding dimension; NewSchemaManager enforces this fail-fast.
type Schema struct {
	Name       string
	Dimensions int
	Metric     string
}

// SchemaManager ensures the index exists with the correct mapping before
// any read or write reaches it.
type SchemaManager struct {
	es     *elasticsearch.Client
	schema Schema
	logger *zap.Logger
}

// SchemaManagerOption configures a SchemaManager.
type SchemaManagerOption func(*SchemaManager)

// WithSchemaLogger sets a logger for index creation events.
func WithSchemaLogger(l *zap.Logger) SchemaManagerOption {
	return func(m *SchemaManager) { m.logger = l }
}

// NewSchemaManager validates the schema and returns a manager for it.
// modelDims is the embedding dimension the model actually produces; a
// mismatch with the schema is a configuration bug and fails here, not at
// query time.
func NewSchemaManager(es *elasticsearch.Client, schema Schema, modelDims int, opts ...SchemaManagerOption) (*SchemaManager, error) {
	if schema.Name == "" {
		return nil, fmt.Errorf("index name must not be empty")
	}
	if schema.Dimensions != modelDims {
		return nil, &DimensionMismatchError{Want: modelDims, Got: schema.Dimensions}
	}
	switch schema.Metric {
	case MetricCosine, MetricL2:
	default:
		return nil, fmt.Errorf("unsupported similarity metric %q", schema.Metric)
	}
	m := &SchemaManager{es: es, schema: schema, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Schema returns the managed schema.
func (m *SchemaManager) Schema() Schema { return m.schema }

// EnsureIndex checks that the index exists and creates it with the vector
// mapping when absent. The check-then-create is not atomic against
// concurrent callers; a lost race surfaces as "already exists" on create
// and is not an error. Any other creation failure is a SchemaError.
func (m *SchemaManager) EnsureIndex(ctx context.Context) error {
	res, err := m.es.Indices.Exists(
		[]string{m.schema.Name},
		m.es.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("check index %s existence: %w", m.schema.Name, err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return &SchemaError{Index: m.schema.Name, Err: fmt.Errorf("existence check returned status %d", res.StatusCode)}
	}

	body, err := json.Marshal(m.mapping())
	if err != nil {
		return &SchemaError{Index: m.schema.Name, Err: fmt.Errorf("marshal mapping: %w", err)}
	}

	createRes, err := m.es.Indices.Create(
		m.schema.Name,
		m.es.Indices.Create.WithBody(bytes.NewReader(body)),
		m.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", m.schema.Name, err)
	}
	defer createRes.Body.Close()

	if createRes.IsError() {
		raw, _ := io.ReadAll(createRes.Body)
		// Another caller created the index between our check and create.
		if strings.Contains(string(raw), "resource_already_exists_exception") {
			m.logger.Debug("index created concurrently", zap.String("index", m.schema.Name))
			return nil
		}
		return &SchemaError{Index: m.schema.Name, Err: fmt.Errorf("create returned status %d: %s", createRes.StatusCode, raw)}
	}

	m.logger.Info("index created",
		zap.String("index", m.schema.Name),
		zap.Int("dimensions", m.schema.Dimensions),
		zap.String("metric", m.schema.Metric),
	)
	return nil
}

// mapping builds the store-side field mapping for the schema.
func (m *SchemaManager) mapping() map[string]interface{} {
	similarity := "cosine"
	if m.schema.Metric == MetricL2 {
		similarity = "l2_norm"
	}
	return map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"content": map[string]interface{}{
					"type": "text",
				},
				"metadata": map[string]interface{}{
					"type": "flattened",
				},
				"embedding": map[string]interface{}{
					"type":       "dense_vector",
					"dims":       m.schema.Dimensions,
					"index":      true,
					"similarity": similarity,
				},
			},
		},
	}
}
