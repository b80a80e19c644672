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

// Searcher runs k-nearest-neighbor queries against the index's vector field.
type Searcher struct {
	es            *elasticsearch.Client
	index         string
	dims          int
	numCandidates int
	logger        *zap.Logger
}

// SearcherOption configures a Searcher.
type SearcherOption func(*Searcher)

// WithNumCandidates sets the per-shard candidate pool for the kNN query.
func WithNumCandidates(n int) SearcherOption {
	return func(s *Searcher) { s.numCandidates = n }
}

// WithSearcherLogger sets a logger for search events.
func WithSearcherLogger(l *zap.Logger) SearcherOption {
	return func(s *Searcher) { s.logger = l }
}

// NewSearcher creates a searcher for the named index.
func NewSearcher(es *elasticsearch.Client, indexName string, dims int, opts ...SearcherOption) *Searcher {
	s := &Searcher{
		es:            es,
		index:         indexName,
		dims:          dims,
		numCandidates: 100,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// searchHit mirrors the store's hit envelope. Score is a pointer so a hit
// without a score can be told apart from a zero score and skipped.
type searchHit struct {
	ID     string   `json:"_id"`
	Score  *float64 `json:"_score"`
	Source *struct {
		Content  string                 `json:"content"`
		Metadata map[string]interface{} `json:"metadata"`
	} `json:"_source"`
}

type searchEnvelope struct {
	Hits struct {
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
}

// SearchSimilar returns up to k stored documents nearest to queryVector,
// ordered by descending score. The store's ranking is trusted as-is; ties
// keep store order. Hits missing expected fields are skipped rather than
// failing the whole search.
func (s *Searcher) SearchSimilar(ctx context.Context, queryVector []float32, k int) ([]*models.SearchResult, error) {
	if len(queryVector) != s.dims {
		return nil, &DimensionMismatchError{Want: s.dims, Got: len(queryVector)}
	}
	if k < 1 {
		return nil, fmt.Errorf("k must be at least 1, got %d", k)
	}

	numCandidates := s.numCandidates
	if numCandidates < k {
		numCandidates = k
	}
	query := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "embedding",
			"query_vector":   queryVector,
			"k":              k,
			"num_candidates": numCandidates,
		},
		"size":    k,
		"_source": []string{"content", "metadata"},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshal knn query: %w", err)
	}

	res, err := s.es.Search(
		s.es.Search.WithIndex(s.index),
		s.es.Search.WithBody(bytes.NewReader(body)),
		s.es.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("knn search on %s: %w", s.index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("knn search on %s: status %d: %s", s.index, res.StatusCode, raw)
	}

	var envelope searchEnvelope
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	results := make([]*models.SearchResult, 0, len(envelope.Hits.Hits))
	for _, hit := range envelope.Hits.Hits {
		if hit.ID == "" || hit.Score == nil || hit.Source == nil {
			s.logger.Debug("skipping malformed hit", zap.String("id", hit.ID))
			continue
		}
		results = append(results, &models.SearchResult{
			ID:       hit.ID,
			Content:  hit.Source.Content,
			Metadata: hit.Source.Metadata,
			Score:    *hit.Score,
		})
	}
	return results, nil
}
