package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/kensaku/internal/index"
	"github.com/hyperjump/kensaku/internal/models"
	"go.uber.org/zap"
)

// searchRequest is the body for POST /api/v1/search.
type searchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

// bulkItemError reports one input whose embedding failed and was not stored.
type bulkItemError struct {
	Index int    `json:"index"`
	ID    string `json:"id"`
	Error string `json:"error"`
}

// bulkResponse is the body for POST /api/v1/documents/bulk.
type bulkResponse struct {
	Indexed int             `json:"indexed"`
	Failed  []bulkItemError `json:"failed,omitempty"`
}

func (s *Server) handleIndexDocument(w http.ResponseWriter, r *http.Request) {
	var input models.DocumentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if input.ID == "" {
		input.ID = uuid.New().String()
	}
	s.logger.Debug("index document request", zap.String("id", input.ID))

	vec, err := s.embedder.Embed(r.Context(), input.Content)
	if err != nil {
		s.logger.Error("embedding failed", zap.String("id", input.ID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	doc := &models.Document{
		ID:        input.ID,
		Content:   input.Content,
		Metadata:  input.Metadata,
		Embedding: vec,
	}
	if err := s.writer.StoreDocument(r.Context(), doc); err != nil {
		s.logger.Error("store failed", zap.String("id", input.ID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"id": input.ID, "status": "indexed"})
}

// handleBulkIndex embeds a batch of documents and stores the ones whose
// embedding succeeded. Failed items are reported per-index in the response
// rather than aborting the batch; their sentinel vectors are never stored.
func (s *Server) handleBulkIndex(w http.ResponseWriter, r *http.Request) {
	var inputs []models.DocumentInput
	if err := json.NewDecoder(r.Body).Decode(&inputs); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for i := range inputs {
		if inputs[i].ID == "" {
			inputs[i].ID = uuid.New().String()
		}
	}
	texts := make([]string, len(inputs))
	for i, in := range inputs {
		texts[i] = in.Content
	}

	batch, err := s.embedder.EmbedBatch(r.Context(), texts)
	if err != nil {
		s.logger.Error("batch embedding failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := bulkResponse{}
	for _, f := range batch.Failures {
		resp.Failed = append(resp.Failed, bulkItemError{
			Index: f.Index,
			ID:    inputs[f.Index].ID,
			Error: f.Err.Error(),
		})
	}
	for i, in := range inputs {
		if batch.Failed(i) {
			continue
		}
		doc := &models.Document{
			ID:        in.ID,
			Content:   in.Content,
			Metadata:  in.Metadata,
			Embedding: batch.Vectors[i],
		}
		if err := s.writer.StoreDocument(r.Context(), doc); err != nil {
			s.logger.Error("store failed", zap.String("id", in.ID), zap.Error(err))
			resp.Failed = append(resp.Failed, bulkItemError{Index: i, ID: in.ID, Error: err.Error()})
			continue
		}
		resp.Indexed++
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.K <= 0 {
		req.K = s.config.Search.DefaultK
	}
	if req.K > s.config.Search.MaxK {
		req.K = s.config.Search.MaxK
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.Int("k", req.K))

	start := time.Now()
	vec, err := s.embedder.Embed(r.Context(), req.Query)
	if err != nil {
		s.logger.Error("query embedding failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	results, err := s.searcher.SearchSimilar(r.Context(), vec, req.K)
	if err != nil {
		var dimErr *index.DimensionMismatchError
		if errors.As(err, &dimErr) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, &models.SearchResponse{
		Results:   results,
		QueryTime: time.Since(start).Milliseconds(),
		Query:     req.Query,
	})
}

// handleHealth reports cluster health plus a model probe. A red cluster or
// failed probe returns 503 so load balancers stop routing traffic here.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, err := s.health.Health(r.Context())
	if err != nil {
		s.logger.Error("cluster health failed", zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	modelOK := s.embedder.TestConnection(r.Context())

	code := http.StatusOK
	if status.Status == "red" || !modelOK {
		code = http.StatusServiceUnavailable
	}
	s.respondJSON(w, code, map[string]interface{}{
		"cluster": status,
		"model":   modelOK,
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
