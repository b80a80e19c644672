package index

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/hyperjump/kensaku/internal/models"
)

// HealthMonitor reads store cluster health. A direct pass-through: no
// caching and no retries beyond what the store client already performs.
type HealthMonitor struct {
	es *elasticsearch.Client
}

// NewHealthMonitor creates a health monitor over the given client.
func NewHealthMonitor(es *elasticsearch.Client) *HealthMonitor {
	return &HealthMonitor{es: es}
}

// Health returns the current cluster status snapshot.
func (h *HealthMonitor) Health(ctx context.Context) (*models.HealthStatus, error) {
	res, err := h.es.Cluster.Health(h.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("cluster health: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("cluster health: status %d: %s", res.StatusCode, raw)
	}

	var status models.HealthStatus
	if err := json.NewDecoder(res.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode cluster health: %w", err)
	}
	return &status, nil
}
