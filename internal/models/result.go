package models

// SearchResult is a single nearest-neighbor hit. Results are ordered by
// descending score; higher means more similar.
type SearchResult struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Score    float64                `json:"score"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Results   []*SearchResult `json:"results"`
	QueryTime int64           `json:"query_time_ms"`
	Query     string          `json:"query"`
}

// HealthStatus is an uncached snapshot of store cluster health.
type HealthStatus struct {
	Status      string `json:"status"`
	ClusterName string `json:"cluster_name"`
}
