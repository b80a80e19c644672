package index

import (
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/hyperjump/kensaku/internal/config"
)

// NewClient builds the Elasticsearch client from store configuration.
func NewClient(cfg config.StoreConfig) (*elasticsearch.Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create store client: %w", err)
	}
	return es, nil
}
