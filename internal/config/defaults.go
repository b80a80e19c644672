package config

import "runtime"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Model.Path == "" {
		cfg.Model.Path = "/usr/local/var/kensaku/models/nomic-embed-text-v1.5.gguf"
	}
	if cfg.Model.Threads == 0 {
		cfg.Model.Threads = runtime.NumCPU()
	}
	if cfg.Model.ContextSize == 0 {
		cfg.Model.ContextSize = 512
	}
	if cfg.Model.BatchSize == 0 {
		cfg.Model.BatchSize = 512
	}
	if cfg.Model.Dimensions == 0 {
		cfg.Model.Dimensions = 768
	}
	if cfg.Model.ItemTimeoutMS == 0 {
		cfg.Model.ItemTimeoutMS = 30000
	}
	if cfg.Model.MaxQueueDepth == 0 {
		cfg.Model.MaxQueueDepth = 64
	}
	if len(cfg.Store.Addresses) == 0 {
		cfg.Store.Addresses = []string{"http://localhost:9200"}
	}
	if cfg.Index.Name == "" {
		cfg.Index.Name = "documents"
	}
	if cfg.Index.Metric == "" {
		cfg.Index.Metric = "cosine"
	}
	if cfg.Search.DefaultK == 0 {
		cfg.Search.DefaultK = 10
	}
	if cfg.Search.MaxK == 0 {
		cfg.Search.MaxK = 100
	}
	if cfg.Search.NumCandidates == 0 {
		cfg.Search.NumCandidates = 100
	}
}
