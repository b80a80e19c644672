package embedding

import "github.com/hyperjump/kensaku/internal/config"

// ModelRuntime loads inference models. The production implementation wraps
// gollama.cpp; tests substitute a fake.
type ModelRuntime interface {
	Load(cfg config.ModelConfig) (ModelSession, error)
}

// ModelSession is a loaded model with an embedding context. Embed is not
// safe for concurrent calls; the Handle serializes access.
type ModelSession interface {
	Embed(text string) ([]float32, error)
	Dimension() int
	Close() error
}
