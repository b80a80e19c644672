// Package embedding provides text embedding via a local llama.cpp model.
package embedding

import "context"

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) (*BatchResult, error)
	TestConnection(ctx context.Context) bool
	Dimensions() int
	Close(ctx context.Context) error
}

// BatchFailure records one batch item whose embedding could not be produced.
type BatchFailure struct {
	Index int
	Err   error
}

// BatchResult holds batch embeddings positionally aligned with the input.
// Vectors always has one entry per input text; slots whose item failed after
// a retry hold an all-zeros sentinel and have a matching entry in Failures.
type BatchResult struct {
	Vectors  [][]float32
	Failures []BatchFailure
}

// Failed reports whether the item at index i was substituted with a sentinel.
func (r *BatchResult) Failed(i int) bool {
	for _, f := range r.Failures {
		if f.Index == i {
			return true
		}
	}
	return false
}
