package embedding

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const probeText = "ping"

var _ Embedder = (*Generator)(nil)

// Generator exposes single and batch embedding on top of a Provider. Batch
// processing isolates per-item failures: one bad input never aborts its
// siblings, and the result is always positionally aligned with the input.
type Generator struct {
	provider    *Provider
	dims        int
	itemTimeout time.Duration
	logger      *zap.Logger
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithItemTimeout caps per-item inference time during batch embedding.
func WithItemTimeout(d time.Duration) GeneratorOption {
	return func(g *Generator) { g.itemTimeout = d }
}

// WithGeneratorLogger sets a logger for batch diagnostics.
func WithGeneratorLogger(l *zap.Logger) GeneratorOption {
	return func(g *Generator) { g.logger = l }
}

// NewGenerator creates a generator over the given provider.
func NewGenerator(p *Provider, opts ...GeneratorOption) *Generator {
	g := &Generator{
		provider:    p,
		dims:        p.cfg.Dimensions,
		itemTimeout: 30 * time.Second,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Dimensions returns the embedding width of every vector this generator produces.
func (g *Generator) Dimensions() int { return g.dims }

// Embed returns the embedding for text. The empty string is valid input and
// embeds to a well-formed vector. The model is loaded lazily on first call.
func (g *Generator) Embed(ctx context.Context, text string) ([]float32, error) {
	h, err := g.provider.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return h.Embed(ctx, text)
}

// EmbedBatch embeds each text independently, in input order. The returned
// vectors always align one-to-one with texts. A failing item is retried
// once; if the retry also fails, its slot holds an all-zeros sentinel and
// the failure is recorded in the result diagnostics instead of aborting the
// batch. Only a model load failure aborts the whole call.
func (g *Generator) EmbedBatch(ctx context.Context, texts []string) (*BatchResult, error) {
	h, err := g.provider.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{Vectors: make([][]float32, len(texts))}
	for i, text := range texts {
		vec, err := g.embedItem(ctx, h, text)
		if err != nil {
			result.Vectors[i] = make([]float32, g.dims)
			result.Failures = append(result.Failures, BatchFailure{Index: i, Err: err})
			g.logger.Warn("batch item failed, substituting zero vector",
				zap.Int("index", i),
				zap.Error(err),
			)
			continue
		}
		result.Vectors[i] = vec
	}
	if len(result.Failures) > 0 {
		g.logger.Warn("batch completed with failures",
			zap.Int("total", len(texts)),
			zap.Int("failed", len(result.Failures)),
		)
	}
	return result, nil
}

// embedItem runs one bounded, retried-once embed. The native call cannot be
// interrupted mid-computation, so a timeout abandons the result rather than
// killing the model; the handle's serialization keeps later items safe.
func (g *Generator) embedItem(ctx context.Context, h *Handle, text string) ([]float32, error) {
	itemCtx, cancel := context.WithTimeout(ctx, g.itemTimeout)
	defer cancel()

	var vec []float32
	b := retry.NewConstant(100 * time.Millisecond)
	err := retry.Do(itemCtx, retry.WithMaxRetries(1, b), func(ctx context.Context) error {
		v, err := g.embedWithDeadline(ctx, h, text)
		if err != nil {
			var infErr *InferenceError
			if errors.As(err, &infErr) {
				return retry.RetryableError(err)
			}
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}

// embedWithDeadline runs h.Embed but stops waiting when ctx expires. The
// abandoned goroutine finishes on its own and its result is dropped.
func (g *Generator) embedWithDeadline(ctx context.Context, h *Handle, text string) ([]float32, error) {
	type embedResult struct {
		vec []float32
		err error
	}
	ch := make(chan embedResult, 1)
	go func() {
		vec, err := h.Embed(ctx, text)
		ch <- embedResult{vec, err}
	}()
	select {
	case r := <-ch:
		return r.vec, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TestConnection performs a probe embed and reports whether it succeeded.
// Used for health-gating before accepting traffic; never panics.
func (g *Generator) TestConnection(ctx context.Context) bool {
	vec, err := g.Embed(ctx, probeText)
	return err == nil && len(vec) == g.dims
}

// Close disposes the underlying model handle.
func (g *Generator) Close(ctx context.Context) error {
	return g.provider.Dispose(ctx)
}
