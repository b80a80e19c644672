package embedding

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hyperjump/kensaku/internal/config"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Provider manages the at-most-one live model Handle. Acquire loads the
// model lazily; concurrent first calls trigger exactly one load. Dispose
// drains in-flight embeds, releases native resources, and resets the
// provider so a later Acquire reloads.
type Provider struct {
	cfg     config.ModelConfig
	runtime ModelRuntime
	logger  *zap.Logger

	group singleflight.Group
	mu    sync.Mutex
	live  *Handle
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithRuntime overrides the model runtime (used by tests).
func WithRuntime(rt ModelRuntime) ProviderOption {
	return func(p *Provider) { p.runtime = rt }
}

// WithProviderLogger sets a logger for load/dispose events.
func WithProviderLogger(l *zap.Logger) ProviderOption {
	return func(p *Provider) { p.logger = l }
}

// NewProvider creates a provider for the given model configuration.
// The model is not loaded until the first Acquire.
func NewProvider(cfg config.ModelConfig, opts ...ProviderOption) *Provider {
	p := &Provider{
		cfg:     cfg,
		runtime: NewLlamaRuntime(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire returns the live handle, loading the model on first use. The
// underlying load runs at most once across any number of concurrent callers
// until a Dispose occurs. A failed load is not cached; the next Acquire
// retries it.
func (p *Provider) Acquire(ctx context.Context) (*Handle, error) {
	p.mu.Lock()
	h := p.live
	p.mu.Unlock()
	if h != nil {
		return h, nil
	}

	v, err, _ := p.group.Do("load", func() (interface{}, error) {
		p.mu.Lock()
		if p.live != nil {
			h := p.live
			p.mu.Unlock()
			return h, nil
		}
		p.mu.Unlock()

		p.logger.Info("loading model",
			zap.String("path", p.cfg.Path),
			zap.Int("dimensions", p.cfg.Dimensions),
			zap.Int("context_size", p.cfg.ContextSize),
		)
		session, err := p.runtime.Load(p.cfg)
		if err != nil {
			return nil, &ModelLoadError{Path: p.cfg.Path, Err: err}
		}
		h := newHandle(session, p.cfg)

		p.mu.Lock()
		p.live = h
		p.mu.Unlock()
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return v.(*Handle), nil
}

// Dispose releases the live handle, waiting for in-flight embeds to drain.
// It fails if draining does not complete before ctx expires; the handle is
// still detached from the provider in that case so no new calls reach it.
// Dispose with no live handle is a no-op.
func (p *Provider) Dispose(ctx context.Context) error {
	p.mu.Lock()
	h := p.live
	p.live = nil
	p.mu.Unlock()
	if h == nil {
		return nil
	}
	p.logger.Info("disposing model handle")
	return h.close(ctx)
}

// Handle wraps a loaded model session. The session's embed is not safe for
// concurrent calls, so all embeds are serialized through a capacity-one
// semaphore with a bounded wait queue.
type Handle struct {
	session  ModelSession
	dims     int
	sem      chan struct{}
	waiting  atomic.Int32
	maxQueue int32
	closed   atomic.Bool
}

func newHandle(session ModelSession, cfg config.ModelConfig) *Handle {
	maxQueue := cfg.MaxQueueDepth
	if maxQueue <= 0 {
		maxQueue = 64
	}
	return &Handle{
		session:  session,
		dims:     cfg.Dimensions,
		sem:      make(chan struct{}, 1),
		maxQueue: int32(maxQueue),
	}
}

// Dimension returns the embedding width every vector from this handle has.
func (h *Handle) Dimension() int { return h.dims }

// Embed produces the embedding for text. Calls are serialized; waiters past
// the queue bound are rejected with ErrQueueFull, and ctx cancellation
// aborts waiting (not a started native call, which is not preemptible).
func (h *Handle) Embed(ctx context.Context, text string) ([]float32, error) {
	if h.closed.Load() {
		return nil, ErrModelClosed
	}
	if h.waiting.Add(1) > h.maxQueue {
		h.waiting.Add(-1)
		return nil, ErrQueueFull
	}
	defer h.waiting.Add(-1)

	select {
	case h.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-h.sem }()

	if h.closed.Load() {
		return nil, ErrModelClosed
	}
	vec, err := h.session.Embed(text)
	if err != nil {
		return nil, &InferenceError{Err: err}
	}
	if len(vec) != h.dims {
		return nil, &InferenceError{Err: fmt.Errorf("model returned %d values, want %d", len(vec), h.dims)}
	}
	return vec, nil
}

// close waits for the in-flight embed (if any) to finish, then releases the
// session. Queued waiters observe the closed flag and fail with ErrModelClosed.
func (h *Handle) close(ctx context.Context) error {
	h.closed.Store(true)
	select {
	case h.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("dispose: in-flight embed did not drain: %w", ctx.Err())
	}
	defer func() { <-h.sem }()
	return h.session.Close()
}
