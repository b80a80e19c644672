package embedding

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// scriptedSession fails embeds according to the text content: texts
// containing "fail" always fail, texts containing "flaky" fail on the first
// attempt only.
type scriptedSession struct {
	dims     int
	mu       sync.Mutex
	attempts map[string]int
}

func newScriptedSession(dims int) *scriptedSession {
	return &scriptedSession{dims: dims, attempts: make(map[string]int)}
}

func (s *scriptedSession) Embed(text string) ([]float32, error) {
	s.mu.Lock()
	s.attempts[text]++
	n := s.attempts[text]
	s.mu.Unlock()

	if strings.Contains(text, "fail") {
		return nil, errors.New("decode failed")
	}
	if strings.Contains(text, "flaky") && n == 1 {
		return nil, errors.New("transient decode failure")
	}
	vec := make([]float32, s.dims)
	for i := range vec {
		vec[i] = 0.5
	}
	return vec, nil
}

func (s *scriptedSession) Dimension() int { return s.dims }
func (s *scriptedSession) Close() error   { return nil }

func (s *scriptedSession) attemptCount(text string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[text]
}

func newTestGenerator(session ModelSession) *Generator {
	p := NewProvider(testModelConfig(), WithRuntime(&fakeRuntime{session: session}))
	return NewGenerator(p, WithItemTimeout(time.Second))
}

func TestGenerator_EmbedDimensions(t *testing.T) {
	g := newTestGenerator(newScriptedSession(4))
	ctx := context.Background()

	// The empty string is valid input, not an error.
	for _, text := range []string{"Calculate: 4,567 + 2,834", "", "short"} {
		vec, err := g.Embed(ctx, text)
		if err != nil {
			t.Fatalf("Embed(%q): %v", text, err)
		}
		if len(vec) != 4 {
			t.Errorf("Embed(%q) returned %d values, want 4", text, len(vec))
		}
	}
}

func TestGenerator_EmbedSurfacesLoadError(t *testing.T) {
	rt := &fakeRuntime{loadErr: errors.New("artifact malformed")}
	g := NewGenerator(NewProvider(testModelConfig(), WithRuntime(rt)))

	_, err := g.Embed(context.Background(), "text")
	var loadErr *ModelLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected ModelLoadError, got %v", err)
	}
}

func TestGenerator_BatchAlignment(t *testing.T) {
	session := newScriptedSession(4)
	g := newTestGenerator(session)

	texts := []string{"good one", "this will fail", "", "another good one"}
	result, err := g.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Vectors) != len(texts) {
		t.Fatalf("got %d vectors for %d texts", len(result.Vectors), len(texts))
	}
	for i, vec := range result.Vectors {
		if len(vec) != 4 {
			t.Errorf("vector %d has %d values, want 4", i, len(vec))
		}
	}

	if len(result.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(result.Failures))
	}
	if result.Failures[0].Index != 1 {
		t.Errorf("failure index = %d, want 1", result.Failures[0].Index)
	}
	// The failed slot holds the all-zeros sentinel.
	for _, v := range result.Vectors[1] {
		if v != 0 {
			t.Fatal("failed slot is not the zero sentinel")
		}
	}
	// Siblings of the failed item are real embeddings.
	if result.Vectors[0][0] == 0 || result.Vectors[3][0] == 0 {
		t.Error("sibling items were not embedded")
	}
}

func TestGenerator_BatchRetriesOnce(t *testing.T) {
	session := newScriptedSession(4)
	g := newTestGenerator(session)

	result, err := g.EmbedBatch(context.Background(), []string{"flaky item"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Failures) != 0 {
		t.Fatalf("retry should have recovered the item, failures: %v", result.Failures)
	}
	if got := session.attemptCount("flaky item"); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
}

func TestGenerator_BatchFailedItemAttempts(t *testing.T) {
	session := newScriptedSession(4)
	g := newTestGenerator(session)

	result, err := g.EmbedBatch(context.Background(), []string{"always fails"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(result.Failures))
	}
	// One initial attempt plus exactly one retry.
	if got := session.attemptCount("always fails"); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
}

func TestGenerator_EmptyBatch(t *testing.T) {
	g := newTestGenerator(newScriptedSession(4))
	result, err := g.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Vectors) != 0 || len(result.Failures) != 0 {
		t.Errorf("empty batch produced %d vectors, %d failures", len(result.Vectors), len(result.Failures))
	}
}

func TestGenerator_TestConnection(t *testing.T) {
	t.Run("healthy model", func(t *testing.T) {
		g := newTestGenerator(newScriptedSession(4))
		if !g.TestConnection(context.Background()) {
			t.Error("TestConnection = false for healthy model")
		}
	})

	t.Run("broken model", func(t *testing.T) {
		rt := &fakeRuntime{loadErr: errors.New("artifact missing")}
		g := NewGenerator(NewProvider(testModelConfig(), WithRuntime(rt)))
		if g.TestConnection(context.Background()) {
			t.Error("TestConnection = true for broken model")
		}
	})
}

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(8)
	ctx := context.Background()
	a, _ := e.Embed(ctx, "same text")
	b, _ := e.Embed(ctx, "same text")
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("mock embedder is not deterministic")
		}
	}
	if len(a) != 8 {
		t.Errorf("dimensions = %d, want 8", len(a))
	}
}
