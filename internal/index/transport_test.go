package index

import (
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
)

// recordedRequest captures one request the fake transport saw.
type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

// cannedResponse is one scripted store response.
type cannedResponse struct {
	Status int
	Body   string
}

// fakeTransport feeds scripted responses to the store client and records
// every request, so tests can assert on exactly which calls were made.
type fakeTransport struct {
	mu        sync.Mutex
	responses []cannedResponse
	requests  []recordedRequest
}

func (t *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var body string
	if req.Body != nil {
		raw, _ := io.ReadAll(req.Body)
		req.Body.Close()
		body = string(raw)
	}
	t.requests = append(t.requests, recordedRequest{
		Method: req.Method,
		Path:   req.URL.Path,
		Body:   body,
	})

	resp := cannedResponse{Status: http.StatusOK, Body: "{}"}
	if len(t.responses) > 0 {
		resp = t.responses[0]
		t.responses = t.responses[1:]
	}
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("X-Elastic-Product", "Elasticsearch")
	return &http.Response{
		StatusCode: resp.Status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(resp.Body)),
		Request:    req,
	}, nil
}

func (t *fakeTransport) recorded() []recordedRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]recordedRequest, len(t.requests))
	copy(out, t.requests)
	return out
}

// newFakeClient returns a store client wired to the fake transport.
func newFakeClient(t *testing.T, responses ...cannedResponse) (*elasticsearch.Client, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{responses: responses}
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{"http://store.invalid:9200"},
		Transport: ft,
	})
	if err != nil {
		t.Fatalf("create fake client: %v", err)
	}
	return es, ft
}
