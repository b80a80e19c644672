package index

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
)

func testSchema() Schema {
	return Schema{Name: "questions", Dimensions: 768, Metric: MetricCosine}
}

func TestNewSchemaManager_DimensionMismatchFailsFast(t *testing.T) {
	es, _ := newFakeClient(t)
	_, err := NewSchemaManager(es, testSchema(), 384)
	var dimErr *DimensionMismatchError
	if !errors.As(err, &dimErr) {
		t.Fatalf("expected DimensionMismatchError, got %v", err)
	}
}

func TestNewSchemaManager_RejectsUnknownMetric(t *testing.T) {
	es, _ := newFakeClient(t)
	schema := testSchema()
	schema.Metric = "dot_product"
	if _, err := NewSchemaManager(es, schema, 768); err == nil {
		t.Fatal("expected error for unsupported metric")
	}
}

func TestEnsureIndex_CreatesWhenAbsent(t *testing.T) {
	es, ft := newFakeClient(t,
		cannedResponse{Status: http.StatusNotFound, Body: `{}`},
		cannedResponse{Status: http.StatusOK, Body: `{"acknowledged":true}`},
	)
	m, err := NewSchemaManager(es, testSchema(), 768)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.EnsureIndex(context.Background()); err != nil {
		t.Fatal(err)
	}

	reqs := ft.recorded()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 store calls, got %d", len(reqs))
	}
	if reqs[0].Method != http.MethodHead || reqs[0].Path != "/questions" {
		t.Errorf("first call = %s %s, want HEAD /questions", reqs[0].Method, reqs[0].Path)
	}
	if reqs[1].Method != http.MethodPut || reqs[1].Path != "/questions" {
		t.Errorf("second call = %s %s, want PUT /questions", reqs[1].Method, reqs[1].Path)
	}
	for _, want := range []string{`"dense_vector"`, `"dims":768`, `"similarity":"cosine"`, `"flattened"`} {
		if !strings.Contains(reqs[1].Body, want) {
			t.Errorf("mapping body missing %s: %s", want, reqs[1].Body)
		}
	}
}

func TestEnsureIndex_SecondCallMakesNoCreate(t *testing.T) {
	es, ft := newFakeClient(t,
		cannedResponse{Status: http.StatusNotFound, Body: `{}`},
		cannedResponse{Status: http.StatusOK, Body: `{"acknowledged":true}`},
		cannedResponse{Status: http.StatusOK, Body: `{}`}, // second existence check
	)
	m, err := NewSchemaManager(es, testSchema(), 768)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := m.EnsureIndex(ctx); err != nil {
		t.Fatal(err)
	}
	if err := m.EnsureIndex(ctx); err != nil {
		t.Fatal(err)
	}

	creates := 0
	for _, req := range ft.recorded() {
		if req.Method == http.MethodPut {
			creates++
		}
	}
	if creates != 1 {
		t.Errorf("expected exactly 1 index creation, got %d", creates)
	}
}

func TestEnsureIndex_ToleratesLostCreationRace(t *testing.T) {
	es, _ := newFakeClient(t,
		cannedResponse{Status: http.StatusNotFound, Body: `{}`},
		cannedResponse{
			Status: http.StatusBadRequest,
			Body:   `{"error":{"type":"resource_already_exists_exception","reason":"index [questions] already exists"}}`,
		},
	)
	m, err := NewSchemaManager(es, testSchema(), 768)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.EnsureIndex(context.Background()); err != nil {
		t.Errorf("lost creation race should not be an error, got %v", err)
	}
}

func TestEnsureIndex_OtherCreateFailureIsSchemaError(t *testing.T) {
	es, _ := newFakeClient(t,
		cannedResponse{Status: http.StatusNotFound, Body: `{}`},
		cannedResponse{
			Status: http.StatusBadRequest,
			Body:   `{"error":{"type":"mapper_parsing_exception","reason":"invalid mapping"}}`,
		},
	)
	m, err := NewSchemaManager(es, testSchema(), 768)
	if err != nil {
		t.Fatal(err)
	}
	err = m.EnsureIndex(context.Background())
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	if schemaErr.Index != "questions" {
		t.Errorf("SchemaError index = %q", schemaErr.Index)
	}
}

func TestEnsureIndex_L2Metric(t *testing.T) {
	es, ft := newFakeClient(t,
		cannedResponse{Status: http.StatusNotFound, Body: `{}`},
		cannedResponse{Status: http.StatusOK, Body: `{"acknowledged":true}`},
	)
	schema := testSchema()
	schema.Metric = MetricL2
	m, err := NewSchemaManager(es, schema, 768)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.EnsureIndex(context.Background()); err != nil {
		t.Fatal(err)
	}
	reqs := ft.recorded()
	if !strings.Contains(reqs[1].Body, `"similarity":"l2_norm"`) {
		t.Errorf("l2 metric not mapped to l2_norm: %s", reqs[1].Body)
	}
}
