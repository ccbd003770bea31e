package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/blacksynapse/ingest-worker/internal/core/domain"
)

type recordedRequest struct {
	method string
	path   string
	body   map[string]any
}

func newRecordingServer(t *testing.T) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		requests = append(requests, recordedRequest{method: r.Method, path: r.URL.Path, body: body})
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	return server, &requests
}

func TestUpsertChunksDeletesStalePointsFirst(t *testing.T) {
	server, requests := newRecordingServer(t)
	defer server.Close()

	client := New(server.URL, "documents")
	doc := &domain.Document{DocID: "n8n-123", Source: "notion", Title: "Note"}
	err := client.UpsertChunks(context.Background(), doc, []string{"a", "b"}, [][]float32{{0.1}, {0.2}})
	if err != nil {
		t.Fatalf("UpsertChunks() error = %v", err)
	}

	reqs := *requests
	if len(reqs) != 3 {
		t.Fatalf("expected ensure+delete+put, got %d requests", len(reqs))
	}
	if reqs[0].method != http.MethodPut || reqs[0].path != "/collections/documents" {
		t.Fatalf("expected collection ensure first, got %s %s", reqs[0].method, reqs[0].path)
	}
	if reqs[1].path != "/collections/documents/points/delete" {
		t.Fatalf("expected stale point delete, got %s", reqs[1].path)
	}
	if reqs[2].method != http.MethodPut || reqs[2].path != "/collections/documents/points" {
		t.Fatalf("expected point put, got %s %s", reqs[2].method, reqs[2].path)
	}

	points, _ := reqs[2].body["points"].([]any)
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %v", reqs[2].body)
	}
	first, _ := points[0].(map[string]any)
	payload, _ := first["payload"].(map[string]any)
	if payload["doc_id"] != "n8n-123" || payload["chunk_index"] != float64(0) {
		t.Fatalf("unexpected point payload: %v", payload)
	}
}

func TestPointIDsAreDeterministic(t *testing.T) {
	if pointID("n8n-123", 0) != pointID("n8n-123", 0) {
		t.Fatalf("point id must be stable for the same chunk")
	}
	if pointID("n8n-123", 0) == pointID("n8n-123", 1) {
		t.Fatalf("different chunks must get different ids")
	}
	if pointID("n8n-123", 0) == pointID("wiki-9", 0) {
		t.Fatalf("different documents must get different ids")
	}
}

func TestUpsertChunksWithNoChunksRetractsDocument(t *testing.T) {
	server, requests := newRecordingServer(t)
	defer server.Close()

	client := New(server.URL, "documents")
	doc := &domain.Document{DocID: "n8n-123"}
	if err := client.UpsertChunks(context.Background(), doc, nil, nil); err != nil {
		t.Fatalf("UpsertChunks() error = %v", err)
	}

	reqs := *requests
	if len(reqs) != 1 || reqs[0].path != "/collections/documents/points/delete" {
		t.Fatalf("expected a single delete request, got %+v", reqs)
	}
	filter, _ := reqs[0].body["filter"].(map[string]any)
	if filter == nil {
		t.Fatalf("expected doc_id filter in delete body: %v", reqs[0].body)
	}
}

func TestUpsertChunksRejectsVectorMismatch(t *testing.T) {
	client := New("http://unused", "documents")
	doc := &domain.Document{DocID: "n8n-123"}
	err := client.UpsertChunks(context.Background(), doc, []string{"a", "b"}, [][]float32{{0.1}})
	if err == nil {
		t.Fatalf("expected mismatch error")
	}
}

func TestHealthReportsUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL, "documents")
	if err := client.Health(context.Background()); err == nil {
		t.Fatalf("expected health error")
	}
}

func TestHealthOK(t *testing.T) {
	server, _ := newRecordingServer(t)
	defer server.Close()

	client := New(server.URL, "documents")
	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("Health() error = %v", err)
	}
}
