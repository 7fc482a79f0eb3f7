package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/loykin/foxy/internal/history"
)

func TestOpenSearchSink_Send(t *testing.T) {
	var receivedBody []byte
	var receivedURL string
	var receivedMethod string
	var receivedType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedMethod = r.Method
		receivedURL = r.URL.Path
		receivedType = r.Header.Get("Content-Type")
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"_id":"test","_index":"foxy-runs","result":"created"}`))
	}))
	defer server.Close()

	sink := New(server.URL, "foxy-runs")
	run := history.Run{Command: "echo hi", ID: "abc", PID: 12345, StartedAt: time.Now().UTC()}
	event := history.Event{Type: history.EventStart, OccurredAt: time.Now().UTC(), Run: run}
	if err := sink.Send(context.Background(), event); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if receivedMethod != http.MethodPost {
		t.Errorf("Expected POST method, got: %s", receivedMethod)
	}
	if receivedURL != "/foxy-runs/_doc" {
		t.Errorf("Expected URL path /foxy-runs/_doc, got: %s", receivedURL)
	}
	if receivedType != "application/json" {
		t.Errorf("Expected JSON content type, got: %s", receivedType)
	}

	var got map[string]any
	if err := json.Unmarshal(receivedBody, &got); err != nil {
		t.Fatalf("Failed to parse received JSON: %v", err)
	}
	if got["type"] != string(history.EventStart) {
		t.Errorf("Expected type %s, got: %v", history.EventStart, got["type"])
	}
	r, ok := got["run"].(map[string]any)
	if !ok {
		t.Fatalf("Expected run in event, got: %v", got)
	}
	if r["command"] != run.Command || r["pid"] != float64(run.PID) {
		t.Errorf("unexpected run payload: %v", r)
	}
}

func TestOpenSearchSink_SendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer server.Close()

	err := New(server.URL, "idx").Send(context.Background(), history.Event{Type: history.EventFail, OccurredAt: time.Now()})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "opensearch sink status 400") {
		t.Errorf("Expected status error message, got: %v", err)
	}
}

func TestOpenSearchSink_URL(t *testing.T) {
	tests := []struct {
		baseURL, index, want string
	}{
		{"http://localhost:9200", "runs", "http://localhost:9200/runs/_doc"},
		{"http://localhost:9200/", "runs", "http://localhost:9200/runs/_doc"},
		{"https://search.example.com", "foxy-2024", "https://search.example.com/foxy-2024/_doc"},
	}
	for _, tt := range tests {
		if got := New(tt.baseURL, tt.index).URL(); got != tt.want {
			t.Errorf("URL(%q,%q)=%q want %q", tt.baseURL, tt.index, got, tt.want)
		}
	}
}

func TestOpenSearchSink_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	if err := New(url, "idx").Send(context.Background(), history.Event{Type: history.EventSkip}); err == nil {
		t.Fatal("expected error for closed server")
	}
}
