package retrieve

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWebSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/search" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding request body: %v", err)
		}
		if body["query"] != "what is pgvector" {
			t.Errorf("query = %v", body["query"])
		}
		if body["api_key"] != "tvly-test" {
			t.Errorf("api_key = %v", body["api_key"])
		}
		if body["topic"] != "general" {
			t.Errorf("topic = %v, want default general", body["topic"])
		}
		if body["max_results"] != float64(2) {
			t.Errorf("max_results = %v, want 2", body["max_results"])
		}
		fmt.Fprint(w, `{"results": [
			{"title": "pgvector", "url": "https://example.org/1", "content": "A Postgres extension."},
			{"title": "Vectors in SQL", "url": "https://example.org/2", "content": "Background."},
			{"title": "Extra", "url": "https://example.org/3", "content": "Over the cap."}
		]}`)
	}))
	defer server.Close()

	client, err := NewWebSearch("tvly-test", WithWebSearchBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewWebSearch failed: %v", err)
	}

	results, err := client.Search(context.Background(), "what is pgvector", "", 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Title != "pgvector" || results[0].Content != "A Postgres extension." {
		t.Errorf("results[0] = %+v", results[0])
	}
}

func TestWebSearchUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	client, err := NewWebSearch("bad", WithWebSearchBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewWebSearch failed: %v", err)
	}
	if _, err := client.Search(context.Background(), "anything", "general", 5); err == nil {
		t.Error("upstream 401 not surfaced")
	}
}

func TestWebSearchValidation(t *testing.T) {
	if _, err := NewWebSearch(""); err == nil {
		t.Error("empty API key accepted")
	}

	client, err := NewWebSearch("key")
	if err != nil {
		t.Fatalf("NewWebSearch failed: %v", err)
	}
	if _, err := client.Search(context.Background(), "", "general", 5); err == nil {
		t.Error("empty query accepted")
	}
}
