package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPProviderSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("path = %s, want /search", r.URL.Path)
		}
		if got := r.URL.Query().Get("q"); got != "widget pro site:amazon.com" {
			t.Errorf("query = %q, want the raw query string", got)
		}
		if got := r.URL.Query().Get("format"); got != "json" {
			t.Errorf("format = %q, want json", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results": [
			{"url": "https://www.amazon.com/widget", "title": "Widget Pro", "content": "Buy now"},
			{"url": "https://www.bestbuy.com/widget", "title": "Widget Pro - Best Buy"}
		]}`))
	}))
	defer server.Close()

	provider := NewHTTPProvider(Config{BaseURL: server.URL})
	results, err := provider.Search(context.Background(), "widget pro site:amazon.com")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].URL != "https://www.amazon.com/widget" {
		t.Errorf("first URL = %s", results[0].URL)
	}
	if results[1].Title != "Widget Pro - Best Buy" {
		t.Errorf("second title = %s", results[1].Title)
	}
}

func TestHTTPProviderSearchEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results": []}`))
	}))
	defer server.Close()

	provider := NewHTTPProvider(Config{BaseURL: server.URL})
	results, err := provider.Search(context.Background(), "nonexistent gadget")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestHTTPProviderSearchErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"results": [`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			provider := NewHTTPProvider(Config{BaseURL: server.URL})
			if _, err := provider.Search(context.Background(), "widget"); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
