package imagefinder

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func TestFetchPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); !strings.Contains(got, "Mozilla") {
			t.Errorf("user agent = %q, want a browser string", got)
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Widget</title></head><body></body></html>`))
	}))
	defer server.Close()

	f := New(DefaultConfig(), nil)
	doc, finalURL, err := f.fetchPage(context.Background(), server.URL+"/product")
	if err != nil {
		t.Fatalf("fetchPage failed: %v", err)
	}
	if doc == nil {
		t.Fatal("got nil document")
	}
	if finalURL.Path != "/product" {
		t.Errorf("final URL = %s", finalURL)
	}
}

func TestFetchPageFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, server.URL+"/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html></html>`))
	})

	f := New(DefaultConfig(), nil)
	_, finalURL, err := f.fetchPage(context.Background(), server.URL+"/old")
	if err != nil {
		t.Fatalf("fetchPage failed: %v", err)
	}
	// Trust classification runs against where the redirect landed.
	if finalURL.Path != "/new" {
		t.Errorf("final URL = %s, want the redirect target", finalURL)
	}
}

func TestFetchPageErrors(t *testing.T) {
	tests := []struct {
		name    string
		url     func(base string) string
		handler http.HandlerFunc
	}{
		{
			name: "unsupported scheme",
			url:  func(base string) string { return "ftp://example.com/page" },
		},
		{
			name: "not found",
			url:  func(base string) string { return base + "/page" },
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
		},
		{
			name: "non-html content type",
			url:  func(base string) string { return base + "/page" },
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/pdf")
				w.Write([]byte("%PDF-1.4"))
			},
		},
	}

	f := New(DefaultConfig(), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := ""
			if tt.handler != nil {
				server := httptest.NewServer(tt.handler)
				defer server.Close()
				base = server.URL
			}

			_, _, err := f.fetchPage(context.Background(), tt.url(base))
			if err == nil {
				t.Fatal("expected fetchPage to fail")
			}
			var fetchErr *FetchError
			if !errors.As(err, &fetchErr) {
				t.Errorf("error = %T, want *FetchError", err)
			}
		})
	}
}

func TestDownloadImage(t *testing.T) {
	data := pngBytes(t, 300, 300)
	server := imageServer(t, data, "image/png")
	defer server.Close()

	f := New(DefaultConfig(), nil)
	got, contentType, err := f.DownloadImage(context.Background(), server.URL+"/img.png")
	if err != nil {
		t.Fatalf("DownloadImage failed: %v", err)
	}
	if len(got) != len(data) {
		t.Errorf("got %d bytes, want %d", len(got), len(data))
	}
	if contentType != "image/png" {
		t.Errorf("content type = %s", contentType)
	}
}

func TestDownloadImageByteCap(t *testing.T) {
	server := imageServer(t, pngBytes(t, 400, 400), "image/png")
	defer server.Close()

	config := DefaultConfig()
	config.MaxImageBytes = 64
	f := New(config, nil)

	if _, _, err := f.DownloadImage(context.Background(), server.URL+"/img.png"); err == nil {
		t.Fatal("expected byte cap to reject the download")
	}
}

func TestIsHTMLContentType(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"text/html", true},
		{"text/html; charset=utf-8", true},
		{"application/xhtml+xml", true},
		{"", true}, // no declared type still gets parsed
		{"application/json", false},
		{"image/png", false},
	}

	for _, tt := range tests {
		if got := isHTMLContentType(tt.contentType); got != tt.want {
			t.Errorf("isHTMLContentType(%q) = %v, want %v", tt.contentType, got, tt.want)
		}
	}
}

// Outbound requests carry trace context so downstream fetches appear under the
// pipeline span.
func TestOutboundClientInstrumented(t *testing.T) {
	f := New(DefaultConfig(), nil)
	if _, ok := f.httpClient.Transport.(*otelhttp.Transport); !ok {
		t.Errorf("transport = %T, want *otelhttp.Transport", f.httpClient.Transport)
	}
}
