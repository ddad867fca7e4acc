package imagefinder

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/zombar/imagefinder/models"
)

// pngBytes encodes a solid image of the given size.
func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, height))); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func imageServer(t *testing.T, data []byte, contentType string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.Write(data)
	}))
}

func TestValidateOneSuccess(t *testing.T) {
	server := imageServer(t, pngBytes(t, 250, 250), "image/png")
	defer server.Close()

	f := New(DefaultConfig(), nil)
	cand := models.Candidate{URL: server.URL + "/widget-photo.png", Priority: 8}

	img, err := f.validateOne(context.Background(), cand, "Widget Pro Max")
	if err != nil {
		t.Fatalf("validateOne failed: %v", err)
	}

	if img.Width != 250 || img.Height != 250 {
		t.Errorf("dimensions = %dx%d, want 250x250", img.Width, img.Height)
	}
	if img.Format != "png" {
		t.Errorf("format = %s, want png", img.Format)
	}
	if img.SizeKB <= 0 {
		t.Errorf("size = %.2f KB, want > 0", img.SizeKB)
	}
	if img.AspectRatio != 1.0 {
		t.Errorf("aspect ratio = %.2f, want 1.0", img.AspectRatio)
	}
	if !img.HasKeywords {
		t.Error("expected keyword match for 'widget' in URL")
	}
	// 8 base + 1 keyword; untrusted host, below the high-res floor
	if img.AdjustedPriority != 9 {
		t.Errorf("adjusted priority = %d, want 9", img.AdjustedPriority)
	}
}

func TestValidateOneBonuses(t *testing.T) {
	server := imageServer(t, pngBytes(t, 900, 900), "image/png")
	defer server.Close()

	config := DefaultConfig()
	config.TrustedDomains = append(config.TrustedDomains, "127.0.0.1")
	f := New(config, nil)

	cand := models.Candidate{URL: server.URL + "/widget.png", Priority: 10}
	img, err := f.validateOne(context.Background(), cand, "widget")
	if err != nil {
		t.Fatalf("validateOne failed: %v", err)
	}

	// 10 base + 2 trusted + 1 keyword + 1 resolution
	if img.AdjustedPriority != 14 {
		t.Errorf("adjusted priority = %d, want 14", img.AdjustedPriority)
	}
}

func TestValidateOneRejections(t *testing.T) {
	tests := []struct {
		name        string
		handler     http.HandlerFunc
		config     func(Config) Config
		wantSmall  bool
		wantDecode bool
	}{
		{
			name: "below size floor",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "image/png")
				w.Write(pngBytes(t, 150, 250))
			},
			wantSmall: true,
		},
		{
			name: "non-image content type",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				w.Write([]byte("<html>not an image</html>"))
			},
		},
		{
			name: "corrupt image bytes",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "image/png")
				w.Write([]byte("definitely not a png"))
			},
			wantDecode: true,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "oversized body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "image/png")
				w.Write(pngBytes(t, 400, 400))
			},
			config: func(c Config) Config {
				c.MaxImageBytes = 64
				return c
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			config := DefaultConfig()
			if tt.config != nil {
				config = tt.config(config)
			}
			f := New(config, nil)

			_, err := f.validateOne(context.Background(), models.Candidate{URL: server.URL + "/img.png", Priority: 5}, "widget")
			if err == nil {
				t.Fatal("expected validation to fail")
			}
			if tt.wantSmall && !errors.Is(err, ErrImageTooSmall) {
				t.Errorf("error = %v, want ErrImageTooSmall", err)
			}
			var decodeErr *DecodeError
			if tt.wantDecode && !errors.As(err, &decodeErr) {
				t.Errorf("error = %v, want *DecodeError", err)
			}
		})
	}
}

func TestSelectForValidation(t *testing.T) {
	var candidates []models.Candidate
	for i := 0; i < 12; i++ {
		candidates = append(candidates, models.Candidate{
			URL:      "https://example.com/img-" + string(rune('a'+i)) + ".jpg",
			Priority: i % 4, // repeating priorities exercise stable ordering
			Order:    i,
		})
	}

	f := New(DefaultConfig(), nil)
	selected := f.selectForValidation(candidates)

	if len(selected) != 10 {
		t.Fatalf("selected %d candidates, want 10", len(selected))
	}

	// Priorities never increase down the list, and equal priorities keep
	// discovery order.
	for i := 1; i < len(selected); i++ {
		if selected[i].Priority > selected[i-1].Priority {
			t.Errorf("priority order violated at %d: %d after %d", i, selected[i].Priority, selected[i-1].Priority)
		}
		if selected[i].Priority == selected[i-1].Priority && selected[i].Order < selected[i-1].Order {
			t.Errorf("stable order violated at %d", i)
		}
	}

	// Priority 0 occurs at orders 0, 4 and 8; trimming two candidates must
	// drop the later two.
	for _, c := range selected {
		if c.Priority == 0 && c.Order != 0 {
			t.Errorf("expected later priority-0 candidates to be trimmed, kept order %d", c.Order)
		}
	}
}

func TestValidateCandidatesFiltersFailuresAndKeepsOrder(t *testing.T) {
	good := pngBytes(t, 300, 300)
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad.png" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(good)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	candidates := []models.Candidate{
		{URL: server.URL + "/a.png", Priority: 9, Order: 0},
		{URL: server.URL + "/bad.png", Priority: 8, Order: 1},
		{URL: server.URL + "/b.png", Priority: 7, Order: 2},
		{URL: server.URL + "/c.png", Priority: 6, Order: 3},
	}

	f := New(DefaultConfig(), nil)
	images := f.validateCandidates(context.Background(), candidates, "widget")

	if len(images) != 3 {
		t.Fatalf("validated %d images, want 3", len(images))
	}
	if !sort.SliceIsSorted(images, func(i, j int) bool { return images[i].Order < images[j].Order }) {
		t.Error("validated images not in discovery order")
	}
	for _, img := range images {
		if img.Width < 200 || img.Height < 200 {
			t.Errorf("image %s below size floor: %dx%d", img.URL, img.Width, img.Height)
		}
	}
}

func TestValidateCandidatesStopsAfterEnough(t *testing.T) {
	good := pngBytes(t, 300, 300)
	var fetches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Header().Set("Content-Type", "image/png")
		w.Write(good)
	}))
	defer server.Close()

	config := DefaultConfig()
	// Serialized, so the stop point is exact rather than workers-in-flight.
	config.ValidateWorkers = 1
	f := New(config, nil)

	var candidates []models.Candidate
	for i := 0; i < 10; i++ {
		candidates = append(candidates, models.Candidate{
			URL:      fmt.Sprintf("%s/img-%d.png", server.URL, i),
			Priority: 8,
			Order:    i,
		})
	}

	images := f.validateCandidates(context.Background(), candidates, "widget")

	if len(images) != config.ValidateEnough {
		t.Errorf("validated %d images, want %d", len(images), config.ValidateEnough)
	}
	if got := int(fetches.Load()); got != config.ValidateEnough {
		t.Errorf("fetched %d candidates, want validation to stop at %d", got, config.ValidateEnough)
	}
}

func TestValidateCandidatesEmpty(t *testing.T) {
	f := New(DefaultConfig(), nil)
	if images := f.validateCandidates(context.Background(), nil, "widget"); images != nil {
		t.Errorf("expected nil for empty input, got %v", images)
	}
}
