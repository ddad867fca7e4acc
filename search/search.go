// Package search provides the fallback web-search collaborator used when a
// product page yields too few image candidates. Providers are best-effort:
// an empty result set is a normal outcome, never an error the pipeline acts
// on.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Result is one page returned by a search provider.
type Result struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
}

// Provider returns page URLs for a text query.
type Provider interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// Config contains HTTP provider configuration.
type Config struct {
	BaseURL string        // search endpoint base, e.g. http://searx:8888
	Timeout time.Duration // per-query timeout
}

// DefaultConfig returns default provider configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8888",
		Timeout: 10 * time.Second,
	}
}

// HTTPProvider queries a SearxNG-compatible JSON search endpoint.
type HTTPProvider struct {
	config     Config
	httpClient *http.Client
}

// NewHTTPProvider returns a Provider backed by an instrumented HTTP client.
func NewHTTPProvider(config Config) *HTTPProvider {
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	return &HTTPProvider{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// searchResponse is the JSON shape of a SearxNG results page.
type searchResponse struct {
	Results []Result `json:"results"`
}

// Search runs one text query and returns the result pages. Non-2xx status
// and malformed bodies are errors; callers treat them as provider
// unavailability, not pipeline failure.
func (p *HTTPProvider) Search(ctx context.Context, query string) ([]Result, error) {
	endpoint := fmt.Sprintf("%s/search?q=%s&format=json", p.config.BaseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	return body.Results, nil
}
