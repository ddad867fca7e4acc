// Package imagefinder discovers and validates the single best product image
// for a (product name, optional source URL) pair. Candidates are extracted
// from page markup, optionally broadened through a search provider, validated
// by fetching and decoding their bytes, then ranked by a deterministic score.
// Absence of a usable image is a normal outcome.
package imagefinder

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/zombar/imagefinder/models"
	"github.com/zombar/imagefinder/search"
)

// Finder runs the discovery pipeline. Each invocation is stateless and
// independent; nothing is shared across runs beyond read-only configuration.
type Finder struct {
	config     Config
	httpClient *http.Client
	provider   search.Provider
}

// New creates a Finder. The provider can be nil when broader search will
// never be requested.
func New(config Config, provider search.Provider) *Finder {
	return &Finder{
		config: config,
		// Per-request timeouts come from contexts; the transport is wrapped
		// for trace propagation on every outbound fetch.
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		provider: provider,
	}
}

// Request describes one pipeline invocation.
type Request struct {
	ProductName        string
	SourceURL          string // optional page to extract from
	AllowBroaderSearch bool   // opt-in fallback search; never automatic

	// Progress, when non-nil, receives human-readable stage notifications.
	// Threaded through the call explicitly; there is no global registration.
	Progress func(message string)
}

func (r Request) emit(format string, args ...interface{}) {
	if r.Progress != nil {
		r.Progress(fmt.Sprintf(format, args...))
	}
}

// FindProductImage runs the full pipeline and returns the winning URL or an
// explicit not-found result. It never returns an error: every fetch, decode,
// or provider failure degrades to fewer candidates, and an unvalidated
// candidate URL is preferred over nothing when validation infrastructure is
// down.
func (f *Finder) FindProductImage(ctx context.Context, req Request) models.Selection {
	ctx, span := otel.Tracer("imagefinder").Start(ctx, "FindProductImage")
	defer span.End()
	span.SetAttributes(attribute.String("product.name", req.ProductName))

	candidates := f.gatherCandidates(ctx, req)
	span.SetAttributes(attribute.Int("candidates.count", len(candidates)))
	if len(candidates) == 0 {
		req.emit("no image candidates found for %q", req.ProductName)
		return models.Selection{}
	}

	req.emit("validating %d image candidates", len(candidates))
	eligible := f.selectForValidation(candidates)
	images := f.validateCandidates(ctx, eligible, req.ProductName)
	span.SetAttributes(attribute.Int("validated.count", len(images)))

	if len(images) == 0 {
		// Validation infrastructure may be degraded while extraction worked;
		// a plausible-but-unverified URL beats returning nothing.
		best := highestPriority(candidates)
		req.emit("validation produced no images; falling back to %s", best.URL)
		slog.Info("degrading to unvalidated candidate",
			"product", req.ProductName, "url", best.URL, "priority", best.Priority)
		return models.Selection{
			Found:      true,
			URL:        best.URL,
			Validated:  false,
			Candidates: len(candidates),
		}
	}

	ranked := Rank(images)
	best := ranked[0]
	req.emit("selected %s (%dx%d, score %.1f)", best.URL, best.Width, best.Height, Score(best))

	return models.Selection{
		Found:          true,
		URL:            best.URL,
		Best:           &best,
		Validated:      true,
		Candidates:     len(candidates),
		ValidatedCount: len(images),
	}
}

// gatherCandidates extracts from the primary page and, when allowed and
// needed, broadens through the search provider.
func (f *Finder) gatherCandidates(ctx context.Context, req Request) []models.Candidate {
	var candidates []models.Candidate

	if req.SourceURL != "" {
		req.emit("extracting image candidates from %s", req.SourceURL)
		doc, finalURL, err := f.fetchPage(ctx, req.SourceURL)
		if err != nil {
			slog.Warn("primary page fetch failed", "url", req.SourceURL, "error", err)
		} else {
			candidates = f.extractCandidates(doc, finalURL, req.ProductName)
		}
	}

	if len(candidates) < f.config.BroadenAt && req.AllowBroaderSearch {
		candidates = f.broaden(ctx, req, candidates)
	}

	return candidates
}

// broaden queries the search provider with a domain-restricted query and
// extracts candidates from the returned pages, merging into the primary
// page's candidates up to the broadening cap.
func (f *Finder) broaden(ctx context.Context, req Request, candidates []models.Candidate) []models.Candidate {
	if f.provider == nil {
		return candidates
	}

	query := req.ProductName + " " + strings.Join(f.config.RetailerFilters, " OR ")
	req.emit("broadening search for %q", req.ProductName)

	results, err := f.provider.Search(ctx, query)
	if err != nil {
		slog.Warn("fallback search unavailable", "error", &ProviderError{Query: query, Cause: err})
		return candidates
	}

	var pageURLs []string
	for _, r := range results {
		if r.URL == "" || r.URL == req.SourceURL {
			continue
		}
		pageURLs = append(pageURLs, r.URL)
		if len(pageURLs) >= f.config.BroadenPages {
			break
		}
	}

	// Fallback pages are independent; extract them concurrently. Per-page
	// results keep their slot so the merge order is deterministic.
	perPage := make([][]models.Candidate, len(pageURLs))
	g, gctx := errgroup.WithContext(ctx)
	for i, pageURL := range pageURLs {
		i, pageURL := i, pageURL
		g.Go(func() error {
			doc, finalURL, err := f.fetchPage(gctx, pageURL)
			if err != nil {
				slog.Debug("fallback page fetch failed", "url", pageURL, "error", err)
				return nil
			}
			perPage[i] = f.extractCandidates(doc, finalURL, req.ProductName)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; failures just yield empty slots

	// Merge with cross-page dedup, first seen wins, renumbering discovery
	// order across the whole broadened pass.
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		seen[c.URL] = true
	}
	merged := candidates
	for _, page := range perPage {
		for _, c := range page {
			if len(merged) >= f.config.BroadenCap {
				return merged
			}
			if seen[c.URL] {
				continue
			}
			seen[c.URL] = true
			c.Order = len(merged)
			merged = append(merged, c)
		}
	}
	return merged
}

// highestPriority returns the candidate with the highest base priority,
// earliest discovered on ties.
func highestPriority(candidates []models.Candidate) models.Candidate {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Priority > best.Priority {
			best = c
		}
	}
	return best
}
