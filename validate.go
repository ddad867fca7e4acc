package imagefinder

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	// Decoders for the formats product pages actually serve.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/zombar/imagefinder/models"
)

// selectForValidation orders candidates by base priority (stable on discovery
// order) and returns the top slice eligible for validation. Bounds outbound
// fetch work per run.
func (f *Finder) selectForValidation(candidates []models.Candidate) []models.Candidate {
	ordered := make([]models.Candidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})
	if len(ordered) > f.config.ValidateTop {
		ordered = ordered[:f.config.ValidateTop]
	}
	return ordered
}

// validateCandidates fetches and decodes candidates with a bounded worker
// pool, stopping early once enough images pass. A failed validation removes
// only its own candidate; sibling fetches proceed.
func (f *Finder) validateCandidates(ctx context.Context, candidates []models.Candidate, productName string) []models.ValidatedImage {
	if len(candidates) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	numWorkers := f.config.ValidateWorkers
	if numWorkers > len(candidates) {
		numWorkers = len(candidates)
	}

	jobs := make(chan models.Candidate, len(candidates))
	results := make(chan models.ValidatedImage, len(candidates))

	var validated atomic.Int32
	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cand := range jobs {
				if ctx.Err() != nil {
					return
				}
				img, err := f.validateOne(ctx, cand, productName)
				if err != nil {
					slog.Debug("candidate rejected", "url", cand.URL, "error", err)
					continue
				}
				results <- img
				if int(validated.Add(1)) >= f.config.ValidateEnough {
					cancel()
					return
				}
			}
		}()
	}

	for _, cand := range candidates {
		jobs <- cand
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	var images []models.ValidatedImage
	for img := range results {
		images = append(images, img)
	}

	// Completion order is nondeterministic; restore discovery order so the
	// stable tie-break at the scoring stage holds.
	sort.SliceStable(images, func(i, j int) bool {
		return images[i].Order < images[j].Order
	})

	return images
}

// validateOne fetches a candidate's bytes, confirms they decode as an image,
// and enriches the candidate with intrinsic metadata. Every failure is
// returned as an error and treated as "no metadata" by the caller; nothing
// here aborts the run.
func (f *Finder) validateOne(ctx context.Context, cand models.Candidate, productName string) (models.ValidatedImage, error) {
	var zero models.ValidatedImage

	ctx, cancel := context.WithTimeout(ctx, f.config.ImageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cand.URL, nil)
	if err != nil {
		return zero, &FetchError{URL: cand.URL, Reason: "failed to create request", Cause: err}
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return zero, &FetchError{URL: cand.URL, Reason: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return zero, &FetchError{URL: cand.URL, Status: resp.StatusCode, Reason: "non-2xx status"}
	}

	// Fail fast on responses that declare themselves non-images; bodies with
	// no declared type still get a chance to decode.
	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return zero, &FetchError{URL: cand.URL, Reason: "not an image response: " + contentType}
	}

	if resp.ContentLength > f.config.MaxImageBytes {
		return zero, &FetchError{URL: cand.URL, Reason: fmt.Sprintf("image too large: %d bytes", resp.ContentLength)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxImageBytes+1))
	if err != nil {
		return zero, &FetchError{URL: cand.URL, Reason: "failed to read body", Cause: err}
	}
	if int64(len(data)) > f.config.MaxImageBytes {
		return zero, &FetchError{URL: cand.URL, Reason: "image too large: exceeds byte cap"}
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return zero, &DecodeError{URL: cand.URL, Cause: err}
	}
	if cfg.Width < f.config.MinDimension || cfg.Height < f.config.MinDimension {
		return zero, fmt.Errorf("%w: %dx%d", ErrImageTooSmall, cfg.Width, cfg.Height)
	}

	tokens := productTokens(productName)
	hasKeywords := containsAnyToken(cand.URL, tokens)

	adjusted := cand.Priority
	if u, err := url.Parse(cand.URL); err == nil && f.config.isTrustedDomain(u) {
		adjusted += f.config.Priorities.TrustBonus
	}
	if hasKeywords {
		adjusted += f.config.Priorities.KeywordBonus
	}
	if cfg.Width >= f.config.HighResDimension && cfg.Height >= f.config.HighResDimension {
		adjusted += f.config.Priorities.ResolutionBonus
	}

	img := models.ValidatedImage{
		Candidate:        cand,
		Width:            cfg.Width,
		Height:           cfg.Height,
		Format:           format,
		SizeKB:           float64(len(data)) / 1024.0,
		AspectRatio:      float64(cfg.Width) / float64(cfg.Height),
		HasKeywords:      hasKeywords,
		AdjustedPriority: adjusted,
	}
	if format == "jpeg" {
		img.EXIF = extractEXIF(data)
	}

	return img, nil
}

// extractEXIF pulls a few descriptive EXIF fields from a JPEG body.
// Best-effort: most product imagery has its EXIF stripped, and a missing or
// corrupt segment returns nil.
func extractEXIF(data []byte) *models.EXIFData {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}

	get := func(field exif.FieldName) string {
		tag, err := x.Get(field)
		if err != nil {
			return ""
		}
		if tag.Format() == tiff.StringVal {
			if s, err := tag.StringVal(); err == nil {
				return strings.TrimSpace(s)
			}
		}
		return strings.Trim(tag.String(), `"`)
	}

	exifData := &models.EXIFData{
		DateTime:         get(exif.DateTime),
		DateTimeOriginal: get(exif.DateTimeOriginal),
		Make:             get(exif.Make),
		Model:            get(exif.Model),
		Software:         get(exif.Software),
		ImageDescription: get(exif.ImageDescription),
	}
	if *exifData == (models.EXIFData{}) {
		return nil
	}
	return exifData
}
