package imagefinder

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// fetchPage issues a single GET for a page URL and parses the markup. It
// fails with a *FetchError on non-2xx status, transport error, timeout, or a
// content type that is not textual HTML. No retries: a failed fetch simply
// yields zero candidates from that page.
func (f *Finder) fetchPage(ctx context.Context, pageURL string) (*html.Node, *url.URL, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return nil, nil, &FetchError{URL: pageURL, Reason: "invalid URL", Cause: err}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, nil, &FetchError{URL: pageURL, Reason: "URL must be http or https"}
	}

	ctx, cancel := context.WithTimeout(ctx, f.config.PageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, nil, &FetchError{URL: pageURL, Reason: "failed to create request", Cause: err}
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, nil, &FetchError{URL: pageURL, Reason: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, &FetchError{URL: pageURL, Status: resp.StatusCode, Reason: "non-2xx status"}
	}

	contentType := resp.Header.Get("Content-Type")
	if !isHTMLContentType(contentType) {
		return nil, nil, &FetchError{URL: pageURL, Reason: "not an HTML response: " + contentType}
	}

	// Cap the markup we are willing to parse; pages larger than the cap are
	// parsed truncated rather than rejected.
	doc, err := html.Parse(io.LimitReader(resp.Body, f.config.MaxPageBytes))
	if err != nil {
		return nil, nil, &FetchError{URL: pageURL, Reason: "failed to parse HTML", Cause: err}
	}

	// Redirects may have landed on a different host; resolve candidates and
	// classify trust against the final URL.
	finalURL := parsed
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}

	return doc, finalURL, nil
}

// DownloadImage fetches an image's bytes under the validator's timeout and
// byte cap, for callers that archive the winning image. Returns the body and
// the declared content type.
func (f *Finder) DownloadImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.config.ImageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", &FetchError{URL: imageURL, Reason: "failed to create request", Cause: err}
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, "", &FetchError{URL: imageURL, Reason: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &FetchError{URL: imageURL, Status: resp.StatusCode, Reason: "non-2xx status"}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxImageBytes+1))
	if err != nil {
		return nil, "", &FetchError{URL: imageURL, Reason: "failed to read body", Cause: err}
	}
	if int64(len(data)) > f.config.MaxImageBytes {
		return nil, "", &FetchError{URL: imageURL, Reason: "image too large: exceeds byte cap"}
	}

	return data, resp.Header.Get("Content-Type"), nil
}

// isHTMLContentType accepts textual HTML responses, including pages served
// without an explicit content type.
func isHTMLContentType(contentType string) bool {
	if contentType == "" {
		return true
	}
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") ||
		strings.Contains(ct, "application/xhtml") ||
		strings.Contains(ct, "text/plain")
}
