package imagefinder

import (
	"errors"
	"fmt"
)

// ErrImageTooSmall rejects images under the minimum dimension floor.
var ErrImageTooSmall = errors.New("image below minimum dimensions")

// FetchError reports a failed page or image fetch: transport error, timeout,
// non-2xx status, or unacceptable content type. Fetch failures are local;
// they remove one candidate or page from consideration and never abort the
// pipeline.
type FetchError struct {
	URL    string
	Status int
	Reason string
	Cause  error
}

func (e *FetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Reason, e.Cause)
	}
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: %s (status %d)", e.URL, e.Reason, e.Status)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Reason)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// DecodeError reports bytes that did not decode as an image.
type DecodeError struct {
	URL   string
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.URL, e.Cause)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// ProviderError reports a failed fallback search call. Best-effort only; the
// pipeline proceeds with whatever candidates it already has.
type ProviderError struct {
	Query string
	Cause error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("search %q: %v", e.Query, e.Cause)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}
