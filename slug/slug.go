// Package slug generates URL- and filesystem-safe identifiers from product
// names and image URLs, used as archive keys and database slugs.
package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonAlnum    = regexp.MustCompile("[^a-z0-9-]+")
	multiHyphen = regexp.MustCompile("-+")
)

// Generate creates a URL-friendly slug from a string
func Generate(s string) string {
	if s == "" {
		return ""
	}

	s = strings.ToLower(s)

	// Transliterate unicode to ASCII
	s = transliterate(s)

	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "_", "-")
	s = nonAlnum.ReplaceAllString(s, "")
	s = multiHyphen.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	// Limit length to 100 characters
	if len(s) > 100 {
		s = s[:100]
		s = strings.TrimRight(s, "-")
	}

	return s
}

// FromProduct generates a slug from a product name, falling back to a
// generic slug when the name transliterates to nothing.
func FromProduct(name string) string {
	if s := Generate(name); s != "" {
		return s
	}
	return "product"
}

// FromImageURL generates a slug from an image URL's filename, without query
// parameters or extension.
func FromImageURL(url string) string {
	parts := strings.Split(url, "/")
	if len(parts) == 0 {
		return ""
	}

	filename := parts[len(parts)-1]
	if idx := strings.Index(filename, "?"); idx != -1 {
		filename = filename[:idx]
	}
	if idx := strings.LastIndex(filename, "."); idx != -1 {
		filename = filename[:idx]
	}

	return Generate(filename)
}

// transliterate converts unicode characters to ASCII equivalents
func transliterate(s string) string {
	// Normalize to NFD, strip nonspacing marks, recompose
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// isMn checks if a rune is a nonspacing mark (accents, diacritics)
func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}
