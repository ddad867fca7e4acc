package imagefinder

import (
	"encoding/json"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/zombar/imagefinder/models"
)

// imgTag holds the attributes of an <img> element in document order.
type imgTag struct {
	src   string
	alt   string
	class string
}

// pageContent is everything one walk of the parse tree yields for candidate
// extraction.
type pageContent struct {
	metaImages    []string // og:image and equivalents, in document order
	socialImages  []string // twitter:image card references
	structuredRaw []string // raw application/ld+json script bodies
	images        []imgTag
}

// candidateSet accumulates candidates with URL dedup (first seen wins) and a
// hard cap. All additions go through add so the dedup invariant holds for
// every source.
type candidateSet struct {
	base       *url.URL
	seen       map[string]bool
	candidates []models.Candidate
	cap        int
}

func newCandidateSet(base *url.URL, cap int) *candidateSet {
	return &candidateSet{
		base: base,
		seen: make(map[string]bool),
		cap:  cap,
	}
}

// add resolves src against the page URL and appends a candidate unless the
// URL is a duplicate, unusable, or the set is full. Reports whether a
// candidate was appended.
func (cs *candidateSet) add(src string, source models.CandidateSource, alt string, priority int) bool {
	if cs.full() {
		return false
	}
	abs, err := resolveURL(cs.base, src)
	if err != nil || abs == "" {
		return false
	}
	if cs.seen[abs] {
		return false
	}
	cs.seen[abs] = true
	cs.candidates = append(cs.candidates, models.Candidate{
		URL:      abs,
		Source:   source,
		AltText:  alt,
		Priority: priority,
		Order:    len(cs.candidates),
	})
	return true
}

func (cs *candidateSet) full() bool {
	return len(cs.candidates) >= cs.cap
}

// extractCandidates parses fetched markup into a deduplicated,
// priority-tagged candidate list. Malformed or missing elements are simply
// absent from the output; this function never fails.
func (f *Finder) extractCandidates(doc *html.Node, pageURL *url.URL, productName string) []models.Candidate {
	content := collectPageContent(doc)
	trusted := f.config.isTrustedDomain(pageURL)
	tokens := productTokens(productName)
	p := f.config.Priorities

	cs := newCandidateSet(pageURL, f.config.MaxCandidates)

	// Structured page metadata first: it is the page author's own statement
	// of the representative image.
	for _, src := range content.metaImages {
		cs.add(src, models.SourceStructuredMetadata, "", pick(trusted, p.MetaTrusted, p.MetaUntrusted))
	}
	for _, src := range content.socialImages {
		cs.add(src, models.SourceSocialMetadata, "", pick(trusted, p.SocialTrusted, p.SocialUntrusted))
	}
	for _, raw := range content.structuredRaw {
		if src := structuredDataImage(raw); src != "" {
			cs.add(src, models.SourceStructuredData, "", pick(trusted, p.StructuredTrusted, p.StructuredUntrusted))
		}
	}

	// Class-marked img tags, capped.
	classified := 0
	for _, img := range content.images {
		if classified >= f.config.MaxClassified || cs.full() {
			break
		}
		if img.src == "" || !containsAnyToken(img.class, f.config.MarkerTerms) {
			continue
		}
		priority := pick(trusted, p.ClassifiedTrusted, p.ClassifiedUntrusted)
		if containsAnyToken(img.alt, tokens) {
			priority += p.AltKeywordBonus
		}
		if cs.add(img.src, models.SourceClassifiedImageTag, img.alt, priority) {
			classified++
		}
	}

	// Generic sweep only when the page gave us little else.
	if len(cs.candidates) < f.config.BroadenAt {
		for _, img := range content.images {
			if cs.full() {
				break
			}
			if img.src == "" || containsAnyToken(img.src, f.config.JunkTerms) {
				continue
			}
			cs.add(img.src, models.SourceGenericImageTag, img.alt, pick(trusted, p.GenericTrusted, p.GenericUntrusted))
		}
	}

	return cs.candidates
}

// collectPageContent walks the parse tree once, gathering meta image
// references, JSON-LD blocks, and img tags in document order.
func collectPageContent(doc *html.Node) pageContent {
	var content pageContent

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				var property, name, metaContent string
				for _, attr := range n.Attr {
					switch attr.Key {
					case "property":
						property = strings.ToLower(attr.Val)
					case "name":
						name = strings.ToLower(attr.Val)
					case "content":
						metaContent = attr.Val
					}
				}
				if metaContent == "" {
					break
				}
				switch {
				case property == "og:image" || property == "og:image:secure_url" || name == "og:image":
					content.metaImages = append(content.metaImages, metaContent)
				case property == "twitter:image" || name == "twitter:image" || name == "twitter:image:src":
					content.socialImages = append(content.socialImages, metaContent)
				}
			case "script":
				if scriptType(n) == "application/ld+json" && n.FirstChild != nil {
					content.structuredRaw = append(content.structuredRaw, n.FirstChild.Data)
				}
			case "img":
				var img imgTag
				for _, attr := range n.Attr {
					switch attr.Key {
					case "src":
						img.src = attr.Val
					case "alt":
						img.alt = attr.Val
					case "class":
						img.class = attr.Val
					}
				}
				content.images = append(content.images, img)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return content
}

// scriptType returns the lower-cased type attribute of a script element.
func scriptType(n *html.Node) string {
	for _, attr := range n.Attr {
		if attr.Key == "type" {
			return strings.ToLower(strings.TrimSpace(attr.Val))
		}
	}
	return ""
}

// structuredDataImage extracts the first image reference from a JSON-LD
// block: the first string, or first array element, found under an "image"
// key anywhere in the document. Malformed JSON yields nothing.
func structuredDataImage(raw string) string {
	var data interface{}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return ""
	}
	return findImageValue(data)
}

// findImageValue searches decoded JSON depth-first for an "image" key.
func findImageValue(v interface{}) string {
	switch val := v.(type) {
	case map[string]interface{}:
		if img, ok := val["image"]; ok {
			if s := imageString(img); s != "" {
				return s
			}
		}
		// Visit child keys in sorted order; map iteration order would make
		// the chosen image vary between runs when siblings both nest one.
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s := findImageValue(val[k]); s != "" {
				return s
			}
		}
	case []interface{}:
		for _, child := range val {
			if s := findImageValue(child); s != "" {
				return s
			}
		}
	}
	return ""
}

// imageString coerces a JSON-LD image value to a URL string: a plain string,
// the first element of an array, or an ImageObject's url field.
func imageString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case []interface{}:
		if len(val) > 0 {
			return imageString(val[0])
		}
	case map[string]interface{}:
		if u, ok := val["url"].(string); ok {
			return u
		}
	}
	return ""
}

// resolveURL resolves a potentially relative reference against the page URL,
// keeping only http(s) results.
func resolveURL(base *url.URL, href string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	resolved := parsed
	if base != nil {
		resolved = base.ResolveReference(parsed)
	}
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", nil
	}
	return resolved.String(), nil
}

// pick selects the trusted or untrusted value.
func pick(trusted bool, yes, no int) int {
	if trusted {
		return yes
	}
	return no
}
