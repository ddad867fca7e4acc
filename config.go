package imagefinder

import (
	"net/url"
	"strings"
	"time"
)

// Config contains pipeline configuration. The priority table, bonus values,
// and term sets are policy constants; they are exposed here so scoring stays
// auditable and testable rather than buried in literals. All fields are
// read-only once the Finder is constructed.
type Config struct {
	PageTimeout   time.Duration // timeout for fetching a candidate page
	ImageTimeout  time.Duration // timeout for fetching a single image
	MaxPageBytes  int64         // cap on fetched page markup
	MaxImageBytes int64         // cap on downloaded image bytes

	MinDimension     int // images below this on either axis are rejected
	HighResDimension int // both axes at or above this earn the resolution bonus

	MaxCandidates   int // hard cap on candidates from one page
	MaxClassified   int // cap on class-marked img tags per page
	BroadenAt       int // broaden when a page yields fewer candidates than this
	BroadenPages    int // fallback search pages to extract
	BroadenCap      int // candidate cap across primary page plus fallback pages
	ValidateTop     int // validate at most this many candidates, by base priority
	ValidateEnough  int // stop validating once this many images pass
	ValidateWorkers int // concurrent image fetches

	UserAgent string

	Priorities PriorityTable

	// TrustedDomains is the allow-list of retail/manufacturer hosts used to
	// bias extraction and validation priority. Matching is by host suffix.
	TrustedDomains []string

	// MarkerTerms classify an img tag as product imagery when one appears in
	// its class attribute.
	MarkerTerms []string

	// JunkTerms exclude an img URL from the generic pass.
	JunkTerms []string

	// RetailerFilters are appended to broadened search queries to keep
	// results on major retail sites.
	RetailerFilters []string
}

// PriorityTable holds the per-source base priorities (trusted/untrusted) and
// the validation-time bonuses.
type PriorityTable struct {
	MetaTrusted         int
	MetaUntrusted       int
	SocialTrusted       int
	SocialUntrusted     int
	StructuredTrusted   int
	StructuredUntrusted int
	ClassifiedTrusted   int
	ClassifiedUntrusted int
	GenericTrusted      int
	GenericUntrusted    int

	AltKeywordBonus int // classified img whose alt text names the product
	TrustBonus      int // validated image hosted on a trusted domain
	KeywordBonus    int // validated image whose URL names the product
	ResolutionBonus int // validated image at or above HighResDimension
}

// DefaultPriorities returns the reference priority table.
func DefaultPriorities() PriorityTable {
	return PriorityTable{
		MetaTrusted:         10,
		MetaUntrusted:       8,
		SocialTrusted:       9,
		SocialUntrusted:     7,
		StructuredTrusted:   10,
		StructuredUntrusted: 8,
		ClassifiedTrusted:   7,
		ClassifiedUntrusted: 5,
		GenericTrusted:      5,
		GenericUntrusted:    2,
		AltKeywordBonus:     1,
		TrustBonus:          2,
		KeywordBonus:        1,
		ResolutionBonus:     1,
	}
}

// DefaultConfig returns default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		PageTimeout:      10 * time.Second,
		ImageTimeout:     12 * time.Second,
		MaxPageBytes:     5 * 1024 * 1024,
		MaxImageBytes:    2560 * 1024, // ~2.5MB
		MinDimension:     200,
		HighResDimension: 800,
		MaxCandidates:    15,
		MaxClassified:    5,
		BroadenAt:        5,
		BroadenPages:     3,
		BroadenCap:       12,
		ValidateTop:      10,
		ValidateEnough:   5,
		ValidateWorkers:  5,
		UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Priorities:       DefaultPriorities(),
		TrustedDomains: []string{
			"amazon.com",
			"bestbuy.com",
			"walmart.com",
			"target.com",
			"costco.com",
			"newegg.com",
			"homedepot.com",
			"lowes.com",
			"apple.com",
			"samsung.com",
			"sony.com",
			"lg.com",
			"dell.com",
			"hp.com",
			"nike.com",
			"adidas.com",
		},
		MarkerTerms: []string{"product", "main", "primary", "hero", "gallery"},
		JunkTerms:   []string{"icon", "logo", "sprite", "pixel", "blank", "avatar"},
		RetailerFilters: []string{
			"site:amazon.com",
			"site:bestbuy.com",
			"site:walmart.com",
			"site:target.com",
		},
	}
}

// isTrustedDomain reports whether the URL's host is on the allow-list,
// matching the domain itself or any subdomain.
func (c Config) isTrustedDomain(u *url.URL) bool {
	if u == nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range c.TrustedDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// productTokens returns up to the first three whitespace-delimited tokens of
// the product name, lower-cased. These drive all keyword heuristics.
func productTokens(productName string) []string {
	fields := strings.Fields(strings.ToLower(productName))
	if len(fields) > 3 {
		fields = fields[:3]
	}
	return fields
}

// containsAnyToken reports whether s (lower-cased) contains any of the tokens.
func containsAnyToken(s string, tokens []string) bool {
	s = strings.ToLower(s)
	for _, tok := range tokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}
