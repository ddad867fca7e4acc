package models

import "time"

// CandidateSource identifies where on a page an image reference was discovered.
type CandidateSource string

const (
	SourceStructuredMetadata CandidateSource = "structured-metadata"   // og:image and friends
	SourceSocialMetadata     CandidateSource = "social-metadata"       // twitter:image card
	SourceStructuredData     CandidateSource = "structured-data-block" // JSON-LD "image" key
	SourceClassifiedImageTag CandidateSource = "classified-image-tag"  // img with product/hero/gallery class
	SourceGenericImageTag    CandidateSource = "generic-image-tag"
)

// Candidate is an unvalidated image reference discovered during extraction.
// The URL is absolute and unique within one extraction pass.
type Candidate struct {
	URL      string          `json:"url"`
	Source   CandidateSource `json:"source"`
	AltText  string          `json:"alt_text,omitempty"`
	Priority int             `json:"priority"`

	// Order is the discovery index within the extraction pass. It is the
	// tie-break key when two validated images score identically.
	Order int `json:"-"`
}

// ValidatedImage is a Candidate enriched with metadata obtained by fetching
// and decoding the image bytes. Width and height are always >= 200.
type ValidatedImage struct {
	Candidate

	Width            int       `json:"width"`
	Height           int       `json:"height"`
	Format           string    `json:"format"`
	SizeKB           float64   `json:"size_kb"`
	AspectRatio      float64   `json:"aspect_ratio"`
	HasKeywords      bool      `json:"has_product_keywords"`
	AdjustedPriority int       `json:"adjusted_priority"`
	EXIF             *EXIFData `json:"exif,omitempty"`
}

// EXIFData contains EXIF metadata extracted from a JPEG body. Extraction is
// best-effort; a nil pointer means no EXIF segment was readable.
type EXIFData struct {
	DateTime         string `json:"date_time,omitempty"`
	DateTimeOriginal string `json:"date_time_original,omitempty"`
	Make             string `json:"make,omitempty"`
	Model            string `json:"model,omitempty"`
	Software         string `json:"software,omitempty"`
	ImageDescription string `json:"image_description,omitempty"`
}

// Selection is the terminal output of one pipeline run: either a winning URL
// or an explicit not-found result. The zero value is "not found".
type Selection struct {
	Found bool   `json:"found"`
	URL   string `json:"url,omitempty"`

	// Best describes the winning validated image when one exists. It is nil
	// when the pipeline degraded to an unvalidated candidate URL.
	Best      *ValidatedImage `json:"best,omitempty"`
	Validated bool            `json:"validated"`

	// Candidates and ValidatedCount summarize the run for observability.
	Candidates     int `json:"candidates"`
	ValidatedCount int `json:"validated_count"`
}

// SelectionRecord is a persisted selection outcome (db package).
type SelectionRecord struct {
	ID          string    `json:"id"`
	ProductName string    `json:"product_name"`
	Slug        string    `json:"slug"`
	SourceURL   string    `json:"source_url,omitempty"`
	Found       bool      `json:"found"`
	ImageURL    string    `json:"image_url,omitempty"`
	Validated   bool      `json:"validated"`
	Score       float64   `json:"score,omitempty"`
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
	Format      string    `json:"format,omitempty"`
	ArchivePath string    `json:"archive_path,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
