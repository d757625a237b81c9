package store

import (
	"errors"
	"strings"
	"time"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("catalog record not found")

// ErrConflict signals that a create collided with an existing unique key.
var ErrConflict = errors.New("catalog record already exists")

// DocumentStatus mirrors the documents.status column.
type DocumentStatus string

// Document lifecycle statuses.
const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusIndexed    DocumentStatus = "indexed"
	StatusNeedsOCR   DocumentStatus = "needs_ocr"
	StatusError      DocumentStatus = "error"
)

// FileType is the coarse format of a document.
type FileType string

// Known file types.
const (
	FileTypePDF     FileType = "pdf"
	FileTypeHTML    FileType = "html"
	FileTypeUnknown FileType = "unknown"
)

// LineageEntry records one (source, origin) pair that surfaced a document.
type LineageEntry struct {
	Source    string    `json:"source"`
	SourceID  string    `json:"source_id"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Document models one row of the documents table.
type Document struct {
	ID           string   `json:"id"`
	SourceURL    string   `json:"source_url"`
	CanonicalURL *string  `json:"canonical_url,omitempty"`
	FinalURL     *string  `json:"final_url,omitempty"`
	Title        string   `json:"title,omitempty"`
	FileType     FileType `json:"file_type"`
	DocumentType string   `json:"document_type,omitempty"`

	RawText     *string `json:"raw_text,omitempty"`
	PageCount   *int    `json:"page_count,omitempty"`
	LengthChars *int    `json:"length_chars,omitempty"`
	// Summary is written by downstream consumers only.
	Summary *string `json:"summary,omitempty"`

	ByteHash *string `json:"byte_hash,omitempty"`
	TextHash *string `json:"text_hash,omitempty"`

	HTTPETag         *string    `json:"http_etag,omitempty"`
	HTTPLastModified *string    `json:"http_last_modified,omitempty"`
	LastFetchedAt    *time.Time `json:"last_fetched_at,omitempty"`

	ExtractionQuality *float64 `json:"extraction_quality,omitempty"`
	OCRRequired       bool     `json:"ocr_required"`

	Lineage []LineageEntry `json:"discovery_lineage"`
	Status  DocumentStatus `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Touch adds a lineage entry for (source, sourceID) or refreshes LastSeen on
// the existing one. It reports whether a new entry was appended.
func (d *Document) Touch(source, sourceID string, at time.Time) bool {
	for i := range d.Lineage {
		if d.Lineage[i].Source == source && d.Lineage[i].SourceID == sourceID {
			d.Lineage[i].LastSeen = at
			return false
		}
	}
	d.Lineage = append(d.Lineage, LineageEntry{
		Source:    source,
		SourceID:  sourceID,
		FirstSeen: at,
		LastSeen:  at,
	})
	return true
}

// Alias records a distinct URL string that resolves to an existing document.
type Alias struct {
	AliasURL        string    `json:"alias_url"`
	DocumentID      string    `json:"document_id"`
	DiscoverySource string    `json:"discovery_source"`
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
}

// RunConfig captures the options a discovery run was started with.
type RunConfig struct {
	Sources          []string `json:"sources"`
	MaxHubs          int      `json:"max_hubs"`
	DelayMs          int64    `json:"delay_ms"`
	ResolveRedirects bool     `json:"resolve_redirects"`
}

// RunCounters are the final tallies of a discovery run.
type RunCounters struct {
	URLsFound   int `json:"urls_found"`
	URLsNew     int `json:"urls_new"`
	URLsChanged int `json:"urls_changed"`
	Errors      int `json:"errors"`
}

// DiscoveryRun models the discovery_runs table.
type DiscoveryRun struct {
	ID          string      `json:"id"`
	Source      string      `json:"source"`
	Config      RunConfig   `json:"config"`
	Counters    RunCounters `json:"counters"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// JoinSources renders the comma-joined source label stored on a run.
func JoinSources(sources []string) string {
	return strings.Join(sources, ",")
}

// ExtractionUpdate carries the content fields written after a full fetch.
type ExtractionUpdate struct {
	FinalURL          *string
	FileType          FileType
	RawText           *string
	PageCount         *int
	LengthChars       *int
	ByteHash          *string
	TextHash          *string
	HTTPETag          *string
	HTTPLastModified  *string
	LastFetchedAt     time.Time
	ExtractionQuality *float64
	OCRRequired       bool
	Status            DocumentStatus
}

// FetchTouch updates fetch metadata only. Nil pointers keep stored values.
type FetchTouch struct {
	FinalURL         *string
	HTTPETag         *string
	HTTPLastModified *string
	LastFetchedAt    time.Time
	Status           DocumentStatus
}
