package models

import "time"

// CollectionSummary is one page's notes as returned by aggregate queries.
type CollectionSummary struct {
	URL     string       `json:"url"`
	Domain  string       `json:"domain"`
	Notes   []NoteRecord `json:"notes"`
	Updated int64        `json:"updated"`
}

// AnnotatedNote is a note flattened out of its collection for the domain and
// global views.
type AnnotatedNote struct {
	NoteRecord
	SourceURL string `json:"sourceUrl,omitempty"`
	Domain    string `json:"domain,omitempty"`
}

// DomainSummary counts what is stored for one host.
type DomainSummary struct {
	Domain  string `json:"domain"`
	Pages   int    `json:"pages"`
	Notes   int    `json:"notes"`
	Updated int64  `json:"updated"`
}

// Stats describes the notes of a single page.
type Stats struct {
	Count       int   `json:"count"`
	TotalSize   int   `json:"totalSize"`
	LastUpdated int64 `json:"lastUpdated"`
}

// ExportTimeLayout is ISO-8601 in UTC with millisecond precision.
const ExportTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Export is the on-demand download of a page's notes.
type Export struct {
	URL      string       `json:"url"`
	Notes    []NoteRecord `json:"notes"`
	Exported string       `json:"exported"`
}

// NewExport stamps notes for url with the export time.
func NewExport(url string, notes []NoteRecord, at time.Time) Export {
	if notes == nil {
		notes = []NoteRecord{}
	}
	return Export{
		URL:      url,
		Notes:    notes,
		Exported: at.UTC().Format(ExportTimeLayout),
	}
}
