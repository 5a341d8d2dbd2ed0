// Package models defines the persisted note shapes and their derived views.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

const (
	// DefaultMaxTitleLength bounds derived titles, in runes.
	DefaultMaxTitleLength = 50
	// DefaultPreviewLength bounds one-line previews, in runes.
	DefaultPreviewLength = 100
	// UntitledTitle is used when content has no non-blank line.
	UntitledTitle = "Untitled"
)

// NoteRecord is a single note attached to a page. Timestamps are epoch
// milliseconds.
type NoteRecord struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Title   string `json:"title"`
	Created int64  `json:"created"`
	Updated int64  `json:"updated"`
}

// Validate checks the record invariants.
func (n NoteRecord) Validate() error {
	if err := validation.ValidateStruct(&n,
		validation.Field(&n.ID, validation.Required),
		validation.Field(&n.Created, validation.Min(int64(0))),
		validation.Field(&n.Updated, validation.Min(int64(0))),
	); err != nil {
		return err
	}
	if n.Updated < n.Created {
		return errors.New("updated: must not be before created")
	}
	return nil
}

// CreatedAt returns Created as a time.Time.
func (n NoteRecord) CreatedAt() time.Time { return time.UnixMilli(n.Created) }

// UpdatedAt returns Updated as a time.Time.
func (n NoteRecord) UpdatedAt() time.Time { return time.UnixMilli(n.Updated) }

// NoteCollection is every note stored under one normalized URL.
type NoteCollection struct {
	URL     string       `json:"url"`
	Updated int64        `json:"updated"`
	Notes   []NoteRecord `json:"notes"`
}

// Validate checks the collection and every record in it.
func (c NoteCollection) Validate() error {
	if err := validation.ValidateStruct(&c,
		validation.Field(&c.URL, validation.Required),
		validation.Field(&c.Updated, validation.Min(int64(0))),
	); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(c.Notes))
	for i, n := range c.Notes {
		if err := n.Validate(); err != nil {
			return fmt.Errorf("notes[%d]: %w", i, err)
		}
		if _, dup := seen[n.ID]; dup {
			return fmt.Errorf("notes[%d]: duplicate id %q", i, n.ID)
		}
		seen[n.ID] = struct{}{}
	}
	return nil
}

// Index returns the position of the note with id, or -1.
func (c *NoteCollection) Index(id string) int {
	for i := range c.Notes {
		if c.Notes[i].ID == id {
			return i
		}
	}
	return -1
}

// LatestUpdate returns the greatest Updated among the notes, or 0.
func (c *NoteCollection) LatestUpdate() int64 {
	var latest int64
	for _, n := range c.Notes {
		latest = max(latest, n.Updated)
	}
	return latest
}

// ErrMalformed wraps every decoding failure of a stored collection.
var ErrMalformed = errors.New("malformed collection")

// DecodeCollection parses and validates a stored collection blob.
func DecodeCollection(data []byte) (*NoteCollection, error) {
	var c NoteCollection
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if c.Notes == nil {
		c.Notes = []NoteRecord{}
	}
	return &c, nil
}

// EncodeCollection serializes c for storage.
func EncodeCollection(c *NoteCollection) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode collection: %w", err)
	}
	return string(data), nil
}

// NewID returns a fresh note identifier.
func NewID() string {
	return uuid.NewString()
}

// DeriveTitle returns the first non-blank line of content, trimmed and cut to
// limit runes, or UntitledTitle.
func DeriveTitle(content string, limit int) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		return truncate(line, limit)
	}
	return UntitledTitle
}

// Preview flattens content onto one line and cuts it to limit runes.
func Preview(content string, limit int) string {
	return truncate(strings.ReplaceAll(content, "\n", " "), limit)
}

func truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
