package models

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDeriveTitle(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{"first non-blank line", "  \n  First Line\nSecond", "First Line"},
		{"blank", "   ", UntitledTitle},
		{"empty", "", UntitledTitle},
		{"tabs and crlf", "\t\r\nTitle here\r\nbody", "Title here"},
		{"truncated", strings.Repeat("x", 80), strings.Repeat("x", DefaultMaxTitleLength)},
		{"multibyte truncation", strings.Repeat("日", 60), strings.Repeat("日", DefaultMaxTitleLength)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveTitle(tc.content, DefaultMaxTitleLength); got != tc.want {
				t.Errorf("DeriveTitle(%q) = %q, want %q", tc.content, got, tc.want)
			}
		})
	}
}

func TestPreview(t *testing.T) {
	if got := Preview("a\nb\nc", 10); got != "a b c" {
		t.Errorf("Preview = %q", got)
	}
	if got := Preview(strings.Repeat("y", 150), DefaultPreviewLength); len(got) != DefaultPreviewLength {
		t.Errorf("preview len = %d", len(got))
	}
}

func TestDecodeCollection_Valid(t *testing.T) {
	blob := `{"url":"https://example.com/","updated":200,"notes":[
		{"id":"a","content":"hello","title":"hello","created":100,"updated":200}]}`
	c, err := DecodeCollection([]byte(blob))
	if err != nil {
		t.Fatalf("DecodeCollection: %v", err)
	}
	if c.URL != "https://example.com/" || len(c.Notes) != 1 || c.Notes[0].ID != "a" {
		t.Errorf("unexpected collection: %+v", c)
	}
	if c.LatestUpdate() != 200 {
		t.Errorf("LatestUpdate = %d", c.LatestUpdate())
	}
	if c.Index("a") != 0 || c.Index("zz") != -1 {
		t.Error("Index lookup wrong")
	}
}

func TestDecodeCollection_Rejects(t *testing.T) {
	cases := map[string]string{
		"not json":         `{{{`,
		"empty object":     `{}`,
		"missing id":       `{"url":"u","updated":1,"notes":[{"content":"x","created":1,"updated":1}]}`,
		"created > update": `{"url":"u","updated":1,"notes":[{"id":"a","created":5,"updated":1}]}`,
		"duplicate ids":    `{"url":"u","updated":1,"notes":[{"id":"a","created":1,"updated":1},{"id":"a","created":1,"updated":1}]}`,
		"wrong types":      `{"url":"u","updated":"yesterday","notes":[]}`,
	}
	for name, blob := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeCollection([]byte(blob))
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("error %v does not wrap ErrMalformed", err)
			}
		})
	}
}

func TestDecodeCollection_NilNotesBecomesEmpty(t *testing.T) {
	c, err := DecodeCollection([]byte(`{"url":"u","updated":0}`))
	if err != nil {
		t.Fatalf("DecodeCollection: %v", err)
	}
	if c.Notes == nil {
		t.Error("Notes should be non-nil")
	}
}

func TestEncodeDecodeKeepsOrder(t *testing.T) {
	c := &NoteCollection{URL: "u", Updated: 3, Notes: []NoteRecord{
		{ID: "z", Created: 1, Updated: 1},
		{ID: "a", Created: 2, Updated: 3},
	}}
	s, err := EncodeCollection(c)
	if err != nil {
		t.Fatalf("EncodeCollection: %v", err)
	}
	got, err := DecodeCollection([]byte(s))
	if err != nil {
		t.Fatalf("DecodeCollection: %v", err)
	}
	if got.Notes[0].ID != "z" || got.Notes[1].ID != "a" {
		t.Errorf("order not preserved: %+v", got.Notes)
	}
}

func TestNewID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		if id == "" || seen[id] {
			t.Fatalf("bad id %q", id)
		}
		seen[id] = true
	}
}

func TestNewExport(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 30, 0, 5_000_000, time.FixedZone("X", 3600))
	e := NewExport("https://example.com/", nil, at)
	if e.Exported != "2024-03-01T11:30:00.005Z" {
		t.Errorf("Exported = %q", e.Exported)
	}
	if e.Notes == nil {
		t.Error("Notes should be non-nil")
	}
}
