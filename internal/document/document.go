// Package document defines the persisted application state and the pure
// transformations applied to it.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// CurrentVersion is the schema version written by this build.
const CurrentVersion = 1

// Section is the list an item currently lives in.
type Section string

const (
	InProgress Section = "inProgress"
	Done       Section = "done"
	Longterm   Section = "longterm"
	Trash      Section = "trash"
)

// MainSections are the sections shown outside the trash, in display order.
var MainSections = []Section{InProgress, Done, Longterm}

// Valid reports whether s is a known section.
func (s Section) Valid() bool {
	switch s {
	case InProgress, Done, Longterm, Trash:
		return true
	}
	return false
}

// Timestamp is a point in time stored as Unix milliseconds.
type Timestamp int64

// Now returns the current time as a Timestamp.
func Now() Timestamp { return FromTime(time.Now()) }

// FromTime converts t to a Timestamp.
func FromTime(t time.Time) Timestamp { return Timestamp(t.UnixMilli()) }

// Time converts ts back to a time.Time.
func (ts Timestamp) Time() time.Time { return time.UnixMilli(int64(ts)) }

// Item is a single todo entry.
type Item struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Section     Section   `json:"section"`
	CreatedAt   Timestamp `json:"createdAt"`
	UpdatedAt   Timestamp `json:"updatedAt"`
	DoneToday   bool      `json:"doneToday"`
	TrashedFrom Section   `json:"trashedFrom,omitempty"`
}

// Undo records the most recent move to trash so it can be reverted.
type Undo struct {
	ItemID string  `json:"itemId"`
	From   Section `json:"from"`
}

// Prefs holds user preferences. Keys this build does not know about are
// kept in Extra and written back unchanged.
type Prefs struct {
	Theme             string
	BgImageDataURL    string
	Filter            string
	LastUndo          *Undo
	LastLongtermReset string
	Extra             map[string]json.RawMessage
}

const (
	prefTheme             = "theme"
	prefBgImageDataURL    = "bgImageDataUrl"
	prefFilter            = "filter"
	prefLastUndo          = "lastUndo"
	prefLastLongtermReset = "lastLongtermReset"
)

// MarshalJSON writes known keys and any preserved unknown keys.
func (p Prefs) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+5)
	for k, v := range p.Extra {
		out[k] = v
	}
	out[prefTheme] = p.Theme
	out[prefBgImageDataURL] = p.BgImageDataURL
	out[prefFilter] = p.Filter
	out[prefLastUndo] = p.LastUndo
	if p.LastLongtermReset == "" {
		out[prefLastLongtermReset] = nil
	} else {
		out[prefLastLongtermReset] = p.LastLongtermReset
	}
	return json.Marshal(out)
}

// Document is the full application state, persisted as one JSON text.
type Document struct {
	Version int    `json:"version"`
	Prefs   Prefs  `json:"prefs"`
	Items   []Item `json:"items"`
}

// DefaultPrefs returns the preferences of a fresh document.
func DefaultPrefs() Prefs {
	return Prefs{
		Theme:  "dark",
		Filter: "all",
	}
}

// Default returns an empty document at the current version.
func Default() Document {
	return Document{
		Version: CurrentVersion,
		Prefs:   DefaultPrefs(),
		Items:   []Item{},
	}
}

// Clone returns a deep copy of d.
func Clone(d Document) Document {
	out := d
	out.Items = make([]Item, len(d.Items))
	copy(out.Items, d.Items)
	if d.Prefs.LastUndo != nil {
		u := *d.Prefs.LastUndo
		out.Prefs.LastUndo = &u
	}
	if d.Prefs.Extra != nil {
		out.Prefs.Extra = make(map[string]json.RawMessage, len(d.Prefs.Extra))
		for k, v := range d.Prefs.Extra {
			out.Prefs.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// Marshal serializes d as pretty-printed JSON.
func Marshal(d Document) ([]byte, error) {
	if d.Items == nil {
		d.Items = []Item{}
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("document: marshal: %w", err)
	}
	return data, nil
}

// Parse decodes text and migrates the result. It fails only when text is
// not JSON at all; every structural problem is repaired by Migrate.
func Parse(text string) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Default(), fmt.Errorf("document: parse: %w", err)
	}
	return Migrate(raw), nil
}
