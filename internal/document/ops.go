package document

import (
	"fmt"
	"sort"
	"strings"

	"github.com/starford/tasklet/internal/apperr"
)

func notFound(id string) error {
	return fmt.Errorf("document: item %s: %w", id, apperr.ErrNotFound)
}

// Find returns the index of the item with id, or -1.
func (d *Document) Find(id string) int {
	for i := range d.Items {
		if d.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// Add appends a new item to the in-progress or longterm list.
func (d *Document) Add(id, text string, longterm bool, now Timestamp) (Item, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Item{}, fmt.Errorf("document: empty text: %w", apperr.ErrInvalidInput)
	}
	if id == "" || d.Find(id) >= 0 {
		return Item{}, fmt.Errorf("document: id %q unusable: %w", id, apperr.ErrConflict)
	}
	section := InProgress
	if longterm {
		section = Longterm
	}
	item := Item{
		ID:        id,
		Text:      text,
		Section:   section,
		CreatedAt: now,
		UpdatedAt: now,
	}
	d.Items = append(d.Items, item)
	return item, nil
}

// Edit replaces the text of an item.
func (d *Document) Edit(id, text string, now Timestamp) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("document: empty text: %w", apperr.ErrInvalidInput)
	}
	i := d.Find(id)
	if i < 0 {
		return notFound(id)
	}
	d.Items[i].Text = text
	d.Items[i].UpdatedAt = now
	return nil
}

// Toggle flips completion: in-progress and done swap, longterm items flip
// their done-today mark. Trashed items cannot be toggled.
func (d *Document) Toggle(id string, now Timestamp) error {
	i := d.Find(id)
	if i < 0 {
		return notFound(id)
	}
	it := &d.Items[i]
	switch it.Section {
	case InProgress:
		it.Section = Done
	case Done:
		it.Section = InProgress
	case Longterm:
		it.DoneToday = !it.DoneToday
	default:
		return fmt.Errorf("document: item %s is in trash: %w", id, apperr.ErrInvalidInput)
	}
	it.UpdatedAt = now
	return nil
}

// MoveToTrash moves an item to the trash and remembers where it came from
// so the move can be undone.
func (d *Document) MoveToTrash(id string, now Timestamp) error {
	i := d.Find(id)
	if i < 0 {
		return notFound(id)
	}
	it := &d.Items[i]
	if it.Section == Trash {
		return fmt.Errorf("document: item %s already in trash: %w", id, apperr.ErrConflict)
	}
	from := it.Section
	it.TrashedFrom = from
	it.Section = Trash
	it.DoneToday = false
	it.UpdatedAt = now
	d.Prefs.LastUndo = &Undo{ItemID: id, From: from}
	return nil
}

// Restore moves a trashed item back to the section it was trashed from.
func (d *Document) Restore(id string, now Timestamp) error {
	i := d.Find(id)
	if i < 0 {
		return notFound(id)
	}
	it := &d.Items[i]
	if it.Section != Trash {
		return fmt.Errorf("document: item %s not in trash: %w", id, apperr.ErrConflict)
	}
	it.Section = restoreTarget(it.TrashedFrom)
	it.TrashedFrom = ""
	it.UpdatedAt = now
	d.clearUndo(id)
	return nil
}

// Undo reverts the most recent move to trash. It reports whether anything
// was restored.
func (d *Document) Undo(now Timestamp) bool {
	u := d.Prefs.LastUndo
	if u == nil {
		return false
	}
	d.Prefs.LastUndo = nil
	i := d.Find(u.ItemID)
	if i < 0 || d.Items[i].Section != Trash {
		return false
	}
	it := &d.Items[i]
	target := it.TrashedFrom
	if target == "" {
		target = u.From
	}
	it.Section = restoreTarget(target)
	it.TrashedFrom = ""
	it.UpdatedAt = now
	return true
}

// Purge deletes an item permanently.
func (d *Document) Purge(id string) error {
	i := d.Find(id)
	if i < 0 {
		return notFound(id)
	}
	d.Items = append(d.Items[:i], d.Items[i+1:]...)
	d.clearUndo(id)
	return nil
}

// EmptyTrash deletes every trashed item and returns how many were removed.
func (d *Document) EmptyTrash() int {
	kept := d.Items[:0]
	removed := 0
	for _, it := range d.Items {
		if it.Section == Trash {
			removed++
			continue
		}
		kept = append(kept, it)
	}
	d.Items = kept
	if removed > 0 {
		d.Prefs.LastUndo = nil
	}
	return removed
}

// ResetDaily clears the done-today mark of longterm items once per calendar
// day. today is a YYYY-MM-DD key. It reports whether the document changed.
func (d *Document) ResetDaily(today string) bool {
	if d.Prefs.LastLongtermReset == today {
		return false
	}
	for i := range d.Items {
		if d.Items[i].Section == Longterm {
			d.Items[i].DoneToday = false
		}
	}
	d.Prefs.LastLongtermReset = today
	return true
}

// BySection returns the items of section ordered by creation time.
func (d *Document) BySection(section Section) []Item {
	var out []Item
	for _, it := range d.Items {
		if it.Section == section {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

// Search filters items by a case-insensitive substring of their text.
func Search(items []Item, term string) []Item {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return items
	}
	var out []Item
	for _, it := range items {
		if strings.Contains(strings.ToLower(it.Text), term) {
			out = append(out, it)
		}
	}
	return out
}

// DayKey formats ts as the local YYYY-MM-DD key used by ResetDaily.
func DayKey(ts Timestamp) string {
	return ts.Time().Format("2006-01-02")
}

func restoreTarget(s Section) Section {
	if s.Valid() && s != Trash {
		return s
	}
	return InProgress
}

func (d *Document) clearUndo(id string) {
	if d.Prefs.LastUndo != nil && d.Prefs.LastUndo.ItemID == id {
		d.Prefs.LastUndo = nil
	}
}
