package document

import (
	"errors"
	"testing"

	"github.com/starford/tasklet/internal/apperr"
)

func seeded(t *testing.T) *Document {
	t.Helper()
	d := Default()
	if _, err := d.Add("a", "alpha", false, 10); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Add("b", "beta", true, 20); err != nil {
		t.Fatal(err)
	}
	return &d
}

func TestAdd(t *testing.T) {
	d := Default()
	it, err := d.Add("x", "  hello  ", false, 42)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if it.Text != "hello" || it.Section != InProgress {
		t.Errorf("item = %+v", it)
	}
	if it.CreatedAt != it.UpdatedAt {
		t.Error("createdAt must equal updatedAt on creation")
	}
	if _, err := d.Add("y", "   ", false, 1); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("empty text err = %v", err)
	}
	if _, err := d.Add("x", "again", false, 1); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("duplicate id err = %v", err)
	}
}

func TestToggle(t *testing.T) {
	d := seeded(t)
	if err := d.Toggle("a", 30); err != nil {
		t.Fatal(err)
	}
	if d.Items[0].Section != Done || d.Items[0].UpdatedAt != 30 {
		t.Errorf("after toggle: %+v", d.Items[0])
	}
	_ = d.Toggle("a", 31)
	if d.Items[0].Section != InProgress {
		t.Errorf("toggle back: %+v", d.Items[0])
	}
	_ = d.Toggle("b", 32)
	if !d.Items[1].DoneToday || d.Items[1].Section != Longterm {
		t.Errorf("longterm toggle: %+v", d.Items[1])
	}
	if err := d.Toggle("missing", 1); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing err = %v", err)
	}
}

func TestTrashRestoreUndo(t *testing.T) {
	d := seeded(t)
	_ = d.Toggle("b", 21)
	if err := d.MoveToTrash("b", 40); err != nil {
		t.Fatal(err)
	}
	b := d.Items[1]
	if b.Section != Trash || b.TrashedFrom != Longterm || b.DoneToday {
		t.Errorf("trashed: %+v", b)
	}
	if d.Prefs.LastUndo == nil || d.Prefs.LastUndo.ItemID != "b" {
		t.Fatalf("lastUndo = %+v", d.Prefs.LastUndo)
	}
	if err := d.MoveToTrash("b", 41); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("double trash err = %v", err)
	}

	if !d.Undo(50) {
		t.Fatal("Undo reported nothing restored")
	}
	if d.Items[1].Section != Longterm || d.Items[1].TrashedFrom != "" {
		t.Errorf("after undo: %+v", d.Items[1])
	}
	if d.Undo(51) {
		t.Error("second Undo should be a no-op")
	}

	_ = d.MoveToTrash("a", 60)
	if err := d.Restore("a", 61); err != nil {
		t.Fatal(err)
	}
	if d.Items[0].Section != InProgress || d.Prefs.LastUndo != nil {
		t.Errorf("after restore: %+v undo=%+v", d.Items[0], d.Prefs.LastUndo)
	}
	if err := d.Restore("a", 62); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("restore non-trashed err = %v", err)
	}
}

func TestRestoreWithoutOrigin(t *testing.T) {
	d := Default()
	d.Items = []Item{{ID: "z", Text: "z", Section: Trash}}
	if err := d.Restore("z", 1); err != nil {
		t.Fatal(err)
	}
	if d.Items[0].Section != InProgress {
		t.Errorf("section = %q, want inProgress", d.Items[0].Section)
	}
}

func TestPurgeAndEmptyTrash(t *testing.T) {
	d := seeded(t)
	_ = d.MoveToTrash("a", 1)
	if err := d.Purge("a"); err != nil {
		t.Fatal(err)
	}
	if len(d.Items) != 1 || d.Prefs.LastUndo != nil {
		t.Errorf("after purge: %+v undo=%+v", d.Items, d.Prefs.LastUndo)
	}

	_, _ = d.Add("c", "gamma", false, 5)
	_ = d.MoveToTrash("b", 6)
	_ = d.MoveToTrash("c", 7)
	if n := d.EmptyTrash(); n != 2 {
		t.Errorf("EmptyTrash = %d, want 2", n)
	}
	if len(d.Items) != 0 {
		t.Errorf("items left: %+v", d.Items)
	}
}

func TestResetDaily(t *testing.T) {
	d := seeded(t)
	_ = d.Toggle("b", 1)
	if !d.ResetDaily("2025-01-01") {
		t.Fatal("first reset should change document")
	}
	if d.Items[1].DoneToday {
		t.Error("doneToday not cleared")
	}
	_ = d.Toggle("b", 2)
	if d.ResetDaily("2025-01-01") {
		t.Error("same-day reset should be a no-op")
	}
	if !d.Items[1].DoneToday {
		t.Error("same-day reset must not clear the mark")
	}
}

func TestBySectionAndSearch(t *testing.T) {
	d := Default()
	_, _ = d.Add("late", "Buy milk", false, 30)
	_, _ = d.Add("early", "buy bread", false, 10)
	_, _ = d.Add("lt", "run", true, 20)

	got := d.BySection(InProgress)
	if len(got) != 2 || got[0].ID != "early" {
		t.Fatalf("BySection = %+v", got)
	}
	if hits := Search(got, "BUY"); len(hits) != 2 {
		t.Errorf("Search = %+v", hits)
	}
	if hits := Search(got, "milk"); len(hits) != 1 || hits[0].ID != "late" {
		t.Errorf("Search = %+v", hits)
	}
}
