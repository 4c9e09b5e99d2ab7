package docstore

import (
	"errors"

	"github.com/starford/tasklet/internal/document"
)

// errNothing aborts an update that would not change the document.
var errNothing = errors.New("docstore: nothing to do")

// AddItem creates an item in the in-progress list, or longterm when asked.
func (s *Store) AddItem(text string, longterm bool) (document.Item, error) {
	var item document.Item
	_, err := s.Update(func(d *document.Document) error {
		var err error
		item, err = d.Add(s.newID(), text, longterm, s.stamp())
		return err
	})
	return item, err
}

// EditItem replaces the text of an item.
func (s *Store) EditItem(id, text string) (document.Item, error) {
	return s.itemOp(id, func(d *document.Document) error { return d.Edit(id, text, s.stamp()) })
}

// ToggleItem flips an item between in progress and done, or marks a
// longterm item done for today.
func (s *Store) ToggleItem(id string) (document.Item, error) {
	return s.itemOp(id, func(d *document.Document) error { return d.Toggle(id, s.stamp()) })
}

// TrashItem moves an item to the trash and records it for undo.
func (s *Store) TrashItem(id string) (document.Item, error) {
	return s.itemOp(id, func(d *document.Document) error { return d.MoveToTrash(id, s.stamp()) })
}

// RestoreItem brings an item back from the trash.
func (s *Store) RestoreItem(id string) (document.Item, error) {
	return s.itemOp(id, func(d *document.Document) error { return d.Restore(id, s.stamp()) })
}

// PurgeItem deletes an item permanently.
func (s *Store) PurgeItem(id string) error {
	_, err := s.Update(func(d *document.Document) error { return d.Purge(id) })
	return err
}

// UndoTrash reverts the most recent move to trash. It reports whether
// there was anything to undo.
func (s *Store) UndoTrash() bool {
	var undone bool
	_, _ = s.Update(func(d *document.Document) error {
		had := d.Prefs.LastUndo != nil
		undone = d.Undo(s.stamp())
		if !had {
			return errNothing
		}
		return nil
	})
	return undone
}

// EmptyTrash purges every trashed item and returns how many were removed.
func (s *Store) EmptyTrash() int {
	var n int
	_, _ = s.Update(func(d *document.Document) error {
		n = d.EmptyTrash()
		if n == 0 {
			return errNothing
		}
		return nil
	})
	return n
}

func (s *Store) itemOp(id string, fn func(*document.Document) error) (document.Item, error) {
	doc, err := s.Update(fn)
	if err != nil {
		return document.Item{}, err
	}
	return doc.Items[doc.Find(id)], nil
}
