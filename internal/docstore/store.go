// Package docstore owns the in-memory document and keeps the bound data file
// in step with it through the sync engine.
package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/tasklet/internal/apperr"
	"github.com/starford/tasklet/internal/document"
	"github.com/starford/tasklet/internal/syncengine"
)

// Syncer is the part of the sync engine the store depends on.
type Syncer interface {
	Status() syncengine.Status
	WaitSettled(ctx context.Context) (syncengine.Status, error)
	Read(ctx context.Context) (string, bool, error)
	Enqueue(text string) <-chan error
	Flush(ctx context.Context) error
	Acquire(ctx context.Context, picker syncengine.Picker) (bool, error)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the time source used for item timestamps and the daily reset.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator sets the function that names new items.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// Store holds the current document. Every change is applied in memory first
// and then persisted when the engine is ready.
type Store struct {
	sync   Syncer
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	mu  sync.Mutex
	doc document.Document

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(document.Document)
}

// New creates a store holding the default document until Load runs.
func New(syncer Syncer, opts ...Option) *Store {
	s := &Store{
		sync:   syncer,
		logger: slog.Default(),
		now:    time.Now,
		newID:  func() string { return "todo-" + uuid.NewString() },
		doc:    document.Default(),
		subs:   map[int]func(document.Document){},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load waits for the engine to settle and reads the bound document. Without
// a usable binding it falls back to the default document. Load never fails;
// problems are logged and surface through the engine's error channel.
func (s *Store) Load(ctx context.Context) document.Document {
	doc := document.Default()
	keep := true

	status, err := s.sync.WaitSettled(ctx)
	if err != nil {
		s.logger.Warn("docstore: load interrupted", slog.String("error", err.Error()))
	} else if status == syncengine.Ready {
		text, ok, err := s.sync.Read(ctx)
		switch {
		case err != nil:
			s.logger.Warn("docstore: read failed, using defaults", slog.String("error", err.Error()))
		case ok:
			parsed, perr := document.Parse(text)
			if perr != nil {
				// Leave the unreadable file alone until the user changes something.
				s.logger.Warn("docstore: bound document is not valid JSON, using defaults",
					slog.String("error", perr.Error()))
				keep = false
			} else {
				doc = parsed
			}
		}
	}

	reset := doc.ResetDaily(s.today())

	s.mu.Lock()
	s.doc = doc
	snap := document.Clone(doc)
	if reset && keep {
		s.persistLocked(snap)
	}
	s.mu.Unlock()

	s.logger.Info("docstore: loaded",
		slog.Int("items", len(snap.Items)),
		slog.String("status", s.sync.Status().String()))
	s.notify(snap)
	return snap
}

// Snapshot returns a copy of the current document.
func (s *Store) Snapshot() document.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return document.Clone(s.doc)
}

// Durable reports whether changes currently reach the bound data file.
func (s *Store) Durable() bool {
	return s.sync.Status() == syncengine.Ready
}

// Mutate applies fn to the document and persists the result.
func (s *Store) Mutate(fn func(*document.Document)) document.Document {
	doc, _ := s.Update(func(d *document.Document) error {
		fn(d)
		return nil
	})
	return doc
}

// Update applies fn to a copy of the document. When fn fails the change is
// discarded and nothing is persisted.
func (s *Store) Update(fn func(*document.Document) error) (document.Document, error) {
	s.mu.Lock()
	next := document.Clone(s.doc)
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return document.Document{}, err
	}
	s.doc = next
	snap := document.Clone(next)
	// Enqueued under the lock so writes reach the engine in change order.
	s.persistLocked(snap)
	s.mu.Unlock()

	s.notify(snap)
	return snap, nil
}

// Persist writes the current document and waits for the result. Unlike
// Mutate it fails when the engine is not ready.
func (s *Store) Persist(ctx context.Context) error {
	s.mu.Lock()
	done := s.persistLocked(document.Clone(s.doc))
	s.mu.Unlock()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush waits for every write issued so far.
func (s *Store) Flush(ctx context.Context) error {
	return s.sync.Flush(ctx)
}

// ExportSnapshot renders the current document as pretty-printed JSON.
func (s *Store) ExportSnapshot() (string, error) {
	data, err := document.Marshal(s.Snapshot())
	if err != nil {
		return "", fmt.Errorf("docstore: export: %w", err)
	}
	return string(data), nil
}

// ImportSnapshot replaces the document with text. Text that is not JSON is
// rejected and the current document is left untouched.
func (s *Store) ImportSnapshot(text string) (document.Document, error) {
	doc, err := document.Parse(text)
	if err != nil {
		return document.Document{}, fmt.Errorf("docstore: import: %w: %w", apperr.ErrInvalidInput, err)
	}
	doc.ResetDaily(s.today())

	s.mu.Lock()
	s.doc = doc
	snap := document.Clone(doc)
	s.persistLocked(snap)
	s.mu.Unlock()

	s.logger.Info("docstore: imported", slog.Int("items", len(snap.Items)))
	s.notify(snap)
	return snap, nil
}

// RequestAccess binds a data file through picker, or the engine's default
// picker when nil. An empty bound file receives the current document; a
// non-empty one replaces it. When the user cancels, the in-memory document
// is kept and, if the previous binding is still ready, written back to it.
func (s *Store) RequestAccess(ctx context.Context, picker syncengine.Picker) (document.Document, error) {
	bound, err := s.sync.Acquire(ctx, picker)
	if err != nil {
		return s.Snapshot(), err
	}
	if !bound {
		s.mu.Lock()
		snap := document.Clone(s.doc)
		if s.sync.Status() == syncengine.Ready {
			// Changes made while the picker was open were never enqueued.
			s.persistLocked(snap)
		}
		s.mu.Unlock()
		return snap, nil
	}

	text, ok, err := s.sync.Read(ctx)
	if err != nil {
		return s.Snapshot(), err
	}

	if !ok {
		s.mu.Lock()
		snap := document.Clone(s.doc)
		done := s.persistLocked(snap)
		s.mu.Unlock()
		s.logger.Info("docstore: seeded empty data file", slog.Int("items", len(snap.Items)))
		select {
		case err := <-done:
			return snap, err
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}

	doc, err := document.Parse(text)
	if err != nil {
		return s.Snapshot(), fmt.Errorf("docstore: bound document: %w", err)
	}
	reset := doc.ResetDaily(s.today())

	s.mu.Lock()
	s.doc = doc
	snap := document.Clone(doc)
	if reset {
		s.persistLocked(snap)
	}
	s.mu.Unlock()

	s.logger.Info("docstore: loaded bound data file", slog.Int("items", len(snap.Items)))
	s.notify(snap)
	return snap, nil
}

// OnChange subscribes fn to document changes. It returns an unsubscribe func.
func (s *Store) OnChange(fn func(document.Document)) (unsubscribe func()) {
	s.subMu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(doc document.Document) {
	s.subMu.Lock()
	fns := make([]func(document.Document), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(doc)
	}
}

// persistLocked hands doc to the engine. Caller holds s.mu.
func (s *Store) persistLocked(doc document.Document) <-chan error {
	if status := s.sync.Status(); status != syncengine.Ready {
		s.logger.Debug("docstore: change kept in memory", slog.String("status", status.String()))
		done := make(chan error, 1)
		if status == syncengine.Unsupported {
			done <- fmt.Errorf("%w: %w", syncengine.ErrNotReady, syncengine.ErrUnsupported)
		} else {
			done <- syncengine.ErrNotReady
		}
		return done
	}
	data, err := document.Marshal(doc)
	if err != nil {
		done := make(chan error, 1)
		done <- err
		return done
	}
	return s.sync.Enqueue(string(data))
}

func (s *Store) today() string {
	return document.DayKey(document.FromTime(s.now()))
}

func (s *Store) stamp() document.Timestamp {
	return document.FromTime(s.now())
}
