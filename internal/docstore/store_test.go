package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/tasklet/internal/apperr"
	"github.com/starford/tasklet/internal/capability"
	"github.com/starford/tasklet/internal/document"
	"github.com/starford/tasklet/internal/permission"
	"github.com/starford/tasklet/internal/storage"
	"github.com/starford/tasklet/internal/syncengine"
	"github.com/starford/tasklet/internal/testutil"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.Local)

func newStore(syncer Syncer) *Store {
	n := 0
	return New(syncer,
		WithLogger(testutil.Logger()),
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("todo-%d", n)
		}))
}

func readFile(t *testing.T, path string) document.Document {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	doc, err := document.Parse(string(data))
	if err != nil {
		t.Fatalf("file is not a valid document: %v\n%s", err, data)
	}
	return doc
}

func TestUnsupportedRunsInMemory(t *testing.T) {
	e := testutil.UnsupportedEngine(t)
	s := newStore(e)
	ctx := context.Background()

	doc := s.Load(ctx)
	if doc.Version != document.CurrentVersion || len(doc.Items) != 0 {
		t.Errorf("Load = %+v, want default document", doc)
	}
	if s.Durable() {
		t.Error("unsupported store should not be durable")
	}

	if _, err := s.AddItem("buy milk", false); err != nil {
		t.Fatal(err)
	}
	if got := len(s.Snapshot().Items); got != 1 {
		t.Errorf("items = %d, want 1", got)
	}

	err := s.Persist(ctx)
	if !errors.Is(err, syncengine.ErrNotReady) || !errors.Is(err, syncengine.ErrUnsupported) {
		t.Errorf("Persist = %v", err)
	}
}

func TestPendingKeepsChangesInMemory(t *testing.T) {
	e, h := testutil.PendingEngine(t)
	s := newStore(e)
	ctx := context.Background()
	s.Load(ctx)

	if _, err := s.AddItem("draft", false); err != nil {
		t.Fatal(err)
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(h.Path); !errors.Is(err, os.ErrNotExist) {
		t.Error("pending store must not write")
	}
	if err := s.Persist(ctx); !errors.Is(err, syncengine.ErrNotReady) {
		t.Errorf("Persist = %v, want ErrNotReady", err)
	}
}

func TestAddItemPersistsOnce(t *testing.T) {
	e, h := testutil.ReadyEngine(t)
	s := newStore(e)
	ctx := context.Background()
	s.Load(ctx)
	if err := s.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	before := readFile(t, h.Path)

	item, err := s.AddItem("  write report ", false)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	if item.Text != "write report" || item.Section != document.InProgress {
		t.Errorf("item = %+v", item)
	}
	if item.CreatedAt != item.UpdatedAt || item.CreatedAt != document.FromTime(fixedNow) {
		t.Errorf("timestamps = %d / %d", item.CreatedAt, item.UpdatedAt)
	}

	after := readFile(t, h.Path)
	if len(after.Items) != len(before.Items)+1 {
		t.Fatalf("file items = %d, want %d", len(after.Items), len(before.Items)+1)
	}
	if after.Items[0].ID != item.ID {
		t.Errorf("persisted id = %q, want %q", after.Items[0].ID, item.ID)
	}
	if !s.Durable() {
		t.Error("ready store should be durable")
	}
}

func TestItemIDsAreUnique(t *testing.T) {
	e, _ := testutil.ReadyEngine(t)
	s := New(e, WithLogger(testutil.Logger()))
	s.Load(context.Background())

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		item, err := s.AddItem(fmt.Sprintf("task %d", i), i%2 == 0)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(item.ID, "todo-") {
			t.Errorf("id %q lacks prefix", item.ID)
		}
		if seen[item.ID] {
			t.Fatalf("duplicate id %q", item.ID)
		}
		seen[item.ID] = true
	}
}

func TestLoadMigratesExistingFile(t *testing.T) {
	e, h := testutil.PendingEngine(t)
	legacy := `{"items":[{"text":"old task","done":true}],"prefs":{"theme":"light"}}`
	if err := os.WriteFile(h.Path, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := e.RequestAccess(context.Background()); err != nil {
		t.Fatal(err)
	}

	s := newStore(e)
	doc := s.Load(context.Background())
	if len(doc.Items) != 1 || doc.Items[0].ID == "" {
		t.Fatalf("items = %+v", doc.Items)
	}
	if doc.Prefs.Theme != "light" {
		t.Errorf("theme = %q", doc.Prefs.Theme)
	}
	if doc.Prefs.LastLongtermReset != document.DayKey(document.FromTime(fixedNow)) {
		t.Errorf("daily reset not applied: %q", doc.Prefs.LastLongtermReset)
	}
}

func TestLoadLeavesCorruptFileAlone(t *testing.T) {
	e, h := testutil.PendingEngine(t)
	_ = os.WriteFile(h.Path, []byte("not json {"), 0o644)
	if err := e.RequestAccess(context.Background()); err != nil {
		t.Fatal(err)
	}

	s := newStore(e)
	doc := s.Load(context.Background())
	if len(doc.Items) != 0 {
		t.Errorf("expected defaults, got %+v", doc.Items)
	}
	_ = s.Flush(context.Background())
	data, _ := os.ReadFile(h.Path)
	if string(data) != "not json {" {
		t.Errorf("corrupt file was overwritten: %q", data)
	}
}

func TestUpdateFailureDiscardsChange(t *testing.T) {
	e, h := testutil.ReadyEngine(t)
	s := newStore(e)
	ctx := context.Background()
	s.Load(ctx)
	_ = s.Flush(ctx)
	before, _ := os.ReadFile(h.Path)

	boom := errors.New("boom")
	_, err := s.Update(func(d *document.Document) error {
		d.Prefs.Theme = "light"
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if s.Snapshot().Prefs.Theme != "dark" {
		t.Error("failed update leaked into state")
	}
	_ = s.Flush(ctx)
	after, _ := os.ReadFile(h.Path)
	if string(before) != string(after) {
		t.Error("failed update was persisted")
	}
}

func TestItemOperations(t *testing.T) {
	e, h := testutil.ReadyEngine(t)
	s := newStore(e)
	ctx := context.Background()
	s.Load(ctx)

	a, _ := s.AddItem("a", false)
	b, _ := s.AddItem("b", true)

	if _, err := s.ToggleItem(a.ID); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.EditItem(b.ID, "b2"); got.Text != "b2" {
		t.Errorf("edit = %+v", got)
	}
	trashed, err := s.TrashItem(a.ID)
	if err != nil || trashed.Section != document.Trash || trashed.TrashedFrom != document.Done {
		t.Fatalf("trash = %+v, %v", trashed, err)
	}
	if !s.UndoTrash() {
		t.Error("undo should restore")
	}
	if s.UndoTrash() {
		t.Error("second undo should be a no-op")
	}
	if _, err := s.ToggleItem("missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("toggle missing = %v", err)
	}

	_, _ = s.TrashItem(a.ID)
	_, _ = s.TrashItem(b.ID)
	if n := s.EmptyTrash(); n != 2 {
		t.Errorf("EmptyTrash = %d", n)
	}
	if n := s.EmptyTrash(); n != 0 {
		t.Errorf("second EmptyTrash = %d", n)
	}

	_ = s.Flush(ctx)
	if got := readFile(t, h.Path); len(got.Items) != 0 {
		t.Errorf("file items = %+v", got.Items)
	}
}

func TestExportImport(t *testing.T) {
	e, h := testutil.ReadyEngine(t)
	s := newStore(e)
	ctx := context.Background()
	s.Load(ctx)
	_, _ = s.AddItem("keep me", false)

	exported, err := s.ExportSnapshot()
	if err != nil {
		t.Fatal(err)
	}
	var probe map[string]any
	if err := json.Unmarshal([]byte(exported), &probe); err != nil {
		t.Fatalf("export is not JSON: %v", err)
	}
	if !strings.Contains(exported, "\n  \"items\"") {
		t.Errorf("export should be indented:\n%s", exported)
	}

	if _, err := s.ImportSnapshot("{broken"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("import invalid = %v", err)
	}
	if got := s.Snapshot(); len(got.Items) != 1 || got.Items[0].Text != "keep me" {
		t.Errorf("invalid import changed state: %+v", got.Items)
	}

	incoming := `{"version":1,"items":[{"id":"x1","text":"imported","section":"longterm"}]}`
	doc, err := s.ImportSnapshot(incoming)
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Items) != 1 || doc.Items[0].ID != "x1" {
		t.Fatalf("imported = %+v", doc.Items)
	}
	_ = s.Flush(ctx)
	if got := readFile(t, h.Path); len(got.Items) != 1 || got.Items[0].Text != "imported" {
		t.Errorf("file after import = %+v", got.Items)
	}
}

func TestRequestAccessSeedsEmptyFile(t *testing.T) {
	e, h := testutil.PendingEngine(t)
	s := newStore(e)
	ctx := context.Background()
	s.Load(ctx)
	_, _ = s.AddItem("made offline", false)

	doc, err := s.RequestAccess(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Items) != 1 {
		t.Errorf("state = %+v", doc.Items)
	}
	if got := readFile(t, h.Path); len(got.Items) != 1 || got.Items[0].Text != "made offline" {
		t.Errorf("file = %+v", got.Items)
	}
}

func TestRequestAccessAdoptsExistingFile(t *testing.T) {
	e, h := testutil.PendingEngine(t)
	existing := `{"version":1,"prefs":{"theme":"light"},"items":[{"id":"e1","text":"from disk","section":"done"}]}`
	_ = os.WriteFile(h.Path, []byte(existing), 0o644)

	s := newStore(e)
	ctx := context.Background()
	s.Load(ctx)
	_, _ = s.AddItem("discarded", false)

	var notified int
	unsub := s.OnChange(func(document.Document) { notified++ })
	defer unsub()

	doc, err := s.RequestAccess(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Items) != 1 || doc.Items[0].ID != "e1" || doc.Prefs.Theme != "light" {
		t.Errorf("state = %+v", doc)
	}
	if notified == 0 {
		t.Error("subscribers were not notified")
	}
}

func TestRequestAccessCanceled(t *testing.T) {
	e, _ := testutil.PendingEngine(t)
	s := newStore(e)
	s.Load(context.Background())

	cancel := syncengine.PickerFunc(func(context.Context) (capability.Handle, error) {
		return capability.Handle{}, syncengine.ErrCanceled
	})
	if _, err := s.RequestAccess(context.Background(), cancel); err != nil {
		t.Fatalf("cancel = %v", err)
	}
	if s.Durable() {
		t.Error("canceled request should leave the store non-durable")
	}
}

func TestRequestAccessCanceledFromReadyKeepsChanges(t *testing.T) {
	e, h := testutil.ReadyEngine(t)
	s := newStore(e)
	ctx := context.Background()
	s.Load(ctx)
	if err := s.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	release := make(chan struct{})
	blocked := syncengine.PickerFunc(func(context.Context) (capability.Handle, error) {
		<-release
		return capability.Handle{}, syncengine.ErrCanceled
	})
	done := make(chan error, 1)
	go func() {
		_, err := s.RequestAccess(ctx, blocked)
		done <- err
	}()

	testutil.Eventually(t, time.Second, 5*time.Millisecond, func() bool {
		return e.Status() == syncengine.Requesting
	}, "picker never opened")
	if _, err := s.AddItem("added while picking", false); err != nil {
		t.Fatal(err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("cancel = %v", err)
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	if !s.Durable() || e.Status() != syncengine.Ready {
		t.Fatalf("status = %v, want ready", e.Status())
	}
	if snap := s.Snapshot(); len(snap.Items) != 1 {
		t.Fatalf("memory items = %+v", snap.Items)
	}
	if got := readFile(t, h.Path); len(got.Items) != 1 || got.Items[0].Text != "added while picking" {
		t.Errorf("file items = %+v", got.Items)
	}
}

// heldDocs holds the first write after arm until release is closed.
type heldDocs struct {
	*storage.FS
	armed   atomic.Bool
	started chan struct{}
	release chan struct{}
}

func (d *heldDocs) WriteAll(f storage.File, text string) error {
	if d.armed.CompareAndSwap(true, false) {
		close(d.started)
		<-d.release
	}
	return d.FS.WriteAll(f, text)
}

func TestRebindDoesNotLeakQueuedWrites(t *testing.T) {
	ctx := context.Background()
	docs := &heldDocs{FS: storage.NewFS(), started: make(chan struct{}), release: make(chan struct{})}
	first := testutil.FileHandle(t)
	second := testutil.FileHandle(t)
	existing := `{"version":1,"items":[{"id":"keep-me","text":"already here","section":"inProgress"}]}`
	if err := os.WriteFile(second.Path, []byte(existing), 0o644); err != nil {
		t.Fatal(err)
	}

	e := syncengine.New(capability.NewMemory(), permission.NewGate(permission.AutoGrant, testutil.Logger()), docs,
		syncengine.WithLogger(testutil.Logger()),
		syncengine.WithPicker(syncengine.StaticPicker(first)))
	t.Cleanup(e.Close)
	if err := e.Init(ctx); err != nil {
		t.Fatal(err)
	}
	s := newStore(e)
	s.Load(ctx)
	if _, err := s.RequestAccess(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	docs.armed.Store(true)
	if _, err := s.AddItem("first file, in flight", false); err != nil {
		t.Fatal(err)
	}
	<-docs.started
	if _, err := s.AddItem("first file, queued", false); err != nil {
		t.Fatal(err)
	}

	doc, err := s.RequestAccess(ctx, syncengine.StaticPicker(second))
	if err != nil {
		t.Fatal(err)
	}
	close(docs.release)
	if err := s.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	if len(doc.Items) != 1 || doc.Items[0].ID != "keep-me" {
		t.Errorf("adopted = %+v", doc.Items)
	}
	if got := readFile(t, second.Path); len(got.Items) != 1 || got.Items[0].ID != "keep-me" {
		t.Errorf("second file = %+v", got.Items)
	}
	if got := readFile(t, first.Path); len(got.Items) != 1 || got.Items[0].Text != "first file, in flight" {
		t.Errorf("first file = %+v", got.Items)
	}
}
