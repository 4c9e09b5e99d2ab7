// Package testutil provides shared test helpers for setting up capability
// databases and sync engines bound to temporary data files.
package testutil

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/tasklet/internal/capability"
	"github.com/starford/tasklet/internal/permission"
	"github.com/starford/tasklet/internal/storage"
	"github.com/starford/tasklet/internal/syncengine"
)

// Logger returns a logger that only reports errors.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// TestDB creates a temporary SQLite capability database that is automatically cleaned up.
func TestDB(t *testing.T) *capability.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "tasklet-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := capability.Open(dbFile.Name(), Logger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// FileHandle returns a file handle for a data file in a fresh temp dir.
// The file itself does not exist yet.
func FileHandle(t *testing.T) capability.Handle {
	t.Helper()
	return capability.Handle{Kind: capability.KindFile, Path: filepath.Join(t.TempDir(), "tasklet-data.json")}
}

// PendingEngine returns an initialized engine with no binding. Its default
// picker selects the returned handle and consent is granted automatically.
func PendingEngine(t *testing.T, opts ...syncengine.Option) (*syncengine.Engine, capability.Handle) {
	t.Helper()
	h := FileHandle(t)
	base := []syncengine.Option{
		syncengine.WithLogger(Logger()),
		syncengine.WithPicker(syncengine.StaticPicker(h)),
	}
	e := syncengine.New(capability.NewMemory(), permission.NewGate(permission.AutoGrant, Logger()), storage.NewFS(),
		append(base, opts...)...)
	t.Cleanup(e.Close)
	if err := e.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	return e, h
}

// ReadyEngine returns an engine bound to a fresh data file.
func ReadyEngine(t *testing.T, opts ...syncengine.Option) (*syncengine.Engine, capability.Handle) {
	t.Helper()
	e, h := PendingEngine(t, opts...)
	if err := e.RequestAccess(context.Background()); err != nil {
		t.Fatal(err)
	}
	return e, h
}

// UnsupportedEngine returns an engine for an environment that cannot bind.
func UnsupportedEngine(t *testing.T) *syncengine.Engine {
	t.Helper()
	e, _ := PendingEngine(t, syncengine.WithSupported(false))
	return e
}

// Eventually polls fn every tick until it returns true or timeout passes.
func Eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}
