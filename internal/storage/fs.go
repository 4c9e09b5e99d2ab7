// Package storage resolves capability handles to concrete data files and
// reads and replaces their full contents.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/tasklet/internal/capability"
)

// ErrUnreachable is returned when a handle no longer leads to a usable file:
// the file or directory was deleted, moved, or replaced by something else.
var ErrUnreachable = errors.New("storage: target unreachable")

const tmpPattern = ".tasklet-tmp-*"

// File is a resolved data file.
type File struct {
	path string
	name string
}

// Path returns the absolute path of the data file.
func (f File) Path() string { return f.path }

// Name returns the display name of the binding the file was resolved from.
func (f File) Name() string { return f.name }

// FS implements the document adapter on the local file system.
type FS struct{}

// NewFS creates a file system adapter.
func NewFS() *FS {
	return &FS{}
}

func unreachable(h capability.Handle) error {
	return fmt.Errorf("%w: %s", ErrUnreachable, h.Name())
}

// Resolve turns h into a concrete data file. Directory bindings walk the
// target path below the root, creating missing intermediate directories.
func (s *FS) Resolve(h capability.Handle) (File, error) {
	switch h.Kind {
	case capability.KindFile:
		info, err := os.Stat(filepath.Dir(h.Path))
		if err != nil || !info.IsDir() {
			return File{}, unreachable(h)
		}
		if info, err := os.Stat(h.Path); err == nil && info.IsDir() {
			return File{}, unreachable(h)
		}
		return File{path: h.Path, name: h.Name()}, nil

	case capability.KindDirectory:
		info, err := os.Stat(h.Path)
		if err != nil || !info.IsDir() {
			return File{}, unreachable(h)
		}
		abs, err := safeJoin(h.Path, h.TargetPath())
		if err != nil {
			return File{}, unreachable(h)
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return File{}, unreachable(h)
		}
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			return File{}, unreachable(h)
		}
		return File{path: abs, name: h.Name()}, nil
	}
	return File{}, unreachable(h)
}

// safeJoin resolves a relative path against root and rejects any result
// that escapes it (directory traversal).
func safeJoin(root, rel string) (string, error) {
	root = filepath.Clean(root)
	cleaned := filepath.Clean(rel)
	if cleaned == "." || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: invalid target: %s", rel)
	}
	abs := filepath.Join(root, cleaned)
	if !strings.HasPrefix(abs, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: target escapes root: %s", rel)
	}
	return abs, nil
}

// ReadAll returns the full text of f. A data file that does not exist yet
// reads as empty.
func (s *FS) ReadAll(f File) (string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && parentExists(f.path) {
			return "", nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrUnreachable, f.name)
		}
		return "", fmt.Errorf("storage: read %s: %w", f.name, err)
	}
	return string(data), nil
}

// WriteAll replaces the full contents of f with text.
func (s *FS) WriteAll(f File, text string) error {
	if !parentExists(f.path) {
		return fmt.Errorf("%w: %s", ErrUnreachable, f.name)
	}
	return WriteFile(f.path, []byte(text))
}

// WriteFile atomically writes content: tmp file → fsync → rename. When the
// directory does not allow creating a temp file, it falls back to
// truncating and rewriting the target in place.
func WriteFile(path string, content []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return overwrite(path, content)
		}
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if info, err := os.Stat(path); err == nil {
		_ = os.Chmod(tmpName, info.Mode().Perm())
	} else {
		_ = os.Chmod(tmpName, 0o644)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

func overwrite(path string, content []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("storage: open: %w", err)
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return fmt.Errorf("storage: write: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("storage: close: %w", err)
	}
	return nil
}

func parentExists(path string) bool {
	info, err := os.Stat(filepath.Dir(path))
	return err == nil && info.IsDir()
}
