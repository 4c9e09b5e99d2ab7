// Package capability persists the user-granted binding to a data file or
// directory across process restarts.
//
// A Handle is only a reference. Restoring one from the store says nothing
// about whether access is still permitted; callers must re-verify through the
// permission gate before every use.
package capability

import (
	"errors"
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Kind distinguishes file-rooted from directory-rooted bindings.
type Kind string

const (
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
)

// DefaultTarget is the data file name used inside a directory binding when
// no explicit target is given.
const DefaultTarget = "tasklet-data.json"

// Handle references a user-selected file, or a directory plus a relative
// path to the data file inside it.
type Handle struct {
	Kind   Kind   `json:"kind"`
	Path   string `json:"path"`
	Target string `json:"target,omitempty"`
}

// Name returns a short display name for status messages.
func (h Handle) Name() string {
	if h.Kind == KindDirectory {
		return filepath.Join(filepath.Base(h.Path), filepath.Base(h.TargetPath()))
	}
	return filepath.Base(h.Path)
}

// TargetPath returns the relative data file path for directory bindings.
func (h Handle) TargetPath() string {
	if h.Target == "" {
		return DefaultTarget
	}
	return h.Target
}

// Key identifies the handle for permission bookkeeping.
func (h Handle) Key() string {
	return string(h.Kind) + ":" + filepath.Clean(h.Path)
}

// IsZero reports whether h is the empty handle.
func (h Handle) IsZero() bool {
	return h.Path == "" && h.Kind == ""
}

// Validate validates the handle.
func (h Handle) Validate() error {
	return validation.ValidateStruct(&h,
		validation.Field(&h.Kind, validation.Required, validation.In(KindFile, KindDirectory)),
		validation.Field(&h.Path, validation.Required, validation.By(absolutePath)),
		validation.Field(&h.Target, validation.By(relativeTarget)),
	)
}

func absolutePath(v any) error {
	p, _ := v.(string)
	if p != "" && !filepath.IsAbs(p) {
		return errors.New("must be an absolute path")
	}
	return nil
}

func relativeTarget(v any) error {
	p, _ := v.(string)
	if p == "" {
		return nil
	}
	cleaned := filepath.Clean(p)
	if filepath.IsAbs(cleaned) {
		return errors.New("must be relative")
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return errors.New("must stay inside the bound directory")
	}
	return nil
}
