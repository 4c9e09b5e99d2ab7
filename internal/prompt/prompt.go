// Package prompt implements the interactive consent and picker flows on a
// terminal using huh forms.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/starford/tasklet/internal/capability"
	"github.com/starford/tasklet/internal/permission"
	"github.com/starford/tasklet/internal/syncengine"
)

// Modes accepted by ForMode.
const (
	ModeTerminal = "terminal"
	ModeAuto     = "auto"
	ModeNever    = "never"
)

// Terminal asks the user on the controlling terminal.
type Terminal struct {
	accessible bool
}

// NewTerminal creates a terminal prompt. Accessible mode renders plain
// line-based prompts for screen readers and dumb terminals.
func NewTerminal(accessible bool) *Terminal {
	return &Terminal{accessible: accessible}
}

// ForMode returns the consent prompter for a configured mode.
func ForMode(mode string, term *Terminal) (permission.Prompter, error) {
	switch mode {
	case ModeTerminal, "":
		return term, nil
	case ModeAuto:
		return permission.AutoGrant, nil
	case ModeNever:
		return permission.NeverGrant, nil
	}
	return nil, fmt.Errorf("prompt: unknown mode %q", mode)
}

// Confirm asks whether h may be used for mode.
func (t *Terminal) Confirm(ctx context.Context, h capability.Handle, mode permission.Mode) (bool, error) {
	var allow bool
	field := huh.NewConfirm().
		Title(fmt.Sprintf("Allow tasklet %s access to %s?", accessWord(mode), h.Name())).
		Description(location(h)).
		Affirmative("Allow").
		Negative("Deny").
		Value(&allow)

	if err := t.run(ctx, huh.NewGroup(field)); err != nil {
		if errors.Is(err, syncengine.ErrCanceled) {
			return false, nil
		}
		return false, err
	}
	return allow, nil
}

// Pick asks for the data file location. Backing out returns
// syncengine.ErrCanceled.
func (t *Terminal) Pick(ctx context.Context) (capability.Handle, error) {
	cwd, _ := os.Getwd()
	kind := string(capability.KindFile)
	path := filepath.Join(cwd, capability.DefaultTarget)
	target := capability.DefaultTarget

	kindGroup := huh.NewGroup(
		huh.NewSelect[string]().
			Title("Where should tasklet keep its data?").
			Options(
				huh.NewOption("A single data file", string(capability.KindFile)),
				huh.NewOption("A file inside a folder", string(capability.KindDirectory)),
			).
			Value(&kind),
	)
	if err := t.run(ctx, kindGroup); err != nil {
		return capability.Handle{}, err
	}

	fields := []huh.Field{
		huh.NewInput().
			Title(pathTitle(capability.Kind(kind))).
			Value(&path).
			Validate(requireText),
	}
	if capability.Kind(kind) == capability.KindDirectory {
		path = cwd
		fields = append(fields, huh.NewInput().
			Title("File name inside the folder").
			Value(&target).
			Validate(requireText))
	}
	if err := t.run(ctx, huh.NewGroup(fields...)); err != nil {
		return capability.Handle{}, err
	}

	return HandleFrom(capability.Kind(kind), path, target)
}

func (t *Terminal) run(ctx context.Context, groups ...*huh.Group) error {
	err := huh.NewForm(groups...).
		WithAccessible(t.accessible).
		RunWithContext(ctx)
	if errors.Is(err, huh.ErrUserAborted) || errors.Is(err, huh.ErrTimeout) {
		return syncengine.ErrCanceled
	}
	if err != nil {
		return fmt.Errorf("prompt: %w", err)
	}
	return nil
}

// HandleFrom builds a validated handle from user input. Relative paths are
// resolved against the working directory and a leading ~ against the home
// directory.
func HandleFrom(kind capability.Kind, path, target string) (capability.Handle, error) {
	path = strings.TrimSpace(path)
	if strings.HasPrefix(path, "~"+string(filepath.Separator)) || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return capability.Handle{}, fmt.Errorf("prompt: home dir: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return capability.Handle{}, fmt.Errorf("prompt: resolve %s: %w", path, err)
	}

	h := capability.Handle{Kind: kind, Path: abs}
	if kind == capability.KindDirectory {
		h.Target = strings.TrimSpace(target)
	}
	if err := h.Validate(); err != nil {
		return capability.Handle{}, err
	}
	return h, nil
}

func location(h capability.Handle) string {
	if h.Kind == capability.KindDirectory {
		return filepath.Join(h.Path, h.TargetPath())
	}
	return h.Path
}

func requireText(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("required")
	}
	return nil
}

func pathTitle(k capability.Kind) string {
	if k == capability.KindDirectory {
		return "Folder path"
	}
	return "Data file path"
}

func accessWord(m permission.Mode) string {
	if m == permission.ReadWrite {
		return "read and write"
	}
	return "read"
}

var (
	_ permission.Prompter = (*Terminal)(nil)
	_ syncengine.Picker   = (*Terminal)(nil)
)
