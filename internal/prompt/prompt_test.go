package prompt

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/tasklet/internal/capability"
	"github.com/starford/tasklet/internal/permission"
)

func TestForMode(t *testing.T) {
	term := NewTerminal(true)
	ctx := context.Background()
	h := capability.Handle{Kind: capability.KindFile, Path: "/tmp/x.json"}

	p, err := ForMode(ModeAuto, term)
	if err != nil {
		t.Fatal(err)
	}
	if ok, _ := p.Confirm(ctx, h, permission.ReadWrite); !ok {
		t.Error("auto mode should grant")
	}

	p, _ = ForMode(ModeNever, term)
	if ok, _ := p.Confirm(ctx, h, permission.ReadWrite); ok {
		t.Error("never mode should deny")
	}

	p, _ = ForMode("", term)
	if p != permission.Prompter(term) {
		t.Error("empty mode should default to the terminal")
	}

	if _, err := ForMode("sometimes", term); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestHandleFrom(t *testing.T) {
	cwd, _ := os.Getwd()

	h, err := HandleFrom(capability.KindFile, " data.json ", "ignored")
	if err != nil {
		t.Fatal(err)
	}
	if h.Path != filepath.Join(cwd, "data.json") || h.Target != "" {
		t.Errorf("file handle = %+v", h)
	}

	h, err = HandleFrom(capability.KindDirectory, cwd, "sub/tasks.json")
	if err != nil {
		t.Fatal(err)
	}
	if h.Target != "sub/tasks.json" {
		t.Errorf("dir handle = %+v", h)
	}

	if _, err := HandleFrom(capability.KindDirectory, cwd, "../escape.json"); err == nil {
		t.Error("escaping target should be rejected")
	}
	if _, err := HandleFrom("socket", cwd, ""); err == nil {
		t.Error("unknown kind should be rejected")
	}

	home, err := os.UserHomeDir()
	if err == nil {
		h, err := HandleFrom(capability.KindFile, "~/t.json", "")
		if err != nil || h.Path != filepath.Join(home, "t.json") {
			t.Errorf("home expansion = %+v, %v", h, err)
		}
	}
}

func TestLocation(t *testing.T) {
	dir := capability.Handle{Kind: capability.KindDirectory, Path: "/data"}
	if got := location(dir); got != filepath.Join("/data", capability.DefaultTarget) {
		t.Errorf("location = %q", got)
	}
	file := capability.Handle{Kind: capability.KindFile, Path: "/data/a.json"}
	if got := location(file); got != "/data/a.json" {
		t.Errorf("location = %q", got)
	}
}
