package internal

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/tasklet/internal/capability"
	"github.com/starford/tasklet/internal/permission"
	"github.com/starford/tasklet/internal/prompt"
	"github.com/starford/tasklet/internal/syncengine"
	pkgconfig "github.com/starford/tasklet/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestSyncConfig_Defaults(t *testing.T) {
	cfg := SyncConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Slot != capability.DefaultSlot || cfg.Prompt != prompt.ModeTerminal {
		t.Errorf("defaults = %+v", cfg)
	}

	cfg.Prompt = "sometimes"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown prompt mode should fail")
	}
}

func TestFullConfig_ValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch auth error")
	}

	cfg = NewDefaultConfig()
	cfg.Capabilities.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("missing capabilities path should fail")
	}
}

func TestLoadYAMLWithEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TASKLET_TEST_TOKEN", "s3cret")
	path := filepath.Join(dir, "config.yaml")
	yaml := `
app:
  log_level: debug
  http:
    port: 9090
sync:
  enabled: false
capabilities:
  path: ` + filepath.Join(dir, "caps.db") + `
auth:
  mode: token
  token: ${TASKLET_TEST_TOKEN}
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.App.HTTP.Port != 9090 || cfg.Sync.Enabled || cfg.Auth.Token != "s3cret" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Sync.Prompt != prompt.ModeTerminal {
		t.Errorf("prompt default lost: %q", cfg.Sync.Prompt)
	}
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Capabilities.Path = filepath.Join(t.TempDir(), "state", "caps.db")
	cfg.Sync.Prompt = prompt.ModeAuto
	return cfg
}

func TestOpenRemembersBindingAcrossSessions(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	var logs bytes.Buffer
	data := filepath.Join(t.TempDir(), "tasks.json")
	h := capability.Handle{Kind: capability.KindFile, Path: data}

	app, err := Open(ctx, WithConfig(cfg), WithLogOutput(&logs), WithPicker(syncengine.StaticPicker(h)))
	if err != nil {
		t.Fatal(err)
	}
	if app.Engine.Status() != syncengine.Pending {
		t.Fatalf("first session status = %v", app.Engine.Status())
	}
	if _, err := app.Store.RequestAccess(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := app.Store.AddItem("survives restart", false); err != nil {
		t.Fatal(err)
	}
	app.Close()

	app, err = Open(ctx, WithConfig(cfg), WithLogOutput(&logs))
	if err != nil {
		t.Fatal(err)
	}
	defer app.Close()
	if app.Engine.Status() != syncengine.Ready {
		t.Fatalf("second session status = %v", app.Engine.Status())
	}
	items := app.Store.Snapshot().Items
	if len(items) != 1 || items[0].Text != "survives restart" {
		t.Errorf("items = %+v", items)
	}
	if !strings.Contains(logs.String(), `"msg":"sync: bound"`) {
		t.Error("expected JSON log lines")
	}
}

func TestOpenDeniedBindingFallsBackToPending(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	h := capability.Handle{Kind: capability.KindFile, Path: filepath.Join(t.TempDir(), "tasks.json")}

	app, err := Open(ctx, WithConfig(cfg), WithLogOutput(&bytes.Buffer{}), WithPicker(syncengine.StaticPicker(h)))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := app.Store.RequestAccess(ctx, nil); err != nil {
		t.Fatal(err)
	}
	app.Close()

	app, err = Open(ctx, WithConfig(cfg), WithLogOutput(&bytes.Buffer{}), WithPrompter(permission.NeverGrant))
	if err != nil {
		t.Fatal(err)
	}
	defer app.Close()
	if app.Engine.Status() != syncengine.Pending || app.Store.Durable() {
		t.Errorf("status = %v", app.Engine.Status())
	}
}

func TestOpenUnsupported(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sync.Enabled = false
	app, err := Open(context.Background(), WithConfig(cfg), WithLogOutput(&bytes.Buffer{}))
	if err != nil {
		t.Fatal(err)
	}
	defer app.Close()
	if app.Engine.Status() != syncengine.Unsupported {
		t.Errorf("status = %v", app.Engine.Status())
	}
}

func TestOpenRequiresConfig(t *testing.T) {
	if _, err := Open(context.Background()); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestOpenWithoutCapabilityDatabase(t *testing.T) {
	cfg := testConfig(t)
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.Capabilities.Path = filepath.Join(blocker, "caps.db")

	var logs bytes.Buffer
	h := capability.Handle{Kind: capability.KindFile, Path: filepath.Join(t.TempDir(), "tasks.json")}
	app, err := Open(context.Background(), WithConfig(cfg), WithLogOutput(&logs), WithPicker(syncengine.StaticPicker(h)))
	if err != nil {
		t.Fatal(err)
	}
	defer app.Close()

	if !strings.Contains(logs.String(), "capability database unavailable") {
		t.Errorf("missing fallback warning in logs: %s", logs.String())
	}
	if _, err := app.Store.RequestAccess(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if app.Engine.Status() != syncengine.Ready {
		t.Errorf("status = %v, want ready", app.Engine.Status())
	}
}
