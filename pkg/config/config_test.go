package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "tasklet")
	path := filepath.Join(t.TempDir(), "c.yaml")
	_ = os.WriteFile(path, []byte("name: ${SAMPLE_NAME}\nport: 80\n"), 0o644)

	var s sample
	if err := Load(path, &s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "tasklet" || s.Port != 80 {
		t.Errorf("got %+v", s)
	}
}

func TestLoadValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	_ = os.WriteFile(path, []byte("port: 0\n"), 0o644)

	var s sample
	err := Load(path, &s)
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Errorf("err = %v", err)
	}
}

func TestLoadWithDefaultsMissingFile(t *testing.T) {
	s := sample{Name: "preset", Port: 1}
	loaded, err := LoadWithDefaults(filepath.Join(t.TempDir(), "absent.yaml"), &s)
	if err != nil || loaded {
		t.Fatalf("loaded = %v, err = %v", loaded, err)
	}
	if s.Name != "preset" {
		t.Errorf("preset lost: %+v", s)
	}

	bad := sample{}
	if _, err := LoadWithDefaults(filepath.Join(t.TempDir(), "absent.yaml"), &bad); err == nil {
		t.Error("defaults should still be validated")
	}
}

func TestLoadWithDefaultsOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	_ = os.WriteFile(path, []byte("port: 9\n"), 0o644)

	s := sample{Name: "preset", Port: 1}
	loaded, err := LoadWithDefaults(path, &s)
	if err != nil || !loaded {
		t.Fatalf("loaded = %v, err = %v", loaded, err)
	}
	if s.Name != "preset" || s.Port != 9 {
		t.Errorf("got %+v", s)
	}
}
