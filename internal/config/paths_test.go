package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDataDirUsesXDGDataHome(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_DATA_HOME", tmp)

	got, err := DataDir()
	if err != nil {
		t.Fatalf("data dir: %v", err)
	}
	want := filepath.Join(tmp, "imagegen")
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestResolvePathPrefersExplicitThenGlobal(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)

	if got := ResolvePath("/explicit.toml"); got != "/explicit.toml" {
		t.Fatalf("expected explicit path, got %q", got)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if _, err := os.Stat(filepath.Join(wd, LocalConfigName)); err == nil {
		t.Skip("local imagegen.toml present in package dir")
	}
	if got := ResolvePath(""); got != "" {
		t.Fatalf("expected no config path, got %q", got)
	}

	global := filepath.Join(tmp, "imagegen", "config.toml")
	if err := os.MkdirAll(filepath.Dir(global), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(global, []byte(""), 0o644); err != nil {
		t.Fatalf("write global: %v", err)
	}
	if got := ResolvePath(""); got != global {
		t.Fatalf("expected global path %q, got %q", global, got)
	}
}
