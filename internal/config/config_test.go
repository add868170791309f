package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Errorf("cfg = %+v, want defaults %+v", cfg, Default())
	}
}

func TestLoadMissingFileIsSkipped(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != Default().Addr {
		t.Errorf("Addr = %q, want default %q", cfg.Addr, Default().Addr)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recallkit.yml")
	content := "addr: \":9000\"\nlimit: 10\nhistory: false\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9000" {
		t.Errorf("Addr = %q, want :9000", cfg.Addr)
	}
	if cfg.Limit != 10 {
		t.Errorf("Limit = %d, want 10", cfg.Limit)
	}
	if cfg.History {
		t.Error("History = true, want false from file")
	}
	// Untouched keys keep their defaults.
	if cfg.DB != Default().DB {
		t.Errorf("DB = %q, want default %q", cfg.DB, Default().DB)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recallkit.yml")
	if err := os.WriteFile(path, []byte("addr: \":9000\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("RECALLKIT_ADDR", ":7777")
	t.Setenv("RECALLKIT_LIMIT", "5")

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":7777" {
		t.Errorf("Addr = %q, want env override :7777", cfg.Addr)
	}
	if cfg.Limit != 5 {
		t.Errorf("Limit = %d, want env override 5", cfg.Limit)
	}
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	t.Setenv("RECALLKIT_ADDR", ":7777")

	flags := Flags()
	if err := flags.Parse([]string{"--addr", ":6000"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":6000" {
		t.Errorf("Addr = %q, want flag override :6000", cfg.Addr)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Setenv("RECALLKIT_LIMIT", "0")
	if _, err := Load("", nil); err == nil {
		t.Fatal("Load accepted a zero session limit")
	}

	t.Setenv("RECALLKIT_LIMIT", "-3")
	if _, err := Load("", nil); err == nil {
		t.Fatal("Load accepted a negative session limit")
	}
}
