package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolate points HOME and the working directory at empty temp dirs so no
// real settings file is picked up.
func isolate(t *testing.T) (home, cwd string) {
	t.Helper()
	home = t.TempDir()
	cwd = t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(cwd)
	return home, cwd
}

func TestLoadDefaults(t *testing.T) {
	home, _ := isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.File != "" {
		t.Errorf("File = %q, want empty", cfg.File)
	}
	if cfg.HomeDir != home {
		t.Errorf("HomeDir = %q, want %q", cfg.HomeDir, home)
	}
	if cfg.Probe.Timeout != 5*time.Second {
		t.Errorf("Probe.Timeout = %s, want 5s", cfg.Probe.Timeout)
	}
	if cfg.Probe.MaxConcurrent != 8 {
		t.Errorf("Probe.MaxConcurrent = %d, want 8", cfg.Probe.MaxConcurrent)
	}
	if !cfg.History.Enabled {
		t.Error("history should be enabled by default")
	}
	if want := filepath.Join(home, ".mcpm", "history.db"); cfg.History.DBPath != want {
		t.Errorf("History.DBPath = %q, want %q", cfg.History.DBPath, want)
	}
	lvl, err := cfg.Log.SlogLevel()
	if err != nil || lvl != slog.LevelWarn {
		t.Errorf("SlogLevel = %v, %v; want warn", lvl, err)
	}
}

func TestLoadFromHomeDir(t *testing.T) {
	home, _ := isolate(t)
	dir := filepath.Join(home, ".mcpm")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	content := "probe:\n  timeout: 750ms\n  max_concurrent: 2\nhistory:\n  db_path: ~/state/h.db\nlog:\n  level: debug\n"
	if err := os.WriteFile(filepath.Join(dir, "mcpm.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Probe.Timeout != 750*time.Millisecond {
		t.Errorf("Probe.Timeout = %s", cfg.Probe.Timeout)
	}
	if cfg.Probe.MaxConcurrent != 2 {
		t.Errorf("Probe.MaxConcurrent = %d", cfg.Probe.MaxConcurrent)
	}
	if want := filepath.Join(home, "state", "h.db"); cfg.History.DBPath != want {
		t.Errorf("History.DBPath = %q, want %q", cfg.History.DBPath, want)
	}
	if cfg.File == "" {
		t.Error("File should name the settings file")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	_, cwd := isolate(t)
	if err := os.WriteFile(filepath.Join(cwd, "mcpm.yaml"), []byte("history:\n  enabled: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MCPM_HISTORY_ENABLED", "false")
	t.Setenv("MCPM_PROJECT_DIR", "/srv/project")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.History.Enabled {
		t.Error("MCPM_HISTORY_ENABLED should win over the file")
	}
	if cfg.ProjectDir != "/srv/project" {
		t.Errorf("ProjectDir = %q", cfg.ProjectDir)
	}
}

func TestExplicitFileMustExist(t *testing.T) {
	isolate(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for a missing explicit settings file")
	}
}

func TestInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"zero timeout", "probe:\n  timeout: 0s\n"},
		{"negative concurrency", "probe:\n  max_concurrent: -1\n"},
		{"bad log level", "log:\n  level: loud\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			file := filepath.Join(t.TempDir(), "mcpm.yaml")
			if err := os.WriteFile(file, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(file); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
