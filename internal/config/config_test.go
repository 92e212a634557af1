package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	l, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg := l.Current()
	if cfg.LogLevel != "info" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
	if cfg.RateLimitCooldown != 5*time.Minute {
		t.Errorf("cooldown = %v, want 5m", cfg.RateLimitCooldown)
	}
	if cfg.AuditRetentionDays != 90 || cfg.TranscriptRetentionDays != 30 {
		t.Errorf("retention = %d/%d", cfg.AuditRetentionDays, cfg.TranscriptRetentionDays)
	}
	if cfg.SkipPermissions {
		t.Error("skip permissions must default off")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := "log_level: debug\nrate_limit_cooldown: 10m\naudit_retention_days: 14\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	l, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg := l.Current()
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
	if cfg.RateLimitCooldown != 10*time.Minute {
		t.Errorf("cooldown = %v", cfg.RateLimitCooldown)
	}
	if cfg.AuditRetentionDays != 14 {
		t.Errorf("audit retention = %d", cfg.AuditRetentionDays)
	}
	// Unset keys keep defaults.
	if cfg.TranscriptRetentionDays != 30 {
		t.Errorf("transcript retention = %d", cfg.TranscriptRetentionDays)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	l, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	if err != nil {
		t.Fatalf("missing file must not fail: %v", err)
	}
	if l.Current().LogLevel != "info" {
		t.Errorf("cfg = %+v", l.Current())
	}
}

func TestLoadRejectsNegativeCooldown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("rate_limit_cooldown: -5m\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path, nil); err == nil {
		t.Error("negative cooldown must be rejected")
	}
}

func TestResolvePathsEnvOverrides(t *testing.T) {
	t.Setenv("CCD_HOME", "/custom/home")
	t.Setenv("CCD_DB_PATH", "/elsewhere/state.db")

	p, err := ResolvePaths()
	if err != nil {
		t.Fatalf("ResolvePaths: %v", err)
	}
	if p.CcdHome != "/custom/home" {
		t.Errorf("home = %q", p.CcdHome)
	}
	if p.StateDBPath != "/elsewhere/state.db" {
		t.Errorf("db = %q", p.StateDBPath)
	}
	if p.ConfigPath != "/custom/home/config.yaml" {
		t.Errorf("config = %q", p.ConfigPath)
	}
	if p.TranscriptsDir != "/custom/home/transcripts" {
		t.Errorf("transcripts = %q", p.TranscriptsDir)
	}
}
