package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("DATA_DIR", "/tmp/doorman")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if cfg.DBPath != filepath.Join("/tmp/doorman", "doorman.db") {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.Browser.ProfileDir != filepath.Join("/tmp/doorman", "instagram-profile") {
		t.Errorf("ProfileDir = %q", cfg.Browser.ProfileDir)
	}
	if cfg.Expiry.InviteWarningAfter != 45*time.Minute {
		t.Errorf("InviteWarningAfter = %v, want 45m", cfg.Expiry.InviteWarningAfter)
	}
	if cfg.Expiry.InviteExpireAfter != time.Hour {
		t.Errorf("InviteExpireAfter = %v, want 1h", cfg.Expiry.InviteExpireAfter)
	}
	if cfg.Social.RescanCooldown != 30*time.Minute {
		t.Errorf("RescanCooldown = %v, want 30m", cfg.Social.RescanCooldown)
	}
	if !cfg.Expiry.PolicySince.IsZero() {
		t.Errorf("PolicySince = %v, want zero", cfg.Expiry.PolicySince)
	}
	if !cfg.Browser.Headless {
		t.Error("Headless should default to true")
	}
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("DB_PATH", "/var/lib/doorman.db")
	t.Setenv("INVITE_WARNING_AFTER", "10m")
	t.Setenv("INVITE_EXPIRE_AFTER", "20m")
	t.Setenv("EXPIRY_POLICY_SINCE", "2026-03-01T00:00:00Z")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if cfg.DBPath != "/var/lib/doorman.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.Expiry.InviteExpireAfter != 20*time.Minute {
		t.Errorf("InviteExpireAfter = %v, want 20m", cfg.Expiry.InviteExpireAfter)
	}
	want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if !cfg.Expiry.PolicySince.Equal(want) {
		t.Errorf("PolicySince = %v, want %v", cfg.Expiry.PolicySince, want)
	}
}

func TestParseRejectsInvertedWindows(t *testing.T) {
	t.Setenv("PLUS_ONE_WARNING_AFTER", "2h")

	if _, err := Parse(); err == nil {
		t.Fatal("expected error when warning comes after expiry")
	}
}
