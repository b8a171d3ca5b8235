package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	s, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg := s.Get()
	if cfg.RefreshTimeout != DefaultRefreshTimeout {
		t.Errorf("refresh timeout = %d", cfg.RefreshTimeout)
	}
	if !cfg.Notice.Badge {
		t.Error("badge should default to on")
	}
	if cfg.RSSHub.BaseURL != DefaultRSSHubBaseURL {
		t.Errorf("base url = %q", cfg.RSSHub.BaseURL)
	}
	if cfg.Parser.Timeout != 15*time.Second {
		t.Errorf("parser timeout = %v", cfg.Parser.Timeout)
	}
	if cfg.RefreshInterval() != 5*time.Hour {
		t.Errorf("interval = %v", cfg.RefreshInterval())
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	yaml := "refresh_timeout: 600\nnotice:\n  badge: false\nrsshub:\n  base_url: https://hub.example.com\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg := s.Get()
	if cfg.RefreshTimeout != 600 || cfg.Notice.Badge || cfg.RSSHub.BaseURL != "https://hub.example.com" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if s.BadgeEnabled() {
		t.Error("BadgeEnabled should follow notice.badge")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TABFEEDS_REFRESH_TIMEOUT", "120")
	s, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := s.Get().RefreshTimeout; got != 120 {
		t.Errorf("refresh timeout = %d, want 120", got)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("rsshub:\n  base_url: https://hub/\n"), 0o644)
	_, err := Load(dir)
	if err == nil || !strings.Contains(err.Error(), "base_url") {
		t.Errorf("err = %v, want base_url validation error", err)
	}
}

func TestSetNotifiesWithOldAndNew(t *testing.T) {
	s, err := Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	var gotOld, gotNew Config
	calls := 0
	s.OnChange(func(old, new Config) {
		gotOld, gotNew = old, new
		calls++
	})

	if err := s.Set("notice.badge", false); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if calls != 1 {
		t.Fatalf("listener called %d times", calls)
	}
	if !gotOld.Notice.Badge || gotNew.Notice.Badge {
		t.Errorf("old/new badge = %v/%v, want true/false", gotOld.Notice.Badge, gotNew.Notice.Badge)
	}

	if err := s.Set("refresh_timeout", 0); err == nil {
		t.Error("expected validation error")
	}
	if s.Get().RefreshTimeout != DefaultRefreshTimeout {
		t.Error("invalid Set must not replace config")
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		RefreshTimeout: 10,
		Rules:          RulesConfig{URL: "https://rules"},
		RSSHub:         RSSHubConfig{BaseURL: "https://hub"},
		DataDir:        "/tmp/x",
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	bad := base
	bad.Server.Port = 70000
	if err := bad.Validate(); err == nil {
		t.Error("expected port error")
	}
	bad = base
	bad.Rules.URL = ""
	if err := bad.Validate(); err == nil {
		t.Error("expected rules url error")
	}
}
