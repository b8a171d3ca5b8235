package firefox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lotas/tabfeeds/internal/types"
)

func TestParseProfilesINI(t *testing.T) {
	dir := t.TempDir()
	absProfileDir := t.TempDir()
	iniContent := `[General]
StartWithLastProfile=1
Version=2

[Profile0]
Name=default-release
IsRelative=1
Path=abc123.default-release
Default=1

[Profile1]
Name=dev-edition
IsRelative=0
Path=` + absProfileDir + `
Default=0

[Install308046B0AF4A39CB]
Default=abc123.default-release
Locked=1
`
	iniPath := filepath.Join(dir, "profiles.ini")
	os.WriteFile(iniPath, []byte(iniContent), 0644)

	// Create profile dirs with session recovery files so they pass the filter.
	os.MkdirAll(filepath.Join(dir, "abc123.default-release", "sessionstore-backups"), 0755)
	os.WriteFile(filepath.Join(dir, "abc123.default-release", "sessionstore-backups", "recovery.jsonlz4"), []byte("dummy"), 0644)
	os.MkdirAll(filepath.Join(absProfileDir, "sessionstore-backups"), 0755)
	os.WriteFile(filepath.Join(absProfileDir, "sessionstore-backups", "recovery.jsonlz4"), []byte("dummy"), 0644)

	profiles, err := ParseProfilesINI(iniPath, dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(profiles))
	}

	// First profile: relative path
	if profiles[0].Name != "default-release" {
		t.Errorf("expected name 'default-release', got %q", profiles[0].Name)
	}
	if profiles[0].Path != filepath.Join(dir, "abc123.default-release") {
		t.Errorf("expected resolved path, got %q", profiles[0].Path)
	}
	if !profiles[0].IsDefault {
		t.Error("expected profile 0 to be default")
	}

	// Second profile: absolute path
	if profiles[1].Name != "dev-edition" {
		t.Errorf("expected name 'dev-edition', got %q", profiles[1].Name)
	}
	if profiles[1].Path != absProfileDir {
		t.Errorf("expected absolute path %q, got %q", absProfileDir, profiles[1].Path)
	}
	if profiles[1].IsDefault {
		t.Error("expected profile 1 to not be default")
	}
}

func TestFindFirefoxDir(t *testing.T) {
	dir := FindFirefoxDir()
	if dir == "" {
		t.Skip("no Firefox directory found on this system")
	}
	t.Logf("found Firefox dir: %s", dir)
}

func TestSelectProfile(t *testing.T) {
	profiles := []types.Profile{
		{Name: "dev-edition"},
		{Name: "default-release", IsDefault: true},
	}

	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"", "default-release", false},
		{"dev-edition", "dev-edition", false},
		{"missing", "", true},
	}
	for _, tt := range tests {
		got, err := SelectProfile(profiles, tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("SelectProfile(%q) err = %v", tt.name, err)
			continue
		}
		if got.Name != tt.want {
			t.Errorf("SelectProfile(%q) = %q, want %q", tt.name, got.Name, tt.want)
		}
	}

	if p, _ := SelectProfile(profiles[:1], ""); p.Name != "dev-edition" {
		t.Errorf("without default got %q", p.Name)
	}
	if _, err := SelectProfile(nil, ""); err == nil {
		t.Error("expected error for no profiles")
	}
}

func writeSession(t *testing.T, profileDir, name string) {
	t.Helper()
	backups := filepath.Join(profileDir, "sessionstore-backups")
	if err := os.MkdirAll(backups, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(backups, name), []byte("dummy"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestParseProfilesINIInstallDefault(t *testing.T) {
	dir := t.TempDir()
	ini := `[Profile1]
Name=old
IsRelative=1
Path=p/old
Default=1

[Profile0]
Name=current
IsRelative=1
Path=p/current

[Profile2]
Name=empty
IsRelative=1
Path=p/empty

[InstallABCDEF]
Default=p/current
`
	iniPath := filepath.Join(dir, "profiles.ini")
	if err := os.WriteFile(iniPath, []byte(ini), 0644); err != nil {
		t.Fatal(err)
	}
	writeSession(t, filepath.Join(dir, "p", "old"), "previous.jsonlz4")
	writeSession(t, filepath.Join(dir, "p", "current"), "recovery.jsonlz4")
	os.MkdirAll(filepath.Join(dir, "p", "empty"), 0755)

	profiles, err := ParseProfilesINI(iniPath, dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 2 {
		t.Fatalf("got %d profiles, want 2 (profile without a session skipped): %+v", len(profiles), profiles)
	}
	p, err := SelectProfile(profiles, "")
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "current" {
		t.Errorf("default = %q, want current from the install section", p.Name)
	}
}

func TestSessionPathPrefersRecovery(t *testing.T) {
	dir := t.TempDir()
	if _, ok := sessionPath(dir); ok {
		t.Error("empty profile should have no session")
	}
	writeSession(t, dir, "previous.jsonlz4")
	writeSession(t, dir, "recovery.jsonlz4")
	p, ok := sessionPath(dir)
	if !ok || filepath.Base(p) != "recovery.jsonlz4" {
		t.Errorf("sessionPath = %q, %v", p, ok)
	}
}
