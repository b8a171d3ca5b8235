package firefox

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/lotas/tabfeeds/internal/types"
)

// sessionFiles are tried in order: the running session, then the last
// closed one.
var sessionFiles = []string{"recovery.jsonlz4", "previous.jsonlz4"}

// sessionPath returns the first session file present in a profile.
func sessionPath(profileDir string) (string, bool) {
	backupDir := filepath.Join(profileDir, "sessionstore-backups")
	for _, name := range sessionFiles {
		p := filepath.Join(backupDir, name)
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

// FindFirefoxDir returns the platform-specific Firefox directory holding
// profiles.ini.
func FindFirefoxDir() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Mozilla", "Firefox")
		}
		return ""
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	switch runtime.GOOS {
	case "linux":
		return filepath.Join(home, ".mozilla", "firefox")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Firefox")
	default:
		return ""
	}
}

type iniSection struct {
	name string
	keys map[string]string
}

func readINI(r io.Reader) ([]iniSection, error) {
	var sections []iniSection
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			sections = append(sections, iniSection{name: line[1 : len(line)-1], keys: map[string]string{}})
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok || len(sections) == 0 {
			continue
		}
		sections[len(sections)-1].keys[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan profiles.ini: %w", err)
	}
	return sections, nil
}

// ParseProfilesINI reads profiles.ini and returns the profiles that can be
// scanned, that is those with a session file. An [Install...] section's
// Default names the profile the browser actually starts with; it wins over
// the legacy Default=1 flag.
func ParseProfilesINI(iniPath, firefoxDir string) ([]types.Profile, error) {
	f, err := os.Open(iniPath)
	if err != nil {
		return nil, fmt.Errorf("open profiles.ini: %w", err)
	}
	defer f.Close()

	sections, err := readINI(f)
	if err != nil {
		return nil, err
	}

	installDefaults := map[string]bool{}
	for _, s := range sections {
		if strings.HasPrefix(s.name, "Install") && s.keys["Default"] != "" {
			installDefaults[s.keys["Default"]] = true
		}
	}

	var usable []types.Profile
	for _, s := range sections {
		if !strings.HasPrefix(s.name, "Profile") {
			continue
		}
		p := types.Profile{
			Name:       s.keys["Name"],
			Path:       s.keys["Path"],
			IsRelative: s.keys["IsRelative"] == "1",
		}
		if len(installDefaults) > 0 {
			p.IsDefault = installDefaults[p.Path]
		} else {
			p.IsDefault = s.keys["Default"] == "1"
		}
		if p.IsRelative {
			p.Path = filepath.Join(firefoxDir, filepath.FromSlash(p.Path))
		}
		if _, ok := sessionPath(p.Path); ok {
			usable = append(usable, p)
		}
	}
	return usable, nil
}

// DiscoverProfiles finds the scannable Firefox profiles on this system.
func DiscoverProfiles() ([]types.Profile, error) {
	dir := FindFirefoxDir()
	if dir == "" {
		return nil, fmt.Errorf("could not find Firefox directory for %s", runtime.GOOS)
	}
	return ParseProfilesINI(filepath.Join(dir, "profiles.ini"), dir)
}

// SelectProfile picks the profile named name, or the default profile when
// name is empty. With no default marked, the first profile is used.
func SelectProfile(profiles []types.Profile, name string) (types.Profile, error) {
	if len(profiles) == 0 {
		return types.Profile{}, fmt.Errorf("no Firefox profiles with a session file")
	}
	if name != "" {
		for _, p := range profiles {
			if p.Name == name {
				return p, nil
			}
		}
		return types.Profile{}, fmt.Errorf("profile %q not found", name)
	}
	for _, p := range profiles {
		if p.IsDefault {
			return p, nil
		}
	}
	return profiles[0], nil
}
