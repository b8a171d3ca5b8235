package firefox

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/lotas/tabfeeds/internal/types"
	"github.com/pierrec/lz4/v4"
)

// mozlz4 header: 8-byte magic "mozLz40\x00"
var mozLz4Magic = []byte("mozLz40\x00")

// DecompressMozLz4 decompresses data in Mozilla's mozlz4 format.
// The format is: 8-byte magic "mozLz40\x00" + 4-byte LE uint32 uncompressed size + lz4 block data.
func DecompressMozLz4(data []byte) ([]byte, error) {
	const headerSize = 12 // 8 magic + 4 size

	if len(data) < headerSize {
		return nil, fmt.Errorf("mozlz4: data too short (%d bytes)", len(data))
	}

	// Verify magic header.
	for i := 0; i < len(mozLz4Magic); i++ {
		if data[i] != mozLz4Magic[i] {
			return nil, fmt.Errorf("mozlz4: invalid header magic")
		}
	}

	// Read uncompressed size (4-byte little-endian uint32).
	uncompressedSize := binary.LittleEndian.Uint32(data[8:12])

	// Decompress using raw lz4 block decompression.
	dst := make([]byte, uncompressedSize)
	n, err := lz4.UncompressBlock(data[headerSize:], dst)
	if err != nil {
		return nil, fmt.Errorf("mozlz4: decompress failed: %w", err)
	}

	return dst[:n], nil
}

// Raw JSON types for Firefox session file parsing.
type rawEntry struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

type rawTab struct {
	Entries      []rawEntry `json:"entries"`
	Index        int        `json:"index"`
	LastAccessed int64      `json:"lastAccessed"`
	Image        string     `json:"image"`
	Hidden       bool       `json:"hidden"`
}

type rawWindow struct {
	Tabs []rawTab `json:"tabs"`
}

type rawSession struct {
	Windows []rawWindow `json:"windows"`
}

// ParseSession parses raw JSON session data into a SessionData structure.
// Each tab is reported at its current history entry.
func ParseSession(data []byte) (*types.SessionData, error) {
	var raw rawSession
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse session JSON: %w", err)
	}

	sd := &types.SessionData{
		ParsedAt: time.Now(),
	}

	for winIdx, window := range raw.Windows {
		for tabIdx, rt := range window.Tabs {
			if len(rt.Entries) == 0 || rt.Hidden {
				continue
			}

			// index is 1-based; current page is entries[index-1].
			entryIdx := rt.Index - 1
			if entryIdx < 0 || entryIdx >= len(rt.Entries) {
				entryIdx = len(rt.Entries) - 1
			}
			entry := rt.Entries[entryIdx]

			sd.Tabs = append(sd.Tabs, &types.SessionTab{
				URL:          entry.URL,
				Title:        entry.Title,
				LastAccessed: time.UnixMilli(rt.LastAccessed),
				Favicon:      rt.Image,
				WindowIndex:  winIdx,
				TabIndex:     tabIdx,
			})
		}
	}

	return sd, nil
}

// WebTabs returns the http(s) tabs of a session with duplicate URLs
// removed. The first tab for each URL is kept.
func WebTabs(tabs []*types.SessionTab) []*types.SessionTab {
	seen := make(map[string]bool)
	var out []*types.SessionTab
	for _, t := range tabs {
		u, err := url.Parse(t.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		if seen[t.URL] {
			continue
		}
		seen[t.URL] = true
		out = append(out, t)
	}
	return out
}

// ReadSessionFile reads and parses the session of a profile directory,
// preferring the running session over the last closed one.
func ReadSessionFile(profileDir string) (*types.SessionData, error) {
	path, ok := sessionPath(profileDir)
	if !ok {
		return nil, fmt.Errorf("no session file found in %s", filepath.Join(profileDir, "sessionstore-backups"))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}

	decompressed, err := DecompressMozLz4(data)
	if err != nil {
		return nil, fmt.Errorf("decompress session file: %w", err)
	}

	return ParseSession(decompressed)
}
