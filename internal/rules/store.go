package rules

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/lotas/tabfeeds/internal/hub"
)

var (
	bucketRules = []byte("rules")
	keyRules    = []byte("rules")
	keyDate     = []byte("date")
)

// Store persists the hub rule set and the time it was last refreshed.
// Reads are served from memory.
type Store struct {
	db *bolt.DB

	mu        sync.RWMutex
	rules     hub.Rules
	date      time.Time
	listeners []func()
}

// Open opens (or creates) the rule database at path and loads the cached
// rules into memory.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create rules directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open rules db: %w", err)
	}

	s := &Store{db: db, rules: hub.Rules{}}
	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketRules)
		if err != nil {
			return err
		}
		if data := b.Get(keyRules); data != nil {
			if err := json.Unmarshal(data, &s.rules); err != nil {
				return fmt.Errorf("decode cached rules: %w", err)
			}
		}
		if raw := b.Get(keyDate); len(raw) == 8 {
			s.date = time.UnixMilli(int64(binary.BigEndian.Uint64(raw)))
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DefaultPath returns the rule database path inside dataDir.
func DefaultPath(dataDir string) string {
	return filepath.Join(dataDir, "rules.db")
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Rules returns the current rule set.
func (s *Store) Rules() hub.Rules {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rules
}

// Date returns when the rules were last refreshed; zero if never.
func (s *Store) Date() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.date
}

// Save replaces the rule set and its refresh time, then notifies listeners.
func (s *Store) Save(r hub.Rules, at time.Time) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	var date [8]byte
	binary.BigEndian.PutUint64(date[:], uint64(at.UnixMilli()))

	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRules)
		if err := b.Put(keyRules, data); err != nil {
			return err
		}
		return b.Put(keyDate, date[:])
	})
	if err != nil {
		return fmt.Errorf("save rules: %w", err)
	}

	s.mu.Lock()
	s.rules = r
	s.date = time.UnixMilli(at.UnixMilli())
	fns := append([]func(){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return nil
}

// OnChange registers fn to run after each Save.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}
