package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lotas/tabfeeds/internal/types"
)

// ErrNotSubscribed is returned when unsubscribing from a URL that has no
// subscription entry.
var ErrNotSubscribed = errors.New("no subscription for url")

// Subscribe records a subscription, or flips an existing entry back to
// subscribed. A non-empty title replaces the stored one.
func Subscribe(db *sql.DB, subURL, title string) error {
	_, err := db.Exec(`
		INSERT INTO subscriptions (sub_url, title, status) VALUES (?, ?, ?)
		ON CONFLICT(sub_url) DO UPDATE SET
			status = excluded.status,
			title = CASE WHEN excluded.title != '' THEN excluded.title ELSE subscriptions.title END,
			updated_at = CURRENT_TIMESTAMP`,
		subURL, title, int(types.Subscribed),
	)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subURL, err)
	}
	return nil
}

// Unsubscribe flips an entry to unsubscribed. The row is kept so the
// history of having subscribed survives.
func Unsubscribe(db *sql.DB, subURL string) error {
	res, err := db.Exec(`
		UPDATE subscriptions SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE sub_url = ?`,
		int(types.Unsubscribed), subURL,
	)
	if err != nil {
		return fmt.Errorf("unsubscribe %s: %w", subURL, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("unsubscribe %s: %w", subURL, err)
	}
	if n == 0 {
		return fmt.Errorf("unsubscribe %s: %w", subURL, ErrNotSubscribed)
	}
	return nil
}

// ListSubscriptions returns every entry, oldest first.
func ListSubscriptions(db *sql.DB) ([]types.Subscription, error) {
	rows, err := db.Query(`
		SELECT sub_url, title, status, updated_at
		FROM subscriptions ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []types.Subscription
	for rows.Next() {
		var s types.Subscription
		var status int
		var updated time.Time
		if err := rows.Scan(&s.SubURL, &s.Title, &status, &updated); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		s.Status = types.Status(status)
		s.UpdatedAt = updated
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// SubscriptionStore wraps the database for the badge presenter and
// notifies listeners after each change.
type SubscriptionStore struct {
	db *sql.DB

	mu        sync.Mutex
	listeners []func()
}

func NewSubscriptionStore(db *sql.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

// Subscriptions returns the current list.
func (s *SubscriptionStore) Subscriptions(ctx context.Context) ([]types.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ListSubscriptions(s.db)
}

// OnChange registers fn to run after Subscribe or Unsubscribe succeeds.
func (s *SubscriptionStore) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *SubscriptionStore) Subscribe(subURL, title string) error {
	if err := Subscribe(s.db, subURL, title); err != nil {
		return err
	}
	s.notify()
	return nil
}

func (s *SubscriptionStore) Unsubscribe(subURL string) error {
	if err := Unsubscribe(s.db, subURL); err != nil {
		return err
	}
	s.notify()
	return nil
}

func (s *SubscriptionStore) notify() {
	s.mu.Lock()
	fns := append([]func(){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
