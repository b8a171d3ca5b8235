package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/lotas/tabfeeds/internal/applog"
)

// Timer is the part of *time.Timer the scheduler uses.
type Timer interface {
	Stop() bool
}

// Scheduler keeps one pending "refresh rules" alarm. The alarm first fires
// at the time derived from the last refresh and then repeats every
// interval.
type Scheduler struct {
	refresh  func(ctx context.Context) error
	lastDate func() time.Time
	interval func() time.Duration

	now       func() time.Time
	afterFunc func(d time.Duration, f func()) Timer

	mu    sync.Mutex
	timer Timer
	next  time.Time
	ctx   context.Context
}

// New returns a scheduler. lastDate reports when rules were last refreshed
// and interval the current refresh period; both are read on every Init so
// configuration changes apply.
func New(refresh func(ctx context.Context) error, lastDate func() time.Time, interval func() time.Duration) *Scheduler {
	return &Scheduler{
		refresh:  refresh,
		lastDate: lastDate,
		interval: interval,
		now:      time.Now,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
	}
}

// Init refreshes immediately if the rules are missing or stale, and
// replaces any pending alarm. Call it at startup, when the browser becomes
// active again, and when the refresh interval changes.
func (s *Scheduler) Init(ctx context.Context) {
	now := s.now()
	last := s.lastDate()
	iv := s.interval()

	if last.IsZero() || now.Sub(last) > iv {
		go s.run(ctx)
		s.scheduleAt(ctx, now.Add(iv))
		return
	}
	s.scheduleAt(ctx, last.Add(iv))
}

// Next returns when the pending alarm fires; zero if none.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Stop cancels the pending alarm.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.next = time.Time{}
}

func (s *Scheduler) scheduleAt(ctx context.Context, when time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	d := when.Sub(s.now())
	if d < 0 {
		d = 0
	}
	s.next = when
	s.ctx = ctx
	s.timer = s.afterFunc(d, s.fire)
	applog.Info("schedule.set", "when", when.Format(time.RFC3339))
}

// fire runs the refresh and sets the next alarm one period after the one
// that fired, so the refresh duration does not shift the schedule.
func (s *Scheduler) fire() {
	s.mu.Lock()
	ctx := s.ctx
	due := s.next
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil || due.IsZero() {
		return
	}
	s.run(ctx)

	iv := s.interval()
	next := due.Add(iv)
	for now := s.now(); iv > 0 && !next.After(now); {
		next = next.Add(iv)
	}

	s.mu.Lock()
	replaced := !s.next.Equal(due)
	s.mu.Unlock()
	if replaced {
		return
	}
	s.scheduleAt(ctx, next)
}

func (s *Scheduler) run(ctx context.Context) {
	if err := s.refresh(ctx); err != nil {
		applog.Error("schedule.refresh", err)
	}
}
