package schedule

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

type harness struct {
	s       *Scheduler
	now     time.Time
	last    time.Time
	mu      sync.Mutex
	timers  []*fakeTimer
	refresh chan struct{}
}

func newHarness(last time.Time) *harness {
	h := &harness{
		now:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		last:    last,
		refresh: make(chan struct{}, 10),
	}
	h.s = New(
		func(context.Context) error { h.refresh <- struct{}{}; return nil },
		func() time.Time { return h.last },
		func() time.Duration { return time.Hour },
	)
	h.s.now = func() time.Time { return h.now }
	h.s.afterFunc = func(d time.Duration, f func()) Timer {
		h.mu.Lock()
		defer h.mu.Unlock()
		t := &fakeTimer{d: d, f: f}
		h.timers = append(h.timers, t)
		return t
	}
	return h
}

func (h *harness) lastTimer(t *testing.T) *fakeTimer {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.timers) == 0 {
		t.Fatal("no timer scheduled")
	}
	return h.timers[len(h.timers)-1]
}

func waitRefresh(t *testing.T, h *harness) {
	t.Helper()
	select {
	case <-h.refresh:
	case <-time.After(time.Second):
		t.Fatal("refresh not called")
	}
}

func TestInit_NeverRefreshed(t *testing.T) {
	h := newHarness(time.Time{})
	h.s.Init(context.Background())

	waitRefresh(t, h)
	if got := h.lastTimer(t).d; got != time.Hour {
		t.Errorf("next alarm in %v, want 1h", got)
	}
}

func TestInit_Stale(t *testing.T) {
	h := newHarness(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	h.s.Init(context.Background())

	waitRefresh(t, h)
	if !h.s.Next().Equal(h.now.Add(time.Hour)) {
		t.Errorf("next = %v", h.s.Next())
	}
}

func TestInit_Fresh(t *testing.T) {
	last := time.Date(2024, 3, 1, 11, 30, 0, 0, time.UTC)
	h := newHarness(last)
	h.s.Init(context.Background())

	select {
	case <-h.refresh:
		t.Fatal("fresh rules must not refresh immediately")
	case <-time.After(50 * time.Millisecond):
	}
	if got := h.lastTimer(t).d; got != 30*time.Minute {
		t.Errorf("alarm in %v, want 30m", got)
	}
}

func TestFireRefreshesAndRepeats(t *testing.T) {
	h := newHarness(time.Date(2024, 3, 1, 11, 30, 0, 0, time.UTC))
	h.s.Init(context.Background())

	first := h.lastTimer(t)
	h.now = h.now.Add(30 * time.Minute)
	first.f()

	waitRefresh(t, h)
	second := h.lastTimer(t)
	if second == first {
		t.Fatal("expected a new timer after firing")
	}
	if second.d != time.Hour {
		t.Errorf("repeat in %v, want 1h", second.d)
	}
}

func TestReinitReplacesTimer(t *testing.T) {
	h := newHarness(time.Date(2024, 3, 1, 11, 30, 0, 0, time.UTC))
	h.s.Init(context.Background())
	first := h.lastTimer(t)
	h.s.Init(context.Background())

	if !first.stopped {
		t.Error("previous alarm should be stopped")
	}
}

func TestFireAfterCancelIsNoop(t *testing.T) {
	h := newHarness(time.Date(2024, 3, 1, 11, 30, 0, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())
	h.s.Init(ctx)
	timer := h.lastTimer(t)
	cancel()
	timer.f()

	select {
	case <-h.refresh:
		t.Error("refresh ran after cancel")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStop(t *testing.T) {
	h := newHarness(time.Date(2024, 3, 1, 11, 30, 0, 0, time.UTC))
	h.s.Init(context.Background())
	h.s.Stop()
	if !h.lastTimer(t).stopped || !h.s.Next().IsZero() {
		t.Error("Stop should cancel the alarm")
	}
}

func TestFireKeepsFixedPeriod(t *testing.T) {
	h := newHarness(time.Date(2024, 3, 1, 11, 30, 0, 0, time.UTC))
	h.s.refresh = func(context.Context) error {
		h.now = h.now.Add(2 * time.Minute)
		return nil
	}
	h.s.Init(context.Background())

	h.now = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	h.lastTimer(t).f()

	want := time.Date(2024, 3, 1, 13, 30, 0, 0, time.UTC)
	if !h.s.Next().Equal(want) {
		t.Errorf("next = %v, want %v", h.s.Next(), want)
	}
	if got := h.lastTimer(t).d; got != 58*time.Minute {
		t.Errorf("alarm in %v, want 58m", got)
	}
}

func TestFireSkipsMissedPeriods(t *testing.T) {
	h := newHarness(time.Date(2024, 3, 1, 11, 30, 0, 0, time.UTC))
	h.s.refresh = func(context.Context) error { return nil }
	h.s.Init(context.Background())

	h.now = time.Date(2024, 3, 1, 15, 10, 0, 0, time.UTC)
	h.lastTimer(t).f()

	want := time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC)
	if !h.s.Next().Equal(want) {
		t.Errorf("next = %v, want %v", h.s.Next(), want)
	}
}
