// Package timeutil lets the control loop run on a real or a hand-driven
// clock.
package timeutil

import (
	"sync"
	"time"
)

// Clock is the part of package time the cycler depends on.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	// NewTicker delivers ticks every d. Ticks the reader has not taken yet
	// are dropped, as with time.Ticker.
	NewTicker(d time.Duration) Ticker
}

// Ticker is the channel side of time.Ticker.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock is the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }

func (RealClock) NewTicker(d time.Duration) Ticker {
	return wallTicker{ticker: time.NewTicker(d)}
}

type wallTicker struct{ ticker *time.Ticker }

func (t wallTicker) C() <-chan time.Time { return t.ticker.C }
func (t wallTicker) Stop()               { t.ticker.Stop() }

// MockClock only moves when Advance is called. Tests use it to step a
// paced cycler one period at a time.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*mockTicker
}

// NewMockClock returns a clock reading start.
func NewMockClock(start time.Time) *MockClock {
	return &MockClock{now: start}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Advance moves time forward by d and delivers at most one tick to every
// running ticker whose period has elapsed.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	for _, t := range c.tickers {
		if t.stopped || c.now.Before(t.due) {
			continue
		}
		select {
		case t.ch <- c.now:
		default:
		}
		t.due = c.now.Add(t.period)
	}
}

// Tickers reports how many tickers have been created, so a test can wait
// for the code under test to start its loop.
func (c *MockClock) Tickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

func (c *MockClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &mockTicker{clock: c, ch: make(chan time.Time, 1), period: d, due: c.now.Add(d)}
	c.tickers = append(c.tickers, t)
	return t
}

// mockTicker state is guarded by its clock's mutex.
type mockTicker struct {
	clock   *MockClock
	ch      chan time.Time
	period  time.Duration
	due     time.Time
	stopped bool
}

func (t *mockTicker) C() <-chan time.Time { return t.ch }

func (t *mockTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stopped = true
}
