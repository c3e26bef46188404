package audit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrSinkOpen is returned without calling the sink while its circuit is open.
var ErrSinkOpen = errors.New("audit sink circuit open")

// GuardedSink stops hammering a sink that keeps failing. After threshold
// consecutive failures the circuit opens for cooldown; the first Append after
// that is let through, and its result closes or reopens the circuit.
type GuardedSink struct {
	sink Sink
	now  func() time.Time

	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	failures  int
	openUntil time.Time
	open      bool
}

// NewGuardedSink wraps sink. Non-positive threshold and cooldown default to 5 and one minute.
func NewGuardedSink(sink Sink, threshold int, cooldown time.Duration) *GuardedSink {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &GuardedSink{sink: sink, now: time.Now, threshold: threshold, cooldown: cooldown}
}

func (g *GuardedSink) Append(ctx context.Context, event Event) error {
	if !g.allow() {
		return ErrSinkOpen
	}
	if err := g.sink.Append(ctx, event); err != nil {
		g.recordFailure()
		return err
	}
	g.recordSuccess()
	return nil
}

// IsOpen reports whether appends are currently short-circuited.
func (g *GuardedSink) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open && g.now().Before(g.openUntil)
}

func (g *GuardedSink) allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		return true
	}
	if g.now().Before(g.openUntil) {
		return false
	}
	// Half-open: one trial append; a failure reopens immediately.
	g.open = false
	g.failures = g.threshold - 1
	return true
}

func (g *GuardedSink) recordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures = 0
	g.open = false
}

func (g *GuardedSink) recordFailure() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures++
	if g.failures >= g.threshold {
		g.open = true
		g.openUntil = g.now().Add(g.cooldown)
	}
}
