package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Config defines a sliding-window admission policy.
type Config struct {
	// MaxRequests is the number of admissions allowed per window.
	MaxRequests int
	// Window is the trailing duration the quota is evaluated over.
	Window time.Duration
}

// DefaultConfig returns the default per-actor policy: 20 admissions per
// 60-second window.
func DefaultConfig() Config {
	return Config{
		MaxRequests: 20,
		Window:      time.Minute,
	}
}

// Validate reports whether the policy is usable. Invalid policies are a
// construction-time failure, never a runtime one.
func (c Config) Validate() error {
	if c.MaxRequests <= 0 {
		return fmt.Errorf("max requests must be positive, got %d", c.MaxRequests)
	}
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive, got %v", c.Window)
	}
	return nil
}

// Decision is the outcome of an admission check.
type Decision struct {
	// Allowed reports whether the event may proceed.
	Allowed bool
	// RetryAfter is the user-facing wait hint on rejection. It is the
	// configured window length, not the exact residual, so the message
	// shown to the actor is conservative and deterministic.
	RetryAfter time.Duration
}

// Limiter enforces a sliding-window rate limit per actor. State is local
// to the process: when multiple instances share one actor population each
// enforces its own independent budget.
type Limiter struct {
	config Config

	mu      sync.Mutex
	windows map[int64][]time.Time
}

// New creates a limiter with the given policy. Distinct limiters with
// distinct policies may be created per command category.
func New(config Config) (*Limiter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rate limit config: %w", err)
	}
	return &Limiter{
		config:  config,
		windows: make(map[int64][]time.Time),
	}, nil
}

// Config returns the limiter's policy.
func (l *Limiter) Config() Config {
	return l.config
}

// Check prunes the actor's window to [now-window, now], then either
// rejects (window full) or records now and admits. Prune and append run
// under one lock so two concurrent admissions cannot both slip past the
// limit.
func (l *Limiter) Check(actor int64, now time.Time) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	window := l.prune(actor, now)
	if len(window) >= l.config.MaxRequests {
		return Decision{Allowed: false, RetryAfter: l.config.Window}
	}

	l.windows[actor] = append(window, now)
	return Decision{Allowed: true}
}

// Remaining returns how many admissions the actor has left in the
// current window without consuming one.
func (l *Limiter) Remaining(actor int64, now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	remaining := l.config.MaxRequests - len(l.prune(actor, now))
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// prune drops entries older than the window and stores the result.
// Caller must hold l.mu.
func (l *Limiter) prune(actor int64, now time.Time) []time.Time {
	cutoff := now.Add(-l.config.Window)
	window := l.windows[actor]

	kept := window[:0]
	for _, ts := range window {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(l.windows, actor)
		return nil
	}
	l.windows[actor] = kept
	return kept
}

// Cleanup removes actors whose windows have fully expired. Safe to call
// from a background sweeper; correctness never depends on it because
// Check prunes lazily.
func (l *Limiter) Cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.config.Window)
	for actor, window := range l.windows {
		if len(window) == 0 || !window[len(window)-1].After(cutoff) {
			delete(l.windows, actor)
		}
	}
}

// StartCleanup runs Cleanup once per window until ctx is cancelled.
func (l *Limiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(l.config.Window)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Cleanup(time.Now())
			case <-ctx.Done():
				return
			}
		}
	}()
}
