package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Config holds limiter settings.
type Config struct {
	MaxCalls int           // Max calls admitted within any sliding window
	Window   time.Duration // Window length
}

// DefaultConfig returns sensible defaults (200 calls/minute, the free-tier
// quota of the upstream data API).
func DefaultConfig() Config {
	return Config{
		MaxCalls: 200,
		Window:   time.Minute,
	}
}

// Limiter is sliding-window admission control for outbound REST calls.
//
// Admit never fails on quota pressure, it only delays. Concurrent callers
// are admitted in FIFO order.
type Limiter struct {
	maxCalls int
	window   time.Duration
	now      func() time.Time

	mu    sync.Mutex
	calls []time.Time     // Admission timestamps, ascending
	queue []chan struct{} // Waiting callers, head first
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	if cfg.MaxCalls < 1 {
		cfg.MaxCalls = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &Limiter{
		maxCalls: cfg.MaxCalls,
		window:   cfg.Window,
		now:      time.Now,
	}
}

// Admit blocks until a call slot is available within the sliding window,
// then records the call. Returns early only if ctx is cancelled.
func (l *Limiter) Admit(ctx context.Context) error {
	turn := make(chan struct{})

	l.mu.Lock()
	l.queue = append(l.queue, turn)
	if len(l.queue) == 1 {
		close(turn)
	}
	l.mu.Unlock()

	select {
	case <-turn:
	case <-ctx.Done():
		l.leave(turn)
		return ctx.Err()
	}

	// Head of the queue: wait out the window, then take the slot.
	for {
		l.mu.Lock()
		wait := l.timeUntilNextSlot(l.now())
		if wait <= 0 {
			l.calls = append(l.calls, l.now())
			l.advanceLocked()
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			l.leave(turn)
			return ctx.Err()
		}
	}
}

// CanAdmit reports whether a call at time t would be admitted immediately.
// Expired timestamps are purged as a side effect.
func (l *Limiter) CanAdmit(t time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.purgeLocked(t)
	return len(l.calls) < l.maxCalls
}

// InFlight returns the number of calls currently counted in the window.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.purgeLocked(l.now())
	return len(l.calls)
}

// timeUntilNextSlot returns how long until the oldest in-window call
// expires, or 0 when a slot is free. Caller holds l.mu.
func (l *Limiter) timeUntilNextSlot(t time.Time) time.Duration {
	l.purgeLocked(t)
	if len(l.calls) < l.maxCalls {
		return 0
	}
	return l.calls[0].Add(l.window).Sub(t)
}

// purgeLocked drops timestamps older than the window. Caller holds l.mu.
func (l *Limiter) purgeLocked(t time.Time) {
	cutoff := t.Add(-l.window)
	i := 0
	for i < len(l.calls) && !l.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.calls = append(l.calls[:0], l.calls[i:]...)
	}
}

// advanceLocked pops the head waiter and wakes the next. Caller holds l.mu.
func (l *Limiter) advanceLocked() {
	l.queue = l.queue[1:]
	if len(l.queue) > 0 {
		close(l.queue[0])
	}
}

// leave removes a cancelled waiter from the queue, waking the next waiter
// if the cancelled one was at the head.
func (l *Limiter) leave(turn chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, ch := range l.queue {
		if ch == turn {
			wasHead := i == 0
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			if wasHead && len(l.queue) > 0 {
				close(l.queue[0])
			}
			return
		}
	}
}
