package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLimiter_WindowInvariant(t *testing.T) {
	// 5 calls per 200ms window; 20 admissions should never put more than
	// 5 timestamps in any sliding 200ms sub-window.
	cfg := Config{MaxCalls: 5, Window: 200 * time.Millisecond}
	l := New(cfg)

	var mu sync.Mutex
	var admitted []time.Time

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Admit(ctx); err != nil {
				t.Errorf("Admit failed: %v", err)
				return
			}
			mu.Lock()
			admitted = append(admitted, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(admitted) != 20 {
		t.Fatalf("admitted %d calls, want 20", len(admitted))
	}

	// Check every sliding sub-window. Allow a small scheduling slop between
	// the limiter recording the slot and the test capturing time.Now().
	slop := 20 * time.Millisecond
	for i, start := range admitted {
		count := 0
		for _, ts := range admitted {
			d := ts.Sub(start)
			if d >= 0 && d < cfg.Window-slop {
				count++
			}
		}
		if count > cfg.MaxCalls {
			t.Errorf("window starting at call %d holds %d calls, want <= %d",
				i, count, cfg.MaxCalls)
		}
	}
}

func TestLimiter_ImmediateUnderQuota(t *testing.T) {
	l := New(Config{MaxCalls: 10, Window: time.Minute})

	start := time.Now()
	for i := 0; i < 10; i++ {
		if err := l.Admit(context.Background()); err != nil {
			t.Fatalf("Admit failed: %v", err)
		}
	}

	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("10 admits under quota took %v, expected near-instant", elapsed)
	}
	if got := l.InFlight(); got != 10 {
		t.Errorf("InFlight = %d, want 10", got)
	}
}

func TestLimiter_BlocksAtCeiling(t *testing.T) {
	l := New(Config{MaxCalls: 2, Window: 150 * time.Millisecond})

	ctx := context.Background()
	l.Admit(ctx)
	l.Admit(ctx)

	start := time.Now()
	if err := l.Admit(ctx); err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	elapsed := time.Since(start)

	if elapsed < 100*time.Millisecond {
		t.Errorf("third admit returned after %v, expected to block ~150ms", elapsed)
	}
}

func TestLimiter_CanAdmit(t *testing.T) {
	l := New(Config{MaxCalls: 2, Window: time.Minute})
	now := time.Now()

	if !l.CanAdmit(now) {
		t.Error("empty limiter should admit")
	}

	l.Admit(context.Background())
	l.Admit(context.Background())

	if l.CanAdmit(now) {
		t.Error("full limiter should not admit")
	}

	// After the window passes, old timestamps purge.
	if !l.CanAdmit(now.Add(2 * time.Minute)) {
		t.Error("expired timestamps should free slots")
	}
}

func TestLimiter_ContextCancel(t *testing.T) {
	l := New(Config{MaxCalls: 1, Window: time.Minute})
	l.Admit(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := l.Admit(ctx)
	if err == nil {
		t.Fatal("Admit should fail when context expires before a slot frees")
	}

	// A cancelled waiter must not wedge the queue for later callers.
	l2 := New(Config{MaxCalls: 1, Window: 80 * time.Millisecond})
	l2.Admit(context.Background())

	shortCtx, cancel2 := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel2()
	l2.Admit(shortCtx) // times out while head of queue

	ok := make(chan struct{})
	go func() {
		if err := l2.Admit(context.Background()); err == nil {
			close(ok)
		}
	}()

	select {
	case <-ok:
	case <-time.After(time.Second):
		t.Fatal("queue wedged after a cancelled head waiter")
	}
}

func TestLimiter_FIFO(t *testing.T) {
	l := New(Config{MaxCalls: 1, Window: 60 * time.Millisecond})
	l.Admit(context.Background())

	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := l.Admit(context.Background()); err != nil {
				t.Errorf("Admit failed: %v", err)
				return
			}
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
		}(i)
		// Stagger goroutine starts so queue order is deterministic.
		time.Sleep(15 * time.Millisecond)
	}
	wg.Wait()

	for i := 1; i < len(order); i++ {
		if order[i] < order[i-1] {
			t.Errorf("admissions out of FIFO order: %v", order)
			break
		}
	}
}
