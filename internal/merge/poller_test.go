package merge

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quotelab/watchfeed/internal/calendar"
	"github.com/quotelab/watchfeed/internal/model"
)

type fakeFetcher struct {
	calls atomic.Int32
	snaps map[string]model.SessionSnapshot
	err   error
}

func (f *fakeFetcher) DailySnapshots(ctx context.Context, symbols []string) (map[string]model.SessionSnapshot, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]model.SessionSnapshot)
	for _, s := range symbols {
		if snap, ok := f.snaps[s]; ok {
			out[s] = snap
		}
	}
	return out, nil
}

type staticSymbols []string

func (s staticSymbols) Symbols() []string { return s }

type staticHealth bool

func (h staticHealth) Healthy() bool { return bool(h) }

func TestPoller_AppliesSnapshots(t *testing.T) {
	m := newTestMerger()
	defer m.Close()

	fetcher := &fakeFetcher{
		snaps: map[string]model.SessionSnapshot{
			"AAPL": {Symbol: "AAPL", Price: 190.0, Timestamp: 100, PreviousClose: 188.0},
		},
	}

	cfg := PollerConfig{
		HealthyInterval:  50 * time.Millisecond,
		FallbackInterval: 50 * time.Millisecond,
		OffHoursFactor:   1,
		Timeout:          time.Second,
	}
	p := NewPoller(cfg, fetcher, staticSymbols{"AAPL"}, staticHealth(true), nil, m, nil)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop(context.Background())

	waitForState(t, m, "AAPL", func(st model.PriceState) bool {
		return st.Price == 190.0 && st.Source == model.SourcePoll
	})
}

func TestPoller_EmptySymbolSetSkipsFetch(t *testing.T) {
	m := newTestMerger()
	defer m.Close()

	fetcher := &fakeFetcher{}
	cfg := PollerConfig{
		HealthyInterval:  20 * time.Millisecond,
		FallbackInterval: 20 * time.Millisecond,
		OffHoursFactor:   1,
		Timeout:          time.Second,
	}
	p := NewPoller(cfg, fetcher, staticSymbols{}, staticHealth(true), nil, m, nil)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	p.Stop(context.Background())

	if got := fetcher.calls.Load(); got != 0 {
		t.Errorf("fetch calls = %d, want 0 for empty watchlist", got)
	}
}

func TestPoller_AdaptiveInterval(t *testing.T) {
	cfg := PollerConfig{
		HealthyInterval:  15 * time.Second,
		FallbackInterval: 5 * time.Second,
		OffHoursFactor:   4,
		Timeout:          time.Second,
	}
	cal := calendar.NewWeekdays(nil)

	inSession := time.Date(2024, 7, 2, 12, 0, 0, 0, calendar.Location())
	weekend := time.Date(2024, 7, 6, 12, 0, 0, 0, calendar.Location())

	tests := []struct {
		name    string
		healthy bool
		now     time.Time
		want    time.Duration
	}{
		{"healthy in session", true, inSession, 15 * time.Second},
		{"fallback in session", false, inSession, 5 * time.Second},
		{"healthy off hours", true, weekend, 60 * time.Second},
		{"fallback off hours", false, weekend, 20 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPoller(cfg, &fakeFetcher{}, staticSymbols{"AAPL"}, staticHealth(tt.healthy), cal, nil, nil)
			p.now = func() time.Time { return tt.now }
			if got := p.interval(); got != tt.want {
				t.Errorf("interval = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPoller_FetchErrorDoesNotStopLoop(t *testing.T) {
	m := newTestMerger()
	defer m.Close()

	fetcher := &fakeFetcher{err: context.DeadlineExceeded}
	cfg := PollerConfig{
		HealthyInterval:  20 * time.Millisecond,
		FallbackInterval: 20 * time.Millisecond,
		OffHoursFactor:   1,
		Timeout:          time.Second,
	}
	p := NewPoller(cfg, fetcher, staticSymbols{"AAPL"}, staticHealth(true), nil, m, nil)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop(context.Background())

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if fetcher.calls.Load() >= 3 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("loop stalled after errors, calls = %d", fetcher.calls.Load())
}
