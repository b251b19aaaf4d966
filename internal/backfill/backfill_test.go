package backfill

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quotelab/watchfeed/internal/calendar"
	"github.com/quotelab/watchfeed/internal/candle"
	"github.com/quotelab/watchfeed/internal/model"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls int32
	block chan struct{} // if set, Candles waits before returning
	bars  map[string][]model.Bar
	err   error
}

func (f *fakeFetcher) Candles(ctx context.Context, symbol string, res model.Resolution, from, to time.Time) ([]model.Bar, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bars[symbol], nil
}

// minuteBar builds a bar at the given New York wall-clock time.
func minuteBar(symbol string, y int, m time.Month, d, hour, minute int) model.Bar {
	ts := time.Date(y, m, d, hour, minute, 0, 0, calendar.Location())
	return model.Bar{Symbol: symbol, Timestamp: ts.UnixMilli(), Close: 100, Volume: 1000}
}

func TestHydrate_BucketsByTradingDate(t *testing.T) {
	// "Now" is mid-session Wednesday 2024-07-03.
	now := time.Date(2024, 7, 3, 12, 0, 0, 0, calendar.Location())

	fetcher := &fakeFetcher{
		bars: map[string][]model.Bar{
			"AAPL": {
				minuteBar("AAPL", 2024, 7, 1, 9, 30),
				minuteBar("AAPL", 2024, 7, 1, 9, 31),
				minuteBar("AAPL", 2024, 7, 2, 9, 30),
				minuteBar("AAPL", 2024, 7, 3, 9, 30), // today, excluded
			},
		},
	}
	store := candle.NewMemoryStore()

	h := New(Config{Days: 5, Concurrency: 2}, fetcher, store, calendar.NewWeekdays(nil), nil)
	h.now = func() time.Time { return now }

	if err := h.Hydrate(context.Background(), []string{"AAPL"}); err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}

	days, _ := store.GetRecentDays(context.Background(), "AAPL", 10)
	if len(days) != 2 {
		t.Fatalf("got %d days, want 2 (today's partial day excluded)", len(days))
	}
	if days[0].Date != "2024-07-01" || days[1].Date != "2024-07-02" {
		t.Errorf("dates = %s, %s", days[0].Date, days[1].Date)
	}
	if len(days[0].Bars) != 2 {
		t.Errorf("2024-07-01 has %d bars, want 2", len(days[0].Bars))
	}
}

func TestHydrate_PropagatesFetchError(t *testing.T) {
	fetcher := &fakeFetcher{err: context.DeadlineExceeded}
	h := New(Config{Days: 5}, fetcher, candle.NewMemoryStore(), nil, nil)

	if err := h.Hydrate(context.Background(), []string{"AAPL", "MSFT"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestHydrate_NoDataIsNotAnError(t *testing.T) {
	fetcher := &fakeFetcher{bars: map[string][]model.Bar{}}
	store := candle.NewMemoryStore()
	h := New(Config{Days: 5}, fetcher, store, nil, nil)

	if err := h.Hydrate(context.Background(), []string{"NEWIPO"}); err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}
	if days, _ := store.GetRecentDays(context.Background(), "NEWIPO", 10); days != nil {
		t.Errorf("days = %+v, want none", days)
	}
}

func TestDailyBars_Singleflight(t *testing.T) {
	fetcher := &fakeFetcher{
		block: make(chan struct{}),
		bars:  map[string][]model.Bar{"AAPL": {minuteBar("AAPL", 2024, 7, 1, 16, 0)}},
	}
	h := New(Config{Days: 5}, fetcher, candle.NewMemoryStore(), nil, nil)

	var wg sync.WaitGroup
	results := make([]int, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bars, err := h.DailyBars(context.Background(), "AAPL")
			if err != nil {
				t.Errorf("DailyBars failed: %v", err)
			}
			results[i] = len(bars)
		}(i)
	}

	// Let all callers pile onto the in-flight fetch, then release it.
	time.Sleep(50 * time.Millisecond)
	close(fetcher.block)
	wg.Wait()

	if got := atomic.LoadInt32(&fetcher.calls); got != 1 {
		t.Errorf("fetch calls = %d, want 1 (deduplicated)", got)
	}
	for i, n := range results {
		if n != 1 {
			t.Errorf("caller %d saw %d bars, want 1", i, n)
		}
	}
}

func TestRangeStart_SkipsNonTradingDays(t *testing.T) {
	h := New(Config{Days: 2}, &fakeFetcher{}, candle.NewMemoryStore(), calendar.NewWeekdays(nil), nil)

	// Monday noon; two trading days back crosses the weekend to Thursday.
	monday := time.Date(2024, 7, 8, 12, 0, 0, 0, calendar.Location())
	start := h.rangeStart(monday)

	if got := calendar.TradingDate(start); got != "2024-07-04" {
		t.Errorf("range start = %s, want 2024-07-04", got)
	}
}
