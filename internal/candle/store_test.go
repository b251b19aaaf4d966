package candle

import (
	"context"
	"testing"

	"github.com/quotelab/watchfeed/internal/model"
)

func dayOf(date string, closes ...float64) []model.Bar {
	bars := make([]model.Bar, 0, len(closes))
	for i, c := range closes {
		bars = append(bars, model.Bar{
			Symbol:    "AAPL",
			Timestamp: int64(i+1) * 60_000,
			Close:     c,
			Volume:    100,
		})
	}
	return bars
}

func TestMemoryStore_PutGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	s.Put(ctx, "AAPL", "2024-07-01", dayOf("2024-07-01", 190, 191))
	s.Put(ctx, "AAPL", "2024-07-02", dayOf("2024-07-02", 192, 193))
	s.Put(ctx, "AAPL", "2024-07-03", dayOf("2024-07-03", 194, 195))

	days, err := s.GetRecentDays(ctx, "AAPL", 2)
	if err != nil {
		t.Fatalf("GetRecentDays failed: %v", err)
	}
	if len(days) != 2 {
		t.Fatalf("got %d days, want 2", len(days))
	}
	if days[0].Date != "2024-07-02" || days[1].Date != "2024-07-03" {
		t.Errorf("dates = %s, %s, want the two most recent ascending", days[0].Date, days[1].Date)
	}
	if len(days[1].Bars) != 2 || days[1].Bars[1].Close != 195 {
		t.Errorf("bars = %+v", days[1].Bars)
	}
}

func TestMemoryStore_PutReplacesDay(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	s.Put(ctx, "AAPL", "2024-07-01", dayOf("2024-07-01", 190))
	s.Put(ctx, "AAPL", "2024-07-01", dayOf("2024-07-01", 191, 192))

	days, _ := s.GetRecentDays(ctx, "AAPL", 5)
	if len(days) != 1 || len(days[0].Bars) != 2 {
		t.Fatalf("days = %+v, want one replaced day with 2 bars", days)
	}
}

func TestMemoryStore_PutSortsBars(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	bars := []model.Bar{
		{Timestamp: 120_000, Close: 2},
		{Timestamp: 60_000, Close: 1},
	}
	s.Put(ctx, "AAPL", "2024-07-01", bars)

	days, _ := s.GetRecentDays(ctx, "AAPL", 1)
	if days[0].Bars[0].Timestamp != 60_000 {
		t.Error("bars should be sorted ascending by timestamp")
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	s.Put(ctx, "AAPL", "2024-07-01", dayOf("2024-07-01", 190))

	days, _ := s.GetRecentDays(ctx, "AAPL", 1)
	days[0].Bars[0].Close = 0

	again, _ := s.GetRecentDays(ctx, "AAPL", 1)
	if again[0].Bars[0].Close != 190 {
		t.Error("mutating a result must not affect the store")
	}
}

func TestMemoryStore_UnknownSymbol(t *testing.T) {
	s := NewMemoryStore()

	days, err := s.GetRecentDays(context.Background(), "NVDA", 5)
	if err != nil {
		t.Fatalf("GetRecentDays failed: %v", err)
	}
	if days != nil {
		t.Errorf("days = %+v, want nil for unknown symbol", days)
	}
}

func TestMemoryStore_Cleanup(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for _, d := range []string{"2024-07-01", "2024-07-02", "2024-07-03", "2024-07-05"} {
		s.Put(ctx, "AAPL", d, dayOf(d, 190))
	}

	if err := s.Cleanup(ctx, 2); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}

	days, _ := s.GetRecentDays(ctx, "AAPL", 10)
	if len(days) != 2 {
		t.Fatalf("got %d days after cleanup, want 2", len(days))
	}
	if days[0].Date != "2024-07-03" || days[1].Date != "2024-07-05" {
		t.Errorf("kept %s, %s, want the two most recent", days[0].Date, days[1].Date)
	}
}
