package candle

import (
	"context"
	"sort"
	"sync"

	"github.com/quotelab/watchfeed/internal/model"
)

// Store is a day-bucketed bar cache. Indicator baselines (RVol cumulative
// curves, ORB first-candle history, ADR%) are computed from its contents.
type Store interface {
	// GetRecentDays returns up to n most recent trading days of bars for
	// symbol, ascending by date, bars ascending by timestamp within a day.
	GetRecentDays(ctx context.Context, symbol string, n int) ([]model.DayBars, error)

	// Put stores one trading day's bars for a symbol, replacing any
	// previous bars for that (symbol, date).
	Put(ctx context.Context, symbol, date string, bars []model.Bar) error

	// Cleanup drops all but the most recent keepDays trading days.
	Cleanup(ctx context.Context, keepDays int) error
}

// MemoryStore is an in-memory Store. Used when no database is configured
// and as the substitutable cache in tests.
type MemoryStore struct {
	mu   sync.RWMutex
	days map[string]map[string][]model.Bar // symbol → date → bars
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{days: make(map[string]map[string][]model.Bar)}
}

// GetRecentDays returns up to n most recent days for symbol.
func (s *MemoryStore) GetRecentDays(ctx context.Context, symbol string, n int) ([]model.DayBars, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bySymbol := s.days[symbol]
	if len(bySymbol) == 0 || n <= 0 {
		return nil, nil
	}

	dates := make([]string, 0, len(bySymbol))
	for d := range bySymbol {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	if len(dates) > n {
		dates = dates[len(dates)-n:]
	}

	out := make([]model.DayBars, 0, len(dates))
	for _, d := range dates {
		bars := bySymbol[d]
		out = append(out, model.DayBars{
			Symbol: symbol,
			Date:   d,
			Bars:   append([]model.Bar(nil), bars...),
		})
	}
	return out, nil
}

// Put stores one day's bars, replacing any previous entry.
func (s *MemoryStore) Put(ctx context.Context, symbol, date string, bars []model.Bar) error {
	sorted := append([]model.Bar(nil), bars...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.days[symbol] == nil {
		s.days[symbol] = make(map[string][]model.Bar)
	}
	s.days[symbol][date] = sorted
	return nil
}

// Cleanup keeps only the most recent keepDays dates per symbol.
func (s *MemoryStore) Cleanup(ctx context.Context, keepDays int) error {
	if keepDays < 0 {
		keepDays = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for symbol, bySymbol := range s.days {
		if len(bySymbol) <= keepDays {
			continue
		}
		dates := make([]string, 0, len(bySymbol))
		for d := range bySymbol {
			dates = append(dates, d)
		}
		sort.Strings(dates)
		for _, d := range dates[:len(dates)-keepDays] {
			delete(bySymbol, d)
		}
		if len(bySymbol) == 0 {
			delete(s.days, symbol)
		}
	}
	return nil
}
