package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/quotelab/watchfeed/internal/calendar"
	"github.com/quotelab/watchfeed/internal/model"
)

// BarFetcher is the REST surface the hydrator needs.
type BarFetcher interface {
	Candles(ctx context.Context, symbol string, res model.Resolution, from, to time.Time) ([]model.Bar, error)
}

// BarStore is the candle-store surface the hydrator writes to.
type BarStore interface {
	Put(ctx context.Context, symbol, date string, bars []model.Bar) error
}

// Config holds hydrator settings.
type Config struct {
	Days        int // Trading days of minute history to fetch (default: 20)
	Concurrency int // Max symbols fetched in parallel (default: 4)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Days:        20,
		Concurrency: 4,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Days == 0 {
		c.Days = def.Days
	}
	if c.Concurrency == 0 {
		c.Concurrency = def.Concurrency
	}
}

// Hydrator fills the candle store with the minute-bar history the
// indicator baselines need, and serves daily bars for ADR% seeding.
// Concurrent requests for the same symbol are deduplicated.
type Hydrator struct {
	cfg     Config
	fetcher BarFetcher
	store   BarStore
	cal     calendar.Calendar
	logger  *slog.Logger
	now     func() time.Time

	sf singleflight.Group
}

// New creates a hydrator.
func New(cfg Config, fetcher BarFetcher, store BarStore, cal calendar.Calendar, logger *slog.Logger) *Hydrator {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Hydrator{
		cfg:     cfg,
		fetcher: fetcher,
		store:   store,
		cal:     cal,
		logger:  logger,
		now:     time.Now,
	}
}

// Hydrate fetches minute-bar history for all symbols with bounded
// concurrency. A failing symbol fails the whole hydration; callers decide
// whether to degrade or abort.
func (h *Hydrator) Hydrate(ctx context.Context, symbols []string) error {
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(h.cfg.Concurrency)

	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			return h.HydrateSymbol(ctx, symbol)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	h.logger.Info("history hydrated",
		"symbols", len(symbols),
		"days", h.cfg.Days,
		"duration", time.Since(start),
	)
	return nil
}

// HydrateSymbol fetches one symbol's minute history into the store.
// Concurrent calls for the same symbol collapse into one fetch.
func (h *Hydrator) HydrateSymbol(ctx context.Context, symbol string) error {
	_, err, _ := h.sf.Do("minute:"+symbol, func() (any, error) {
		return nil, h.hydrateSymbol(ctx, symbol)
	})
	return err
}

func (h *Hydrator) hydrateSymbol(ctx context.Context, symbol string) error {
	to := h.now()
	from := h.rangeStart(to)

	bars, err := h.fetcher.Candles(ctx, symbol, model.Res1Min, from, to)
	if err != nil {
		return fmt.Errorf("fetch %s history: %w", symbol, err)
	}
	if bars == nil {
		h.logger.Warn("no history available", "symbol", symbol)
		return nil
	}

	// Bucket by trading date; today's partial day stays out of the
	// baselines.
	today := calendar.TradingDate(to)
	byDate := make(map[string][]model.Bar)
	for _, b := range bars {
		date := calendar.TradingDate(b.Time())
		if date == today {
			continue
		}
		byDate[date] = append(byDate[date], b)
	}

	for date, dayBars := range byDate {
		if err := h.store.Put(ctx, symbol, date, dayBars); err != nil {
			return fmt.Errorf("store %s/%s: %w", symbol, date, err)
		}
	}

	h.logger.Debug("symbol hydrated", "symbol", symbol, "days", len(byDate), "bars", len(bars))
	return nil
}

// DailyBars fetches the daily bars backing a symbol's ADR%. Concurrent
// calls for the same symbol collapse into one fetch.
func (h *Hydrator) DailyBars(ctx context.Context, symbol string) ([]model.Bar, error) {
	v, err, _ := h.sf.Do("daily:"+symbol, func() (any, error) {
		to := h.now()
		from := h.rangeStart(to)
		return h.fetcher.Candles(ctx, symbol, model.Res1Day, from, to)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s daily bars: %w", symbol, err)
	}
	bars, _ := v.([]model.Bar)
	return bars, nil
}

// rangeStart walks back cfg.Days trading days from t.
func (h *Hydrator) rangeStart(t time.Time) time.Time {
	day := t
	remaining := h.cfg.Days
	for remaining > 0 {
		day = day.AddDate(0, 0, -1)
		if h.cal == nil || h.cal.IsTradingDay(day) {
			remaining--
		}
	}
	return day
}
