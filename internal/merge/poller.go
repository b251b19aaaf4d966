package merge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/quotelab/watchfeed/internal/calendar"
	"github.com/quotelab/watchfeed/internal/model"
)

// SnapshotFetcher provides poll-side session snapshots.
type SnapshotFetcher interface {
	DailySnapshots(ctx context.Context, symbols []string) (map[string]model.SessionSnapshot, error)
}

// SymbolSource provides the symbols to poll.
type SymbolSource interface {
	Symbols() []string
}

// HealthSource reports whether the push side is delivering data.
type HealthSource interface {
	Healthy() bool
}

// PollerConfig holds polling cadence configuration.
type PollerConfig struct {
	HealthyInterval  time.Duration // Cadence while push is flowing (default: 15s)
	FallbackInterval time.Duration // Cadence while push is down (default: 5s)
	OffHoursFactor   int           // Interval multiplier outside market hours (default: 4)
	Timeout          time.Duration // Per-poll request timeout (default: 10s)
}

// DefaultPollerConfig returns sensible defaults.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		HealthyInterval:  15 * time.Second,
		FallbackInterval: 5 * time.Second,
		OffHoursFactor:   4,
		Timeout:          10 * time.Second,
	}
}

func (c *PollerConfig) applyDefaults() {
	def := DefaultPollerConfig()
	if c.HealthyInterval == 0 {
		c.HealthyInterval = def.HealthyInterval
	}
	if c.FallbackInterval == 0 {
		c.FallbackInterval = def.FallbackInterval
	}
	if c.OffHoursFactor == 0 {
		c.OffHoursFactor = def.OffHoursFactor
	}
	if c.Timeout == 0 {
		c.Timeout = def.Timeout
	}
}

// Poller periodically fetches session snapshots and applies them to the
// merger. Cadence adapts: fast while the push feed is unhealthy (the poll
// loop is then the only data source), slow while push is flowing, and
// multiplied outside market hours.
type Poller struct {
	cfg     PollerConfig
	fetcher SnapshotFetcher
	symbols SymbolSource
	health  HealthSource
	cal     calendar.Calendar
	merger  *Merger
	logger  *slog.Logger
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPoller creates a poller. health may be nil, in which case the fallback
// cadence is always used; cal may be nil to disable the off-hours slowdown.
func NewPoller(cfg PollerConfig, fetcher SnapshotFetcher, symbols SymbolSource, health HealthSource, cal calendar.Calendar, merger *Merger, logger *slog.Logger) *Poller {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		cfg:     cfg,
		fetcher: fetcher,
		symbols: symbols,
		health:  health,
		cal:     cal,
		merger:  merger,
		logger:  logger,
		now:     time.Now,
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("snapshot poller started",
		"healthy_interval", p.cfg.HealthyInterval,
		"fallback_interval", p.cfg.FallbackInterval,
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("snapshot poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main polling loop. The interval is recomputed every cycle so
// cadence reacts to push-health and session changes without a restart.
func (p *Poller) run() {
	defer p.wg.Done()

	// Poll immediately on start.
	p.pollOnce()

	timer := time.NewTimer(p.interval())
	defer timer.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-timer.C:
			p.pollOnce()
			timer.Reset(p.interval())
		}
	}
}

// interval picks the current poll cadence.
func (p *Poller) interval() time.Duration {
	d := p.cfg.FallbackInterval
	if p.health != nil && p.health.Healthy() {
		d = p.cfg.HealthyInterval
	}
	if p.cal != nil && !calendar.IsMarketHours(p.cal, p.now()) {
		d *= time.Duration(p.cfg.OffHoursFactor)
	}
	return d
}

// pollOnce fetches snapshots for the current symbol set and applies them.
func (p *Poller) pollOnce() {
	symbols := p.symbols.Symbols()
	if len(symbols) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	start := time.Now()
	snaps, err := p.fetcher.DailySnapshots(ctx, symbols)
	if err != nil {
		p.logger.Warn("snapshot poll failed",
			"symbols", len(symbols),
			"error", err,
		)
		return
	}

	for _, snap := range snaps {
		p.merger.ApplyPoll(snap)
	}

	p.logger.Debug("snapshot poll complete",
		"requested", len(symbols),
		"received", len(snaps),
		"duration", time.Since(start),
	)
}
