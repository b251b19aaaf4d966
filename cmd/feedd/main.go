// feedd runs the market-data feed: streaming + polled ingestion, the merged
// price table, and the indicator engine, for the symbols on the watchlist.
//
// Credentials come from the config file or the environment
// (APCA_API_KEY_ID / APCA_API_SECRET_KEY), optionally via a .env file.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/quotelab/watchfeed/internal/backfill"
	"github.com/quotelab/watchfeed/internal/calendar"
	"github.com/quotelab/watchfeed/internal/candle"
	"github.com/quotelab/watchfeed/internal/config"
	"github.com/quotelab/watchfeed/internal/database"
	"github.com/quotelab/watchfeed/internal/indicator"
	"github.com/quotelab/watchfeed/internal/merge"
	"github.com/quotelab/watchfeed/internal/model"
	"github.com/quotelab/watchfeed/internal/ratelimit"
	"github.com/quotelab/watchfeed/internal/rest"
	"github.com/quotelab/watchfeed/internal/stream"
	"github.com/quotelab/watchfeed/internal/version"
	"github.com/quotelab/watchfeed/internal/watchlist"
)

func main() {
	configPath := flag.String("config", "configs/feedd.local.yaml", "path to config file")
	healthPort := flag.Int("health-port", 8080, "health endpoint port")
	flag.Parse()

	// Optional .env for local development; absence is not an error.
	godotenv.Load()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting feedd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"rest_url", cfg.API.RestURL,
		"feed", cfg.API.Feed,
		"symbols", len(cfg.Watchlist.Symbols),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Candle store: Postgres when configured, in-memory otherwise.
	var store candle.Store
	if cfg.Database.Enabled() {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		pgStore := candle.NewPGStore(pool, logger)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			logger.Error("failed to prepare schema", "error", err)
			os.Exit(1)
		}
		store = pgStore
		logger.Info("database connected")
	} else {
		store = candle.NewMemoryStore()
		logger.Info("using in-memory candle store")
	}

	cal := calendar.NewWeekdays(cfg.Calendar.Holidays)

	// REST client with the configured per-minute quota.
	limiter := ratelimit.New(ratelimit.Config{
		MaxCalls: cfg.API.RateLimit,
		Window:   time.Minute,
	})
	restClient := rest.NewClient(cfg.API.RestURL, cfg.API.KeyID, cfg.API.Secret,
		rest.WithLogger(logger),
		rest.WithTimeout(cfg.API.Timeout),
		rest.WithRetries(cfg.API.MaxRetries, time.Second, 30*time.Second),
		rest.WithLimiter(limiter),
	)

	// Watchlist; the benchmark is tracked too so VRS has its series.
	registry := watchlist.New(cfg.Watchlist.Symbols, logger)

	engine := indicator.NewEngine(indicator.Config{
		Benchmark:      cfg.Indicators.Benchmark,
		LookbackDays:   cfg.Indicators.LookbackDays,
		MinSampleDays:  cfg.Indicators.MinSampleDays,
		ADRDays:        cfg.Indicators.ADRDays,
		ORBOpenPct:     cfg.Indicators.ORBOpenPct,
		ORBClosePct:    cfg.Indicators.ORBClosePct,
		ORBBodyRatio:   cfg.Indicators.ORBBodyRatio,
		ORBTier2Volume: cfg.Indicators.ORBTier2Volume,
		ORBTier1Volume: cfg.Indicators.ORBTier1Volume,
	}, store, logger)
	aggregator := indicator.NewAggregator(engine)

	tracked := append(registry.Symbols(), engine.Benchmark())

	// Hydrate indicator baselines before going live.
	hydrator := backfill.New(backfill.Config{
		Days:        cfg.Backfill.Days,
		Concurrency: cfg.Backfill.Concurrency,
	}, restClient, store, cal, logger)

	logger.Info("hydrating history", "symbols", len(tracked), "days", cfg.Backfill.Days)
	if err := hydrator.Hydrate(ctx, tracked); err != nil {
		logger.Error("history hydration failed", "error", err)
		os.Exit(1)
	}
	for _, symbol := range tracked {
		daily, err := hydrator.DailyBars(ctx, symbol)
		if err != nil {
			logger.Warn("daily bars unavailable, VRS disabled for symbol",
				"symbol", symbol, "error", err)
			continue
		}
		engine.UpdateADR(symbol, daily)
	}

	// Merged price table.
	merger := merge.New(merge.Config{
		GraceWindow: cfg.Merge.GraceWindow,
		Debounce:    cfg.Merge.Debounce,
	}, logger)
	defer merger.Close()

	// Drain the update stream; per-update logging is debug-only, the health
	// endpoint reads the table snapshot instead.
	go func() {
		for st := range merger.Updates() {
			logger.Debug("price update",
				"symbol", st.Symbol,
				"price", st.Price,
				"source", st.Source,
			)
		}
	}()

	// Streaming feed.
	feed := stream.NewFeed(stream.Config{
		URL:                  cfg.API.WSURL + "/" + cfg.API.Feed,
		Key:                  cfg.API.KeyID,
		Secret:               cfg.API.Secret,
		AuthTimeout:          cfg.Stream.AuthTimeout,
		StaleAfter:           cfg.Stream.StaleAfter,
		ResubDebounce:        cfg.Stream.ResubDebounce,
		ReconnectBase:        cfg.Stream.ReconnectBaseDelay,
		ReconnectMax:         cfg.Stream.ReconnectMaxDelay,
		MaxReconnectAttempts: cfg.Stream.MaxReconnectAttempts,
		BufferSize:           cfg.Stream.BufferSize,
	}, nil, logger)
	defer feed.Close()

	session := indicator.NewSession()
	handler := stream.Handler{
		OnTrade: merger.ApplyPush,
		OnBar: func(b model.Bar) {
			session.Record(b)
			aggregator.OnMinuteBar(b)
		},
	}
	if err := feed.Subscribe(ctx, tracked, handler); err != nil {
		// Degraded start: the poller covers quotes until the stream heals,
		// but bad credentials are fatal.
		if _, fatal := err.(*stream.AuthError); fatal {
			logger.Error("stream authentication rejected", "error", err)
			os.Exit(1)
		}
		logger.Warn("stream unavailable, starting in poll-only mode", "error", err)
	}

	// Follow watchlist changes onto the stream.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case change := <-registry.Changes():
				if len(change.Added) > 0 {
					if err := feed.Subscribe(ctx, change.Added, handler); err != nil {
						logger.Warn("subscribe failed", "symbols", change.Added, "error", err)
					}
				}
				if len(change.Removed) > 0 {
					feed.Unsubscribe(change.Removed)
				}
			}
		}
	}()

	// Evaluate the point-in-time indicators once a minute during market
	// hours. Values are logged; downstream consumers read the merged table.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := time.Now()
				if !calendar.IsMarketHours(cal, now) {
					continue
				}
				minutes := calendar.MinutesSinceOpen(now)
				for _, symbol := range registry.Symbols() {
					bars := session.Bars(symbol)
					if len(bars) == 0 {
						continue
					}
					if r := engine.RVol(ctx, symbol, bars, minutes); r.RVol != nil {
						logger.Debug("rvol",
							"symbol", symbol,
							"rvol", *r.RVol,
							"minute", minutes,
							"sample_days", r.SampleDays,
						)
					}
					if or, ok := session.OpeningRange(symbol); ok {
						if r := engine.ORB(ctx, symbol, or); r.Tier != nil && *r.Tier > 0 {
							logger.Info("orb breakout",
								"symbol", symbol,
								"tier", *r.Tier,
								"green", r.IsGreen,
								"body_ratio", r.BodyRatio,
							)
						}
					}
					if v := engine.VRS(symbol); v.VRS1m != nil {
						logger.Debug("vrs",
							"symbol", symbol,
							"vrs_1m", *v.VRS1m,
						)
					}
				}
			}
		}
	}()

	// Snapshot poller (REST fallback + session-field backfill).
	poller := merge.NewPoller(merge.PollerConfig{
		HealthyInterval:  cfg.Poller.HealthyInterval,
		FallbackInterval: cfg.Poller.FallbackInterval,
		OffHoursFactor:   cfg.Poller.OffHoursFactor,
		Timeout:          cfg.Poller.Timeout,
	}, restClient, registry, feed, cal, merger, logger)

	if err := poller.Start(ctx); err != nil {
		logger.Error("failed to start poller", "error", err)
		os.Exit(1)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		poller.Stop(stopCtx)
	}()

	// Health endpoint.
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", *healthPort),
		Handler: newHealthHandler(feed, merger, registry),
	}
	go func() {
		logger.Info("starting health server", "port", *healthPort)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	logger.Info("feedd running",
		"health_url", fmt.Sprintf("http://localhost:%d/health", *healthPort),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	healthServer.Shutdown(shutdownCtx)

	logger.Info("feedd stopped")
}

// newHealthHandler creates the HTTP handler for health checks.
func newHealthHandler(feed *stream.Feed, merger *merge.Merger, registry *watchlist.Registry) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		state := feed.Health()

		status := "healthy"
		switch {
		case state.State == stream.StateFailed:
			status = "degraded" // poll-only fallback
		case !state.Connected:
			status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status": status,
			"stream": map[string]any{
				"state":              state.State,
				"connected":          state.Connected,
				"authenticated":      state.Authenticated,
				"reconnect_attempts": state.ReconnectAttempts,
				"last_message_at":    state.LastMessageAt,
				"session_id":         state.SessionID,
			},
			"watchlist": len(registry.Symbols()),
		})
	})

	mux.HandleFunc("/debug/prices", func(w http.ResponseWriter, r *http.Request) {
		snapshot := merger.Snapshot()

		type entry struct {
			Symbol    string       `json:"symbol"`
			Price     float64      `json:"price"`
			Timestamp int64        `json:"timestamp"`
			Source    model.Source `json:"source"`
		}
		out := make([]entry, 0, len(snapshot))
		for _, st := range snapshot {
			out = append(out, entry{st.Symbol, st.Price, st.Timestamp, st.Source})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"count":  len(out),
			"prices": out,
		})
	})

	return mux
}
