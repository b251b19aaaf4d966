package candle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quotelab/watchfeed/internal/model"
)

// PGStore is a Postgres-backed Store so indicator baselines survive
// restarts. One row per bar, keyed by (symbol, timestamp).
type PGStore struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewPGStore creates a Postgres-backed store.
func NewPGStore(db *pgxpool.Pool, logger *slog.Logger) *PGStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PGStore{db: db, logger: logger}
}

// EnsureSchema creates the candles table if it does not exist.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS candles (
			symbol       TEXT   NOT NULL,
			trading_date TEXT   NOT NULL,
			ts           BIGINT NOT NULL,
			open         DOUBLE PRECISION NOT NULL,
			high         DOUBLE PRECISION NOT NULL,
			low          DOUBLE PRECISION NOT NULL,
			close        DOUBLE PRECISION NOT NULL,
			volume       BIGINT NOT NULL,
			vwap         DOUBLE PRECISION NOT NULL DEFAULT 0,
			trade_count  BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, ts)
		);
		CREATE INDEX IF NOT EXISTS candles_symbol_date ON candles (symbol, trading_date);
	`)
	if err != nil {
		return fmt.Errorf("ensure candles schema: %w", err)
	}
	return nil
}

// GetRecentDays returns up to n most recent days for symbol, ascending.
func (s *PGStore) GetRecentDays(ctx context.Context, symbol string, n int) ([]model.DayBars, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := s.db.Query(ctx, `
		SELECT trading_date, ts, open, high, low, close, volume, vwap, trade_count
		FROM candles
		WHERE symbol = $1
		  AND trading_date IN (
			SELECT DISTINCT trading_date FROM candles
			WHERE symbol = $1
			ORDER BY trading_date DESC
			LIMIT $2
		  )
		ORDER BY trading_date ASC, ts ASC
	`, symbol, n)
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	var out []model.DayBars
	for rows.Next() {
		var (
			date string
			b    model.Bar
		)
		if err := rows.Scan(&date, &b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.VWAP, &b.TradeCount); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		b.Symbol = symbol

		if len(out) == 0 || out[len(out)-1].Date != date {
			out = append(out, model.DayBars{Symbol: symbol, Date: date})
		}
		last := &out[len(out)-1]
		last.Bars = append(last.Bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candles: %w", err)
	}
	return out, nil
}

// Put stores one day's bars, replacing any previous bars for that
// (symbol, date).
func (s *PGStore) Put(ctx context.Context, symbol, date string, bars []model.Bar) error {
	start := time.Now()

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM candles WHERE symbol = $1 AND trading_date = $2`, symbol, date)
	for _, b := range bars {
		batch.Queue(`
			INSERT INTO candles (symbol, trading_date, ts, open, high, low, close, volume, vwap, trade_count)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (symbol, ts) DO NOTHING
		`, symbol, date, b.Timestamp, b.Open, b.High, b.Low, b.Close, b.Volume, b.VWAP, b.TradeCount)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(bars)+1; i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("store candles %s/%s: %w", symbol, date, err)
		}
	}

	s.logger.Debug("stored candles",
		"symbol", symbol,
		"date", date,
		"bars", len(bars),
		"duration", time.Since(start),
	)
	return nil
}

// Cleanup drops days older than the keepDays most recent dates seen across
// all symbols.
func (s *PGStore) Cleanup(ctx context.Context, keepDays int) error {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM candles
		WHERE trading_date NOT IN (
			SELECT DISTINCT trading_date FROM candles
			ORDER BY trading_date DESC
			LIMIT $1
		)
	`, keepDays)
	if err != nil {
		return fmt.Errorf("cleanup candles: %w", err)
	}

	if tag.RowsAffected() > 0 {
		s.logger.Info("cleaned up candles",
			"rows", tag.RowsAffected(),
			"keep_days", keepDays,
		)
	}
	return nil
}
