package config

import "time"

// FeedConfig is the root configuration for a watchfeed instance.
type FeedConfig struct {
	API        APIConfig        `yaml:"api"`
	Stream     StreamConfig     `yaml:"stream"`
	Poller     PollerConfig     `yaml:"poller"`
	Merge      MergeConfig      `yaml:"merge"`
	Indicators IndicatorsConfig `yaml:"indicators"`
	Watchlist  WatchlistConfig  `yaml:"watchlist"`
	Backfill   BackfillConfig   `yaml:"backfill"`
	Calendar   CalendarConfig   `yaml:"calendar"`
	Database   DBConfig         `yaml:"database"`
}

// APIConfig holds broker API settings.
type APIConfig struct {
	RestURL    string        `yaml:"rest_url"`
	WSURL      string        `yaml:"ws_url"`
	KeyID      string        `yaml:"key_id"`
	Secret     string        `yaml:"secret"`
	Feed       string        `yaml:"feed"`    // Data-feed tier: iex or sip
	Sandbox    bool          `yaml:"sandbox"` // Use the paper/sandbox endpoints
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RateLimit  int           `yaml:"rate_limit"` // REST calls per minute
}

// StreamConfig holds push-transport settings.
type StreamConfig struct {
	AuthTimeout          time.Duration `yaml:"auth_timeout"`
	StaleAfter           time.Duration `yaml:"stale_after"`
	ResubDebounce        time.Duration `yaml:"resub_debounce"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	BufferSize           int           `yaml:"buffer_size"`
}

// PollerConfig holds snapshot-poll cadence settings.
type PollerConfig struct {
	HealthyInterval  time.Duration `yaml:"healthy_interval"`
	FallbackInterval time.Duration `yaml:"fallback_interval"`
	OffHoursFactor   int           `yaml:"off_hours_factor"`
	Timeout          time.Duration `yaml:"timeout"`
}

// MergeConfig holds price-table merge settings.
type MergeConfig struct {
	GraceWindow time.Duration `yaml:"grace_window"`
	Debounce    time.Duration `yaml:"debounce"`
}

// IndicatorsConfig holds indicator thresholds.
type IndicatorsConfig struct {
	Benchmark      string  `yaml:"benchmark"`
	LookbackDays   int     `yaml:"lookback_days"`
	MinSampleDays  int     `yaml:"min_sample_days"`
	ADRDays        int     `yaml:"adr_days"`
	ORBOpenPct     float64 `yaml:"orb_open_pct"`
	ORBClosePct    float64 `yaml:"orb_close_pct"`
	ORBBodyRatio   float64 `yaml:"orb_body_ratio"`
	ORBTier2Volume float64 `yaml:"orb_tier2_volume"`
	ORBTier1Volume float64 `yaml:"orb_tier1_volume"`
}

// WatchlistConfig seeds the tracked symbol set.
type WatchlistConfig struct {
	Symbols []string `yaml:"symbols"`
}

// BackfillConfig holds history-hydration settings.
type BackfillConfig struct {
	Days        int `yaml:"days"`
	Concurrency int `yaml:"concurrency"`
}

// CalendarConfig holds market-calendar overrides.
type CalendarConfig struct {
	Holidays []string `yaml:"holidays"` // "2006-01-02" dates
}

// DBConfig holds the optional candle-cache database. An empty host means
// the in-memory store is used.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// Enabled reports whether a database is configured.
func (db DBConfig) Enabled() bool {
	return db.Host != ""
}
