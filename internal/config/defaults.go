package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRestURL        = "https://data.alpaca.markets"
	DefaultWSURL          = "wss://stream.data.alpaca.markets/v2"
	DefaultSandboxRestURL = "https://data.sandbox.alpaca.markets"
	DefaultSandboxWSURL   = "wss://stream.data.sandbox.alpaca.markets/v2"

	DefaultFeed       = "iex"
	DefaultAPITimeout = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultRateLimit  = 200 // calls per minute

	DefaultAuthTimeout          = 10 * time.Second
	DefaultStaleAfter           = 60 * time.Second
	DefaultResubDebounce        = 1 * time.Second
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultReconnectMaxDelay    = 30 * time.Second
	DefaultMaxReconnectAttempts = 8
	DefaultStreamBufferSize     = 4096

	DefaultHealthyInterval  = 15 * time.Second
	DefaultFallbackInterval = 5 * time.Second
	DefaultOffHoursFactor   = 4
	DefaultPollTimeout      = 10 * time.Second

	DefaultGraceWindow = 5 * time.Second
	DefaultDebounce    = 100 * time.Millisecond

	DefaultBenchmark      = "SPY"
	DefaultLookbackDays   = 20
	DefaultMinSampleDays  = 5
	DefaultADRDays        = 20
	DefaultORBOpenPct     = 0.20
	DefaultORBClosePct    = 0.80
	DefaultORBBodyRatio   = 0.55
	DefaultORBTier2Volume = 1.50
	DefaultORBTier1Volume = 0.25

	DefaultBackfillDays        = 20
	DefaultBackfillConcurrency = 4

	DefaultDBPort    = 5432
	DefaultDBSSLMode = "prefer"
	DefaultMaxConns  = 10
	DefaultMinConns  = 2
)

func (c *FeedConfig) applyDefaults() {
	// API defaults; sandbox picks the paper endpoints unless overridden.
	if c.API.RestURL == "" {
		if c.API.Sandbox {
			c.API.RestURL = DefaultSandboxRestURL
		} else {
			c.API.RestURL = DefaultRestURL
		}
	}
	if c.API.WSURL == "" {
		if c.API.Sandbox {
			c.API.WSURL = DefaultSandboxWSURL
		} else {
			c.API.WSURL = DefaultWSURL
		}
	}
	if c.API.Feed == "" {
		c.API.Feed = DefaultFeed
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.RateLimit == 0 {
		c.API.RateLimit = DefaultRateLimit
	}

	// Stream defaults
	if c.Stream.AuthTimeout == 0 {
		c.Stream.AuthTimeout = DefaultAuthTimeout
	}
	if c.Stream.StaleAfter == 0 {
		c.Stream.StaleAfter = DefaultStaleAfter
	}
	if c.Stream.ResubDebounce == 0 {
		c.Stream.ResubDebounce = DefaultResubDebounce
	}
	if c.Stream.ReconnectBaseDelay == 0 {
		c.Stream.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Stream.ReconnectMaxDelay == 0 {
		c.Stream.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Stream.MaxReconnectAttempts == 0 {
		c.Stream.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = DefaultStreamBufferSize
	}

	// Poller defaults
	if c.Poller.HealthyInterval == 0 {
		c.Poller.HealthyInterval = DefaultHealthyInterval
	}
	if c.Poller.FallbackInterval == 0 {
		c.Poller.FallbackInterval = DefaultFallbackInterval
	}
	if c.Poller.OffHoursFactor == 0 {
		c.Poller.OffHoursFactor = DefaultOffHoursFactor
	}
	if c.Poller.Timeout == 0 {
		c.Poller.Timeout = DefaultPollTimeout
	}

	// Merge defaults
	if c.Merge.GraceWindow == 0 {
		c.Merge.GraceWindow = DefaultGraceWindow
	}
	if c.Merge.Debounce == 0 {
		c.Merge.Debounce = DefaultDebounce
	}

	// Indicator defaults
	if c.Indicators.Benchmark == "" {
		c.Indicators.Benchmark = DefaultBenchmark
	}
	if c.Indicators.LookbackDays == 0 {
		c.Indicators.LookbackDays = DefaultLookbackDays
	}
	if c.Indicators.MinSampleDays == 0 {
		c.Indicators.MinSampleDays = DefaultMinSampleDays
	}
	if c.Indicators.ADRDays == 0 {
		c.Indicators.ADRDays = DefaultADRDays
	}
	if c.Indicators.ORBOpenPct == 0 {
		c.Indicators.ORBOpenPct = DefaultORBOpenPct
	}
	if c.Indicators.ORBClosePct == 0 {
		c.Indicators.ORBClosePct = DefaultORBClosePct
	}
	if c.Indicators.ORBBodyRatio == 0 {
		c.Indicators.ORBBodyRatio = DefaultORBBodyRatio
	}
	if c.Indicators.ORBTier2Volume == 0 {
		c.Indicators.ORBTier2Volume = DefaultORBTier2Volume
	}
	if c.Indicators.ORBTier1Volume == 0 {
		c.Indicators.ORBTier1Volume = DefaultORBTier1Volume
	}

	// Backfill defaults
	if c.Backfill.Days == 0 {
		c.Backfill.Days = DefaultBackfillDays
	}
	if c.Backfill.Concurrency == 0 {
		c.Backfill.Concurrency = DefaultBackfillConcurrency
	}

	// Database defaults (only meaningful when enabled)
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}
}
