package indicator

import (
	"log/slog"
	"sync"

	"github.com/quotelab/watchfeed/internal/candle"
	"github.com/quotelab/watchfeed/internal/model"
)

// Timeframe identifies a VRS candle series.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
)

// Config holds indicator thresholds. Zero values take documented defaults.
type Config struct {
	Benchmark     string // VRS benchmark symbol (default: SPY)
	LookbackDays  int    // Historical baseline window (default: 20)
	MinSampleDays int    // Minimum days before RVol/ORB compute (default: 5)
	ADRDays       int    // ADR% averaging window (default: 20)

	ORBOpenPct     float64 // Open-position percentile threshold (default: 0.20)
	ORBClosePct    float64 // Close-position percentile threshold (default: 0.80)
	ORBBodyRatio   float64 // Minimum body-to-range ratio (default: 0.55)
	ORBTier2Volume float64 // Volume multiple for tier 2 (default: 1.50)
	ORBTier1Volume float64 // Volume multiple for tier 1 (default: 0.25)
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Benchmark:      "SPY",
		LookbackDays:   20,
		MinSampleDays:  5,
		ADRDays:        20,
		ORBOpenPct:     0.20,
		ORBClosePct:    0.80,
		ORBBodyRatio:   0.55,
		ORBTier2Volume: 1.50,
		ORBTier1Volume: 0.25,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Benchmark == "" {
		c.Benchmark = def.Benchmark
	}
	if c.LookbackDays == 0 {
		c.LookbackDays = def.LookbackDays
	}
	if c.MinSampleDays == 0 {
		c.MinSampleDays = def.MinSampleDays
	}
	if c.ADRDays == 0 {
		c.ADRDays = def.ADRDays
	}
	if c.ORBOpenPct == 0 {
		c.ORBOpenPct = def.ORBOpenPct
	}
	if c.ORBClosePct == 0 {
		c.ORBClosePct = def.ORBClosePct
	}
	if c.ORBBodyRatio == 0 {
		c.ORBBodyRatio = def.ORBBodyRatio
	}
	if c.ORBTier2Volume == 0 {
		c.ORBTier2Volume = def.ORBTier2Volume
	}
	if c.ORBTier1Volume == 0 {
		c.ORBTier1Volume = def.ORBTier1Volume
	}
}

// closeHistory is a bounded ring of recent closes for one symbol/timeframe.
type closeHistory struct {
	closes [closeHistorySize]float64
	n      int // total writes; ring position is n % size
}

const closeHistorySize = 8

func (h *closeHistory) push(c float64) {
	h.closes[h.n%closeHistorySize] = c
	h.n++
}

// lastTwo returns the two most recent closes (older, newer).
func (h *closeHistory) lastTwo() (prev, last float64, ok bool) {
	if h.n < 2 {
		return 0, 0, false
	}
	last = h.closes[(h.n-1)%closeHistorySize]
	prev = h.closes[(h.n-2)%closeHistorySize]
	return prev, last, true
}

// Engine computes the three watchlist indicators. RVol and ORB read their
// baselines from the candle store per call; VRS state (close rings and the
// intraday ADR% cache) lives in the engine.
type Engine struct {
	cfg    Config
	store  candle.Store
	logger *slog.Logger

	mu     sync.Mutex
	adr    map[string]float64                     // ADR% per symbol, set once intraday
	closes map[string]map[Timeframe]*closeHistory // per symbol/timeframe
	vrs    map[string]model.VRSResult
}

// NewEngine creates an indicator engine backed by the given candle store.
func NewEngine(cfg Config, store candle.Store, logger *slog.Logger) *Engine {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:    cfg,
		store:  store,
		logger: logger,
		adr:    make(map[string]float64),
		closes: make(map[string]map[Timeframe]*closeHistory),
		vrs:    make(map[string]model.VRSResult),
	}
}

// Benchmark returns the configured VRS benchmark symbol.
func (e *Engine) Benchmark() string {
	return e.cfg.Benchmark
}

func (e *Engine) history(symbol string, tf Timeframe) *closeHistory {
	byTF := e.closes[symbol]
	if byTF == nil {
		byTF = make(map[Timeframe]*closeHistory)
		e.closes[symbol] = byTF
	}
	h := byTF[tf]
	if h == nil {
		h = &closeHistory{}
		byTF[tf] = h
	}
	return h
}
