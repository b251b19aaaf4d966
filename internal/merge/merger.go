package merge

import (
	"log/slog"
	"sync"
	"time"

	"github.com/quotelab/watchfeed/internal/model"
)

// Config holds merger tuning knobs.
type Config struct {
	GraceWindow time.Duration // Recent-push window during which poll cannot replace the price
	Debounce    time.Duration // Collapse rapid push updates per symbol to the latest
	BufferSize  int           // Updates channel buffer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		GraceWindow: 5 * time.Second,
		Debounce:    100 * time.Millisecond,
		BufferSize:  1024,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.GraceWindow == 0 {
		c.GraceWindow = def.GraceWindow
	}
	if c.Debounce == 0 {
		c.Debounce = def.Debounce
	}
	if c.BufferSize == 0 {
		c.BufferSize = def.BufferSize
	}
}

// pendingPush is the latest debounced trade for one symbol, waiting for its
// timer to fire.
type pendingPush struct {
	tick  model.Tick
	timer *time.Timer
}

// Merger reconciles push trades and poll snapshots into one authoritative
// PriceState per symbol.
//
// Policy: push wins while fresh. A poll snapshot replaces the price only
// when no push arrived within GraceWindow; inside the window it still
// backfills the session fields (previousClose, open, high, low, cumulative
// volume) that the stream never carries. Per symbol, the published
// timestamp never goes backwards: out-of-order arrivals are dropped.
//
// Single writer: all mutations happen under one mutex in discrete apply
// operations; readers get copies.
type Merger struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	table      map[string]model.PriceState
	pending    map[string]*pendingPush
	lastPushAt map[string]time.Time
	closed     bool

	updates chan model.PriceState
}

// New creates a merger.
func New(cfg Config, logger *slog.Logger) *Merger {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		table:      make(map[string]model.PriceState),
		pending:    make(map[string]*pendingPush),
		lastPushAt: make(map[string]time.Time),
		updates:    make(chan model.PriceState, cfg.BufferSize),
	}
}

// Updates returns the stream of published price states. Slow consumers do
// not block the merger; the channel is buffered and overflow is dropped
// with a warning (readers can always resync via Snapshot).
func (m *Merger) Updates() <-chan model.PriceState {
	return m.updates
}

// Get returns the current state for a symbol.
func (m *Merger) Get(symbol string) (model.PriceState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.table[symbol]
	return st, ok
}

// Snapshot returns a copy of the whole price table.
func (m *Merger) Snapshot() map[string]model.PriceState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]model.PriceState, len(m.table))
	for s, st := range m.table {
		out[s] = st
	}
	return out
}

// ApplyPush records a push-side trade. Rapid updates for the same symbol
// within the debounce window collapse to the latest before publishing.
func (m *Merger) ApplyPush(tick model.Tick) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	// The push arrival itself refreshes the grace window, even while the
	// value sits in the debounce buffer.
	m.lastPushAt[tick.Symbol] = m.now()

	if p, ok := m.pending[tick.Symbol]; ok {
		p.tick = tick
		return
	}

	p := &pendingPush{tick: tick}
	symbol := tick.Symbol
	p.timer = time.AfterFunc(m.cfg.Debounce, func() { m.flushPush(symbol) })
	m.pending[symbol] = p
}

// flushPush commits the debounced trade for one symbol.
func (m *Merger) flushPush(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pending[symbol]
	if !ok || m.closed {
		return
	}
	delete(m.pending, symbol)

	tick := p.tick
	st := m.table[symbol]
	if st.Symbol != "" && tick.Timestamp < st.Timestamp {
		m.logger.Debug("discarding out-of-order push",
			"symbol", symbol, "ts", tick.Timestamp, "have", st.Timestamp)
		return
	}

	st.Symbol = symbol
	st.Price = tick.Price
	st.Timestamp = tick.Timestamp
	st.ReceivedAt = tick.ReceivedAt
	st.Source = model.SourcePush
	// Session fields and cumulative volume only arrive via poll; carry the
	// last known values forward.
	if st.High != 0 && tick.Price > st.High {
		st.High = tick.Price
	}
	if st.Low != 0 && tick.Price < st.Low {
		st.Low = tick.Price
	}

	m.table[symbol] = st
	m.publishLocked(st)
}

// ApplyPoll records a poll-side session snapshot.
func (m *Merger) ApplyPoll(snap model.SessionSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	st := m.table[snap.Symbol]
	fresh := st.Symbol != ""

	// Session fields are poll's contribution regardless of who owns the
	// price.
	st.Symbol = snap.Symbol
	st.PreviousClose = snap.PreviousClose
	st.Open = snap.Open
	st.High = snap.High
	st.Low = snap.Low
	st.Volume = snap.Volume

	pushRecent := false
	if at, ok := m.lastPushAt[snap.Symbol]; ok {
		pushRecent = m.now().Sub(at) < m.cfg.GraceWindow
	}

	switch {
	case pushRecent:
		// Push owns the price; this poll only backfilled session fields.
	case fresh && snap.Timestamp < st.Timestamp:
		m.logger.Debug("discarding out-of-order poll",
			"symbol", snap.Symbol, "ts", snap.Timestamp, "have", st.Timestamp)
	default:
		st.Price = snap.Price
		st.Timestamp = snap.Timestamp
		st.ReceivedAt = m.now().UnixMilli()
		st.Source = model.SourcePoll
	}

	m.table[snap.Symbol] = st
	m.publishLocked(st)
}

// Close stops pending debounce timers and closes the updates channel.
func (m *Merger) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	for _, p := range m.pending {
		p.timer.Stop()
	}
	m.pending = nil
	close(m.updates)
}

func (m *Merger) publishLocked(st model.PriceState) {
	select {
	case m.updates <- st:
	default:
		m.logger.Warn("updates channel full, dropping", "symbol", st.Symbol)
	}
}
