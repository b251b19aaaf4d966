package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quotelab/watchfeed/internal/backoff"
	"github.com/quotelab/watchfeed/internal/model"
)

// Wildcard registers a handler for every symbol's updates.
const Wildcard = "*"

// Handler receives normalized events for a subscribed symbol. Nil fields
// are skipped. Handlers run on the dispatch goroutine and must not block;
// a panicking handler is isolated and never stops dispatch.
type Handler struct {
	OnTrade func(model.Tick)
	OnQuote func(model.QuoteSnapshot)
	OnBar   func(model.Bar)
}

// Feed is the streaming push client: auth, subscription management,
// message dispatch, reconnection with backoff, and a staleness watchdog.
//
// State machine:
//
//	Disconnected → Connecting → Authenticating → Subscribed
//	                    ↑                            |
//	                    └──────── backoff ←──────────┘ (unexpected close)
//
// Auth rejection or exhausting the reconnect attempt cap lands in Failed,
// a terminal state requiring external intervention (REST-only fallback).
type Feed struct {
	cfg          Config
	newTransport func() Transport
	logger       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.RWMutex
	transport  Transport
	state      ConnectionState
	handlers   map[string][]Handler
	want       map[string]struct{} // desired symbol set
	subscribed map[string]struct{} // set acknowledged to the server
	resubTimer *time.Timer
	closed     bool

	// Last disconnect cause, read by the reconnect loop to pick a backoff
	// schedule (406/407 get an extended one).
	extendedBackoff bool
}

// NewFeed creates a streaming feed. newTransport is called for every
// connection attempt; pass nil to use the WebSocket transport from cfg.URL.
func NewFeed(cfg Config, newTransport func() Transport, logger *slog.Logger) *Feed {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	f := &Feed{
		cfg:          cfg,
		newTransport: newTransport,
		logger:       logger,
		handlers:     make(map[string][]Handler),
		want:         make(map[string]struct{}),
		subscribed:   make(map[string]struct{}),
		state:        ConnectionState{State: StateDisconnected},
	}
	if f.newTransport == nil {
		f.newTransport = func() Transport {
			return NewWSTransport(TransportConfig{
				URL:          cfg.URL,
				WriteTimeout: cfg.SubscribeTimeout,
				BufferSize:   cfg.BufferSize,
			}, logger)
		}
	}
	return f
}

// Connect opens the transport and performs the auth handshake. An explicit
// auth rejection is fatal and returned immediately; it is never retried.
func (f *Feed) Connect(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrAlreadyClosed
	}
	if f.ctx == nil {
		f.ctx, f.cancel = context.WithCancel(ctx)
	}
	if f.state.State == StateSubscribed {
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()

	return f.dial(f.ctx)
}

// Subscribe registers a handler for the given symbols (or Wildcard) and
// ensures they are part of the server-side subscription. Connects first if
// the feed has never connected.
func (f *Feed) Subscribe(ctx context.Context, symbols []string, h Handler) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrAlreadyClosed
	}
	if f.state.State == StateFailed {
		f.mu.Unlock()
		return ErrFeedFailed
	}

	for _, s := range symbols {
		f.handlers[s] = append(f.handlers[s], h)
		if s != Wildcard {
			f.want[s] = struct{}{}
		}
	}

	neverConnected := f.ctx == nil
	connected := f.state.Connected
	f.mu.Unlock()

	if neverConnected || !connected {
		return f.Connect(ctx)
	}

	f.scheduleResub()
	return nil
}

// Unsubscribe releases symbols: handlers are dropped and, after the churn
// debounce, an explicit unsubscribe control message is sent.
func (f *Feed) Unsubscribe(symbols []string) {
	f.mu.Lock()
	for _, s := range symbols {
		delete(f.handlers, s)
		delete(f.want, s)
	}
	f.mu.Unlock()

	f.scheduleResub()
}

// Close shuts the feed down. Caller-initiated: no reconnect is attempted.
func (f *Feed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	if f.resubTimer != nil {
		f.resubTimer.Stop()
	}
	t := f.transport
	f.state = ConnectionState{State: StateDisconnected}
	f.mu.Unlock()

	if f.cancel != nil {
		f.cancel()
	}
	if t != nil {
		t.Close()
	}
	f.wg.Wait()
	return nil
}

// Health returns a snapshot of the connection state.
func (f *Feed) Health() ConnectionState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

// Healthy reports whether push data is flowing. The poll loop switches to
// its fallback cadence when this goes false.
func (f *Feed) Healthy() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state.State == StateSubscribed
}

// -----------------------------------------------------------------------------
// Connection lifecycle
// -----------------------------------------------------------------------------

// dial opens a transport, authenticates, and subscribes the wanted set.
func (f *Feed) dial(ctx context.Context) error {
	sessionID := uuid.NewString()
	logger := f.logger.With("session", sessionID)

	f.setState(func(s *ConnectionState) {
		s.State = StateConnecting
		s.Connected = false
		s.Authenticated = false
		s.SessionID = sessionID
	})

	t := f.newTransport()
	if err := t.Connect(ctx); err != nil {
		f.setState(func(s *ConnectionState) { s.State = StateDisconnected })
		return fmt.Errorf("transport connect: %w", err)
	}

	f.mu.Lock()
	f.transport = t
	f.mu.Unlock()

	f.setState(func(s *ConnectionState) {
		s.State = StateAuthenticating
		s.Connected = true
	})

	if err := f.authenticate(ctx, t); err != nil {
		t.Close()
		f.setState(func(s *ConnectionState) {
			s.Connected = false
			s.State = StateDisconnected
		})
		if _, ok := err.(*AuthError); ok {
			f.setState(func(s *ConnectionState) { s.State = StateFailed })
			logger.Error("authentication rejected, not retrying", "error", err)
		}
		return err
	}

	f.setState(func(s *ConnectionState) {
		s.Authenticated = true
		s.LastMessageAt = time.Now()
	})

	// Subscribe the full wanted set for this session.
	f.mu.Lock()
	symbols := make([]string, 0, len(f.want))
	for s := range f.want {
		symbols = append(symbols, s)
	}
	f.subscribed = make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		f.subscribed[s] = struct{}{}
	}
	f.mu.Unlock()

	if len(symbols) > 0 {
		if err := f.sendSubscribe(t, "subscribe", symbols); err != nil {
			t.Close()
			f.setState(func(s *ConnectionState) {
				s.Connected = false
				s.Authenticated = false
				s.State = StateDisconnected
			})
			return fmt.Errorf("subscribe: %w", err)
		}
	}

	f.setState(func(s *ConnectionState) {
		s.State = StateSubscribed
		s.ReconnectAttempts = 0
	})
	f.mu.Lock()
	f.extendedBackoff = false
	f.mu.Unlock()

	f.wg.Add(1)
	go f.session(t, logger)

	logger.Info("stream connected", "symbols", len(symbols))
	return nil
}

// authenticate sends the auth message and waits for confirmation.
func (f *Feed) authenticate(ctx context.Context, t Transport) error {
	msg, _ := json.Marshal(authMessage{Action: "auth", Key: f.cfg.Key, Secret: f.cfg.Secret})
	if err := t.Send(msg); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	deadline := time.NewTimer(f.cfg.AuthTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrAuthTimeout
		case err := <-t.Errors():
			return fmt.Errorf("transport during auth: %w", err)
		case frame, ok := <-t.Messages():
			if !ok {
				return ErrNotConnected
			}
			authed, err := f.checkAuthFrame(frame.Data)
			if err != nil {
				return err
			}
			if authed {
				return nil
			}
		}
	}
}

// checkAuthFrame scans one frame for an auth outcome. Non-auth control
// messages (e.g. the initial "connected" greeting) are skipped.
func (f *Feed) checkAuthFrame(data []byte) (bool, error) {
	var msgs []controlMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		return false, fmt.Errorf("parse auth frame: %w", err)
	}

	for _, m := range msgs {
		switch m.T {
		case "success":
			if m.Msg == "authenticated" {
				return true, nil
			}
		case "error":
			if m.Code == codeNotAuthenticated || m.Code == codeAuthFailed {
				return false, &AuthError{Code: m.Code, Msg: m.Msg}
			}
			return false, fmt.Errorf("stream error %d during auth: %s", m.Code, m.Msg)
		}
	}
	return false, nil
}

// session owns one transport: dispatches frames, watches for staleness,
// and initiates reconnection when the transport dies unexpectedly.
func (f *Feed) session(t Transport, logger *slog.Logger) {
	defer f.wg.Done()

	watchdog := time.NewTicker(f.cfg.StaleAfter / 4)
	defer watchdog.Stop()

	for {
		select {
		case <-f.ctx.Done():
			return

		case err := <-t.Errors():
			logger.Warn("transport error", "error", err)
			f.beginReconnect(t)
			return

		case <-watchdog.C:
			f.mu.RLock()
			last := f.state.LastMessageAt
			f.mu.RUnlock()

			if time.Since(last) > f.cfg.StaleAfter {
				// Zombie connection: the socket looks open but nothing
				// arrives. Force-close to take the reconnect path.
				logger.Warn("no messages received, forcing reconnect",
					"last_message", last,
					"stale_after", f.cfg.StaleAfter,
				)
				f.beginReconnect(t)
				return
			}

		case frame, ok := <-t.Messages():
			if !ok {
				f.beginReconnect(t)
				return
			}
			f.setState(func(s *ConnectionState) { s.LastMessageAt = frame.ReceivedAt })
			if dead := f.dispatch(frame, logger); dead {
				f.beginReconnect(t)
				return
			}
		}
	}
}

// beginReconnect tears down the dead transport and starts the backoff loop,
// unless the feed was closed by the caller.
func (f *Feed) beginReconnect(t Transport) {
	t.Close()

	f.mu.Lock()
	if f.closed || f.state.State == StateFailed {
		f.mu.Unlock()
		return
	}
	f.state.Connected = false
	f.state.Authenticated = false
	f.state.State = StateDisconnected
	f.mu.Unlock()

	f.wg.Add(1)
	go f.reconnectLoop()
}

// reconnectLoop retries dial with exponential backoff until it succeeds,
// auth is rejected, or the attempt cap is reached.
func (f *Feed) reconnectLoop() {
	defer f.wg.Done()

	for {
		f.mu.Lock()
		f.state.ReconnectAttempts++
		attempt := f.state.ReconnectAttempts
		extended := f.extendedBackoff
		f.mu.Unlock()

		if attempt > f.cfg.MaxReconnectAttempts {
			f.setState(func(s *ConnectionState) { s.State = StateFailed })
			f.logger.Error("reconnect attempts exhausted, feed failed",
				"attempts", attempt-1,
			)
			return
		}

		base := f.cfg.ReconnectBase
		if extended {
			// Connection-limit / slow-consumer rejections need more room
			// than a plain network drop.
			base *= 4
		}
		delay := backoff.Delay(attempt-1, base, f.cfg.ReconnectMax)

		f.logger.Info("reconnecting", "attempt", attempt, "delay", delay)

		select {
		case <-f.ctx.Done():
			return
		case <-time.After(delay):
		}

		err := f.dial(f.ctx)
		if err == nil {
			return
		}
		if _, ok := err.(*AuthError); ok {
			// dial already moved the feed to Failed.
			return
		}

		f.logger.Warn("reconnect failed", "attempt", attempt, "error", err)
	}
}

// -----------------------------------------------------------------------------
// Dispatch
// -----------------------------------------------------------------------------

// dispatch decodes one frame (a JSON array of tagged messages) and invokes
// the registered handlers. Unknown tags are surfaced at debug level and
// otherwise ignored; a handler panic never stops the loop. Returns true
// when an in-band server error requires tearing the transport down.
func (f *Feed) dispatch(frame RawFrame, logger *slog.Logger) (dead bool) {
	var elems []json.RawMessage
	if err := json.Unmarshal(frame.Data, &elems); err != nil {
		logger.Warn("unparseable frame", "error", err)
		return false
	}

	receivedAt := frame.ReceivedAt.UnixMilli()

	for _, elem := range elems {
		var tag msgTag
		if err := json.Unmarshal(elem, &tag); err != nil {
			logger.Warn("untagged frame element", "error", err)
			continue
		}

		switch tag.T {
		case "t":
			var m tradeMessage
			if err := json.Unmarshal(elem, &m); err != nil {
				logger.Warn("bad trade message", "error", err)
				continue
			}
			tick := model.Tick{
				Symbol:     m.Symbol,
				Price:      m.Price,
				Size:       m.Size,
				Timestamp:  m.Timestamp,
				ReceivedAt: receivedAt,
				Exchange:   m.Exchange,
				Conditions: m.Conditions,
			}
			f.each(m.Symbol, func(h Handler) {
				if h.OnTrade != nil {
					h.OnTrade(tick)
				}
			})

		case "q":
			var m quoteMessage
			if err := json.Unmarshal(elem, &m); err != nil {
				logger.Warn("bad quote message", "error", err)
				continue
			}
			quote := model.QuoteSnapshot{
				Symbol:     m.Symbol,
				BidPrice:   m.BidPrice,
				BidSize:    m.BidSize,
				AskPrice:   m.AskPrice,
				AskSize:    m.AskSize,
				Timestamp:  m.Timestamp,
				ReceivedAt: receivedAt,
			}
			f.each(m.Symbol, func(h Handler) {
				if h.OnQuote != nil {
					h.OnQuote(quote)
				}
			})

		case "b":
			var m barMessage
			if err := json.Unmarshal(elem, &m); err != nil {
				logger.Warn("bad bar message", "error", err)
				continue
			}
			bar := model.Bar{
				Symbol:     m.Symbol,
				Timestamp:  m.Timestamp,
				Open:       m.Open,
				High:       m.High,
				Low:        m.Low,
				Close:      m.Close,
				Volume:     m.Volume,
				VWAP:       m.VWAP,
				TradeCount: m.TradeCount,
			}
			f.each(m.Symbol, func(h Handler) {
				if h.OnBar != nil {
					h.OnBar(bar)
				}
			})

		case "success", "subscription":
			// Control acknowledgements; liveness already recorded.

		case "error":
			var m controlMessage
			if err := json.Unmarshal(elem, &m); err != nil {
				continue
			}
			if f.handleStreamError(m, logger) {
				dead = true
			}

		default:
			logger.Debug("unknown message tag", "tag", tag.T)
		}
	}
	return dead
}

// each invokes fn for every handler registered for symbol plus wildcards,
// recovering panics per handler.
func (f *Feed) each(symbol string, fn func(Handler)) {
	f.mu.RLock()
	direct := f.handlers[symbol]
	wild := f.handlers[Wildcard]
	f.mu.RUnlock()

	invoke := func(h Handler) {
		defer func() {
			if r := recover(); r != nil {
				f.logger.Error("handler panic isolated", "symbol", symbol, "panic", r)
			}
		}()
		fn(h)
	}

	for _, h := range direct {
		invoke(h)
	}
	for _, h := range wild {
		invoke(h)
	}
}

// handleStreamError reacts to in-band server errors. Returns true when the
// transport must be torn down.
func (f *Feed) handleStreamError(m controlMessage, logger *slog.Logger) bool {
	switch m.Code {
	case codeNotAuthenticated, codeAuthFailed:
		logger.Error("stream auth error, entering failed state", "code", m.Code, "msg", m.Msg)
		f.setState(func(s *ConnectionState) { s.State = StateFailed })
		return true

	case codeConnectionLimit, codeSlowConsumer:
		logger.Warn("stream rate-limit error, reconnecting with extended backoff",
			"code", m.Code, "msg", m.Msg)
		f.mu.Lock()
		f.extendedBackoff = true
		f.mu.Unlock()
		return true

	default:
		logger.Warn("stream error", "code", m.Code, "msg", m.Msg)
		return false
	}
}

// -----------------------------------------------------------------------------
// Subscription management
// -----------------------------------------------------------------------------

// scheduleResub arms the churn debounce timer. Rapid subscribe/unsubscribe
// cycles collapse into one control-message exchange.
func (f *Feed) scheduleResub() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	if f.resubTimer != nil {
		f.resubTimer.Stop()
	}
	f.resubTimer = time.AfterFunc(f.cfg.ResubDebounce, f.flushResub)
}

// flushResub diffs the wanted set against the acknowledged set and sends
// the subscribe/unsubscribe control messages.
func (f *Feed) flushResub() {
	f.mu.Lock()
	t := f.transport
	if f.closed || t == nil || !f.state.Connected {
		f.mu.Unlock()
		return
	}

	var adds, removes []string
	for s := range f.want {
		if _, ok := f.subscribed[s]; !ok {
			adds = append(adds, s)
		}
	}
	for s := range f.subscribed {
		if _, ok := f.want[s]; !ok {
			removes = append(removes, s)
		}
	}
	for _, s := range adds {
		f.subscribed[s] = struct{}{}
	}
	for _, s := range removes {
		delete(f.subscribed, s)
	}
	f.mu.Unlock()

	if len(adds) > 0 {
		if err := f.sendSubscribe(t, "subscribe", adds); err != nil {
			f.logger.Warn("subscribe failed", "symbols", adds, "error", err)
		}
	}
	if len(removes) > 0 {
		if err := f.sendSubscribe(t, "unsubscribe", removes); err != nil {
			f.logger.Warn("unsubscribe failed", "symbols", removes, "error", err)
		}
	}
}

// sendSubscribe sends one subscribe/unsubscribe control message covering
// trades, quotes, and bars for the given symbols.
func (f *Feed) sendSubscribe(t Transport, action string, symbols []string) error {
	msg, _ := json.Marshal(subscribeMessage{
		Action: action,
		Trades: symbols,
		Quotes: symbols,
		Bars:   symbols,
	})
	return t.Send(msg)
}

// setState mutates the connection state under lock.
func (f *Feed) setState(mutate func(*ConnectionState)) {
	f.mu.Lock()
	mutate(&f.state)
	f.mu.Unlock()
}
