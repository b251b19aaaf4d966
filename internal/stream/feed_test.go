package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quotelab/watchfeed/internal/model"
)

// fakeTransport is an in-memory Transport for driving the feed in tests.
type fakeTransport struct {
	mu         sync.Mutex
	connectErr error
	connected  bool
	closed     bool
	sent       [][]byte

	authReject bool // reply to auth with a 402 error frame
	authSilent bool // never reply to auth

	messages chan RawFrame
	errors   chan error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		messages: make(chan RawFrame, 64),
		errors:   make(chan error, 1),
	}
}

func (t *fakeTransport) Connect(ctx context.Context) error {
	if t.connectErr != nil {
		return t.connectErr
	}
	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.connected = false
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) Send(data []byte) error {
	t.mu.Lock()
	t.sent = append(t.sent, append([]byte(nil), data...))
	t.mu.Unlock()

	var msg map[string]any
	json.Unmarshal(data, &msg)
	if msg["action"] == "auth" && !t.authSilent {
		if t.authReject {
			t.push(`[{"T":"error","code":402,"msg":"auth failed"}]`)
		} else {
			t.push(`[{"T":"success","msg":"authenticated"}]`)
		}
	}
	return nil
}

func (t *fakeTransport) push(frame string) {
	t.messages <- RawFrame{Data: []byte(frame), ReceivedAt: time.Now()}
}

func (t *fakeTransport) fail(err error) {
	t.errors <- err
}

func (t *fakeTransport) Messages() <-chan RawFrame { return t.messages }
func (t *fakeTransport) Errors() <-chan error      { return t.errors }

func (t *fakeTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *fakeTransport) sentMessages() []map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]map[string]any, 0, len(t.sent))
	for _, raw := range t.sent {
		var m map[string]any
		json.Unmarshal(raw, &m)
		out = append(out, m)
	}
	return out
}

func testConfig() Config {
	return Config{
		Key:                  "key",
		Secret:               "secret",
		AuthTimeout:          time.Second,
		SubscribeTimeout:     time.Second,
		StaleAfter:           time.Hour, // watchdog quiet unless a test wants it
		ResubDebounce:        30 * time.Millisecond,
		ReconnectBase:        5 * time.Millisecond,
		ReconnectMax:         50 * time.Millisecond,
		MaxReconnectAttempts: 3,
		BufferSize:           64,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestFeed_ConnectAndSubscribe(t *testing.T) {
	ft := newFakeTransport()
	f := NewFeed(testConfig(), func() Transport { return ft }, nil)
	defer f.Close()

	err := f.Subscribe(context.Background(), []string{"AAPL", "MSFT"}, Handler{})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	state := f.Health()
	if state.State != StateSubscribed {
		t.Errorf("state = %s, want %s", state.State, StateSubscribed)
	}
	if !state.Authenticated {
		t.Error("should be authenticated")
	}
	if state.SessionID == "" {
		t.Error("session ID should be set")
	}

	// First message is auth, second is the subscribe for both symbols.
	msgs := ft.sentMessages()
	if len(msgs) != 2 {
		t.Fatalf("sent %d messages, want 2", len(msgs))
	}
	if msgs[0]["action"] != "auth" {
		t.Errorf("first message action = %v, want auth", msgs[0]["action"])
	}
	if msgs[1]["action"] != "subscribe" {
		t.Errorf("second message action = %v, want subscribe", msgs[1]["action"])
	}
	trades := msgs[1]["trades"].([]any)
	if len(trades) != 2 {
		t.Errorf("subscribed %d symbols, want 2", len(trades))
	}
}

func TestFeed_AuthRejectionIsFatal(t *testing.T) {
	ft := newFakeTransport()
	ft.authReject = true
	f := NewFeed(testConfig(), func() Transport { return ft }, nil)
	defer f.Close()

	err := f.Connect(context.Background())
	if err == nil {
		t.Fatal("expected auth error")
	}
	if _, ok := err.(*AuthError); !ok {
		t.Fatalf("error is %T, want *AuthError", err)
	}

	if got := f.Health().State; got != StateFailed {
		t.Errorf("state = %s, want %s (auth rejection is terminal)", got, StateFailed)
	}

	// The failed state refuses new subscriptions rather than retrying
	// credentials that cannot self-heal.
	if err := f.Subscribe(context.Background(), []string{"AAPL"}, Handler{}); err != ErrFeedFailed {
		t.Errorf("Subscribe after failure = %v, want ErrFeedFailed", err)
	}
}

func TestFeed_AuthTimeout(t *testing.T) {
	ft := newFakeTransport()
	ft.authSilent = true

	cfg := testConfig()
	cfg.AuthTimeout = 50 * time.Millisecond
	f := NewFeed(cfg, func() Transport { return ft }, nil)
	defer f.Close()

	err := f.Connect(context.Background())
	if err != ErrAuthTimeout {
		t.Fatalf("err = %v, want ErrAuthTimeout", err)
	}

	// A timeout is not an explicit rejection; the feed is not terminal.
	if got := f.Health().State; got == StateFailed {
		t.Error("auth timeout must not enter the failed state")
	}
}

func TestFeed_Dispatch(t *testing.T) {
	ft := newFakeTransport()
	f := NewFeed(testConfig(), func() Transport { return ft }, nil)
	defer f.Close()

	var trades, quotes, bars, wildcards atomic.Int32
	var lastTick atomic.Value

	h := Handler{
		OnTrade: func(tk model.Tick) {
			trades.Add(1)
			lastTick.Store(tk)
		},
		OnQuote: func(model.QuoteSnapshot) { quotes.Add(1) },
		OnBar:   func(model.Bar) { bars.Add(1) },
	}
	if err := f.Subscribe(context.Background(), []string{"AAPL"}, h); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	f.Subscribe(context.Background(), []string{Wildcard}, Handler{
		OnTrade: func(model.Tick) { wildcards.Add(1) },
	})

	ft.push(`[
		{"T":"t","S":"AAPL","p":189.5,"s":100,"t":1705329000000,"x":"V","c":["@"]},
		{"T":"q","S":"AAPL","bp":189.4,"bs":2,"ap":189.6,"as":3,"t":1705329000100},
		{"T":"b","S":"AAPL","o":189.0,"h":189.7,"l":188.9,"c":189.5,"v":120000,"vw":189.3,"n":900,"t":1705329000000},
		{"T":"t","S":"MSFT","p":402.0,"s":50,"t":1705329000200}
	]`)

	waitFor(t, time.Second, func() bool {
		return trades.Load() == 1 && quotes.Load() == 1 && bars.Load() == 1 && wildcards.Load() == 2
	})

	tick := lastTick.Load().(model.Tick)
	if tick.Symbol != "AAPL" || tick.Price != 189.5 || tick.Size != 100 {
		t.Errorf("tick = %+v", tick)
	}
	if tick.Exchange != "V" || len(tick.Conditions) != 1 {
		t.Errorf("tick metadata = %+v", tick)
	}
	if tick.ReceivedAt == 0 {
		t.Error("ReceivedAt should be stamped")
	}
}

func TestFeed_HandlerPanicIsolated(t *testing.T) {
	ft := newFakeTransport()
	f := NewFeed(testConfig(), func() Transport { return ft }, nil)
	defer f.Close()

	var survived atomic.Bool
	f.Subscribe(context.Background(), []string{"AAPL"}, Handler{
		OnTrade: func(model.Tick) { panic("boom") },
	})
	f.Subscribe(context.Background(), []string{"AAPL"}, Handler{
		OnTrade: func(model.Tick) { survived.Store(true) },
	})

	ft.push(`[{"T":"t","S":"AAPL","p":1,"s":1,"t":1}]`)

	waitFor(t, time.Second, func() bool { return survived.Load() })
}

func TestFeed_UnknownTagIgnored(t *testing.T) {
	ft := newFakeTransport()
	f := NewFeed(testConfig(), func() Transport { return ft }, nil)
	defer f.Close()

	var trades atomic.Int32
	f.Subscribe(context.Background(), []string{"AAPL"}, Handler{
		OnTrade: func(model.Tick) { trades.Add(1) },
	})

	// Unknown tag first; the trade after it must still dispatch.
	ft.push(`[{"T":"x","S":"AAPL"},{"T":"t","S":"AAPL","p":1,"s":1,"t":1}]`)

	waitFor(t, time.Second, func() bool { return trades.Load() == 1 })
}

func TestFeed_ReconnectAndResubscribe(t *testing.T) {
	var transports []*fakeTransport
	var mu sync.Mutex

	factory := func() Transport {
		ft := newFakeTransport()
		mu.Lock()
		transports = append(transports, ft)
		mu.Unlock()
		return ft
	}

	f := NewFeed(testConfig(), factory, nil)
	defer f.Close()

	if err := f.Subscribe(context.Background(), []string{"AAPL"}, Handler{}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	mu.Lock()
	first := transports[0]
	mu.Unlock()

	first.fail(fmt.Errorf("connection reset"))

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		if len(transports) < 2 {
			return false
		}
		msgs := transports[1].sentMessages()
		return len(msgs) >= 2 && msgs[1]["action"] == "subscribe"
	})

	if got := f.Health().State; got != StateSubscribed {
		t.Errorf("state after reconnect = %s, want %s", got, StateSubscribed)
	}
	if got := f.Health().ReconnectAttempts; got != 0 {
		t.Errorf("attempts after successful reconnect = %d, want 0 (reset)", got)
	}
}

func TestFeed_ReconnectCapEntersFailed(t *testing.T) {
	var dials atomic.Int32

	factory := func() Transport {
		ft := newFakeTransport()
		if dials.Add(1) > 1 {
			ft.connectErr = fmt.Errorf("connection refused")
		}
		return ft
	}

	f := NewFeed(testConfig(), factory, nil)
	defer f.Close()

	if err := f.Subscribe(context.Background(), []string{"AAPL"}, Handler{}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if !f.Healthy() {
		t.Fatal("feed should start healthy")
	}

	// Kill the live transport; every redial refuses.
	f.mu.RLock()
	live := f.transport.(*fakeTransport)
	f.mu.RUnlock()
	live.fail(fmt.Errorf("connection reset"))

	waitFor(t, 5*time.Second, func() bool {
		return f.Health().State == StateFailed
	})

	// 1 initial dial + MaxReconnectAttempts redials.
	if got := dials.Load(); got != 4 {
		t.Errorf("dials = %d, want 4", got)
	}
	if f.Healthy() {
		t.Error("failed feed must report unhealthy for the poll fallback")
	}
}

func TestFeed_WatchdogForcesReconnect(t *testing.T) {
	var dials atomic.Int32
	var mu sync.Mutex
	var transports []*fakeTransport

	factory := func() Transport {
		dials.Add(1)
		ft := newFakeTransport()
		mu.Lock()
		transports = append(transports, ft)
		mu.Unlock()
		return ft
	}

	cfg := testConfig()
	cfg.StaleAfter = 60 * time.Millisecond
	f := NewFeed(cfg, factory, nil)
	defer f.Close()

	if err := f.Subscribe(context.Background(), []string{"AAPL"}, Handler{}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// No frames arrive; the watchdog must close the zombie transport and
	// redial.
	waitFor(t, 2*time.Second, func() bool { return dials.Load() >= 2 })

	mu.Lock()
	firstClosed := transports[0].closed
	mu.Unlock()
	if !firstClosed {
		t.Error("stale transport should have been force-closed")
	}
}

func TestFeed_RateLimitErrorTearsDownTransport(t *testing.T) {
	var dials atomic.Int32
	factory := func() Transport {
		dials.Add(1)
		return newFakeTransport()
	}

	f := NewFeed(testConfig(), factory, nil)
	defer f.Close()

	if err := f.Subscribe(context.Background(), []string{"AAPL"}, Handler{}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	f.mu.RLock()
	live := f.transport.(*fakeTransport)
	f.mu.RUnlock()
	live.push(`[{"T":"error","code":407,"msg":"slow client"}]`)

	waitFor(t, 2*time.Second, func() bool { return dials.Load() >= 2 })
}

func TestFeed_ResubDebounce(t *testing.T) {
	ft := newFakeTransport()
	f := NewFeed(testConfig(), func() Transport { return ft }, nil)
	defer f.Close()

	if err := f.Subscribe(context.Background(), []string{"AAPL"}, Handler{}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// Rapid churn: three adds inside the debounce window collapse into a
	// single subscribe message.
	f.Subscribe(context.Background(), []string{"MSFT"}, Handler{})
	f.Subscribe(context.Background(), []string{"TSLA"}, Handler{})
	f.Subscribe(context.Background(), []string{"NVDA"}, Handler{})

	waitFor(t, time.Second, func() bool {
		msgs := ft.sentMessages()
		subs := 0
		for _, m := range msgs {
			if m["action"] == "subscribe" {
				subs++
			}
		}
		return subs == 2 // initial + one debounced batch
	})

	msgs := ft.sentMessages()
	last := msgs[len(msgs)-1]
	if got := len(last["trades"].([]any)); got != 3 {
		t.Errorf("debounced subscribe carried %d symbols, want 3", got)
	}
}

func TestFeed_UnsubscribeSendsControlMessage(t *testing.T) {
	ft := newFakeTransport()
	f := NewFeed(testConfig(), func() Transport { return ft }, nil)
	defer f.Close()

	if err := f.Subscribe(context.Background(), []string{"AAPL", "MSFT"}, Handler{}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	f.Unsubscribe([]string{"MSFT"})

	waitFor(t, time.Second, func() bool {
		for _, m := range ft.sentMessages() {
			if m["action"] == "unsubscribe" {
				return true
			}
		}
		return false
	})
}
