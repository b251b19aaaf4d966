package stream

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no messages)")
	ErrAuthTimeout     = errors.New("auth confirmation timeout")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrFeedFailed      = errors.New("feed in terminal failed state")
)

// AuthError is an explicit credential rejection from the server. It is
// fatal: stale credentials fail identically on every retry, so the feed
// never reconnects after one.
type AuthError struct {
	Code int
	Msg  string
}

func (e *AuthError) Error() string {
	return "stream auth rejected (" + e.Msg + ")"
}

// Server error codes with special handling.
const (
	codeNotAuthenticated = 401 // fatal
	codeAuthFailed       = 402 // fatal
	codeConnectionLimit  = 406 // retryable, extended backoff
	codeSlowConsumer     = 407 // retryable, extended backoff
)

// Frames are JSON arrays of tagged messages; "T" selects the variant.
// The tag is extracted first, then the element decodes into the matching
// variant struct ("c" means conditions on a trade but close on a bar).

// msgTag carries only the discriminant.
type msgTag struct {
	T string `json:"T"`
}

// controlMessage covers "success", "error", and "subscription" variants.
type controlMessage struct {
	T    string `json:"T"`
	Msg  string `json:"msg"`
	Code int    `json:"code"`
}

// tradeMessage is a "t" frame element.
type tradeMessage struct {
	Symbol     string   `json:"S"`
	Price      float64  `json:"p"`
	Size       int64    `json:"s"`
	Timestamp  int64    `json:"t"` // ms since epoch
	Exchange   string   `json:"x"`
	Conditions []string `json:"c"`
}

// quoteMessage is a "q" frame element.
type quoteMessage struct {
	Symbol    string  `json:"S"`
	BidPrice  float64 `json:"bp"`
	BidSize   int64   `json:"bs"`
	AskPrice  float64 `json:"ap"`
	AskSize   int64   `json:"as"`
	Timestamp int64   `json:"t"` // ms since epoch
}

// barMessage is a "b" frame element.
type barMessage struct {
	Symbol     string  `json:"S"`
	Open       float64 `json:"o"`
	High       float64 `json:"h"`
	Low        float64 `json:"l"`
	Close      float64 `json:"c"`
	Volume     int64   `json:"v"`
	VWAP       float64 `json:"vw"`
	TradeCount int64   `json:"n"`
	Timestamp  int64   `json:"t"` // ms since epoch
}

// authMessage is the first message sent after the transport opens.
type authMessage struct {
	Action string `json:"action"` // "auth"
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

// subscribeMessage adds or removes channel subscriptions.
type subscribeMessage struct {
	Action string   `json:"action"` // "subscribe" or "unsubscribe"
	Trades []string `json:"trades,omitempty"`
	Quotes []string `json:"quotes,omitempty"`
	Bars   []string `json:"bars,omitempty"`
}

// State is the feed lifecycle state.
type State string

const (
	StateDisconnected   State = "disconnected"
	StateConnecting     State = "connecting"
	StateAuthenticating State = "authenticating"
	StateSubscribed     State = "subscribed"
	StateFailed         State = "failed" // reconnect attempts exhausted or auth rejected
)

// ConnectionState is a snapshot of the feed's connection lifecycle. Owned
// exclusively by the Feed; callers receive copies via Health().
type ConnectionState struct {
	State             State
	Connected         bool
	Authenticated     bool
	ReconnectAttempts int
	LastMessageAt     time.Time
	SessionID         string // Correlates log lines for one transport session
}

// Config configures the streaming feed.
type Config struct {
	URL    string // WebSocket URL
	Key    string // API key ID
	Secret string // API secret

	AuthTimeout      time.Duration // Wait for auth confirmation
	SubscribeTimeout time.Duration // Write deadline for control messages
	StaleAfter       time.Duration // Force-close if no message for this long
	ResubDebounce    time.Duration // Coalesce symbol-set churn before resubscribing

	ReconnectBase        time.Duration // Base reconnect backoff
	ReconnectMax         time.Duration // Backoff cap
	MaxReconnectAttempts int           // Attempts before terminal failure

	BufferSize int // Transport message channel buffer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		AuthTimeout:          10 * time.Second,
		SubscribeTimeout:     5 * time.Second,
		StaleAfter:           60 * time.Second,
		ResubDebounce:        time.Second,
		ReconnectBase:        time.Second,
		ReconnectMax:         30 * time.Second,
		MaxReconnectAttempts: 8,
		BufferSize:           4096,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.AuthTimeout == 0 {
		c.AuthTimeout = def.AuthTimeout
	}
	if c.SubscribeTimeout == 0 {
		c.SubscribeTimeout = def.SubscribeTimeout
	}
	if c.StaleAfter == 0 {
		c.StaleAfter = def.StaleAfter
	}
	if c.ResubDebounce == 0 {
		c.ResubDebounce = def.ResubDebounce
	}
	if c.ReconnectBase == 0 {
		c.ReconnectBase = def.ReconnectBase
	}
	if c.ReconnectMax == 0 {
		c.ReconnectMax = def.ReconnectMax
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if c.BufferSize == 0 {
		c.BufferSize = def.BufferSize
	}
}
