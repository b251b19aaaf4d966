package model

import "time"

// -----------------------------------------------------------------------------
// Market-Data Events
// -----------------------------------------------------------------------------

// Tick represents a single executed trade.
type Tick struct {
	Symbol     string   // Ticker symbol (e.g., "AAPL")
	Price      float64  // Trade price
	Size       int64    // Number of shares
	Timestamp  int64    // Exchange timestamp (ms since epoch)
	ReceivedAt int64    // Local receive timestamp (ms since epoch)
	Exchange   string   // Exchange code (e.g., "V")
	Conditions []string // Trade condition codes
}

// QuoteSnapshot represents the best bid/ask at a point in time.
type QuoteSnapshot struct {
	Symbol     string
	BidPrice   float64
	BidSize    int64
	AskPrice   float64
	AskSize    int64
	Timestamp  int64 // Exchange timestamp (ms since epoch)
	ReceivedAt int64 // Local receive timestamp (ms since epoch)
}

// Bar is an OHLCV aggregate, unique per (symbol, resolution, timestamp).
type Bar struct {
	Symbol     string
	Timestamp  int64 // Bucket start (ms since epoch)
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	VWAP       float64 // Volume-weighted average price, 0 if not provided
	TradeCount int64   // Number of trades in bucket, 0 if not provided
}

// Time returns the bar's bucket start as a time.Time.
func (b Bar) Time() time.Time {
	return time.UnixMilli(b.Timestamp)
}

// DayBars groups one trading day's bars for a symbol.
type DayBars struct {
	Symbol string
	Date   string // Trading date, "2006-01-02" (exchange local time)
	Bars   []Bar  // Ascending by timestamp
}

// -----------------------------------------------------------------------------
// Merged Price State
// -----------------------------------------------------------------------------

// Source identifies which transport produced an update.
type Source string

const (
	SourcePush Source = "push" // Streaming (WebSocket) update
	SourcePoll Source = "poll" // REST snapshot update
)

// PriceState is the authoritative merged view of a symbol. Exactly one
// instance exists per symbol at any instant; readers receive copies.
type PriceState struct {
	Symbol     string
	Price      float64
	Volume     int64  // Cumulative session volume, 0 if unknown
	Timestamp  int64  // Exchange timestamp of the winning update (ms)
	ReceivedAt int64  // Local receive timestamp (ms)
	Source     Source // Which side last won the merge

	// Session fields, only ever supplied by poll updates.
	PreviousClose float64
	Open          float64
	High          float64
	Low           float64
}

// SessionSnapshot is the poll-side view of a symbol: latest price plus the
// session fields the stream never carries.
type SessionSnapshot struct {
	Symbol        string
	Price         float64
	Volume        int64 // Cumulative session volume
	Timestamp     int64 // Exchange timestamp of the latest trade (ms)
	PreviousClose float64
	Open          float64
	High          float64
	Low           float64
}

// -----------------------------------------------------------------------------
// Indicator Results
// -----------------------------------------------------------------------------

// RVolResult is a relative-volume computation outcome. RVol is nil when the
// ratio is undefined; Err then explains why, so callers can distinguish
// "no data" from a genuine zero.
type RVolResult struct {
	RVol              *float64
	CurrentCumulative int64   // Today's cumulative volume at the offset
	AvgCumulative     float64 // Historical mean cumulative at the offset
	MinutesSinceOpen  int
	SampleDays        int
	Err               string // Empty when RVol is valid
}

// ORBResult classifies the session's opening-range candle.
type ORBResult struct {
	Tier                *int // 0, 1, or 2; nil when not computable
	Candle              Bar
	HistoricalAvgVolume float64
	OpenPct             float64 // Open position within candle range, 0..1
	ClosePct            float64 // Close position within candle range, 0..1
	BodyRatio           float64
	IsGreen             bool
	Err                 string
}

// VRSResult holds the latest ADR%-normalized relative-strength value per
// timeframe. Each field updates independently; a nil entry means that
// timeframe has not produced a value yet.
type VRSResult struct {
	VRS1m     *float64
	VRS5m     *float64
	VRS15m    *float64
	Timestamp int64 // When any field last updated (ms)
}

// -----------------------------------------------------------------------------
// Resolutions
// -----------------------------------------------------------------------------

// Resolution is a bar bucket size understood by the upstream bars endpoint.
type Resolution string

const (
	Res1Min  Resolution = "1Min"
	Res5Min  Resolution = "5Min"
	Res15Min Resolution = "15Min"
	Res30Min Resolution = "30Min"
	Res1Hour Resolution = "1Hour"
	Res1Day  Resolution = "1Day"
)

// Valid reports whether r is a resolution the upstream accepts.
func (r Resolution) Valid() bool {
	switch r {
	case Res1Min, Res5Min, Res15Min, Res30Min, Res1Hour, Res1Day:
		return true
	}
	return false
}

// Duration returns the bucket length. Res1Day is 24h for bucketing purposes
// even though the trading session is shorter.
func (r Resolution) Duration() time.Duration {
	switch r {
	case Res1Min:
		return time.Minute
	case Res5Min:
		return 5 * time.Minute
	case Res15Min:
		return 15 * time.Minute
	case Res30Min:
		return 30 * time.Minute
	case Res1Hour:
		return time.Hour
	case Res1Day:
		return 24 * time.Hour
	}
	return 0
}
