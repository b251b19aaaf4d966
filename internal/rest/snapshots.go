package rest

import (
	"context"
	"net/url"
	"strings"

	"github.com/quotelab/watchfeed/internal/model"
)

// wireDailyBar is a daily OHLCV inside a snapshot payload.
type wireDailyBar struct {
	Open   float64 `json:"o"`
	High   float64 `json:"h"`
	Low    float64 `json:"l"`
	Close  float64 `json:"c"`
	Volume int64   `json:"v"`
}

type wireTrade struct {
	Price     float64 `json:"p"`
	Timestamp int64   `json:"t"` // ms since epoch
}

// wireSnapshot is the per-symbol snapshot payload: latest trade plus the
// current and previous daily bars.
type wireSnapshot struct {
	LatestTrade  *wireTrade    `json:"latestTrade"`
	DailyBar     *wireDailyBar `json:"dailyBar"`
	PrevDailyBar *wireDailyBar `json:"prevDailyBar"`
}

// DailySnapshots fetches session snapshots for a set of symbols: latest
// price, cumulative volume, previous close, and session open/high/low.
// These supply the fields the streaming feed never carries.
func (c *Client) DailySnapshots(ctx context.Context, symbols []string) (map[string]model.SessionSnapshot, error) {
	if len(symbols) == 0 {
		return map[string]model.SessionSnapshot{}, nil
	}

	query := url.Values{}
	query.Set("symbols", strings.Join(symbols, ","))

	var resp map[string]wireSnapshot
	if err := c.get(ctx, "/v2/stocks/snapshots", query, &resp); err != nil {
		return nil, err
	}

	out := make(map[string]model.SessionSnapshot, len(resp))
	for symbol, ws := range resp {
		snap := model.SessionSnapshot{Symbol: symbol}
		if ws.LatestTrade != nil {
			snap.Price = ws.LatestTrade.Price
			snap.Timestamp = ws.LatestTrade.Timestamp
		}
		if ws.DailyBar != nil {
			snap.Volume = ws.DailyBar.Volume
			snap.Open = ws.DailyBar.Open
			snap.High = ws.DailyBar.High
			snap.Low = ws.DailyBar.Low
		}
		if ws.PrevDailyBar != nil {
			snap.PreviousClose = ws.PrevDailyBar.Close
		}
		out[symbol] = snap
	}
	return out, nil
}
