package rest

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/quotelab/watchfeed/internal/model"
)

// wireBars is the upstream column-oriented bar payload: parallel arrays,
// one entry per bar, timestamps in epoch seconds.
type wireBars struct {
	Status     string    `json:"s,omitempty"` // "ok" or "no_data"
	Timestamps []int64   `json:"t"`
	Opens      []float64 `json:"o"`
	Highs      []float64 `json:"h"`
	Lows       []float64 `json:"l"`
	Closes     []float64 `json:"c"`
	Volumes    []int64   `json:"v"`
}

type barsResponse struct {
	Bars map[string]wireBars `json:"bars"`
}

// Candles fetches historical bars for one symbol. A nil slice with a nil
// error means the upstream reported no data for the range, which is
// distinct from an empty range.
func (c *Client) Candles(ctx context.Context, symbol string, res model.Resolution, from, to time.Time) ([]model.Bar, error) {
	out, err := c.CandlesBatch(ctx, []string{symbol}, res, from, to)
	if err != nil {
		return nil, err
	}
	return out[symbol], nil
}

// CandlesBatch fetches historical bars for several symbols in one request.
// Symbols with no data are absent from the result map.
func (c *Client) CandlesBatch(ctx context.Context, symbols []string, res model.Resolution, from, to time.Time) (map[string][]model.Bar, error) {
	if !res.Valid() {
		return nil, fmt.Errorf("invalid resolution %q", res)
	}
	if len(symbols) == 0 {
		return map[string][]model.Bar{}, nil
	}

	query := url.Values{}
	query.Set("symbols", strings.Join(symbols, ","))
	query.Set("timeframe", string(res))
	query.Set("start", from.UTC().Format(time.RFC3339))
	query.Set("end", to.UTC().Format(time.RFC3339))

	var resp barsResponse
	if err := c.get(ctx, "/v2/stocks/bars", query, &resp); err != nil {
		return nil, err
	}

	out := make(map[string][]model.Bar, len(resp.Bars))
	for symbol, wb := range resp.Bars {
		if wb.Status == "no_data" {
			continue
		}
		bars, err := wb.toModel(symbol)
		if err != nil {
			return nil, fmt.Errorf("bars for %s: %w", symbol, err)
		}
		out[symbol] = bars
	}
	return out, nil
}

// toModel converts parallel arrays into bars, rejecting ragged responses.
func (w wireBars) toModel(symbol string) ([]model.Bar, error) {
	n := len(w.Timestamps)
	if len(w.Opens) != n || len(w.Highs) != n || len(w.Lows) != n ||
		len(w.Closes) != n || len(w.Volumes) != n {
		return nil, fmt.Errorf("ragged arrays: t=%d o=%d h=%d l=%d c=%d v=%d",
			n, len(w.Opens), len(w.Highs), len(w.Lows), len(w.Closes), len(w.Volumes))
	}
	if n == 0 {
		return nil, nil
	}

	bars := make([]model.Bar, n)
	for i := 0; i < n; i++ {
		bars[i] = model.Bar{
			Symbol:    symbol,
			Timestamp: w.Timestamps[i] * 1000,
			Open:      w.Opens[i],
			High:      w.Highs[i],
			Low:       w.Lows[i],
			Close:     w.Closes[i],
			Volume:    w.Volumes[i],
		}
	}
	return bars, nil
}
