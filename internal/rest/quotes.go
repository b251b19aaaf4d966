package rest

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/quotelab/watchfeed/internal/model"
)

// wireQuote is the upstream quote payload.
type wireQuote struct {
	BidPrice  float64 `json:"bp"`
	BidSize   int64   `json:"bs"`
	AskPrice  float64 `json:"ap"`
	AskSize   int64   `json:"as"`
	Timestamp int64   `json:"t"` // ms since epoch
}

type latestQuotesResponse struct {
	Quotes map[string]wireQuote `json:"quotes"`
}

type singleQuoteResponse struct {
	Symbol string    `json:"symbol"`
	Quote  wireQuote `json:"quote"`
}

// LatestQuotes fetches the latest quote for each symbol. One batched call
// when the provider supports it; otherwise N sequential rate-limited calls.
// Symbols the upstream has no quote for are absent from the result.
func (c *Client) LatestQuotes(ctx context.Context, symbols []string) (map[string]model.QuoteSnapshot, error) {
	if len(symbols) == 0 {
		return map[string]model.QuoteSnapshot{}, nil
	}

	if c.batchQuotes {
		return c.latestQuotesBatch(ctx, symbols)
	}
	return c.latestQuotesSequential(ctx, symbols)
}

func (c *Client) latestQuotesBatch(ctx context.Context, symbols []string) (map[string]model.QuoteSnapshot, error) {
	query := url.Values{}
	query.Set("symbols", strings.Join(symbols, ","))

	var resp latestQuotesResponse
	if err := c.get(ctx, "/v2/stocks/quotes/latest", query, &resp); err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	out := make(map[string]model.QuoteSnapshot, len(resp.Quotes))
	for symbol, q := range resp.Quotes {
		out[symbol] = q.toModel(symbol, now)
	}
	return out, nil
}

func (c *Client) latestQuotesSequential(ctx context.Context, symbols []string) (map[string]model.QuoteSnapshot, error) {
	out := make(map[string]model.QuoteSnapshot, len(symbols))

	for _, symbol := range symbols {
		var resp singleQuoteResponse
		err := c.get(ctx, "/v2/stocks/"+url.PathEscape(symbol)+"/quotes/latest", nil, &resp)
		if err != nil {
			// A symbol the upstream doesn't know is absent, not a failure.
			if apiErr, ok := AsAPIError(err); ok && apiErr.StatusCode == 404 {
				c.logger.Debug("no quote for symbol", "symbol", symbol)
				continue
			}
			return nil, err
		}
		out[symbol] = resp.Quote.toModel(symbol, time.Now().UnixMilli())
	}

	return out, nil
}

func (q wireQuote) toModel(symbol string, receivedAt int64) model.QuoteSnapshot {
	return model.QuoteSnapshot{
		Symbol:     symbol,
		BidPrice:   q.BidPrice,
		BidSize:    q.BidSize,
		AskPrice:   q.AskPrice,
		AskSize:    q.AskSize,
		Timestamp:  q.Timestamp,
		ReceivedAt: receivedAt,
	}
}
