// Package trades is the trade-viewer domain: trade records, their display
// projection, search and sort options, and a market simulator that keeps a
// source collection moving.
package trades

import (
	"math"
	"time"
)

// Status is the lifecycle state of a trade.
type Status string

const (
	StatusLive   Status = "live"
	StatusClosed Status = "closed"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Trade is one executed trade. MarketPrice moves while the trade is live.
type Trade struct {
	ID           string    `json:"id"`
	Customer     string    `json:"customer"`
	CurrencyPair string    `json:"currency_pair"`
	Status       Status    `json:"status"`
	Side         Side      `json:"side"`
	TradePrice   float64   `json:"trade_price"`
	MarketPrice  float64   `json:"market_price"`
	Amount       float64   `json:"amount"`
	Timestamp    time.Time `json:"timestamp"`
}

// Key returns the identity of t.
func Key(t Trade) string { return t.ID }

// PercentFromMarket is how far the trade price is from the market price,
// in percent, rounded to four decimals.
func (t Trade) PercentFromMarket() float64 {
	if t.MarketPrice == 0 {
		return 0
	}
	pct := (t.TradePrice - t.MarketPrice) / t.MarketPrice * 100
	return math.Round(pct*1e4) / 1e4
}

// Equal reports whether two versions of a trade are indistinguishable, so
// re-publishing an unchanged trade is a no-op.
func Equal(a, b Trade) bool {
	return a.ID == b.ID &&
		a.Status == b.Status &&
		a.MarketPrice == b.MarketPrice &&
		a.TradePrice == b.TradePrice &&
		a.Amount == b.Amount &&
		a.Customer == b.Customer &&
		a.CurrencyPair == b.CurrencyPair &&
		a.Side == b.Side &&
		a.Timestamp.Equal(b.Timestamp)
}
