package trades

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/kbukum/liveview/errors"
)

// Proxy is the display projection of a trade.
type Proxy struct {
	Trade
	PercentFromMarket float64 `json:"percent_from_market"`

	closed atomic.Bool
}

// NewProxy projects t.
func NewProxy(t Trade) *Proxy {
	live.Add(1)
	return &Proxy{Trade: t, PercentFromMarket: t.PercentFromMarket()}
}

// Project is the view projector for trades. Trades without a market price
// cannot be projected.
func Project(_ context.Context, t Trade) (*Proxy, error) {
	if t.MarketPrice <= 0 {
		return nil, errors.InvalidInput("market_price", fmt.Sprintf("trade %s has no market price", t.ID))
	}
	return NewProxy(t), nil
}

// Close is the release hook run when the proxy leaves the view.
func (p *Proxy) Close() {
	if !p.closed.Swap(true) {
		live.Add(-1)
	}
}

// Closed reports whether Close has run.
func (p *Proxy) Closed() bool { return p.closed.Load() }

var live atomic.Int64

// LiveProxies returns how many proxies exist that have not been closed.
func LiveProxies() int64 { return live.Load() }
