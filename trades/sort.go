package trades

import (
	"slices"

	"github.com/kbukum/liveview/sorting"
)

// ByTimeDesc shows the newest trades first. Fields fixed at execution are
// flagged stable so market price updates replace rows in place.
var ByTimeDesc = sorting.Descending("time", func(p *Proxy) int64 { return p.Timestamp.UnixNano() }).Stable()

// ByCustomer orders by customer, newest first within one customer.
var ByCustomer = sorting.Ascending("customer", func(p *Proxy) string { return p.Customer }).Stable().Then(ByTimeDesc)

// ByCurrencyPair orders by pair, newest first within one pair.
var ByCurrencyPair = sorting.Ascending("currency_pair", func(p *Proxy) string { return p.CurrencyPair }).Stable().Then(ByTimeDesc)

// ByTradePrice orders by execution price.
var ByTradePrice = sorting.Ascending("trade_price", func(p *Proxy) float64 { return p.TradePrice }).Stable()

// ByPercentFromMarket moves with the market, so it is not stable.
var ByPercentFromMarket = sorting.Ascending("percent_from_market", func(p *Proxy) float64 { return p.PercentFromMarket })

// SortOption is a named comparator offered to clients.
type SortOption struct {
	Name       string
	Comparator sorting.Comparator[*Proxy]
}

// SortOptions lists the orders a client may pick, the default first.
var SortOptions = []SortOption{
	{Name: "time", Comparator: ByTimeDesc},
	{Name: "customer", Comparator: ByCustomer},
	{Name: "currency_pair", Comparator: ByCurrencyPair},
	{Name: "trade_price", Comparator: ByTradePrice},
	{Name: "percent_from_market", Comparator: ByPercentFromMarket},
}

// LookupSort returns the comparator named name.
func LookupSort(name string) (sorting.Comparator[*Proxy], bool) {
	i := slices.IndexFunc(SortOptions, func(o SortOption) bool { return o.Name == name })
	if i < 0 {
		return sorting.Comparator[*Proxy]{}, false
	}
	return SortOptions[i].Comparator, true
}

// SortNames returns the option names in display order.
func SortNames() []string {
	names := make([]string, len(SortOptions))
	for i, o := range SortOptions {
		names[i] = o.Name
	}
	return names
}
