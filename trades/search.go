package trades

import (
	"strings"

	"github.com/kbukum/liveview/filter"
)

// SearchFilter matches trades whose currency pair or customer contains text,
// ignoring case. Blank text matches everything.
func SearchFilter(text string) filter.Predicate[Trade] {
	text = strings.TrimSpace(text)
	if text == "" {
		return filter.All[Trade]()
	}
	needle := strings.ToLower(text)
	return filter.Match(func(t Trade) bool {
		return strings.Contains(strings.ToLower(t.CurrencyPair), needle) ||
			strings.Contains(strings.ToLower(t.Customer), needle)
	})
}
