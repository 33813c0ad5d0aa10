package trades

import (
	"context"
	"testing"
	"time"

	lverrors "github.com/kbukum/liveview/errors"
	"github.com/kbukum/liveview/logger"
	"github.com/kbukum/liveview/source"
)

func TestSearchFilter(t *testing.T) {
	trade := Trade{Customer: "Barclays", CurrencyPair: "GBP/USD"}
	tests := []struct {
		text string
		want bool
	}{
		{"", true},
		{"   ", true},
		{"gbp", true},
		{"BARC", true},
		{"usd", true},
		{"jpy", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := SearchFilter(tt.text)(trade)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %v", got)
			}
		})
	}
}

func TestPercentFromMarket(t *testing.T) {
	tr := Trade{TradePrice: 1.01, MarketPrice: 1.00}
	if got := tr.PercentFromMarket(); got != 1 {
		t.Errorf("got %v", got)
	}
	if got := (Trade{TradePrice: 1}).PercentFromMarket(); got != 0 {
		t.Errorf("zero market price gave %v", got)
	}
}

func TestProjectAndClose(t *testing.T) {
	if _, err := Project(context.Background(), Trade{ID: "x"}); !lverrors.HasCode(err, lverrors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}

	before := LiveProxies()
	p, err := Project(context.Background(), Trade{ID: "y", TradePrice: 2, MarketPrice: 1})
	if err != nil {
		t.Fatal(err)
	}
	if p.PercentFromMarket != 100 {
		t.Errorf("percent %v", p.PercentFromMarket)
	}
	if LiveProxies() != before+1 {
		t.Error("proxy not counted")
	}
	p.Close()
	p.Close()
	if !p.Closed() || LiveProxies() != before {
		t.Errorf("closed=%v live=%d", p.Closed(), LiveProxies())
	}
}

func TestSortOptions(t *testing.T) {
	for _, name := range SortNames() {
		c, ok := LookupSort(name)
		if !ok || c.Compare == nil {
			t.Errorf("%s missing", name)
		}
	}
	if _, ok := LookupSort("nope"); ok {
		t.Error("unknown sort found")
	}
	if ByPercentFromMarket.StableOnImmutableKeys {
		t.Error("percent from market moves with the market")
	}
	if !ByCustomer.StableOnImmutableKeys {
		t.Error("customer order is fixed at execution")
	}

	older := NewProxy(Trade{Customer: "A", Timestamp: time.Unix(1, 0)})
	newer := NewProxy(Trade{Customer: "A", Timestamp: time.Unix(2, 0)})
	if ByCustomer.Compare(newer, older) >= 0 {
		t.Error("newer trade should sort first within a customer")
	}
}

func newMarket(t *testing.T, cfg MarketConfig) (*Market, *source.Collection[string, Trade]) {
	t.Helper()
	src := source.New(Key, source.WithEquality[string](Equal), source.WithLogger[string, Trade](logger.Nop()))
	cfg.Seed = 7
	m, err := NewMarket(cfg, src)
	if err != nil {
		t.Fatal(err)
	}
	m.log = logger.Nop()
	return m, src
}

func TestMarketStep(t *testing.T) {
	m, src := newMarket(t, MarketConfig{InitialTrades: 50, MaxClosed: 5, CloseChance: 1})
	m.Seed(50)
	if src.Count() != 50 {
		t.Fatalf("count %d", src.Count())
	}

	for range 40 {
		m.Step()
	}
	if m.Trades() != src.Count() {
		t.Errorf("market has %d trades, source %d", m.Trades(), src.Count())
	}
	closed := 0
	for _, tr := range src.Items() {
		if tr.Status == StatusClosed {
			closed++
		}
		if tr.MarketPrice <= 0 {
			t.Errorf("trade %s has no market price", tr.ID)
		}
	}
	if closed > 5 {
		t.Errorf("%d closed trades kept", closed)
	}
}

func TestMarketLifecycle(t *testing.T) {
	m, src := newMarket(t, MarketConfig{InitialTrades: 10, TicksPerSecond: 200})
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if src.Count() < 10 {
		t.Errorf("count %d", src.Count())
	}
	if h := m.Health(context.Background()); h.Details["ticks"] == "0" {
		t.Errorf("market never ticked: %+v", h)
	}
}

func TestMarketConfigValidation(t *testing.T) {
	_, err := NewMarket(MarketConfig{CloseChance: 2}, nil)
	if !lverrors.HasCode(err, lverrors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
}
