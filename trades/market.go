package trades

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/liveview/component"
	"github.com/kbukum/liveview/errors"
	"github.com/kbukum/liveview/logger"
	"github.com/kbukum/liveview/resilience"
	"github.com/kbukum/liveview/source"
	"github.com/kbukum/liveview/validation"
)

// Sink receives the simulator's batched edits; source.Collection is one.
type Sink interface {
	Edit(fn func(u *source.Updater[string, Trade]))
}

// MarketConfig configures the simulator.
type MarketConfig struct {
	Pairs     []string `yaml:"pairs" mapstructure:"pairs" validate:"dive,required"`
	Customers []string `yaml:"customers" mapstructure:"customers" validate:"dive,required"`
	// InitialTrades are created in one batch on Start.
	InitialTrades int `yaml:"initial_trades" mapstructure:"initial_trades" validate:"min=0"`
	// TicksPerSecond paces the simulation through a token bucket.
	TicksPerSecond float64 `yaml:"ticks_per_second" mapstructure:"ticks_per_second" validate:"gte=0"`
	// NewPerTick is the maximum number of trades opened per tick.
	NewPerTick int `yaml:"new_per_tick" mapstructure:"new_per_tick" validate:"min=0"`
	// CloseChance is the probability a tick closes one live trade.
	CloseChance float64 `yaml:"close_chance" mapstructure:"close_chance" validate:"gte=0,lte=1"`
	// MaxClosed bounds the closed trades kept; older ones are removed.
	MaxClosed int    `yaml:"max_closed" mapstructure:"max_closed" validate:"min=0"`
	Seed      uint64 `yaml:"seed" mapstructure:"seed"`
}

// ApplyDefaults fills zero values.
func (c *MarketConfig) ApplyDefaults() {
	if len(c.Pairs) == 0 {
		c.Pairs = []string{"EUR/USD", "GBP/USD", "USD/JPY", "EUR/GBP", "AUD/USD", "USD/CHF", "NZD/USD", "USD/CAD"}
	}
	if len(c.Customers) == 0 {
		c.Customers = []string{"Barclays", "Lloyds", "HSBC", "Nomura", "Goldman", "Citi", "UBS", "Rabobank"}
	}
	if c.InitialTrades == 0 {
		c.InitialTrades = 1000
	}
	if c.TicksPerSecond == 0 {
		c.TicksPerSecond = 4
	}
	if c.NewPerTick == 0 {
		c.NewPerTick = 5
	}
	if c.CloseChance == 0 {
		c.CloseChance = 0.5
	}
	if c.MaxClosed == 0 {
		c.MaxClosed = 500
	}
}

// Validate checks the configuration.
func (c *MarketConfig) Validate() error {
	return validation.Validate(c)
}

var basePrices = map[string]float64{
	"EUR/USD": 1.0850, "GBP/USD": 1.2650, "USD/JPY": 149.50, "EUR/GBP": 0.8580,
	"AUD/USD": 0.6550, "USD/CHF": 0.8820, "NZD/USD": 0.6050, "USD/CAD": 1.3550,
}

// Market opens, reprices and closes trades in a sink at a steady pace.
type Market struct {
	cfg     MarketConfig
	sink    Sink
	limiter *resilience.RateLimiter
	log     *logger.Logger
	now     func() time.Time

	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]float64
	book   map[string]Trade
	closed []string
	ticks  uint64

	cancel context.CancelFunc
	done   chan struct{}
}

var _ component.Component = (*Market)(nil)

// NewMarket creates a stopped simulator writing to sink.
func NewMarket(cfg MarketConfig, sink Sink) (*Market, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	prices := make(map[string]float64, len(cfg.Pairs))
	for _, p := range cfg.Pairs {
		prices[p] = basePrices[p]
		if prices[p] == 0 {
			prices[p] = 1
		}
	}
	return &Market{
		cfg:  cfg,
		sink: sink,
		limiter: resilience.NewRateLimiter(resilience.RateLimiterConfig{
			Name:  "market",
			Rate:  cfg.TicksPerSecond,
			Burst: 1,
		}),
		log:    logger.Get("market"),
		now:    time.Now,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		prices: prices,
		book:   make(map[string]Trade),
	}, nil
}

// Name implements component.Component.
func (m *Market) Name() string { return "market" }

// Start seeds the initial trades and starts ticking.
func (m *Market) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.done != nil {
		m.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	m.done = make(chan struct{})
	m.mu.Unlock()

	m.Seed(m.cfg.InitialTrades)
	go m.run(runCtx)
	m.log.Info("market started", logger.Fields("trades", m.cfg.InitialTrades, "ticks_per_second", m.cfg.TicksPerSecond))
	return nil
}

func (m *Market) run(ctx context.Context) {
	defer close(m.done)
	for {
		if err := m.limiter.Wait(ctx); err != nil {
			return
		}
		m.Step()
	}
}

// Stop ends ticking and waits for the loop to exit.
func (m *Market) Stop(ctx context.Context) error {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Timeout("market stop").WithCause(ctx.Err())
	}
}

// Health implements component.Component.
func (m *Market) Health(context.Context) component.Health {
	m.mu.Lock()
	defer m.mu.Unlock()
	return component.Health{
		Name:   "market",
		Status: component.StatusHealthy,
		Details: map[string]string{
			"trades": strconv.Itoa(len(m.book)),
			"closed": strconv.Itoa(len(m.closed)),
			"ticks":  strconv.FormatUint(m.ticks, 10),
		},
	}
}

// Describe implements component.Describable.
func (m *Market) Describe() component.Description {
	return component.Description{
		Type:    "simulator",
		Details: fmt.Sprintf("%d pairs, %.1f ticks/s", len(m.cfg.Pairs), m.cfg.TicksPerSecond),
	}
}

// Seed opens n trades in one edit.
func (m *Market) Seed(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink.Edit(func(u *source.Updater[string, Trade]) {
		for range n {
			m.open(u)
		}
	})
}

// Step applies one tick: one pair moves and its live trades are repriced,
// some trades open, at most one closes and the oldest closed trades beyond
// MaxClosed are removed. Everything lands in the sink as one edit.
func (m *Market) Step() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks++
	m.sink.Edit(func(u *source.Updater[string, Trade]) {
		pair := m.cfg.Pairs[m.rng.IntN(len(m.cfg.Pairs))]
		price := m.prices[pair] * (1 + (m.rng.Float64()-0.5)*0.002)
		m.prices[pair] = round(price, 5)
		for id, t := range m.book {
			if t.CurrencyPair == pair && t.Status == StatusLive {
				t.MarketPrice = m.prices[pair]
				m.book[id] = t
				u.AddOrUpdate(t)
			}
		}

		for range m.rng.IntN(m.cfg.NewPerTick + 1) {
			m.open(u)
		}

		if m.rng.Float64() < m.cfg.CloseChance {
			m.closeOne(u)
		}
		for len(m.closed) > m.cfg.MaxClosed {
			id := m.closed[0]
			m.closed = m.closed[1:]
			delete(m.book, id)
			u.Remove(id)
		}
	})
}

func (m *Market) open(u *source.Updater[string, Trade]) {
	pair := m.cfg.Pairs[m.rng.IntN(len(m.cfg.Pairs))]
	market := m.prices[pair]
	side := SideBuy
	if m.rng.IntN(2) == 1 {
		side = SideSell
	}
	t := Trade{
		ID:           uuid.NewString(),
		Customer:     m.cfg.Customers[m.rng.IntN(len(m.cfg.Customers))],
		CurrencyPair: pair,
		Status:       StatusLive,
		Side:         side,
		TradePrice:   round(market*(1+(m.rng.Float64()-0.5)*0.01), 5),
		MarketPrice:  market,
		Amount:       float64(1+m.rng.IntN(100)) * 10_000,
		Timestamp:    m.now(),
	}
	m.book[t.ID] = t
	u.AddOrUpdate(t)
}

func (m *Market) closeOne(u *source.Updater[string, Trade]) {
	for id, t := range m.book {
		if t.Status != StatusLive {
			continue
		}
		t.Status = StatusClosed
		m.book[id] = t
		m.closed = append(m.closed, id)
		u.AddOrUpdate(t)
		return
	}
}

// Trades returns the number of trades the market has in the sink.
func (m *Market) Trades() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.book)
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
