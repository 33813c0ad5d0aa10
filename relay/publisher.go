package relay

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/liveview/changeset"
	"github.com/kbukum/liveview/component"
	"github.com/kbukum/liveview/errors"
	"github.com/kbukum/liveview/logger"
	"github.com/kbukum/liveview/observability"
	"github.com/kbukum/liveview/redis"
	"github.com/kbukum/liveview/source"
)

// Clients hands out the Redis client once it is connected;
// *redis.Component is one.
type Clients interface {
	Client() *redis.Client
}

// Source is a collection a Publisher can follow.
type Source[K comparable, V any] interface {
	Connect(fn func(changeset.ChangeSet[K, V])) *source.Subscription
}

// Publisher mirrors a collection and publishes its change sets.
type Publisher[K comparable, V any] struct {
	clients Clients
	src     Source[K, V]
	cfg     Config
	origin  string
	log     *logger.Logger

	mu     sync.Mutex
	mirror *changeset.Cache[K, V]
	seq    uint64
	queue  chan []byte

	sub    *source.Subscription
	ps     *goredis.PubSub
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	published atomic.Uint64
	snapshots atomic.Uint64
	failures  atomic.Uint64
}

var _ component.Component = (*Publisher[string, int])(nil)

// NewPublisher creates a publisher of src on cfg.Channel.
func NewPublisher[K comparable, V any](clients Clients, src Source[K, V], cfg Config, log *logger.Logger) *Publisher[K, V] {
	cfg.ApplyDefaults()
	return &Publisher[K, V]{
		clients: clients,
		src:     src,
		cfg:     cfg,
		origin:  uuid.NewString(),
		log:     log.WithFields(logger.Fields("role", "publisher")),
		mirror:  changeset.NewCache[K, V](),
	}
}

func (p *Publisher[K, V]) Name() string { return "relay-publisher" }

// Start listens for snapshot requests, then follows the collection. The
// collection's current contents go out as the first batch.
func (p *Publisher[K, V]) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	client := p.clients.Client()
	if client == nil {
		return errors.Unavailable("redis client")
	}
	ps, err := client.Subscribe(ctx, syncChannel(p.cfg.Channel))
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.ps = ps
	p.ctx, p.cancel = runCtx, cancel
	p.queue = make(chan []byte, p.cfg.Queue)
	p.mirror.Clear()
	p.mu.Unlock()

	p.wg.Add(2)
	go p.send(runCtx, client)
	go p.serveSync(runCtx, ps)

	sub := p.src.Connect(p.onChanges)
	p.mu.Lock()
	p.sub = sub
	p.mu.Unlock()
	p.log.Info("relay publishing", logger.Fields("channel", p.cfg.Channel, "origin", p.origin))
	return nil
}

// Stop detaches from the collection. Batches still queued are dropped.
func (p *Publisher[K, V]) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel, ps, sub := p.cancel, p.ps, p.sub
	p.cancel, p.sub = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}
	if sub != nil {
		sub.Close()
	}
	cancel()
	_ = ps.Close()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Timeout("relay publisher stop").WithCause(ctx.Err())
	}
}

// onChanges runs under the collection's mutation lock.
func (p *Publisher[K, V]) onChanges(cs changeset.ChangeSet[K, V]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.mirror.Apply(cs); err != nil {
		// the mirror lost track; replicas get a full picture instead
		p.log.Warn("mirror out of step, sending snapshot", logger.ErrorFields("apply", err))
		p.rebuild(cs)
		p.enqueue(p.snapshot())
		return
	}
	if b := fromChangeSet(cs); !b.Empty() {
		p.enqueue(b)
	}
}

// rebuild forces cs into the mirror regardless of its prior contents.
func (p *Publisher[K, V]) rebuild(cs changeset.ChangeSet[K, V]) {
	for _, c := range cs {
		switch c.Reason {
		case changeset.Add, changeset.Update, changeset.Refresh:
			p.mirror.Set(c.Key, c.Current)
		case changeset.Remove:
			p.mirror.Remove(c.Key)
		}
	}
}

func (p *Publisher[K, V]) snapshot() Batch[K, V] {
	return Batch[K, V]{Reset: true, Upserts: p.mirror.Values()}
}

// enqueue stamps b and hands it to the sender. Callers hold p.mu, so the
// queue order is the stamp order.
func (p *Publisher[K, V]) enqueue(b Batch[K, V]) {
	p.seq++
	b.Origin = p.origin
	b.Seq = p.seq
	data, err := json.Marshal(b)
	if err != nil {
		p.failures.Add(1)
		p.log.Error("batch encoding failed", logger.ErrorFields("encode", err))
		return
	}
	select {
	case p.queue <- data:
	case <-p.ctx.Done():
	}
}

func (p *Publisher[K, V]) send(ctx context.Context, client *redis.Client) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-p.queue:
			sctx, span := observability.StartSpan(ctx, observability.SpanRelayPublish,
				trace.WithAttributes(attribute.Int("liveview.relay.bytes", len(data))))
			_, err := client.Publish(sctx, p.cfg.Channel, data)
			observability.EndSpan(span, err)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				p.failures.Add(1)
				p.log.Warn("publish failed", logger.ErrorFields("publish", err))
				continue
			}
			p.published.Add(1)
		}
	}
}

func (p *Publisher[K, V]) serveSync(ctx context.Context, ps *goredis.PubSub) {
	defer p.wg.Done()
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			p.mu.Lock()
			p.enqueue(p.snapshot())
			p.mu.Unlock()
			p.snapshots.Add(1)
			p.log.Debug("snapshot requested", logger.Fields("by", msg.Payload))
		}
	}
}

// Health reports publish counters; publish failures degrade it.
func (p *Publisher[K, V]) Health(context.Context) component.Health {
	p.mu.Lock()
	running := p.cancel != nil
	size := p.mirror.Len()
	p.mu.Unlock()

	h := component.Health{
		Name:   p.Name(),
		Status: component.StatusHealthy,
		Details: map[string]string{
			"channel":   p.cfg.Channel,
			"items":     strconv.Itoa(size),
			"published": strconv.FormatUint(p.published.Load(), 10),
			"snapshots": strconv.FormatUint(p.snapshots.Load(), 10),
			"failures":  strconv.FormatUint(p.failures.Load(), 10),
		},
	}
	switch {
	case !running:
		h.Status = component.StatusUnhealthy
		h.Message = "not started"
	case p.failures.Load() > 0:
		h.Status = component.StatusDegraded
	}
	return h
}
