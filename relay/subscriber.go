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

	"github.com/kbukum/liveview/component"
	"github.com/kbukum/liveview/errors"
	"github.com/kbukum/liveview/logger"
	"github.com/kbukum/liveview/observability"
	"github.com/kbukum/liveview/source"
)

// Sink is a collection a Subscriber writes to; *source.Collection is one.
type Sink[K comparable, V any] interface {
	Edit(fn func(u *source.Updater[K, V]))
}

// Subscriber applies published batches to a replica collection.
type Subscriber[K comparable, V any] struct {
	clients Clients
	dst     Sink[K, V]
	keyOf   func(V) K
	cfg     Config
	id      string
	log     *logger.Logger

	mu     sync.Mutex
	ps     *goredis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
	origin string
	seq    uint64

	applied  atomic.Uint64
	resets   atomic.Uint64
	gaps     atomic.Uint64
	rejected atomic.Uint64
}

var _ component.Component = (*Subscriber[string, int])(nil)

// NewSubscriber creates a subscriber writing cfg.Channel into dst.
func NewSubscriber[K comparable, V any](clients Clients, dst Sink[K, V], keyOf func(V) K, cfg Config, log *logger.Logger) *Subscriber[K, V] {
	cfg.ApplyDefaults()
	return &Subscriber[K, V]{
		clients: clients,
		dst:     dst,
		keyOf:   keyOf,
		cfg:     cfg,
		id:      uuid.NewString(),
		log:     log.WithFields(logger.Fields("role", "subscriber")),
	}
}

func (s *Subscriber[K, V]) Name() string { return "relay-subscriber" }

// Start subscribes and then asks the publisher for a snapshot. Batches that
// arrive before the snapshot are applied and then superseded by it.
func (s *Subscriber[K, V]) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	client := s.clients.Client()
	if client == nil {
		return errors.Unavailable("redis client")
	}
	ps, err := client.Subscribe(ctx, s.cfg.Channel)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.ps, s.cancel, s.done = ps, cancel, make(chan struct{})
	go s.receive(runCtx, ps.Channel(), s.done)

	n, err := client.Publish(ctx, syncChannel(s.cfg.Channel), []byte(s.id))
	if err != nil {
		cancel()
		_ = ps.Close()
		s.cancel = nil
		return err
	}
	if n == 0 {
		s.log.Warn("no publisher on channel yet", logger.Fields("channel", s.cfg.Channel))
	}
	s.log.Info("relay subscribed", logger.Fields("channel", s.cfg.Channel, "subscriber", s.id))
	return nil
}

// Stop closes the subscription and waits for the receiver.
func (s *Subscriber[K, V]) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, ps, done := s.cancel, s.ps, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	_ = ps.Close()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Timeout("relay subscriber stop").WithCause(ctx.Err())
	}
}

func (s *Subscriber[K, V]) receive(ctx context.Context, ch <-chan *goredis.Message, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var b Batch[K, V]
			if err := json.Unmarshal([]byte(msg.Payload), &b); err != nil {
				s.rejected.Add(1)
				s.log.Warn("undecodable batch", logger.ErrorFields("decode", err))
				continue
			}
			_, span := observability.StartSpan(ctx, observability.SpanRelayApply, trace.WithAttributes(
				attribute.Int64(observability.AttrRelaySeq, int64(b.Seq)),
				attribute.Bool(observability.AttrRelayReset, b.Reset)))
			s.track(ctx, b)
			s.apply(b)
			span.End()
		}
	}
}

// track follows the publisher's sequence and asks for a snapshot when a
// batch went missing.
func (s *Subscriber[K, V]) track(ctx context.Context, b Batch[K, V]) {
	s.mu.Lock()
	gap := !b.Reset && b.Origin == s.origin && b.Seq != s.seq+1
	s.origin, s.seq = b.Origin, b.Seq
	s.mu.Unlock()
	if !gap {
		return
	}
	s.gaps.Add(1)
	s.log.Warn("batch sequence gap, requesting snapshot", logger.Fields("origin", b.Origin, "seq", b.Seq))
	if client := s.clients.Client(); client != nil {
		if _, err := client.Publish(ctx, syncChannel(s.cfg.Channel), []byte(s.id)); err != nil {
			s.log.Warn("snapshot request failed", logger.ErrorFields("publish", err))
		}
	}
}

// apply writes b as one edit, so the replica emits one change set per batch.
func (s *Subscriber[K, V]) apply(b Batch[K, V]) {
	s.dst.Edit(func(u *source.Updater[K, V]) {
		if b.Reset {
			keep := make(map[K]struct{}, len(b.Upserts))
			for _, v := range b.Upserts {
				keep[s.keyOf(v)] = struct{}{}
			}
			for _, k := range u.Keys() {
				if _, ok := keep[k]; !ok {
					u.Remove(k)
				}
			}
		}
		for _, v := range b.Upserts {
			u.AddOrUpdate(v)
		}
		for _, k := range b.Removes {
			u.Remove(k)
		}
		for _, k := range b.Refreshes {
			u.Refresh(k)
		}
	})
	s.applied.Add(1)
	if b.Reset {
		s.resets.Add(1)
	}
}

// Health reports replication counters; sequence gaps degrade it.
func (s *Subscriber[K, V]) Health(context.Context) component.Health {
	s.mu.Lock()
	running := s.cancel != nil
	seq := s.seq
	s.mu.Unlock()

	h := component.Health{
		Name:   s.Name(),
		Status: component.StatusHealthy,
		Details: map[string]string{
			"channel":  s.cfg.Channel,
			"seq":      strconv.FormatUint(seq, 10),
			"applied":  strconv.FormatUint(s.applied.Load(), 10),
			"resets":   strconv.FormatUint(s.resets.Load(), 10),
			"gaps":     strconv.FormatUint(s.gaps.Load(), 10),
			"rejected": strconv.FormatUint(s.rejected.Load(), 10),
		},
	}
	switch {
	case !running:
		h.Status = component.StatusUnhealthy
		h.Message = "not started"
	case s.gaps.Load() > 0:
		h.Status = component.StatusDegraded
	}
	return h
}

// Applied returns how many batches have been written to the replica.
func (s *Subscriber[K, V]) Applied() uint64 { return s.applied.Load() }
