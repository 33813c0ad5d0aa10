package relay_test

import (
	"context"
	"encoding/json"
	"maps"
	"testing"
	"time"

	"github.com/kbukum/liveview/component"
	"github.com/kbukum/liveview/errors"
	"github.com/kbukum/liveview/logger"
	"github.com/kbukum/liveview/redis"
	"github.com/kbukum/liveview/redis/redistest"
	"github.com/kbukum/liveview/relay"
	"github.com/kbukum/liveview/source"
)

type quote struct {
	ID    string  `json:"id"`
	Price float64 `json:"price"`
}

func quoteKey(q quote) string { return q.ID }

func newCollection(items ...quote) *source.Collection[string, quote] {
	c := source.New(quoteKey, source.WithEquality[string](func(a, b quote) bool { return a == b }))
	c.AddOrUpdate(items...)
	return c
}

func contents(c *source.Collection[string, quote]) map[string]quote {
	out := make(map[string]quote)
	for _, q := range c.Items() {
		out[q.ID] = q
	}
	return out
}

func startRedis(t *testing.T) *redis.Component {
	t.Helper()
	_, cfg := redistest.Start(t)
	rc := redis.NewComponent(cfg, logger.Nop())
	if err := rc.Start(context.Background()); err != nil {
		t.Fatalf("redis start: %v", err)
	}
	t.Cleanup(func() { _ = rc.Stop(context.Background()) })
	return rc
}

func start(t *testing.T, c component.Component) {
	t.Helper()
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("%s start: %v", c.Name(), err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.Stop(ctx); err != nil {
			t.Errorf("%s stop: %v", c.Name(), err)
		}
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func converged(primary, replica *source.Collection[string, quote]) func() bool {
	return func() bool { return maps.Equal(contents(primary), contents(replica)) }
}

var testConfig = relay.Config{Mode: relay.ModePublish, Channel: "quotes"}

func TestReplicaFollowsPrimary(t *testing.T) {
	rc := startRedis(t)
	primary := newCollection(quote{"a", 1}, quote{"b", 2}, quote{"c", 3})
	replica := newCollection()

	start(t, relay.NewPublisher[string, quote](rc, primary, testConfig, logger.Nop()))
	start(t, relay.NewSubscriber(rc, replica, quoteKey, testConfig, logger.Nop()))
	waitFor(t, "initial contents", converged(primary, replica))

	primary.AddOrUpdate(quote{"b", 2.5}, quote{"d", 4})
	primary.Remove("a")
	waitFor(t, "live changes", converged(primary, replica))

	if got := contents(replica)["b"].Price; got != 2.5 {
		t.Errorf("b price = %v, want 2.5", got)
	}
}

func TestLateSubscriberReceivesSnapshot(t *testing.T) {
	rc := startRedis(t)
	primary := newCollection(quote{"a", 1})
	pub := relay.NewPublisher[string, quote](rc, primary, testConfig, logger.Nop())
	start(t, pub)

	// published before anyone listens
	primary.AddOrUpdate(quote{"b", 2}, quote{"c", 3})
	primary.Remove("a")

	replica := newCollection()
	sub := relay.NewSubscriber(rc, replica, quoteKey, testConfig, logger.Nop())
	start(t, sub)
	waitFor(t, "snapshot applied", converged(primary, replica))

	if h := pub.Health(context.Background()); h.Details["snapshots"] == "0" {
		t.Errorf("publisher health = %+v", h)
	}
}

func TestSnapshotRemovesStaleKeys(t *testing.T) {
	rc := startRedis(t)
	primary := newCollection(quote{"a", 1})
	replica := newCollection(quote{"stale", 9}, quote{"a", 0})

	start(t, relay.NewPublisher[string, quote](rc, primary, testConfig, logger.Nop()))
	start(t, relay.NewSubscriber(rc, replica, quoteKey, testConfig, logger.Nop()))
	waitFor(t, "stale key dropped", converged(primary, replica))
}

func TestSequenceGapAndBadPayload(t *testing.T) {
	rc := startRedis(t)
	replica := newCollection()
	sub := relay.NewSubscriber(rc, replica, quoteKey, testConfig, logger.Nop())
	start(t, sub)

	ctx := context.Background()
	publish := func(v any) {
		t.Helper()
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := rc.Client().Publish(ctx, "quotes", data); err != nil {
			t.Fatal(err)
		}
	}
	publish(relay.Batch[string, quote]{Origin: "p1", Seq: 1, Upserts: []quote{{"a", 1}}})
	publish(relay.Batch[string, quote]{Origin: "p1", Seq: 3, Upserts: []quote{{"b", 2}}})
	if _, err := rc.Client().Publish(ctx, "quotes", []byte("not json")); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "rejected payload", func() bool {
		return sub.Health(ctx).Details["rejected"] == "1"
	})
	h := sub.Health(ctx)
	if h.Status != component.StatusDegraded || h.Details["gaps"] != "1" {
		t.Errorf("health = %+v", h)
	}
	// a gap is reported but the batch still applies
	if got := replica.Count(); got != 2 {
		t.Errorf("replica count = %d, want 2", got)
	}
}

type noClients struct{}

func (noClients) Client() *redis.Client { return nil }

func TestStartWithoutClient(t *testing.T) {
	coll := newCollection()
	ctx := context.Background()

	pub := relay.NewPublisher[string, quote](noClients{}, coll, testConfig, logger.Nop())
	if err := pub.Start(ctx); !errors.HasCode(err, errors.ErrCodeUnavailable) {
		t.Errorf("publisher start = %v, want SERVICE_UNAVAILABLE", err)
	}
	sub := relay.NewSubscriber[string, quote](noClients{}, coll, quoteKey, testConfig, logger.Nop())
	if err := sub.Start(ctx); !errors.HasCode(err, errors.ErrCodeUnavailable) {
		t.Errorf("subscriber start = %v, want SERVICE_UNAVAILABLE", err)
	}
	if h := sub.Health(ctx); h.Status != component.StatusUnhealthy {
		t.Errorf("health = %s", h.Status)
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg relay.Config
	cfg.ApplyDefaults()
	if cfg.Mode != relay.ModeLocal || cfg.Channel == "" || cfg.Queue == 0 {
		t.Errorf("defaults = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	cfg.Mode = "mirror"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown mode")
	}
}
