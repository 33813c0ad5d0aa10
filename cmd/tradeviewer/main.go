// Command tradeviewer serves a live, searchable, sortable and paged view of
// a simulated trade blotter over HTTP, with a server-sent event stream of
// every change to the visible window.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kbukum/liveview/bootstrap"
	"github.com/kbukum/liveview/component"
	"github.com/kbukum/liveview/config"
	"github.com/kbukum/liveview/logger"
	"github.com/kbukum/liveview/observability"
	"github.com/kbukum/liveview/redis"
	"github.com/kbukum/liveview/relay"
	"github.com/kbukum/liveview/server"
	"github.com/kbukum/liveview/source"
	"github.com/kbukum/liveview/sse"
	"github.com/kbukum/liveview/trades"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg Config
	err := config.LoadConfig(serviceName, &cfg,
		config.WithEnvPrefix("TRADEVIEWER"),
		config.WithDefaults(loaderDefaults))
	if err != nil {
		return err
	}

	app, err := bootstrap.NewApp(&cfg)
	if err != nil {
		return err
	}
	if err := setupTelemetry(ctx, app); err != nil {
		return err
	}
	if err := wire(app); err != nil {
		return err
	}
	return app.Run(ctx)
}

// setupTelemetry installs the OTLP exporters when enabled and registers
// their shutdown.
func setupTelemetry(ctx context.Context, app *bootstrap.App[*Config]) error {
	oc := app.Cfg.Observability
	if !oc.Enabled {
		return nil
	}
	tc := oc.Tracer(app.Name, app.Version, app.Cfg.Environment)
	tp, err := observability.InitTracer(ctx, &tc)
	if err != nil {
		return err
	}
	mc := oc.Meter(app.Name, app.Version, app.Cfg.Environment)
	mp, err := observability.InitMeter(ctx, &mc)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return err
	}
	app.OnStop(tp.Shutdown, mp.Shutdown)
	app.Logger.Info("telemetry enabled", logger.Fields("endpoint", oc.Endpoint))
	return nil
}

// wire builds feed -> collection -> view and the HTTP front, registering
// components so they start in dependency order and stop in reverse.
func wire(app *bootstrap.App[*Config]) error {
	cfg := app.Cfg
	log := app.Logger

	coll := source.New(trades.Key,
		source.WithEquality[string](trades.Equal),
		source.WithLogger[string, trades.Trade](logger.Get("source")))

	stream := sse.NewComponent("/trades/events", logger.Get("sse"))
	viewer, err := NewViewer(cfg, coll, stream.Hub(), log)
	if err != nil {
		return err
	}
	feeders, err := tradeFeed(cfg, coll)
	if err != nil {
		return err
	}

	srv := server.New(cfg.Server, log)
	(&api{
		viewer:     viewer,
		hub:        stream.Hub(),
		components: app.Components,
		service:    app.Name,
		version:    app.Version,
	}).routes(srv)

	if err := observability.RegisterGauge("liveview.trades.proxies",
		"Trade projections alive in the pipeline", trades.LiveProxies); err != nil {
		return err
	}
	if err := observability.RegisterGauge("liveview.stream.clients",
		"Connected event stream clients", func() int64 { return int64(stream.Hub().ClientCount()) }); err != nil {
		return err
	}

	components := append([]component.Component{stream, viewer.View(), viewer}, feeders...)
	for _, c := range components {
		if err := app.RegisterComponent(c); err != nil {
			return err
		}
	}
	// The listener opens only once the pipeline and its feed are running.
	app.OnConfigure(func(_ context.Context, a *bootstrap.App[*Config]) error {
		return a.RegisterComponent(server.NewComponent(srv))
	})
	app.OnReady(func(context.Context) error {
		log.Info("trade viewer ready", logger.Fields(
			"relay", cfg.Relay.Mode,
			"page_size", cfg.View.PageSize,
			"sort", cfg.Viewer.Sort))
		return nil
	})
	return nil
}

// tradeFeed returns the components that fill coll: the market simulator,
// plus a relay publisher or, on a subscribing replica, only the relay.
func tradeFeed(cfg *Config, coll *source.Collection[string, trades.Trade]) ([]component.Component, error) {
	relayLog := logger.Get("relay")
	if cfg.Relay.Mode == relay.ModeSubscribe {
		rc := redis.NewComponent(cfg.Redis, nil)
		return []component.Component{rc, relay.NewSubscriber(rc, coll, trades.Key, cfg.Relay, relayLog)}, nil
	}

	market, err := trades.NewMarket(cfg.Market, coll)
	if err != nil {
		return nil, err
	}
	if cfg.Relay.Mode == relay.ModeLocal {
		return []component.Component{market}, nil
	}
	rc := redis.NewComponent(cfg.Redis, nil)
	return []component.Component{rc, relay.NewPublisher[string, trades.Trade](rc, coll, cfg.Relay, relayLog), market}, nil
}
