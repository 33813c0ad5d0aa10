package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kbukum/liveview/component"
	"github.com/kbukum/liveview/logger"
	"github.com/kbukum/liveview/version"
)

var defaultSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// App owns a service's component registry and drives it through startup,
// a run phase and shutdown. C is the typed config.
//
//	app, err := bootstrap.NewApp(&cfg)
//	_ = app.RegisterComponent(view)
//	app.OnConfigure(func(ctx context.Context, a *bootstrap.App[*Config]) error {
//	    return a.RegisterComponent(server.NewComponent(srv))
//	})
//	err = app.Run(ctx)
type App[C Config] struct {
	Name       string
	Version    string
	Cfg        C
	Components *component.Registry
	Logger     *logger.Logger

	opts        *appOptions
	onConfigure []func(ctx context.Context, app *App[C]) error
	onStart     []Hook
	onReady     []Hook
	onStop      []Hook
}

// NewApp defaults and validates cfg, then sets up logging from its
// logging section unless WithLogger supplies one.
func NewApp[C Config](cfg C, opts ...Option) (*App[C], error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	svc := cfg.GetServiceConfig()
	o := resolveOptions(opts)

	log := o.logger
	if log == nil {
		logger.Init(&svc.Logging)
		log = logger.GetGlobalLogger()
	}
	ver := svc.Version
	if ver == "" {
		ver = version.Get().Short()
	}
	return &App[C]{
		Name:       svc.Name,
		Version:    ver,
		Cfg:        cfg,
		Components: component.NewRegistry(),
		Logger:     log,
		opts:       o,
	}, nil
}

// RegisterComponent adds c to the registry; start order is registration
// order, stop order the reverse.
func (a *App[C]) RegisterComponent(c component.Component) error {
	return a.Components.Register(c)
}

// OnConfigure adds a callback run once the first components and start hooks
// are up. Components it registers start before the next callback runs.
func (a *App[C]) OnConfigure(fn func(ctx context.Context, app *App[C]) error) {
	a.onConfigure = append(a.onConfigure, fn)
}

// ReadyCheck fails if any registered component reports other than healthy.
func (a *App[C]) ReadyCheck(ctx context.Context) error {
	var errs []error
	for _, h := range a.Components.HealthAll(ctx) {
		if h.Status == component.StatusHealthy {
			continue
		}
		msg := h.Name + "=" + string(h.Status)
		if h.Message != "" {
			msg += "(" + h.Message + ")"
		}
		errs = append(errs, errors.New(msg))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("unhealthy components: %w", errors.Join(errs...))
}

// Run starts everything, waits for a shutdown signal or ctx, and stops.
func (a *App[C]) Run(ctx context.Context) error {
	if err := a.startup(ctx); err != nil {
		return errors.Join(err, a.stop())
	}
	a.Logger.Info("application ready, waiting for shutdown signal")
	a.WaitForSignal(ctx)
	return a.stop()
}

// RunTask starts everything, runs task under a context that a shutdown
// signal cancels, then stops. A task error wins over a stop error.
func (a *App[C]) RunTask(ctx context.Context, task func(ctx context.Context) error) error {
	if err := a.startup(ctx); err != nil {
		return errors.Join(err, a.stop())
	}
	taskCtx, cancel := signal.NotifyContext(ctx, a.opts.signals...)
	defer cancel()

	err := task(taskCtx)
	if stopErr := a.stop(); err == nil {
		err = stopErr
	}
	return err
}

type phase struct {
	failure string
	run     func(context.Context) error
}

func (a *App[C]) startup(ctx context.Context) error {
	began := time.Now()
	a.Logger.Info("starting application", logger.Fields("name", a.Name, "version", a.Version))

	phases := []phase{
		{"initialization failed", a.Components.StartAll},
		{"onStart hook failed", hooks(&a.onStart)},
		{"configuration failed", a.configure},
		{"", a.warnUnready},
		{"onReady hook failed", hooks(&a.onReady)},
	}
	for _, p := range phases {
		if err := p.run(ctx); err != nil {
			return fmt.Errorf("%s: %w", p.failure, err)
		}
	}
	a.Logger.Info("application started", logger.Fields(
		"components", len(a.Components.All()),
		logger.FieldDuration, time.Since(began).Milliseconds()))
	return nil
}

func (a *App[C]) configure(ctx context.Context) error {
	for _, fn := range a.onConfigure {
		if err := fn(ctx, a); err != nil {
			return err
		}
		if err := a.Components.StartAll(ctx); err != nil {
			return err
		}
	}
	return nil
}

// warnUnready logs a failed ready check; it never stops startup.
func (a *App[C]) warnUnready(ctx context.Context) error {
	if err := a.ReadyCheck(ctx); err != nil {
		a.Logger.Warn("ready check reported issues", logger.MergeWithError(nil, err))
	}
	return nil
}

// WaitForSignal blocks until a shutdown signal or ctx; it returns the
// signal, or nil on cancellation.
func (a *App[C]) WaitForSignal(ctx context.Context) os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, a.opts.signals...)
	defer signal.Stop(ch)

	select {
	case sig := <-ch:
		a.Logger.Info("received shutdown signal", logger.Fields("signal", sig.String()))
		return sig
	case <-ctx.Done():
		a.Logger.Info("context canceled, shutting down")
		return nil
	}
}

// Shutdown stops the app for callers that drive their own lifecycle.
func (a *App[C]) Shutdown(context.Context) error {
	return a.stop()
}

// stop runs stop hooks then stops components, within the graceful timeout.
// The first failure is returned; later ones are only logged.
func (a *App[C]) stop() error {
	timeout := a.opts.gracefulTimeout
	a.Logger.Info("shutting down application", logger.Fields("timeout", timeout.String()))
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var first error
	for _, p := range []phase{{"onStop hook error", hooks(&a.onStop)}, {"shutdown completed with errors", a.Components.StopAll}} {
		if err := p.run(ctx); err != nil {
			a.Logger.Error(p.failure, logger.MergeWithError(nil, err))
			if first == nil {
				first = err
			}
		}
	}
	a.Logger.Info("application shutdown complete")
	return first
}
