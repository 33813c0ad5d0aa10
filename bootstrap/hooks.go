package bootstrap

import (
	"context"
	"fmt"
)

// Hook is a startup or shutdown callback.
type Hook func(ctx context.Context) error

// OnStart hooks run after the first StartAll, before configure callbacks.
func (a *App[C]) OnStart(h ...Hook) { a.onStart = append(a.onStart, h...) }

// OnReady hooks run once the ready check has been logged.
func (a *App[C]) OnReady(h ...Hook) { a.onReady = append(a.onReady, h...) }

// OnStop hooks run in registration order before any component stops.
func (a *App[C]) OnStop(h ...Hook) { a.onStop = append(a.onStop, h...) }

// hooks folds *hs into one phase that stops at the first failure. The slice
// is read when the phase runs, so configure callbacks may still add hooks.
func hooks(hs *[]Hook) func(context.Context) error {
	return func(ctx context.Context) error {
		for i, h := range *hs {
			if err := h(ctx); err != nil {
				return fmt.Errorf("hook %d failed: %w", i, err)
			}
		}
		return nil
	}
}
