// Package view owns a complete live pipeline over a source collection:
// gate, filter, transform, sort, page and binder.
//
// A View is built stopped. Start subscribes to the source; from then on every
// source change set and every Set* call becomes one event on a queue drained
// by a single goroutine, so stage state never sees two writers:
//
//	src := source.New(func(t trades.Trade) string { return t.ID })
//	v, err := view.New[string, trades.Trade, *trades.Proxy](src, trades.Project,
//		view.WithComparator[trades.Trade, *trades.Proxy](trades.ByTimeDesc),
//		view.WithRelease[trades.Trade, *trades.Proxy]((*trades.Proxy).Close))
//	if err != nil {
//		return err
//	}
//	if err := v.Start(ctx); err != nil {
//		return err
//	}
//	defer v.Stop(context.Background())
//
// An invariant violation raised by any stage either panics (strict mode) or
// resets every stage and resubscribes to the source. Change sets delivered by
// the abandoned subscription are recognised by their generation and dropped.
package view
