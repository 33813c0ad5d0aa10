package view

import (
	"context"

	"github.com/kbukum/liveview/errors"
	"github.com/kbukum/liveview/filter"
	"github.com/kbukum/liveview/logger"
	"github.com/kbukum/liveview/paging"
	"github.com/kbukum/liveview/sorting"
)

// Feeds are external control streams. Nil channels are ignored.
type Feeds[V, R any] struct {
	Predicates  <-chan filter.Predicate[V]
	Comparators <-chan sorting.Comparator[R]
	Pages       <-chan paging.Request
	Pause       <-chan bool
}

// Drive forwards every feed value into the matching setter until all feeds
// are closed, ctx ends or the view is torn down. Rejected values are logged
// and skipped.
func (v *View[K, V, R]) Drive(ctx context.Context, f Feeds[V, R]) error {
	preds, cmps, pages, pause := f.Predicates, f.Comparators, f.Pages, f.Pause
	for preds != nil || cmps != nil || pages != nil || pause != nil {
		var err error
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-v.exited:
			return errors.TornDown()
		case p, ok := <-preds:
			if !ok {
				preds = nil
				continue
			}
			err = v.SetPredicate(p)
		case c, ok := <-cmps:
			if !ok {
				cmps = nil
				continue
			}
			err = v.SetComparator(c)
		case req, ok := <-pages:
			if !ok {
				pages = nil
				continue
			}
			err = v.SetPageRequest(req)
		case paused, ok := <-pause:
			if !ok {
				pause = nil
				continue
			}
			err = v.SetPaused(paused)
		}
		if errors.HasCode(err, errors.ErrCodeTornDown) {
			return err
		}
		if err != nil {
			v.log.Warn("feed value rejected", logger.MergeWithError(nil, err))
		}
	}
	return nil
}
