package view

import (
	"github.com/kbukum/liveview/changeset"
	"github.com/kbukum/liveview/filter"
	"github.com/kbukum/liveview/paging"
	"github.com/kbukum/liveview/sorting"
)

type eventKind int

const (
	eventChanges eventKind = iota
	eventPredicate
	eventComparator
	eventPage
	eventPause
	eventBarrier
	eventFault
)

func (k eventKind) String() string {
	switch k {
	case eventChanges:
		return "changes"
	case eventPredicate:
		return "predicate"
	case eventComparator:
		return "comparator"
	case eventPage:
		return "page"
	case eventPause:
		return "pause"
	case eventBarrier:
		return "barrier"
	case eventFault:
		return "fault"
	}
	return "unknown"
}

// event is one unit of work for the view goroutine.
type event[K comparable, V, R any] struct {
	kind       eventKind
	gen        uint64
	cs         changeset.ChangeSet[K, V]
	predicate  filter.Predicate[V]
	comparator sorting.Comparator[R]
	request    paging.Request
	paused     bool
	done       chan struct{}
	err        error
}
