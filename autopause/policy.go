// Package autopause pauses a view while a page change is in flight, so the
// new page is cut from a stable snapshot, and resumes once it is delivered.
package autopause

import (
	"sync"

	"github.com/kbukum/liveview/logger"
)

// State is the policy state.
type State int

const (
	Idle State = iota
	PendingPageChange
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case PendingPageChange:
		return "pending_page_change"
	case Paused:
		return "paused"
	}
	return "unknown"
}

// Policy decides when to pause. Manual pauses win over automatic resumes.
type Policy struct {
	mu        sync.Mutex
	enabled   bool
	state     State
	setPaused func(bool) error
	log       *logger.Logger
}

// New returns an enabled policy driving setPaused, typically View.SetPaused.
func New(setPaused func(bool) error, log *logger.Logger) *Policy {
	if log == nil {
		log = logger.Get("autopause")
	}
	return &Policy{enabled: true, setPaused: setPaused, log: log}
}

// transition moves to next and applies paused. Callers hold p.mu.
func (p *Policy) transition(next State, paused bool) error {
	prev := p.state
	p.state = next
	if err := p.setPaused(paused); err != nil {
		p.state = prev
		return err
	}
	p.log.Debug("pause state changed", logger.Fields("from", prev.String(), "to", next.String()))
	return nil
}

// PageRequested pauses until the requested page is delivered.
func (p *Policy) PageRequested() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled || p.state != Idle {
		return nil
	}
	return p.transition(PendingPageChange, true)
}

// PageDelivered resumes after an automatic pause.
func (p *Policy) PageDelivered() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != PendingPageChange {
		return nil
	}
	return p.transition(Idle, false)
}

// Pause pauses until Resume, whatever the page does.
func (p *Policy) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Paused {
		return nil
	}
	if p.state == PendingPageChange {
		// already paused downstream
		p.state = Paused
		return nil
	}
	return p.transition(Paused, true)
}

// Resume ends a manual or pending pause.
func (p *Policy) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Idle {
		return nil
	}
	return p.transition(Idle, false)
}

// SetEnabled switches automatic pausing. Disabling resumes a pending page
// change; manual pauses are kept.
func (p *Policy) SetEnabled(enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = enabled
	if !enabled && p.state == PendingPageChange {
		return p.transition(Idle, false)
	}
	return nil
}

// Enabled reports whether automatic pausing is on.
func (p *Policy) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// State returns the current state.
func (p *Policy) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}
