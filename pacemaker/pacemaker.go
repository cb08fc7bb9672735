// Package pacemaker owns the current view and its timeout, advancing on
// QC formation or timer expiry (grounds alpenglow/votor.go's
// DELTA_BLOCK/DELTA_TIMEOUT/setTimeouts goroutine-scheduled timeout
// pattern, generalized from Alpenglow's fixed per-slot timeout to
// Simplex's view-keyed capped exponential backoff).
package pacemaker

import (
	"sync"
	"time"

	"github.com/mezonai/ockham/clock"
	"github.com/mezonai/ockham/types"
)

// Config bounds the exponential timeout schedule: Δ(V) = base *
// min(cap, 2^consecutive_timeouts).
type Config struct {
	BaseTimeout time.Duration
	CapPow      int // exponent cap: timeout never exceeds base * 2^CapPow
}

// DefaultConfig mirrors the teacher's steady-state 2δ block interval,
// using a base timeout in that neighborhood.
func DefaultConfig() Config {
	return Config{BaseTimeout: 400 * time.Millisecond, CapPow: 6}
}

// Pacemaker owns current_view, timer_deadline, and consecutive_timeouts.
// OnTimeout delivery is via a LocalTimeout callback, invoked from the
// Clock collaborator's own scheduling — never a bare time.Sleep — so the
// reactor's single inbound queue is the only place state changes.
type Pacemaker struct {
	mu sync.Mutex

	cfg   Config
	clk   clock.Clock
	onFire func(view types.View)

	currentView         types.View
	consecutiveTimeouts int
	cancelTimer         func()
}

// New creates a Pacemaker starting at startView. onTimeout is invoked
// (asynchronously, via clk) when the armed timer for the current view
// expires; the caller is expected to enqueue it as a LocalTimeout event
// rather than act on it directly, preserving single-threaded reactor
// semantics.
func New(cfg Config, clk clock.Clock, startView types.View, onTimeout func(view types.View)) *Pacemaker {
	p := &Pacemaker{cfg: cfg, clk: clk, onFire: onTimeout, currentView: startView}
	p.armLocked()
	return p
}

func (p *Pacemaker) delta() time.Duration {
	shift := p.consecutiveTimeouts
	if shift > p.cfg.CapPow {
		shift = p.cfg.CapPow
	}
	return p.cfg.BaseTimeout * time.Duration(uint64(1)<<uint(shift))
}

func (p *Pacemaker) armLocked() {
	if p.cancelTimer != nil {
		p.cancelTimer()
	}
	view := p.currentView
	d := p.delta()
	p.cancelTimer = p.clk.ScheduleAfter(d, func() {
		if p.onFire != nil {
			p.onFire(view)
		}
	})
}

// CurrentView returns the pacemaker's current view.
func (p *Pacemaker) CurrentView() types.View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentView
}

// OnQC advances the view when qc.View >= current_view, resetting the
// timer. consecutive_timeouts resets to 0 on any non-dummy QC and
// increments on a dummy QC (spec.md §4.4).
func (p *Pacemaker) OnQC(qc *types.QuorumCertificate) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if qc.IsDummy() {
		p.consecutiveTimeouts++
	} else if qc.Kind == types.Notarize {
		p.consecutiveTimeouts = 0
	}

	if qc.View >= p.currentView {
		p.currentView = qc.View + 1
		p.armLocked()
	}
}

// OnTimeout is called by the reactor when it dequeues a LocalTimeout(V)
// event. It reports whether V still matches current_view (spec.md §4.4:
// "if V == current_view, emit LocalTimeout(V)").
func (p *Pacemaker) OnTimeout(v types.View) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v != p.currentView {
		return false
	}
	p.armLocked()
	return true
}

// Stop cancels any pending timer, for graceful shutdown.
func (p *Pacemaker) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancelTimer != nil {
		p.cancelTimer()
	}
}
