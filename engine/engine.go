// Package engine is the reactor: the single-threaded state machine that
// owns the current view, drives the propose/vote/certify/finalize
// pipeline, and calls through every collaborator interface (grounds
// alpenglow/votor.go's event-loop goroutine plus handleMsg dispatch,
// generalized from Alpenglow's five-vote-kind slot machine to Simplex's
// two-kind per-view machine; chain-of-custody for a message is: queue ->
// classify -> validate -> absorb -> (maybe) emit).
package engine

import (
	"context"
	"fmt"

	"github.com/mezonai/ockham/chainstore"
	"github.com/mezonai/ockham/clock"
	"github.com/mezonai/ockham/exception"
	"github.com/mezonai/ockham/execution"
	"github.com/mezonai/ockham/logx"
	"github.com/mezonai/ockham/mempool"
	"github.com/mezonai/ockham/monitoring"
	"github.com/mezonai/ockham/ockerr"
	"github.com/mezonai/ockham/p2p"
	"github.com/mezonai/ockham/pacemaker"
	"github.com/mezonai/ockham/pool"
	"github.com/mezonai/ockham/qcbuilder"
	"github.com/mezonai/ockham/signer"
	"github.com/mezonai/ockham/types"
)

const inboundQueueDepth = 4096

// Config is everything Engine needs to construct its collaborators and
// initial state. Callers run chainstore.Store.Recover before building
// Config, so StartView/ timeline fields reflect durable state.
type Config struct {
	Self      signer.Signer
	Committee types.Committee

	Store      *chainstore.Store
	Pool       *pool.Pool
	QCBuilder  *qcbuilder.Builder
	Clock      clock.Clock
	Broadcast  p2p.Broadcaster
	Sync       p2p.PointToPoint
	Mempool    mempool.Mempool
	Executor   execution.Executor
	Pacemaker  pacemaker.Config

	// StartView is current_view after recovery: highest_qc.view + 1, or 1
	// at genesis (spec.md §4.5).
	StartView types.View

	// MaxPayloadBytes bounds how much the leader pulls from the mempool
	// per proposal.
	MaxPayloadBytes int

	// OnFinalized is invoked for every view this node newly finalizes, in
	// increasing view order (spec.md §6's FinalizedNotification event).
	OnFinalized func(view types.View, hash types.Hash)
}

type acceptKey struct {
	view   types.View
	author string
}

// Engine is the reactor.
type Engine struct {
	self      signer.Signer
	committee types.Committee
	commHash  types.Hash

	store     *chainstore.Store
	votePool  *pool.Pool
	qcBuilder *qcbuilder.Builder
	pm        *pacemaker.Pacemaker
	clk       clock.Clock
	bcast     p2p.Broadcaster
	sync      p2p.PointToPoint
	mpool     mempool.Mempool
	exec      execution.Executor

	maxPayload int
	onFinal    func(view types.View, hash types.Hash)

	inbound chan Event

	votedNotarize map[types.View]types.Hash
	votedFinalize map[types.View]types.Hash
	accepted      map[acceptKey]types.Hash
	timedOut      map[types.View]bool
	proposedView  types.View

	haltErr error

	// suppressPropose simulates a crashed/offline leader in tests: this
	// node will still validate, vote, and finalize, it just never takes
	// its own leader turn.
	suppressPropose bool
}

// SuppressPropose disables this node's leader turn (test-only fault
// injection: simulates a crashed leader that never proposes, without
// otherwise affecting vote/QC handling).
func (e *Engine) SuppressPropose(v bool) {
	e.suppressPropose = v
}

// New builds an Engine and its owned Pacemaker. The pacemaker's timer
// callback enqueues a LocalTimeout event rather than acting directly, so
// the clock collaborator never touches engine state off the reactor loop.
func New(cfg Config) *Engine {
	e := &Engine{
		self:          cfg.Self,
		committee:     cfg.Committee,
		commHash:      cfg.Committee.Hash(),
		store:         cfg.Store,
		votePool:      cfg.Pool,
		qcBuilder:     cfg.QCBuilder,
		clk:           cfg.Clock,
		bcast:         cfg.Broadcast,
		sync:          cfg.Sync,
		mpool:         cfg.Mempool,
		exec:          cfg.Executor,
		maxPayload:    cfg.MaxPayloadBytes,
		onFinal:       cfg.OnFinalized,
		inbound:       make(chan Event, inboundQueueDepth),
		votedNotarize: make(map[types.View]types.Hash),
		votedFinalize: make(map[types.View]types.Hash),
		accepted:      make(map[acceptKey]types.Hash),
		timedOut:      make(map[types.View]bool),
	}
	e.restoreOwnVotes()

	startView := cfg.StartView
	if startView == 0 {
		startView = 1
	}
	e.pm = pacemaker.New(cfg.Pacemaker, cfg.Clock, startView, func(v types.View) {
		e.Enqueue(LocalTimeout{View: v})
	})
	return e
}

// restoreOwnVotes reconstructs votedNotarize/votedFinalize from the chain
// store's persisted vote records (spec.md §4.5 recovery step 3), so a
// restarted node never re-votes differently for a view it already voted
// in before crashing (I4/I5 across restarts).
func (e *Engine) restoreOwnVotes() {
	for _, v := range e.store.VotesByAuthor(e.self.PublicKey()) {
		switch v.Kind {
		case types.Notarize:
			e.votedNotarize[v.View] = v.BlockHash
		case types.Finalize:
			e.votedFinalize[v.View] = v.BlockHash
		}
	}
}

// Enqueue pushes ev onto the inbound queue. Safe to call from any
// goroutine (the Broadcast/Sync collaborators' delivery callbacks, the
// pacemaker's clock callback, the RPC handler).
func (e *Engine) Enqueue(ev Event) {
	e.inbound <- ev
}

// Run drains the inbound queue until ctx is cancelled or a Shutdown event
// is processed, or a StorageFailure halts the node (spec.md §7: fatal
// faults stop the reactor rather than proceed on partially-persisted
// state).
func (e *Engine) Run(ctx context.Context) error {
	e.maybeLeaderPropose()
	for {
		select {
		case <-ctx.Done():
			e.pm.Stop()
			return ctx.Err()
		case ev := <-e.inbound:
			if _, ok := ev.(Shutdown); ok {
				e.pm.Stop()
				return e.haltErr
			}
			e.dispatch(ev)
			if e.haltErr != nil {
				e.pm.Stop()
				return e.haltErr
			}
		}
	}
}

// dispatch runs one event to completion, recovering from any panic inside
// a handler the way the teacher's exception.SafeGo guards goroutines — a
// single malformed message must never take the whole reactor down.
func (e *Engine) dispatch(ev Event) {
	defer exception.Recover(fmt.Sprintf("engine dispatch %T", ev))
	switch v := ev.(type) {
	case InboundBlock:
		e.handleBlock(v.Block, v.From)
	case InboundVote:
		e.handleVote(v.Vote)
	case LocalTimeout:
		e.handleTimeout(v.View)
	case StatusQuery:
		snap := e.store.Snapshot(e.pm.CurrentView())
		v.Reply <- snap
	default:
		logx.Warn("ENGINE", fmt.Sprintf("unrecognized event type %T", ev))
	}
}

func (e *Engine) fail(err error) {
	if err == nil {
		return
	}
	if ockerr.KindOf(err).Fatal() {
		logx.Error("ENGINE", "fatal: ", err)
		e.haltErr = err
		return
	}
	logx.Debug("ENGINE", err)
}

// Snapshot is a synchronous read of the frontier. It takes the store's and
// the pacemaker's own locks, and the RPC server calls it directly from its
// handler goroutines.
func (e *Engine) Snapshot() chainstore.SnapshotView {
	return e.store.Snapshot(e.pm.CurrentView())
}

func init() {
	monitoring.InitMetrics()
}

// StartView computes current_view after recovery: highest_qc.view + 1
// (spec.md §4.5). Callers run store.Recover before calling this.
func StartView(store *chainstore.Store) types.View {
	return store.HighestQC().View + 1
}
