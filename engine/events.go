package engine

import (
	"github.com/mezonai/ockham/chainstore"
	"github.com/mezonai/ockham/types"
)

// Event is anything the reactor's single inbound queue can carry. The
// queue is the only place engine state changes, so every handler runs to
// completion before the next event is dequeued (spec.md §5's
// single-threaded cooperative model).
type Event interface{}

// InboundBlock arrives from the Broadcast collaborator or from orphan
// replay; From is the peer id it came from, empty for locally-replayed
// orphans.
type InboundBlock struct {
	Block *types.Block
	From  string
}

// InboundVote arrives from the Broadcast collaborator.
type InboundVote struct {
	Vote types.Vote
}

// LocalTimeout is raised by the pacemaker's clock callback when a view's
// timer expires.
type LocalTimeout struct {
	View types.View
}

// StatusQuery reads the chain store/pacemaker frontier from inside the
// reactor loop, which sends one snapshot on Reply. The RPC server does not
// use it; it calls Engine.Snapshot.
type StatusQuery struct {
	Reply chan chainstore.SnapshotView
}

// Shutdown asks Run to drain and return.
type Shutdown struct{}
