package p2p

import "context"

// Broadcaster is the Broadcast collaborator (spec.md §6): best-effort
// eventual delivery to all live peers, no ordering, no dedup guarantee
// from the transport — the core itself absorbs duplicates (I4/I5, Vote
// Pool dedup).
type Broadcaster interface {
	Broadcast(topic string, payload []byte) error
}

// PointToPoint is the sync collaborator (spec.md §6): a direct
// request/response exchange with one peer, used to answer
// MissingDependency by asking for a block by hash. May fail with a
// transient timeout error.
type PointToPoint interface {
	Request(ctx context.Context, peer string, payload []byte) ([]byte, error)
}

// Topic names used by the Broadcaster for the two outbound message
// kinds the reactor emits.
const (
	TopicBlock = "ockham/block/v1"
	TopicVote  = "ockham/vote/v1"
)
