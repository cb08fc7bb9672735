package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mezonai/ockham/exception"
	"github.com/mezonai/ockham/logx"
	"github.com/mezonai/ockham/p2p"
	"github.com/mezonai/ockham/types"
)

const syncRequestTimeout = 5 * time.Second

func (e *Engine) broadcastBlock(blk *types.Block) {
	if e.bcast == nil {
		return
	}
	if err := e.bcast.Broadcast(p2p.TopicBlock, types.CanonicalEncodeBlock(blk)); err != nil {
		logx.Debug("ENGINE", "broadcast block failed: ", err)
	}
}

func (e *Engine) broadcastVote(vote types.Vote) {
	if e.bcast == nil {
		return
	}
	if err := e.bcast.Broadcast(p2p.TopicVote, types.CanonicalEncodeVote(&vote)); err != nil {
		logx.Debug("ENGINE", "broadcast vote failed: ", err)
	}
}

// requestSync asks peer for the block identified by hash, off the
// reactor goroutine, and feeds a successful reply back through the
// inbound queue so it is validated exactly like a gossip delivery
// (spec.md §4.5/§7: MissingDependency triggers a sync request; the
// original message stays buffered as an orphan until it resolves).
func (e *Engine) requestSync(hash types.Hash, peer string) {
	if e.sync == nil || peer == "" {
		return
	}
	// corrID ties this request's log lines together across the async
	// round trip; the buffered orphan it resolves is keyed by hash, not
	// corrID, so this is purely for tracing one request among many
	// in-flight ones against the same peer.
	corrID := uuid.NewString()
	exception.SafeGo("engine-sync-request", func() {
		ctx, cancel := context.WithTimeout(context.Background(), syncRequestTimeout)
		defer cancel()

		logx.Debug("ENGINE", "sync request id=", corrID, " hash=", hash.String(), " peer=", peer)
		resp, err := e.sync.Request(ctx, peer, hash[:])
		if err != nil {
			logx.Debug("ENGINE", "sync request id=", corrID, " failed: ", err)
			return
		}
		if len(resp) == 0 {
			return
		}
		blk, err := types.CanonicalDecodeBlock(resp)
		if err != nil {
			logx.Debug("ENGINE", "sync response id=", corrID, " malformed: ", err)
			return
		}
		logx.Debug("ENGINE", "sync request id=", corrID, " resolved hash=", hash.String())
		e.Enqueue(InboundBlock{Block: &blk, From: peer})
	})
}
