package engine

import (
	"github.com/mezonai/ockham/ockerr"
	"github.com/mezonai/ockham/types"
)

// maybeLeaderPropose proposes for the pacemaker's current view if this
// node is that view's leader, it has not already proposed for it, and
// the view's timer has not already fired (spec.md §4.1: a leader that is
// slow to propose loses its chance the instant the timeout fires — it
// does not propose retroactively).
func (e *Engine) maybeLeaderPropose() {
	if e.suppressPropose {
		return
	}
	view := e.pm.CurrentView()
	if e.timedOut[view] {
		return
	}
	if e.proposedView >= view {
		return
	}
	if !e.committee.Leader(view).Equal(e.self.PublicKey()) {
		return
	}
	e.propose(view)
}

// propose builds, signs, and broadcasts this node's block for view, then
// feeds it back through handleBlock so the leader validates and votes on
// its own proposal exactly like any other inbound block.
func (e *Engine) propose(view types.View) {
	hq := e.store.HighestQC()
	parentHash := hq.BlockHash
	if hq.IsDummy() {
		// The highest QC notarized a dummy block for a timed-out view; the
		// real chain is still anchored at the preferred block.
		parentHash = e.store.PreferredBlock()
	}

	var parentStateRoot types.Hash
	if !parentHash.IsDummy() {
		if parent := e.store.GetBlock(parentHash); parent != nil {
			parentStateRoot = parent.StateRoot
		}
	}

	payload := e.mpool.PullPayload(e.maxPayload)
	stateRoot, err := e.exec.Execute(parentStateRoot, payload)
	if err != nil {
		e.fail(ockerr.New(ockerr.InvalidMessage, err))
		return
	}

	blk := &types.Block{
		Author:        e.self.PublicKey(),
		View:          view,
		ParentHash:    parentHash,
		Justify:       hq,
		PayloadDigest: types.SumCanonical(payload),
		StateRoot:     stateRoot,
		CommitteeHash: e.commHash,
		Payload:       payload,
	}
	sig, err := e.self.Sign(blk.SigningPreimage())
	if err != nil {
		e.fail(ockerr.New(ockerr.InvalidMessage, err))
		return
	}
	blk.Signature = sig

	e.proposedView = view
	e.broadcastBlock(blk)
	e.handleBlock(blk, "")
}
