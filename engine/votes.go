package engine

import (
	"github.com/mezonai/ockham/logx"
	"github.com/mezonai/ockham/monitoring"
	"github.com/mezonai/ockham/ockerr"
	"github.com/mezonai/ockham/pool"
	"github.com/mezonai/ockham/types"
)

// castVote signs, persists, broadcasts, and locally absorbs this node's
// own vote for (view, hash, kind). Recording happens before broadcast so
// a crash between the two never leaves this node able to equivocate on
// restart (I4/I5 durability).
func (e *Engine) castVote(view types.View, hash types.Hash, kind types.VoteKind) {
	vote := types.Vote{View: view, BlockHash: hash, Kind: kind, Author: e.self.PublicKey()}
	sig, err := e.self.Sign(vote.SigningPreimage())
	if err != nil {
		logx.Error("ENGINE", "failed to sign own vote: ", err)
		return
	}
	vote.Signature = sig

	if err := e.store.RecordVote(&vote); err != nil {
		e.fail(err)
		return
	}
	switch kind {
	case types.Notarize:
		e.votedNotarize[view] = hash
	case types.Finalize:
		e.votedFinalize[view] = hash
	}

	e.broadcastVote(vote)
	e.handleVote(vote)
}

// handleVote absorbs vote through the Vote Pool and, on QuorumReached,
// builds and stores the resulting QC.
func (e *Engine) handleVote(vote types.Vote) {
	outcome, votes := e.votePool.Ingest(vote)
	switch outcome {
	case pool.Stale, pool.Duplicate, pool.Accepted:
		return
	case pool.InvalidSignature:
		logx.Debug("ENGINE", "dropped vote with invalid signature/author, view=", vote.View)
		return
	case pool.Equivocation:
		monitoring.IncreaseEquivocationCount()
		logx.Warn("ENGINE", "equivocating vote from ", vote.Author.String(), " at view ", vote.View)
		return
	case pool.QuorumReached:
		qc, err := e.qcBuilder.Build(vote.View, vote.Kind, vote.BlockHash, votes)
		if err != nil {
			e.fail(ockerr.New(ockerr.InvalidMessage, err))
			return
		}
		if err := e.store.InsertQC(qc); err != nil {
			e.fail(err)
			return
		}
		e.onQCFormed(qc)
	}
}

// onQCFormed reacts to a freshly stored QC: a Notarize QC advances the
// pacemaker and, for a real (non-dummy) block, triggers this node's
// Finalize vote; a Finalize QC walks the chain backward, marking every
// newly-certain ancestor finalized (spec.md §4.1/§4.4).
func (e *Engine) onQCFormed(qc *types.QuorumCertificate) {
	switch qc.Kind {
	case types.Notarize:
		if qc.IsDummy() {
			monitoring.IncreaseDummyQCCount()
		}
		monitoring.IncreaseNotarizeQCCount()
		e.pm.OnQC(qc)
		e.maybeLeaderPropose()

		if !qc.IsDummy() {
			if _, voted := e.votedFinalize[qc.View]; !voted {
				e.castVote(qc.View, qc.BlockHash, types.Finalize)
			}
		}
	case types.Finalize:
		monitoring.IncreaseFinalizeQCCount()
		e.finalizeChain(qc.View, qc.BlockHash)
	}
}

// finalizeChain marks hash and every ancestor with a strictly smaller
// view finalized, stopping at the existing finalization frontier or the
// dummy sentinel that terminates the chain before any real block has
// ever been notarized (I7: finalization only ever advances). A dummy
// view in the middle of the chain leaves no gap here: propose() always
// extends the preferred (last real) block past a timeout, so ancestors
// walk straight through a skipped dummy view.
func (e *Engine) finalizeChain(view types.View, hash types.Hash) {
	curView, _ := e.store.FinalizedTip()
	if view <= curView {
		return
	}

	var chain []*types.Block
	h := hash
	for !h.IsDummy() {
		blk := e.store.GetBlock(h)
		if blk == nil || blk.View <= curView {
			break
		}
		chain = append(chain, blk)
		h = blk.ParentHash
	}

	for i := len(chain) - 1; i >= 0; i-- {
		blk := chain[i]
		bh := blk.Hash()
		if err := e.store.MarkFinalized(blk.View, bh); err != nil {
			e.fail(err)
			return
		}
		e.votePool.SetFinalizedView(blk.View)
		monitoring.SetFinalizedView(uint64(blk.View))
		if e.onFinal != nil {
			e.onFinal(blk.View, bh)
		}
	}
	e.votePool.GC()
}
