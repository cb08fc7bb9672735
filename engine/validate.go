package engine

import (
	"fmt"

	"github.com/mezonai/ockham/chainstore"
	"github.com/mezonai/ockham/logx"
	"github.com/mezonai/ockham/monitoring"
	"github.com/mezonai/ockham/ockerr"
	"github.com/mezonai/ockham/qcbuilder"
	"github.com/mezonai/ockham/types"
)

// isGenesisJustify reports whether qc is the well-defined bootstrap
// placeholder (no real quorum ever certified it, so qcbuilder.Verify
// cannot be asked to check it).
func isGenesisJustify(qc *types.QuorumCertificate) bool {
	z := types.ZeroQC()
	return qc.View == z.View && qc.BlockHash == z.BlockHash && qc.Kind == z.Kind && len(qc.Signers) == 0
}

// handleBlock runs block through the full validation criterion of
// spec.md §4.5 (committee membership, leader identity, signature,
// justify verification, parent presence, I1/I4), absorbs it into the
// chain store on success, replays any orphans it unblocks, and casts this
// node's Notarize vote if it has not already voted in this view.
func (e *Engine) handleBlock(blk *types.Block, from string) {
	finalizedView, _ := e.store.FinalizedTip()
	if blk.View <= finalizedView {
		return // Stale
	}
	// A block below current_view normally lags the frontier and is ignored,
	// unless we already hold the QC that certified it: that QC can only
	// have reached us because some higher QC justifies a block chaining
	// back through it, so this block is a sync response filling that gap
	// rather than a stale proposal.
	if blk.View < e.pm.CurrentView() && e.store.GetQC(blk.View) == nil {
		return // Stale
	}

	if !e.committee.Contains(blk.Author) {
		logx.Debug("ENGINE", "block from non-committee author dropped")
		return
	}
	if blk.CommitteeHash != e.commHash {
		logx.Debug("ENGINE", "block with mismatched committee_hash dropped")
		return
	}
	if !e.committee.Leader(blk.View).Equal(blk.Author) {
		logx.Debug("ENGINE", "block from non-leader author dropped, view=", blk.View)
		return
	}
	if !e.self.Verify(blk.Author, blk.SigningPreimage(), blk.Signature) {
		logx.Debug("ENGINE", "block with invalid signature dropped")
		return
	}

	h := blk.Hash()
	key := acceptKey{view: blk.View, author: string(blk.Author)}
	if prior, ok := e.accepted[key]; ok {
		if prior != h {
			monitoring.IncreaseEquivocationCount()
			logx.Warn("ENGINE", "equivocating block from ", blk.Author.String(), " at view ", blk.View)
		}
		return
	}

	if !(isGenesisJustify(&blk.Justify) && blk.View == types.View(1)) {
		if blk.Justify.View >= blk.View {
			logx.Debug("ENGINE", "block justify not strictly earlier than block view, dropped")
			return
		}
		if !qcbuilder.Verify(e.committee, e.self, &blk.Justify) {
			logx.Debug("ENGINE", "block with unverifiable justify dropped")
			return
		}
	}
	// A non-dummy justify names a real QC'd block, which must be this
	// block's parent. A dummy justify carries no block to extend, so the
	// proposer instead extends the preferred (last real notarized) block;
	// parent_hash is unconstrained by justify in that case.
	if !blk.Justify.IsDummy() && blk.Justify.BlockHash != blk.ParentHash {
		logx.Debug("ENGINE", "block parent_hash does not match justify target, dropped")
		return
	}

	var parentStateRoot types.Hash
	if !blk.ParentHash.IsDummy() {
		parent := e.store.GetBlock(blk.ParentHash)
		if parent == nil {
			e.store.BufferOrphan(blk)
			e.requestSync(blk.ParentHash, from)
			return
		}
		parentStateRoot = parent.StateRoot
	}

	if types.SumCanonical(blk.Payload) != blk.PayloadDigest {
		logx.Debug("ENGINE", "block payload does not match payload_digest, dropped")
		return
	}
	stateRoot, err := e.exec.Execute(parentStateRoot, blk.Payload)
	if err != nil {
		e.fail(ockerr.New(ockerr.InvalidMessage, err))
		return
	}
	if stateRoot != blk.StateRoot {
		logx.Debug("ENGINE", "block state_root does not match execution output, dropped")
		return
	}

	res, err := e.store.InsertBlock(blk)
	if err != nil {
		e.fail(err)
		return
	}
	switch res {
	case chainstore.UnknownParent:
		// Lost a race against a concurrent orphan sweep; buffer again.
		e.store.BufferOrphan(blk)
		e.requestSync(blk.ParentHash, from)
		return
	case chainstore.Duplicate:
		// Already known by hash (e.g. replayed orphan); fall through to
		// vote casting, which is itself idempotent.
	case chainstore.Inserted:
		logx.Debug("ENGINE", fmt.Sprintf("accepted block view=%d author=%s hash=%s", blk.View, blk.Author.String(), h.String()))
	}
	e.accepted[key] = h

	for _, child := range e.store.DrainOrphans(h) {
		e.handleBlock(child, from)
	}

	if _, voted := e.votedNotarize[blk.View]; !voted {
		e.castVote(blk.View, h, types.Notarize)
	}
}
