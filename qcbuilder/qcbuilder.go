// Package qcbuilder collapses a quorum of validated votes into a single
// aggregated QuorumCertificate (grounds consensus/cert.go's Cert shape and
// consensus/collector.go's threshold math, adapted to call through the
// signer.Signer collaborator instead of a bare BLS call).
package qcbuilder

import (
	"fmt"
	"sort"

	"github.com/mezonai/ockham/signer"
	"github.com/mezonai/ockham/types"
)

// Builder produces QCs from quorums of votes.
type Builder struct {
	committee types.Committee
	signerImpl signer.Signer
}

// New creates a Builder bound to committee (for canonical signer ordering)
// and a Signer (for aggregate/verify_aggregate).
func New(committee types.Committee, s signer.Signer) *Builder {
	return &Builder{committee: committee, signerImpl: s}
}

// Build selects exactly Q signatures — deterministically, lowest
// committee-index first, so QC bytes are canonical across honest nodes
// (spec.md §4.3, P6) — aggregates them, and returns the resulting QC.
// votes must all share (view, kind, blockHash) and votes must number >= Q;
// callers (the Vote Pool's QuorumReached outcome) already guarantee this.
func (b *Builder) Build(view types.View, kind types.VoteKind, blockHash types.Hash, votes []types.Vote) (*types.QuorumCertificate, error) {
	q := b.committee.Quorum()
	if len(votes) < q {
		return nil, fmt.Errorf("qcbuilder: need >= %d votes, got %d", q, len(votes))
	}

	type indexed struct {
		idx  int
		vote types.Vote
	}
	candidates := make([]indexed, 0, len(votes))
	for _, v := range votes {
		if v.View != view || v.Kind != kind || v.BlockHash != blockHash {
			return nil, fmt.Errorf("qcbuilder: vote does not match (view=%d,kind=%s,hash=%s)", view, kind, blockHash)
		}
		idx := b.committee.IndexOf(v.Author)
		if idx < 0 {
			return nil, fmt.Errorf("qcbuilder: vote author not in committee")
		}
		candidates = append(candidates, indexed{idx: idx, vote: v})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].idx < candidates[j].idx })

	chosen := candidates[:q]
	signers := make([]types.PublicKey, q)
	sigs := make([]types.Signature, q)
	for i, c := range chosen {
		signers[i] = c.vote.Author
		sigs[i] = c.vote.Signature
	}

	agg, err := b.signerImpl.Aggregate(sigs)
	if err != nil {
		return nil, fmt.Errorf("qcbuilder: aggregate: %w", err)
	}

	qc := &types.QuorumCertificate{
		View:      view,
		BlockHash: blockHash,
		Kind:      kind,
		Signers:   signers,
		Aggregate: agg,
	}

	if !b.signerImpl.VerifyAggregate(qc.Signers, qc.SigningPreimage(), qc.Aggregate) {
		return nil, fmt.Errorf("qcbuilder: freshly built QC failed self-verification")
	}

	return qc, nil
}

// Verify checks that qc's aggregate signature is valid over its own
// (view, block_hash, kind), signers are a subset of committee, and the
// signer count meets quorum (spec.md §4.5 block validation step).
func Verify(committee types.Committee, s signer.Signer, qc *types.QuorumCertificate) bool {
	if len(qc.Signers) < committee.Quorum() {
		return false
	}
	seen := make(map[string]bool, len(qc.Signers))
	for _, pk := range qc.Signers {
		if !committee.Contains(pk) {
			return false
		}
		key := string(pk)
		if seen[key] {
			return false // I1/spec §3: signers must have no duplicates.
		}
		seen[key] = true
	}
	return s.VerifyAggregate(qc.Signers, qc.SigningPreimage(), qc.Aggregate)
}
