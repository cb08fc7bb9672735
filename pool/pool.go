// Package pool is the Vote Pool: a deduplicated per-(view, kind,
// block_hash) vote accumulator that fires a quorum event exactly once per
// key, plus equivocation detection (grounds alpenglow/pool/slot_state.go's
// per-slot vote maps, simplified from five Alpenglow vote kinds down to
// Simplex's two, and consensus/collector.go's Q=2f+1 threshold arithmetic).
package pool

import (
	"sync"

	"github.com/mezonai/ockham/signer"
	"github.com/mezonai/ockham/types"
)

// Outcome classifies the result of Ingest.
type Outcome int

const (
	Accepted Outcome = iota
	Duplicate
	Equivocation
	Stale
	InvalidSignature
	QuorumReached
)

type voteKey struct {
	view types.View
	kind types.VoteKind
	hash types.Hash
}

type authorKey struct {
	view types.View
	kind types.VoteKind
	auth string
}

// EvidencePool stores equivocation pairs, read-only to the core beyond
// logging at warn (ground: original_source/evidence_pool.rs, within the
// "no slashing protocol" Non-goal: the core never acts on these beyond
// exposing them).
type EvidencePool struct {
	mu    sync.RWMutex
	pairs map[authorKey][2]types.Vote
}

func newEvidencePool() *EvidencePool {
	return &EvidencePool{pairs: make(map[authorKey][2]types.Vote)}
}

func (e *EvidencePool) record(first, second types.Vote) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pairs[authorKey{view: first.View, kind: first.Kind, auth: string(first.Author)}] = [2]types.Vote{first, second}
}

// All returns every stored equivocation pair, for an operator/RPC to
// inspect.
func (e *EvidencePool) All() [][2]types.Vote {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([][2]types.Vote, 0, len(e.pairs))
	for _, p := range e.pairs {
		out = append(out, p)
	}
	return out
}

// Pool is the Vote Pool.
type Pool struct {
	mu sync.Mutex

	committee types.Committee
	verifier  signer.Signer
	retention types.View

	byKey    map[voteKey]map[string]types.Vote // voteKey -> author string -> vote
	quorumed map[voteKey]bool
	byAuthor map[authorKey]types.Vote // first-observed vote per (view, kind, author)

	finalizedView types.View
	evidence      *EvidencePool
}

// New creates a Vote Pool. retention is K, the GC horizon (default 64 per
// spec.md §4.2/§9 open question (b)); verifier checks each vote's
// signature against the committee key for its author.
func New(committee types.Committee, verifier signer.Signer, retention types.View) *Pool {
	if retention == 0 {
		retention = 64
	}
	return &Pool{
		committee: committee,
		verifier:  verifier,
		retention: retention,
		byKey:     make(map[voteKey]map[string]types.Vote),
		quorumed:  make(map[voteKey]bool),
		byAuthor:  make(map[authorKey]types.Vote),
		evidence:  newEvidencePool(),
	}
}

// Evidence returns the pool's EvidencePool.
func (p *Pool) Evidence() *EvidencePool {
	return p.evidence
}

// SetFinalizedView updates the pool's view of the finalization frontier,
// used for Stale classification and GC.
func (p *Pool) SetFinalizedView(v types.View) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v > p.finalizedView {
		p.finalizedView = v
	}
}

// Ingest validates and absorbs vote, returning its outcome and — only
// when outcome is QuorumReached — the full set of votes behind the
// crossed threshold.
func (p *Pool) Ingest(vote types.Vote) (Outcome, []types.Vote) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if vote.View <= p.finalizedView {
		return Stale, nil
	}

	if !p.committee.Contains(vote.Author) {
		return InvalidSignature, nil
	}
	if !p.verifier.Verify(vote.Author, vote.SigningPreimage(), vote.Signature) {
		return InvalidSignature, nil
	}

	ak := authorKey{view: vote.View, kind: vote.Kind, auth: string(vote.Author)}
	if prior, ok := p.byAuthor[ak]; ok {
		if prior.BlockHash == vote.BlockHash {
			return Duplicate, nil
		}
		// A real vote that never reached quorum yields to this view's
		// dummy certificate once the author's own timeout fires; that is
		// not equivocation, since no second vote for a competing real
		// block is ever counted towards a quorum.
		if !(vote.BlockHash == types.DummyHash && !prior.BlockHash.IsDummy()) {
			p.evidence.record(prior, vote)
			return Equivocation, nil
		}
	}
	p.byAuthor[ak] = vote

	vk := voteKey{view: vote.View, kind: vote.Kind, hash: vote.BlockHash}
	set, ok := p.byKey[vk]
	if !ok {
		set = make(map[string]types.Vote)
		p.byKey[vk] = set
	}
	set[string(vote.Author)] = vote

	q := p.committee.Quorum()
	if len(set) >= q && !p.quorumed[vk] {
		p.quorumed[vk] = true
		votes := make([]types.Vote, 0, len(set))
		for _, v := range set {
			votes = append(votes, v)
		}
		return QuorumReached, votes
	}

	return Accepted, nil
}

// GC discards every entry for view <= finalizedView - K.
func (p *Pool) GC() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finalizedView < p.retention {
		return
	}
	cutoff := p.finalizedView - p.retention

	for k := range p.byKey {
		if k.view <= cutoff {
			delete(p.byKey, k)
			delete(p.quorumed, k)
		}
	}
	for k := range p.byAuthor {
		if k.view <= cutoff {
			delete(p.byAuthor, k)
		}
	}
}
