package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mezonai/ockham/signer"
	"github.com/mezonai/ockham/types"
)

type fixture struct {
	committee types.Committee
	signers   []*signer.BLSSigner
}

func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	f := &fixture{}
	for i := 0; i < n; i++ {
		s, err := signer.GenerateBLSSigner()
		require.NoError(t, err)
		f.signers = append(f.signers, s)
		f.committee = append(f.committee, s.PublicKey())
	}
	return f
}

func (f *fixture) vote(t *testing.T, idx int, view types.View, kind types.VoteKind, hash types.Hash) types.Vote {
	t.Helper()
	v := types.Vote{View: view, BlockHash: hash, Kind: kind, Author: f.signers[idx].PublicKey()}
	sig, err := f.signers[idx].Sign(v.SigningPreimage())
	require.NoError(t, err)
	v.Signature = sig
	return v
}

func TestIngestQuorumReachedFiresOnce(t *testing.T) {
	f := newFixture(t, 4)
	p := New(f.committee, f.signers[0], 64)
	h := types.SumCanonical([]byte("b"))

	var lastOutcome Outcome
	for i := 0; i < 3; i++ { // Q for n=4 is 3
		outcome, votes := p.Ingest(f.vote(t, i, 1, types.Notarize, h))
		lastOutcome = outcome
		if outcome == QuorumReached {
			assert.Len(t, votes, 3)
		}
	}
	assert.Equal(t, QuorumReached, lastOutcome)

	// A fourth vote for the same key must not re-trigger QuorumReached.
	outcome, _ := p.Ingest(f.vote(t, 3, 1, types.Notarize, h))
	assert.Equal(t, Accepted, outcome)
}

func TestIngestDuplicateVote(t *testing.T) {
	f := newFixture(t, 4)
	p := New(f.committee, f.signers[0], 64)
	h := types.SumCanonical([]byte("b"))
	v := f.vote(t, 0, 1, types.Notarize, h)

	outcome1, _ := p.Ingest(v)
	assert.Equal(t, Accepted, outcome1)

	outcome2, _ := p.Ingest(v)
	assert.Equal(t, Duplicate, outcome2)
}

func TestIngestEquivocationKeepsFirstVote(t *testing.T) {
	f := newFixture(t, 4)
	p := New(f.committee, f.signers[0], 64)
	h1 := types.SumCanonical([]byte("b1"))
	h2 := types.SumCanonical([]byte("b2"))

	first := f.vote(t, 0, 1, types.Notarize, h1)
	second := f.vote(t, 0, 1, types.Notarize, h2)

	outcome1, _ := p.Ingest(first)
	require.Equal(t, Accepted, outcome1)

	outcome2, _ := p.Ingest(second)
	assert.Equal(t, Equivocation, outcome2)

	evidence := p.Evidence().All()
	require.Len(t, evidence, 1)
	assert.Equal(t, first, evidence[0][0])
	assert.Equal(t, second, evidence[0][1])
}

func TestIngestStaleVoteRejected(t *testing.T) {
	f := newFixture(t, 4)
	p := New(f.committee, f.signers[0], 64)
	p.SetFinalizedView(5)

	outcome, _ := p.Ingest(f.vote(t, 0, 3, types.Notarize, types.SumCanonical([]byte("b"))))
	assert.Equal(t, Stale, outcome)
}

func TestIngestInvalidSignatureRejected(t *testing.T) {
	f := newFixture(t, 4)
	p := New(f.committee, f.signers[0], 64)
	h := types.SumCanonical([]byte("b"))

	v := types.Vote{View: 1, BlockHash: h, Kind: types.Notarize, Author: f.signers[0].PublicKey(), Signature: types.Signature("garbage")}
	outcome, _ := p.Ingest(v)
	assert.Equal(t, InvalidSignature, outcome)
}

func TestGCDiscardsOldEntries(t *testing.T) {
	f := newFixture(t, 4)
	p := New(f.committee, f.signers[0], 2)
	h := types.SumCanonical([]byte("b"))

	p.Ingest(f.vote(t, 0, 1, types.Notarize, h))
	p.SetFinalizedView(10)
	p.GC()

	// view 1 <= finalizedView(10) - K(2) = 8, so it must have been collected.
	p.mu.Lock()
	_, stillThere := p.byAuthor[authorKey{view: 1, kind: types.Notarize, auth: string(f.signers[0].PublicKey())}]
	p.mu.Unlock()
	assert.False(t, stillThere)
}
