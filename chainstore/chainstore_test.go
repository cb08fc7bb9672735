package chainstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mezonai/ockham/db"
	"github.com/mezonai/ockham/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(db.NewMemoryProvider())
}

func TestInsertBlockDuplicateIsSilent(t *testing.T) {
	s := newTestStore(t)
	blk := &types.Block{Author: types.PublicKey("leader"), View: 1, ParentHash: types.DummyHash, Justify: types.ZeroQC()}

	res, err := s.InsertBlock(blk)
	require.NoError(t, err)
	assert.Equal(t, Inserted, res)

	res2, err := s.InsertBlock(blk)
	require.NoError(t, err)
	assert.Equal(t, Duplicate, res2)
}

func TestInsertBlockUnknownParentBuffersAsOrphan(t *testing.T) {
	s := newTestStore(t)
	missingParent := types.SumCanonical([]byte("absent"))
	child := &types.Block{Author: types.PublicKey("leader"), View: 2, ParentHash: missingParent, Justify: types.ZeroQC()}

	res, err := s.InsertBlock(child)
	require.NoError(t, err)
	assert.Equal(t, UnknownParent, res)

	s.BufferOrphan(child)
	assert.Empty(t, s.DrainOrphans(types.SumCanonical([]byte("other"))))

	drained := s.DrainOrphans(missingParent)
	require.Len(t, drained, 1)
	assert.Equal(t, child.Hash(), drained[0].Hash())

	// Draining removes the buffered entries.
	assert.Empty(t, s.DrainOrphans(missingParent))
}

func TestInsertQCTracksHighest(t *testing.T) {
	s := newTestStore(t)
	assert.Equal(t, types.ZeroQC(), s.HighestQC())

	qc1 := &types.QuorumCertificate{View: 1, BlockHash: types.SumCanonical([]byte("b1")), Kind: types.Notarize}
	require.NoError(t, s.InsertQC(qc1))
	assert.Equal(t, *qc1, s.HighestQC())

	qc2 := &types.QuorumCertificate{View: 2, BlockHash: types.SumCanonical([]byte("b2")), Kind: types.Notarize}
	require.NoError(t, s.InsertQC(qc2))
	assert.Equal(t, *qc2, s.HighestQC())
}

func TestFinalizeQCDoesNotOverwriteNotarizeQC(t *testing.T) {
	s := newTestStore(t)
	bh := types.SumCanonical([]byte("b"))
	notar := &types.QuorumCertificate{View: 3, BlockHash: bh, Kind: types.Notarize}
	require.NoError(t, s.InsertQC(notar))

	final := &types.QuorumCertificate{View: 3, BlockHash: bh, Kind: types.Finalize}
	require.NoError(t, s.InsertQC(final))

	got := s.GetQC(3)
	require.NotNil(t, got)
	assert.Equal(t, types.Notarize, got.Kind)
}

func TestMarkFinalizedRefusesToMoveBackward(t *testing.T) {
	s := newTestStore(t)
	h5 := types.SumCanonical([]byte("v5"))
	require.NoError(t, s.MarkFinalized(5, h5))

	require.NoError(t, s.MarkFinalized(3, types.SumCanonical([]byte("v3"))))

	v, h := s.FinalizedTip()
	assert.Equal(t, types.View(5), v)
	assert.Equal(t, h5, h)
}

func TestRecoverReloadsPersistedState(t *testing.T) {
	provider := db.NewMemoryProvider()
	s1 := New(provider)

	blk := &types.Block{Author: types.PublicKey("leader"), View: 1, ParentHash: types.DummyHash, Justify: types.ZeroQC()}
	_, err := s1.InsertBlock(blk)
	require.NoError(t, err)

	qc := &types.QuorumCertificate{View: 1, BlockHash: blk.Hash(), Kind: types.Notarize}
	require.NoError(t, s1.InsertQC(qc))
	require.NoError(t, s1.MarkFinalized(1, blk.Hash()))

	s2 := New(provider)
	require.NoError(t, s2.Recover())

	assert.Equal(t, blk.Hash(), s2.GetBlock(blk.Hash()).Hash())
	assert.Equal(t, *qc, s2.HighestQC())
	v, h := s2.FinalizedTip()
	assert.Equal(t, types.View(1), v)
	assert.Equal(t, blk.Hash(), h)
}

func TestRecordVoteSurvivesRecoverAndDedupes(t *testing.T) {
	provider := db.NewMemoryProvider()
	s1 := New(provider)

	author := types.PublicKey("validator-0")
	vote := &types.Vote{View: 4, BlockHash: types.SumCanonical([]byte("b4")), Kind: types.Notarize, Author: author, Signature: types.Signature("sig")}
	require.NoError(t, s1.RecordVote(vote))
	require.NoError(t, s1.RecordVote(vote)) // second record of the same vote is a no-op

	s2 := New(provider)
	require.NoError(t, s2.Recover())

	votes := s2.VotesByAuthor(author)
	require.Len(t, votes, 1)
	assert.Equal(t, *vote, votes[0])
}
