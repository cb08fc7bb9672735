package signer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mezonai/ockham/types"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	s, err := GenerateBLSSigner()
	require.NoError(t, err)

	msg := []byte("view-3-notarize")
	sig, err := s.Sign(msg)
	require.NoError(t, err)

	assert.True(t, s.Verify(s.PublicKey(), msg, sig))
	assert.False(t, s.Verify(s.PublicKey(), []byte("different message"), sig))
}

func TestAggregateVerifyRoundTrip(t *testing.T) {
	const n = 4
	signers := make([]*BLSSigner, n)
	for i := 0; i < n; i++ {
		s, err := GenerateBLSSigner()
		require.NoError(t, err)
		signers[i] = s
	}

	msg := []byte("view-7-finalize")
	var sigs []types.Signature
	var pks []types.PublicKey
	for i := 0; i < n; i++ {
		sig, err := signers[i].Sign(msg)
		require.NoError(t, err)
		sigs = append(sigs, sig)
		pks = append(pks, signers[i].PublicKey())
	}

	agg, err := signers[0].Aggregate(sigs)
	require.NoError(t, err)

	assert.True(t, signers[0].VerifyAggregate(pks, msg, agg))
}

func TestVerifyAggregateRejectsWrongSignerSet(t *testing.T) {
	a, err := GenerateBLSSigner()
	require.NoError(t, err)
	b, err := GenerateBLSSigner()
	require.NoError(t, err)
	c, err := GenerateBLSSigner()
	require.NoError(t, err)

	msg := []byte("view-1-notarize")
	sigA, err := a.Sign(msg)
	require.NoError(t, err)
	sigB, err := b.Sign(msg)
	require.NoError(t, err)

	agg, err := a.Aggregate([]types.Signature{sigA, sigB})
	require.NoError(t, err)

	// Aggregate was formed from {a, b}; verifying against {a, c} must fail.
	assert.False(t, a.VerifyAggregate([]types.PublicKey{a.PublicKey(), c.PublicKey()}, msg, agg))
}
