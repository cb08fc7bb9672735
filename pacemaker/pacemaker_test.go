package pacemaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mezonai/ockham/clock"
	"github.com/mezonai/ockham/types"
)

func TestTimeoutFiresAfterDelta(t *testing.T) {
	fc := clock.NewFake()
	var fired []types.View
	cfg := Config{BaseTimeout: 1 * time.Second, CapPow: 4}
	p := New(cfg, fc, 1, func(v types.View) { fired = append(fired, v) })

	fc.Advance(500 * time.Millisecond)
	assert.Empty(t, fired)

	fc.Advance(600 * time.Millisecond)
	assert.Equal(t, []types.View{1}, fired)
	_ = p
}

func TestOnQCAdvancesViewAndResetsTimer(t *testing.T) {
	fc := clock.NewFake()
	var fired []types.View
	cfg := Config{BaseTimeout: 1 * time.Second, CapPow: 4}
	p := New(cfg, fc, 1, func(v types.View) { fired = append(fired, v) })

	qc := &types.QuorumCertificate{View: 1, BlockHash: types.SumCanonical([]byte("b")), Kind: types.Notarize}
	p.OnQC(qc)
	assert.Equal(t, types.View(2), p.CurrentView())

	// The old view-1 timer must have been cancelled; only the new view-2
	// timer should eventually fire, reporting view 2.
	fc.Advance(2 * time.Second)
	assert.Equal(t, []types.View{2}, fired)
}

func TestDummyQCIncrementsConsecutiveTimeoutsAndGrowsDelta(t *testing.T) {
	fc := clock.NewFake()
	var fired []types.View
	cfg := Config{BaseTimeout: 1 * time.Second, CapPow: 4}
	p := New(cfg, fc, 1, func(v types.View) { fired = append(fired, v) })

	dummyQC := &types.QuorumCertificate{View: 1, BlockHash: types.DummyHash, Kind: types.Notarize}
	p.OnQC(dummyQC) // view -> 2, consecutive_timeouts -> 1, delta(2) should be 2s now

	fc.Advance(1500 * time.Millisecond)
	assert.Empty(t, fired, "backed-off timer must not fire at the un-backed-off delta")

	fc.Advance(1 * time.Second)
	assert.Equal(t, []types.View{2}, fired)
}

func TestOnTimeoutIgnoresStaleView(t *testing.T) {
	fc := clock.NewFake()
	cfg := Config{BaseTimeout: 1 * time.Second, CapPow: 4}
	p := New(cfg, fc, 5, func(v types.View) {})
	assert.False(t, p.OnTimeout(4))
	assert.True(t, p.OnTimeout(5))
}
