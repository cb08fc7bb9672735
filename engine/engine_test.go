package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mezonai/ockham/chainstore"
	"github.com/mezonai/ockham/clock"
	"github.com/mezonai/ockham/db"
	"github.com/mezonai/ockham/execution"
	"github.com/mezonai/ockham/mempool"
	"github.com/mezonai/ockham/p2p"
	"github.com/mezonai/ockham/pacemaker"
	"github.com/mezonai/ockham/pool"
	"github.com/mezonai/ockham/qcbuilder"
	"github.com/mezonai/ockham/signer"
	"github.com/mezonai/ockham/types"
)

// network is the test double for the whole peer set: it fans a
// Broadcast call out to every other node's inbound queue, dropping
// anything above maxView so a synchronous cascade in a zero-latency test
// harness terminates instead of proposing forever (spec.md never floors
// the view rate; only network delay does, which this harness otherwise
// has none of).
type network struct {
	nodes   []*Engine
	maxView types.View
}

type netBroadcaster struct {
	net     *network
	selfIdx int
}

func (b *netBroadcaster) Broadcast(topic string, payload []byte) error {
	switch topic {
	case p2p.TopicBlock:
		blk, err := types.CanonicalDecodeBlock(payload)
		if err != nil {
			return nil
		}
		if blk.View > b.net.maxView {
			return nil
		}
		for i, n := range b.net.nodes {
			if i == b.selfIdx {
				continue
			}
			n.Enqueue(InboundBlock{Block: &blk, From: ""})
		}
	case p2p.TopicVote:
		v, err := types.CanonicalDecodeVote(payload)
		if err != nil {
			return nil
		}
		if v.View > b.net.maxView {
			return nil
		}
		for i, n := range b.net.nodes {
			if i == b.selfIdx {
				continue
			}
			n.Enqueue(InboundVote{Vote: v})
		}
	}
	return nil
}

// drainAll runs every node's inbound queue to quiescence, round-robin, so
// a cascade that spans several nodes (propose -> vote -> QC -> propose)
// fully settles before assertions run.
func drainAll(t *testing.T, nodes []*Engine) {
	t.Helper()
	for rounds := 0; rounds < 10000; rounds++ {
		progressed := false
		for _, n := range nodes {
			select {
			case ev := <-n.inbound:
				n.dispatch(ev)
				progressed = true
			default:
			}
		}
		if !progressed {
			return
		}
	}
	t.Fatal("drainAll: did not reach quiescence")
}

func newTestNetwork(t *testing.T, n int, maxView types.View, record func(idx int, view types.View, hash types.Hash)) ([]*Engine, *clock.Fake, *network) {
	t.Helper()

	committee := make(types.Committee, n)
	signers := make([]*signer.BLSSigner, n)
	for i := 0; i < n; i++ {
		s, err := signer.GenerateBLSSigner()
		require.NoError(t, err)
		signers[i] = s
		committee[i] = s.PublicKey()
	}

	fc := clock.NewFake()
	net := &network{maxView: maxView}
	nodes := make([]*Engine, n)
	for i := 0; i < n; i++ {
		idx := i
		store := chainstore.New(db.NewMemoryProvider())
		cfg := Config{
			Self:      signers[i],
			Committee: committee,
			Store:     store,
			Pool:      pool.New(committee, signers[i], 64),
			QCBuilder: qcbuilder.New(committee, signers[i]),
			Clock:     fc,
			Broadcast: &netBroadcaster{net: net, selfIdx: idx},
			Mempool:   mempool.NewInMemory(),
			Executor:  execution.Deterministic{},
			Pacemaker: pacemaker.Config{BaseTimeout: 1 * time.Second, CapPow: 4},
			StartView: 1,
			MaxPayloadBytes: 256,
			OnFinalized: func(view types.View, hash types.Hash) {
				if record != nil {
					record(idx, view, hash)
				}
			},
		}
		nodes[i] = New(cfg)
	}
	net.nodes = nodes
	return nodes, fc, net
}

func kickOffGenesis(nodes []*Engine) {
	for _, n := range nodes {
		n.maybeLeaderPropose()
	}
}

func TestHappyPathFinalizesConsecutiveViews(t *testing.T) {
	type rec struct{ idx int; view types.View; hash types.Hash }
	var finals []rec
	nodes, _, _ := newTestNetwork(t, 4, 5, func(idx int, view types.View, hash types.Hash) {
		finals = append(finals, rec{idx, view, hash})
	})

	kickOffGenesis(nodes)
	drainAll(t, nodes)

	byView := make(map[types.View]map[int]types.Hash)
	for _, f := range finals {
		if byView[f.view] == nil {
			byView[f.view] = make(map[int]types.Hash)
		}
		byView[f.view][f.idx] = f.hash
	}

	for v := types.View(1); v <= 5; v++ {
		perNode, ok := byView[v]
		require.True(t, ok, "view %d never finalized by any node", v)
		assert.Len(t, perNode, 4, "view %d should finalize at all 4 nodes", v)
		var first types.Hash
		for _, h := range perNode {
			if first.IsDummy() {
				first = h
			}
			assert.Equal(t, first, h, "nodes disagree on the finalized hash for view %d", v)
		}
	}

	for _, n := range nodes {
		fv, _ := n.store.FinalizedTip()
		assert.GreaterOrEqual(t, fv, types.View(5))
	}
}

func TestCrashedLeaderProducesDummyQCAndSkipsFinalization(t *testing.T) {
	type rec struct{ idx int; view types.View }
	var finals []rec
	nodes, fc, _ := newTestNetwork(t, 4, 4, func(idx int, view types.View, hash types.Hash) {
		finals = append(finals, rec{idx, view})
	})

	// Simulate the view-3 leader crashing: it never gets its propose turn.
	leaderIdx := nodes[0].committee.IndexOf(nodes[0].committee.Leader(3))
	nodes[leaderIdx].SuppressPropose(true)

	// Views 1-2 run normally first.
	netAtView := func() types.View { return nodes[0].pm.CurrentView() }
	kickOffGenesis(nodes)
	drainAll(t, nodes)
	require.GreaterOrEqual(t, netAtView(), types.View(3))

	// No block arrives for view 3 anywhere; every node's timer fires.
	fc.Advance(2 * time.Second)
	drainAll(t, nodes)

	qc3 := nodes[0].store.GetQC(3)
	require.NotNil(t, qc3)
	assert.True(t, qc3.IsDummy(), "view 3 should notarize the dummy block after the leader's silence")

	for _, f := range finals {
		assert.NotEqual(t, types.View(3), f.view, "a dummy-notarized view must never be finalized")
	}

	// The network keeps going past the dummy view once a live leader takes
	// view 4, which must extend the last real block (view 2) rather than the
	// dummy, so its finalization skips straight from view 2 to view 4.
	fv, _ := nodes[0].store.FinalizedTip()
	assert.GreaterOrEqual(t, fv, types.View(4))

	var sawView4 bool
	for _, f := range finals {
		if f.view == types.View(4) {
			sawView4 = true
		}
	}
	assert.True(t, sawView4, "view 4 must finalize after the dummy-notarized view 3 is skipped")
}

func TestStaleVoteRejectedAfterFinalization(t *testing.T) {
	nodes, _, _ := newTestNetwork(t, 4, 2, func(int, types.View, types.Hash) {})
	kickOffGenesis(nodes)
	drainAll(t, nodes)

	fv, fh := nodes[0].store.FinalizedTip()
	require.GreaterOrEqual(t, fv, types.View(1))
	_ = fh

	staleVote := types.Vote{View: 1, BlockHash: types.SumCanonical([]byte("irrelevant")), Kind: types.Notarize, Author: nodes[1].self.PublicKey()}
	sig, err := nodes[1].self.Sign(staleVote.SigningPreimage())
	require.NoError(t, err)
	staleVote.Signature = sig

	outcome, _ := nodes[0].votePool.Ingest(staleVote)
	assert.Equal(t, pool.Stale, outcome)
}

func TestEquivocatingVoteIsRecordedAsEvidenceNotAccepted(t *testing.T) {
	nodes, _, _ := newTestNetwork(t, 4, 1, func(int, types.View, types.Hash) {})

	author := nodes[1].self
	v1 := types.Vote{View: 1, BlockHash: types.SumCanonical([]byte("a")), Kind: types.Notarize, Author: author.PublicKey()}
	sig1, err := author.Sign(v1.SigningPreimage())
	require.NoError(t, err)
	v1.Signature = sig1

	v2 := types.Vote{View: 1, BlockHash: types.SumCanonical([]byte("b")), Kind: types.Notarize, Author: author.PublicKey()}
	sig2, err := author.Sign(v2.SigningPreimage())
	require.NoError(t, err)
	v2.Signature = sig2

	o1, _ := nodes[0].votePool.Ingest(v1)
	require.Equal(t, pool.Accepted, o1)
	o2, _ := nodes[0].votePool.Ingest(v2)
	assert.Equal(t, pool.Equivocation, o2)
	assert.Len(t, nodes[0].votePool.Evidence().All(), 1)
}

func TestBlockWithForgedStateRootIsDropped(t *testing.T) {
	nodes, _, _ := newTestNetwork(t, 4, 1, func(int, types.View, types.Hash) {})

	leader := nodes[0].committee.Leader(1)
	var leaderNode *Engine
	for _, n := range nodes {
		if n.self.PublicKey().Equal(leader) {
			leaderNode = n
		}
	}
	require.NotNil(t, leaderNode)

	payload := []byte("payload")
	blk := &types.Block{
		Author:        leader,
		View:          1,
		ParentHash:    types.DummyHash,
		Justify:       types.ZeroQC(),
		PayloadDigest: types.SumCanonical(payload),
		StateRoot:     types.SumCanonical([]byte("forged")),
		CommitteeHash: leaderNode.commHash,
		Payload:       payload,
	}
	sig, err := leaderNode.self.Sign(blk.SigningPreimage())
	require.NoError(t, err)
	blk.Signature = sig

	follower := nodes[1]
	follower.handleBlock(blk, "")

	assert.Nil(t, follower.store.GetBlock(blk.Hash()), "a block whose state_root does not match execution output must not be inserted")
	_, voted := follower.votedNotarize[1]
	assert.False(t, voted, "a forged state_root must not earn a Notarize vote")
}

func TestRestartRecoversFrontierAndRefusesToEquivocate(t *testing.T) {
	provider := db.NewMemoryProvider()
	store1 := chainstore.New(provider)

	committee := make(types.Committee, 4)
	signers := make([]*signer.BLSSigner, 4)
	for i := 0; i < 4; i++ {
		s, err := signer.GenerateBLSSigner()
		require.NoError(t, err)
		signers[i] = s
		committee[i] = s.PublicKey()
	}

	fc := clock.NewFake()
	e1 := New(Config{
		Self: signers[0], Committee: committee, Store: store1,
		Pool: pool.New(committee, signers[0], 64), QCBuilder: qcbuilder.New(committee, signers[0]),
		Clock: fc, Broadcast: &noopBroadcaster{}, Mempool: mempool.NewInMemory(), Executor: execution.Deterministic{},
		Pacemaker: pacemaker.Config{BaseTimeout: time.Second, CapPow: 4}, StartView: 1, MaxPayloadBytes: 64,
	})

	// Cast a Notarize vote for a locally-known view without a quorum ever
	// forming (single-node test: nothing else to restart against).
	e1.castVote(1, types.SumCanonical([]byte("view1")), types.Notarize)

	store2 := chainstore.New(provider)
	require.NoError(t, store2.Recover())
	e2 := New(Config{
		Self: signers[0], Committee: committee, Store: store2,
		Pool: pool.New(committee, signers[0], 64), QCBuilder: qcbuilder.New(committee, signers[0]),
		Clock: clock.NewFake(), Broadcast: &noopBroadcaster{}, Mempool: mempool.NewInMemory(), Executor: execution.Deterministic{},
		Pacemaker: pacemaker.Config{BaseTimeout: time.Second, CapPow: 4}, StartView: StartView(store2), MaxPayloadBytes: 64,
	})

	assert.Equal(t, types.SumCanonical([]byte("view1")), e2.votedNotarize[1], "restart must reconstruct last_voted_view from persisted votes")

	// Trying to vote differently for view 1 after restart must not happen:
	// the engine's own bookkeeping already reflects the prior vote, so a
	// second distinct block for view 1 is refused by the accepted-map/vote
	// guard rather than silently re-signed.
	_, already := e2.votedNotarize[1]
	assert.True(t, already)
}

// forgedBlock builds a block for view extending leader's current highest
// QC, signed by leader, with a genuinely correct state_root so it passes
// full validation rather than being dropped before it can earn a vote.
func forgedBlock(t *testing.T, leader *Engine, view types.View, payload []byte) *types.Block {
	t.Helper()
	hq := leader.store.HighestQC()
	parentHash := hq.BlockHash
	var parentStateRoot types.Hash
	if !parentHash.IsDummy() {
		parent := leader.store.GetBlock(parentHash)
		require.NotNil(t, parent)
		parentStateRoot = parent.StateRoot
	}
	stateRoot, err := execution.Deterministic{}.Execute(parentStateRoot, payload)
	require.NoError(t, err)

	blk := &types.Block{
		Author:        leader.self.PublicKey(),
		View:          view,
		ParentHash:    parentHash,
		Justify:       hq,
		PayloadDigest: types.SumCanonical(payload),
		StateRoot:     stateRoot,
		CommitteeHash: leader.commHash,
		Payload:       payload,
	}
	sig, err := leader.self.Sign(blk.SigningPreimage())
	require.NoError(t, err)
	blk.Signature = sig
	return blk
}

func TestEquivocatingLeaderSplitVoteTimesOutToDummyQC(t *testing.T) {
	var finalViews []types.View
	nodes, fc, _ := newTestNetwork(t, 4, 4, func(_ int, view types.View, _ types.Hash) {
		finalViews = append(finalViews, view)
	})

	leaderIdx := nodes[0].committee.IndexOf(nodes[0].committee.Leader(2))
	nodes[leaderIdx].SuppressPropose(true)

	kickOffGenesis(nodes)
	drainAll(t, nodes)
	require.GreaterOrEqual(t, nodes[0].pm.CurrentView(), types.View(2))

	leader := nodes[leaderIdx]
	blkA := forgedBlock(t, leader, 2, []byte("branch-a"))
	blkB := forgedBlock(t, leader, 2, []byte("branch-b"))
	require.NotEqual(t, blkA.Hash(), blkB.Hash())

	// The equivocating leader's two blocks reach disjoint halves of the
	// committee directly, bypassing the normal broadcast path.
	nodes[0].handleBlock(blkA, "")
	nodes[1].handleBlock(blkA, "")
	nodes[2].handleBlock(blkB, "")
	nodes[3].handleBlock(blkB, "")
	drainAll(t, nodes)

	assert.Nil(t, nodes[0].store.GetQC(2), "neither equivocating branch alone can reach quorum in a 2-2 split")

	// Every node's view-2 timer fires with no quorum ever having formed.
	fc.Advance(2 * time.Second)
	drainAll(t, nodes)

	qc2 := nodes[0].store.GetQC(2)
	require.NotNil(t, qc2, "the view must resolve to a dummy QC once the split vote times out")
	assert.True(t, qc2.IsDummy())

	for _, v := range finalViews {
		assert.NotEqual(t, types.View(2), v, "view 2 must never finalize after an equivocating leader split the vote")
	}

	require.GreaterOrEqual(t, nodes[0].pm.CurrentView(), types.View(3), "the network must move past the dummy-notarized view")
}

// TestSplitNotarizeCannotFinalizeConflictingBlocks covers spec.md's split
// finalization race: two notarize sets for the same view differing on
// block_hash can only arise from a Byzantine double vote, and quorum
// intersection caps it at one real QC ever forming.
func TestSplitNotarizeCannotFinalizeConflictingBlocks(t *testing.T) {
	nodes, _, _ := newTestNetwork(t, 4, 1, func(int, types.View, types.Hash) {})

	hashA := types.SumCanonical([]byte("branch-a"))
	hashB := types.SumCanonical([]byte("branch-b"))

	vote := func(idx int, hash types.Hash) types.Vote {
		author := nodes[idx].self
		v := types.Vote{View: 2, BlockHash: hash, Kind: types.Notarize, Author: author.PublicKey()}
		sig, err := author.Sign(v.SigningPreimage())
		require.NoError(t, err)
		v.Signature = sig
		return v
	}

	votePool := nodes[0].votePool

	// Nodes 0,1,2 notarize branch A; quorum (3 of 4) forms on it.
	for i := 0; i < 3; i++ {
		outcome, votes := votePool.Ingest(vote(i, hashA))
		if i < 2 {
			assert.Equal(t, pool.Accepted, outcome)
		} else {
			require.Equal(t, pool.QuorumReached, outcome)
			assert.Len(t, votes, 3)
		}
	}

	// A Byzantine double vote from node 2 (already counted for A) plus
	// node 3 attempts to assemble a conflicting quorum for branch B; by
	// quorum intersection at n=4 this needs an honest signer to
	// equivocate, which the Vote Pool refuses to count twice.
	outcome, _ := votePool.Ingest(vote(2, hashB))
	assert.Equal(t, pool.Equivocation, outcome)
	outcome, _ = votePool.Ingest(vote(3, hashB))
	assert.Equal(t, pool.Accepted, outcome, "a single honest vote for the conflicting branch is not a quorum")

	assert.Len(t, votePool.Evidence().All(), 1, "node 2's double vote must be recorded as evidence, not silently accepted")
}

type noopBroadcaster struct{}

func (noopBroadcaster) Broadcast(topic string, payload []byte) error { return nil }
