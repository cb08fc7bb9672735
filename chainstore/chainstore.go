// Package chainstore is the append-only index of notarized blocks and QCs,
// the finalization frontier, and the orphan buffer for blocks that arrive
// before their parent (grounds store/blockstore.go's GenericBlockStore,
// adapted from a slot-keyed blockstore to a hash/view-keyed one, plus
// original_source/consensus.rs's orphan map and storage.rs's table split).
package chainstore

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/mezonai/ockham/db"
	"github.com/mezonai/ockham/logx"
	"github.com/mezonai/ockham/ockerr"
	"github.com/mezonai/ockham/types"
)

// InsertResult classifies the outcome of InsertBlock.
type InsertResult int

const (
	Inserted InsertResult = iota
	Duplicate
	UnknownParent
)

// orphanTTL bounds how long a buffered orphan waits for its dependency
// before being swept, matching spec.md §7's "buffered with a TTL".
const orphanTTL = 30 * time.Second

type orphanEntry struct {
	block    *types.Block
	buffered time.Time
}

// Store is the chain store: a durable, consistent index of notarized
// blocks and QCs plus the finalization frontier.
type Store struct {
	mu sync.RWMutex

	provider db.DatabaseProvider
	txm      *db.DBTxManager

	currentView   types.View
	finalizedView types.View
	finalizedHash types.Hash
	highestQC     types.QuorumCertificate
	haveHighest   bool

	// preferredView/preferredHash track the last non-dummy Notarize QC's
	// block, the teacher's preferred_block (original_source/consensus.rs):
	// HighestQC can point at a dummy block after a timeout, and a proposer
	// must still extend the real chain, not the dummy.
	preferredView types.View
	preferredHash types.Hash
	havePreferred bool

	// blocks/byView cache the durable content so reads don't round-trip
	// through the provider on the hot validation path.
	blocks map[types.Hash]*types.Block
	byView map[types.View]types.Hash
	qcs    map[types.View]types.QuorumCertificate

	// orphans buffers blocks whose parent has not yet been seen, keyed by
	// the missing parent hash, awaiting sync + replay.
	orphans map[types.Hash][]orphanEntry

	// votes caches every vote this node has persisted (spec.md §6's
	// v:<view>:<author>:<kind> records), so a restarted node can
	// reconstruct last_voted_view per author/kind without re-signing.
	votes map[voteRecordKey]types.Vote
}

type voteRecordKey struct {
	view   types.View
	author string
	kind   types.VoteKind
}

// New opens a chain store backed by provider. It does not load persisted
// state; callers run Recover for that (engine's startup path).
func New(provider db.DatabaseProvider) *Store {
	return &Store{
		provider: provider,
		txm:      db.NewDBTxManager(provider),
		blocks:   make(map[types.Hash]*types.Block),
		byView:   make(map[types.View]types.Hash),
		qcs:      make(map[types.View]types.QuorumCertificate),
		orphans:  make(map[types.Hash][]orphanEntry),
		votes:    make(map[voteRecordKey]types.Vote),
	}
}

// RecordVote persists vote so a restart can reconstruct last_voted_view
// without re-signing (spec.md §6's v:<view>:<author>:<kind> record, the
// durability half of I4/I5).
func (s *Store) RecordVote(vote *types.Vote) error {
	key := voteRecordKey{view: vote.View, author: string(vote.Author), kind: vote.Kind}

	s.mu.RLock()
	_, exists := s.votes[key]
	s.mu.RUnlock()
	if exists {
		return nil
	}

	if err := s.txm.WithBatch(func(batch db.DatabaseBatch) error {
		batch.Put(voteKey(vote.View, vote.Author, vote.Kind), types.CanonicalEncodeVote(vote))
		return nil
	}); err != nil {
		return ockerr.New(ockerr.StorageFailure, fmt.Errorf("record vote view %d: %w", vote.View, err))
	}

	s.mu.Lock()
	s.votes[key] = *vote
	s.mu.Unlock()
	return nil
}

// VotesByAuthor returns every vote cached for author, for startup recovery
// of that author's last_voted_view[Notarize]/last_voted_view[Finalize].
func (s *Store) VotesByAuthor(author types.PublicKey) []types.Vote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Vote, 0)
	for k, v := range s.votes {
		if k.author == string(author) {
			out = append(out, v)
		}
	}
	return out
}

// InsertBlock inserts block if its parent is known (I6), or buffers it as
// an orphan pending sync. Duplicates (by hash) are silent. Durability:
// the write is flushed before this call returns, so a crash never
// retracts an inserted block.
func (s *Store) InsertBlock(block *types.Block) (InsertResult, error) {
	h := block.Hash()

	s.mu.Lock()
	if _, ok := s.blocks[h]; ok {
		s.mu.Unlock()
		return Duplicate, nil
	}
	if !block.ParentHash.IsDummy() {
		if _, ok := s.blocks[block.ParentHash]; !ok {
			s.mu.Unlock()
			return UnknownParent, nil
		}
	}
	s.mu.Unlock()

	if err := s.txm.WithBatch(func(batch db.DatabaseBatch) error {
		batch.Put(blockKey(h), types.CanonicalEncodeBlock(block))
		return nil
	}); err != nil {
		return Inserted, ockerr.New(ockerr.StorageFailure, fmt.Errorf("insert block %s: %w", h, err))
	}

	s.mu.Lock()
	s.blocks[h] = block
	s.byView[block.View] = h
	s.mu.Unlock()

	logx.Debug("CHAINSTORE", "inserted block view=", block.View, " hash=", h.String())
	return Inserted, nil
}

// GetBlock returns the block for hash, or nil if unknown.
func (s *Store) GetBlock(h types.Hash) *types.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blocks[h]
}

// BlockForView returns the notarized block stored for view, if any.
func (s *Store) BlockForView(v types.View) *types.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.byView[v]
	if !ok {
		return nil
	}
	return s.blocks[h]
}

// InsertQC stores qc, idempotently. A Notarize QC is never overwritten by
// a Finalize QC for the same view (both carry the same block_hash once
// finalization follows notarization, but only the Notarize QC is a valid
// `justify` target), and re-insertion of a semantically equivalent QC
// (same view+block_hash, different signer subset) is a silent no-op.
func (s *Store) InsertQC(qc *types.QuorumCertificate) error {
	s.mu.Lock()
	existing, have := s.qcs[qc.View]
	if have && existing.Kind == types.Notarize && qc.Kind != types.Notarize {
		s.mu.Unlock()
		return nil
	}
	if have && existing.BlockHash == qc.BlockHash && existing.Kind == qc.Kind {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	preferNotarize := qc.Kind == types.Notarize && !qc.BlockHash.IsDummy()

	if err := s.txm.WithBatch(func(batch db.DatabaseBatch) error {
		batch.Put(qcKey(qc.View), types.CanonicalEncodeQC(qc))
		if qc.Kind == types.Notarize && (!s.haveHighest || qc.View >= s.highestQC.View) {
			batch.Put(highestQCKey, types.CanonicalEncodeQC(qc))
		}
		if preferNotarize && (!s.havePreferred || qc.View >= s.preferredView) {
			batch.Put(preferredBlockKey, encodeTip(qc.View, qc.BlockHash))
		}
		return nil
	}); err != nil {
		return ockerr.New(ockerr.StorageFailure, fmt.Errorf("insert qc view %d: %w", qc.View, err))
	}

	s.mu.Lock()
	s.qcs[qc.View] = *qc
	if qc.Kind == types.Notarize && (!s.haveHighest || qc.View >= s.highestQC.View) {
		s.highestQC = *qc
		s.haveHighest = true
	}
	if preferNotarize && (!s.havePreferred || qc.View >= s.preferredView) {
		s.preferredView = qc.View
		s.preferredHash = qc.BlockHash
		s.havePreferred = true
	}
	s.mu.Unlock()
	return nil
}

// GetQC returns the stored QC for view, or nil if none.
func (s *Store) GetQC(v types.View) *types.QuorumCertificate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	qc, ok := s.qcs[v]
	if !ok {
		return nil
	}
	cp := qc
	return &cp
}

// HighestQC returns the highest-view Notarize QC observed so far. Before
// any view completes, this is the well-defined genesis ZeroQC.
func (s *Store) HighestQC() types.QuorumCertificate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.haveHighest {
		return types.ZeroQC()
	}
	return s.highestQC
}

// PreferredBlock returns the last non-dummy Notarize QC's block hash, for
// a proposer to extend when HighestQC is a dummy QC (spec.md's Timeout-path:
// "the next proposer builds atop parent = highest non-dummy QC's block").
// Before any real block is notarized, this is the dummy zero hash.
func (s *Store) PreferredBlock() types.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.havePreferred {
		return types.Hash{}
	}
	return s.preferredHash
}

// FinalizedTip returns the finalization frontier.
func (s *Store) FinalizedTip() (types.View, types.Hash) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finalizedView, s.finalizedHash
}

// MarkFinalized atomically advances the finalization frontier to
// (view, hash), refusing to move backward (I7).
func (s *Store) MarkFinalized(view types.View, hash types.Hash) error {
	s.mu.Lock()
	if view < s.finalizedView {
		s.mu.Unlock()
		return nil
	}
	if view == s.finalizedView && s.finalizedHash == hash {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.txm.WithBatch(func(batch db.DatabaseBatch) error {
		batch.Put(finalizedTipKey, encodeTip(view, hash))
		return nil
	}); err != nil {
		return ockerr.New(ockerr.StorageFailure, fmt.Errorf("mark finalized view %d: %w", view, err))
	}

	s.mu.Lock()
	s.finalizedView = view
	s.finalizedHash = hash
	s.mu.Unlock()
	return nil
}

// SnapshotView is a read-only, point-in-time copy of the chain store's
// frontier fields, for the RPC/operator status surface (spec.md §5
// "Shared resources"). It is an explicit struct copy taken under the
// store's lock, not a true MVCC snapshot: the underlying DatabaseProvider
// is used only as a durable KV layer here, not for point-in-time reads.
type SnapshotView struct {
	CurrentView   types.View
	FinalizedView types.View
	FinalizedHash types.Hash
	HighestQC     types.QuorumCertificate
}

// Snapshot takes a SnapshotView. currentView is supplied by the caller
// (the pacemaker owns it; the chain store only mirrors it for reporting).
func (s *Store) Snapshot(currentView types.View) SnapshotView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hq := s.highestQC
	if !s.haveHighest {
		hq = types.ZeroQC()
	}
	return SnapshotView{
		CurrentView:   currentView,
		FinalizedView: s.finalizedView,
		FinalizedHash: s.finalizedHash,
		HighestQC:     hq,
	}
}

// BufferOrphan stashes a block whose parent is not yet known, to be
// replayed once the parent arrives (ground: orphans map +
// on_block_response recursive replay in original_source/consensus.rs).
func (s *Store) BufferOrphan(block *types.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orphans[block.ParentHash] = append(s.orphans[block.ParentHash], orphanEntry{block: block, buffered: time.Now()})
}

// DrainOrphans returns and removes every block buffered on parentHash,
// ordered by view, for the caller to replay through validation.
func (s *Store) DrainOrphans(parentHash types.Hash) []*types.Block {
	s.mu.Lock()
	entries := s.orphans[parentHash]
	delete(s.orphans, parentHash)
	s.mu.Unlock()

	out := make([]*types.Block, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.block)
	}
	// Insertion sort by view: orphan sets are small (bounded by how many
	// blocks can reference one missing parent before sync resolves it).
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].View > out[j].View; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// SweepExpiredOrphans drops buffered orphans older than orphanTTL,
// returning how many were dropped.
func (s *Store) SweepExpiredOrphans() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-orphanTTL)
	dropped := 0
	for parent, entries := range s.orphans {
		kept := entries[:0]
		for _, e := range entries {
			if e.buffered.Before(cutoff) {
				dropped++
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(s.orphans, parent)
		} else {
			s.orphans[parent] = kept
		}
	}
	return dropped
}

func encodeTip(view types.View, hash types.Hash) []byte {
	buf := make([]byte, 8+types.HashSize)
	binary.LittleEndian.PutUint64(buf, uint64(view))
	copy(buf[8:], hash[:])
	return buf
}

func decodeTip(b []byte) (types.View, types.Hash, error) {
	if len(b) != 8+types.HashSize {
		return 0, types.Hash{}, fmt.Errorf("chainstore: malformed finalized tip record")
	}
	v := types.View(binary.LittleEndian.Uint64(b[:8]))
	h, err := types.HashFromBytes(b[8:])
	return v, h, err
}

// Recover reloads the finalized tip, highest QC, and every block/QC for
// views in (finalized_tip.view, highest_qc.view] from the provider,
// matching spec.md §4.5 "Recovery on startup".
func (s *Store) Recover() error {
	tipBytes, err := s.provider.Get(finalizedTipKey)
	if err != nil {
		return ockerr.New(ockerr.StorageFailure, err)
	}
	if tipBytes != nil {
		v, h, err := decodeTip(tipBytes)
		if err != nil {
			return ockerr.New(ockerr.StorageFailure, err)
		}
		s.mu.Lock()
		s.finalizedView = v
		s.finalizedHash = h
		s.mu.Unlock()
	}

	hqBytes, err := s.provider.Get(highestQCKey)
	if err != nil {
		return ockerr.New(ockerr.StorageFailure, err)
	}
	if hqBytes != nil {
		hq, err := types.CanonicalDecodeQC(hqBytes)
		if err != nil {
			return ockerr.New(ockerr.StorageFailure, err)
		}
		s.mu.Lock()
		s.highestQC = hq
		s.haveHighest = true
		s.mu.Unlock()
	}

	prefBytes, err := s.provider.Get(preferredBlockKey)
	if err != nil {
		return ockerr.New(ockerr.StorageFailure, err)
	}
	if prefBytes != nil {
		v, h, err := decodeTip(prefBytes)
		if err != nil {
			return ockerr.New(ockerr.StorageFailure, err)
		}
		s.mu.Lock()
		s.preferredView = v
		s.preferredHash = h
		s.havePreferred = true
		s.mu.Unlock()
	}

	if iterable, ok := s.provider.(db.IterableProvider); ok {
		if err := iterable.IteratePrefix([]byte("b:"), func(_, value []byte) bool {
			blk, err := types.CanonicalDecodeBlock(value)
			if err != nil {
				return true
			}
			h := blk.Hash()
			s.mu.Lock()
			s.blocks[h] = &blk
			s.byView[blk.View] = h
			s.mu.Unlock()
			return true
		}); err != nil {
			return ockerr.New(ockerr.StorageFailure, err)
		}
		if err := iterable.IteratePrefix([]byte("q:"), func(_, value []byte) bool {
			qc, err := types.CanonicalDecodeQC(value)
			if err != nil {
				return true
			}
			s.mu.Lock()
			s.qcs[qc.View] = qc
			s.mu.Unlock()
			return true
		}); err != nil {
			return ockerr.New(ockerr.StorageFailure, err)
		}
		if err := iterable.IteratePrefix([]byte("v:"), func(_, value []byte) bool {
			vote, err := types.CanonicalDecodeVote(value)
			if err != nil {
				return true
			}
			s.mu.Lock()
			s.votes[voteRecordKey{view: vote.View, author: string(vote.Author), kind: vote.Kind}] = vote
			s.mu.Unlock()
			return true
		}); err != nil {
			return ockerr.New(ockerr.StorageFailure, err)
		}
	}

	return nil
}
