package types

// Block is the content-addressed unit of the chain: hash =
// H(canonical serialization excluding the hash field).
type Block struct {
	Author      PublicKey
	View        View
	ParentHash  Hash
	Justify     QuorumCertificate
	PayloadDigest Hash
	StateRoot   Hash

	// CommitteeHash binds the block to the committee list it was proposed
	// under (supplementing the distilled spec from original_source's
	// block.committee_hash): a fixed-committee consistency check, not
	// dynamic reconfiguration, consistent with I1.
	CommitteeHash Hash

	// Signature is the author's signature over Hash(), carried alongside
	// the content-addressed payload rather than folded into it.
	Signature Signature

	// Payload is the raw payload bytes PayloadDigest commits to. It rides
	// the wire alongside the block (not folded into Hash(): the hash binds
	// only PayloadDigest, so Payload can be re-verified against it) so a
	// receiving node can actually execute it and check StateRoot, rather
	// than trusting the proposer's claim (spec.md §4.5's execution check).
	Payload []byte
}

// canonicalBody encodes every hash-bearing field in declaration order,
// excluding the block's own hash (which does not exist as a stored field;
// it is always recomputed) and excluding Signature (I2: the hash binds
// author, view, parent_hash, justify, payload_digest, state_root — the
// signature is produced over the hash, not folded into it).
func (b *Block) canonicalBody() []byte {
	var buf []byte
	buf = putBytes(buf, b.Author)
	buf = putUint64(buf, uint64(b.View))
	buf = append(buf, b.ParentHash[:]...)
	buf = appendQC(buf, &b.Justify)
	buf = append(buf, b.PayloadDigest[:]...)
	buf = append(buf, b.StateRoot[:]...)
	buf = append(buf, b.CommitteeHash[:]...)
	return buf
}

// Hash computes the block's content-addressed digest (I2).
func (b *Block) Hash() Hash {
	return SumCanonical(b.canonicalBody())
}

// SigningPreimage returns the bytes the proposer's signature covers.
func (b *Block) SigningPreimage() []byte {
	h := b.Hash()
	return h[:]
}
