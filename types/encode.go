package types

import "errors"

// CanonicalEncode/CanonicalDecode implement spec §6's wire format: fixed-
// width little-endian integers, length-prefixed byte strings, fields in
// declaration order. This is the only encoding used for hashing and
// signing; it is hand-rolled because it is a protocol-defined exact-byte
// layout, not a general serialization concern any library targets.

func appendQC(buf []byte, qc *QuorumCertificate) []byte {
	buf = putUint64(buf, uint64(qc.View))
	buf = append(buf, qc.BlockHash[:]...)
	buf = append(buf, byte(qc.Kind))
	buf = putUint64(buf, uint64(len(qc.Signers)))
	for _, s := range qc.Signers {
		buf = putBytes(buf, s)
	}
	buf = putBytes(buf, qc.Aggregate)
	return buf
}

func readQC(b []byte) (QuorumCertificate, []byte, error) {
	var qc QuorumCertificate
	v, b, err := getUint64(b)
	if err != nil {
		return qc, nil, err
	}
	qc.View = View(v)
	if len(b) < HashSize {
		return qc, nil, errors.New("types: truncated qc block_hash")
	}
	copy(qc.BlockHash[:], b[:HashSize])
	b = b[HashSize:]
	if len(b) < 1 {
		return qc, nil, errors.New("types: truncated qc kind")
	}
	qc.Kind = VoteKind(b[0])
	b = b[1:]
	n, b, err := getUint64(b)
	if err != nil {
		return qc, nil, err
	}
	if n > 0 {
		qc.Signers = make([]PublicKey, 0, n)
	}
	for i := uint64(0); i < n; i++ {
		var s []byte
		s, b, err = getBytes(b)
		if err != nil {
			return qc, nil, err
		}
		qc.Signers = append(qc.Signers, append(PublicKey(nil), s...))
	}
	agg, b, err := getBytes(b)
	if err != nil {
		return qc, nil, err
	}
	qc.Aggregate = append(Signature(nil), agg...)
	return qc, b, nil
}

// CanonicalEncodeQC serializes a QuorumCertificate.
func CanonicalEncodeQC(qc *QuorumCertificate) []byte {
	return appendQC(nil, qc)
}

// CanonicalDecodeQC deserializes a QuorumCertificate.
func CanonicalDecodeQC(b []byte) (QuorumCertificate, error) {
	qc, rest, err := readQC(b)
	if err != nil {
		return qc, err
	}
	if len(rest) != 0 {
		return qc, errors.New("types: trailing bytes after qc")
	}
	return qc, nil
}

// CanonicalEncodeVote serializes a Vote, including author and signature
// (the on-wire form; SigningPreimage is the narrower signed subset).
func CanonicalEncodeVote(v *Vote) []byte {
	var buf []byte
	buf = putUint64(buf, uint64(v.View))
	buf = append(buf, v.BlockHash[:]...)
	buf = append(buf, byte(v.Kind))
	buf = putBytes(buf, v.Author)
	buf = putBytes(buf, v.Signature)
	return buf
}

// CanonicalDecodeVote deserializes a Vote.
func CanonicalDecodeVote(b []byte) (Vote, error) {
	var v Vote
	view, b, err := getUint64(b)
	if err != nil {
		return v, err
	}
	v.View = View(view)
	if len(b) < HashSize {
		return v, errors.New("types: truncated vote block_hash")
	}
	copy(v.BlockHash[:], b[:HashSize])
	b = b[HashSize:]
	if len(b) < 1 {
		return v, errors.New("types: truncated vote kind")
	}
	v.Kind = VoteKind(b[0])
	b = b[1:]
	author, b, err := getBytes(b)
	if err != nil {
		return v, err
	}
	v.Author = append(PublicKey(nil), author...)
	sig, b, err := getBytes(b)
	if err != nil {
		return v, err
	}
	v.Signature = append(Signature(nil), sig...)
	if len(b) != 0 {
		return v, errors.New("types: trailing bytes after vote")
	}
	return v, nil
}

// CanonicalEncodeBlock serializes a Block, including its signature and
// raw payload (the on-wire form; canonicalBody is the narrower hashed
// subset, which commits to PayloadDigest rather than Payload itself).
func CanonicalEncodeBlock(blk *Block) []byte {
	buf := blk.canonicalBody()
	buf = putBytes(buf, blk.Signature)
	buf = putBytes(buf, blk.Payload)
	return buf
}

// CanonicalDecodeBlock deserializes a Block.
func CanonicalDecodeBlock(b []byte) (Block, error) {
	var blk Block
	author, b, err := getBytes(b)
	if err != nil {
		return blk, err
	}
	blk.Author = append(PublicKey(nil), author...)
	view, b, err := getUint64(b)
	if err != nil {
		return blk, err
	}
	blk.View = View(view)
	if len(b) < HashSize {
		return blk, errors.New("types: truncated block parent_hash")
	}
	copy(blk.ParentHash[:], b[:HashSize])
	b = b[HashSize:]
	justify, b, err := readQC(b)
	if err != nil {
		return blk, err
	}
	blk.Justify = justify
	if len(b) < HashSize*3 {
		return blk, errors.New("types: truncated block digests")
	}
	copy(blk.PayloadDigest[:], b[:HashSize])
	b = b[HashSize:]
	copy(blk.StateRoot[:], b[:HashSize])
	b = b[HashSize:]
	copy(blk.CommitteeHash[:], b[:HashSize])
	b = b[HashSize:]
	sig, b, err := getBytes(b)
	if err != nil {
		return blk, err
	}
	blk.Signature = append(Signature(nil), sig...)
	payload, b, err := getBytes(b)
	if err != nil {
		return blk, err
	}
	blk.Payload = append([]byte(nil), payload...)
	if len(b) != 0 {
		return blk, errors.New("types: trailing bytes after block")
	}
	return blk, nil
}
