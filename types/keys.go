package types

import "github.com/mezonai/ockham/common"

// PublicKey is an opaque fixed-width byte string produced by the signer
// collaborator (BLS12-381 compressed public key).
type PublicKey []byte

// String renders the key as base58 for logs and RPC responses.
func (pk PublicKey) String() string {
	return common.EncodeBytesToBase58(pk)
}

// Equal compares two public keys for byte equality.
func (pk PublicKey) Equal(other PublicKey) bool {
	if len(pk) != len(other) {
		return false
	}
	for i := range pk {
		if pk[i] != other[i] {
			return false
		}
	}
	return true
}

// Signature is an opaque fixed-width byte string produced by the signer
// collaborator. Aggregate signatures use the same type as individual ones.
type Signature []byte

// String renders the signature as base58.
func (s Signature) String() string {
	return common.EncodeBytesToBase58(s)
}

// Committee is the fixed, ordered list of validator public keys that
// defines the protocol's leader schedule and quorum threshold (I1).
type Committee []PublicKey

// N returns the committee size.
func (c Committee) N() int {
	return len(c)
}

// Quorum returns Q = floor(2n/3) + 1.
func (c Committee) Quorum() int {
	return QuorumFor(len(c))
}

// QuorumFor computes Q = floor(2n/3) + 1 for a committee of size n.
func QuorumFor(n int) int {
	return (2*n)/3 + 1
}

// Leader returns the deterministic round-robin leader for view v:
// committee[v mod n].
func (c Committee) Leader(v View) PublicKey {
	if len(c) == 0 {
		return nil
	}
	return c[uint64(v)%uint64(len(c))]
}

// IndexOf returns the committee index of pk, or -1 if pk is not a member.
func (c Committee) IndexOf(pk PublicKey) int {
	for i, m := range c {
		if m.Equal(pk) {
			return i
		}
	}
	return -1
}

// Contains reports whether pk is a committee member.
func (c Committee) Contains(pk PublicKey) bool {
	return c.IndexOf(pk) >= 0
}

// Hash returns a content digest of the ordered member list, used by Block
// to bind itself to the committee it was proposed under.
func (c Committee) Hash() Hash {
	var buf []byte
	buf = putUint64(buf, uint64(len(c)))
	for _, pk := range c {
		buf = putBytes(buf, pk)
	}
	return SumCanonical(buf)
}
