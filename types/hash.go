// Package types owns the Ockham wire data model: the content-addressed
// Block, the Vote and QuorumCertificate types, and the canonical byte
// encoding used for both hashing and signing.
package types

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"github.com/mezonai/ockham/common"
)

// HashSize is the fixed digest width used throughout the protocol.
const HashSize = 32

// Hash is a 32-byte content digest.
type Hash [HashSize]byte

// DummyHash is the all-zero sentinel standing in for "no real block",
// used by the Notarize-for-dummy timeout path.
var DummyHash = Hash{}

// IsDummy reports whether h is the dummy sentinel.
func (h Hash) IsDummy() bool {
	return h == DummyHash
}

// String renders the hash as base58, matching the display convention the
// rest of the node uses for public keys and other digests.
func (h Hash) String() string {
	return common.EncodeBytesToBase58(h[:])
}

// Bytes returns a defensive copy of the underlying digest bytes.
func (h Hash) Bytes() []byte {
	out := make([]byte, HashSize)
	copy(out, h[:])
	return out
}

// HashFromBytes builds a Hash from a slice, failing if the length is wrong.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, errors.New("types: hash must be 32 bytes")
	}
	copy(h[:], b)
	return h, nil
}

// SumCanonical hashes a canonical-encoded payload with SHA-256, per
// spec §6 ("Signatures over SHA-256(canonical encoding)").
func SumCanonical(b []byte) Hash {
	sum := sha256.Sum256(b)
	return Hash(sum)
}

// View is a monotonically non-decreasing protocol round number. View 0 is
// the genesis anchor and has no proposer.
type View uint64

// putUint64 appends a fixed-width little-endian uint64, the primitive the
// canonical encoder builds every integer field from.
func putUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func getUint64(b []byte) (uint64, []byte, error) {
	if len(b) < 8 {
		return 0, nil, errors.New("types: truncated uint64")
	}
	return binary.LittleEndian.Uint64(b[:8]), b[8:], nil
}

// putBytes appends a length-prefixed byte string (uint32 LE length prefix).
func putBytes(buf []byte, v []byte) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(v)))
	buf = append(buf, tmp[:]...)
	return append(buf, v...)
}

func getBytes(b []byte) ([]byte, []byte, error) {
	if len(b) < 4 {
		return nil, nil, errors.New("types: truncated length prefix")
	}
	n := binary.LittleEndian.Uint32(b[:4])
	b = b[4:]
	if uint64(len(b)) < uint64(n) {
		return nil, nil, errors.New("types: truncated byte string")
	}
	return b[:n], b[n:], nil
}
