package types

import "fmt"

// VoteKind distinguishes the two ballot kinds Simplex casts per view.
type VoteKind uint8

const (
	// Notarize makes a block canonical-for-its-view.
	Notarize VoteKind = iota
	// Finalize makes a notarized block immutable.
	Finalize
)

func (k VoteKind) String() string {
	switch k {
	case Notarize:
		return "Notarize"
	case Finalize:
		return "Finalize"
	default:
		return fmt.Sprintf("VoteKind(%d)", uint8(k))
	}
}

// DomainTag returns the signing-domain separation tag prepended to the
// signing preimage for votes of this kind (spec §6).
func (k VoteKind) DomainTag() []byte {
	switch k {
	case Notarize:
		return []byte("OCK-V1-NOTARIZE")
	case Finalize:
		return []byte("OCK-V1-FINALIZE")
	default:
		return nil
	}
}

// Vote is a single validator's ballot for (view, block_hash, kind).
type Vote struct {
	View      View
	BlockHash Hash
	Kind      VoteKind
	Author    PublicKey
	Signature Signature
}

// SigningPreimage returns the domain-separated bytes the signer
// collaborator signs and verifies for this vote. It does not include the
// author or signature fields, matching spec §3 ("signature over
// (view, block_hash, kind)").
func (v *Vote) SigningPreimage() []byte {
	var buf []byte
	buf = append(buf, v.Kind.DomainTag()...)
	buf = putUint64(buf, uint64(v.View))
	buf = append(buf, v.BlockHash[:]...)
	buf = append(buf, byte(v.Kind))
	return buf
}

// QuorumCertificate aggregates Q distinct committee signatures over
// (view, block_hash, kind). A QC with BlockHash == DummyHash is a Dummy QC.
type QuorumCertificate struct {
	View      View
	BlockHash Hash
	Kind      VoteKind
	Signers   []PublicKey
	Aggregate Signature
}

// IsDummy reports whether this is a Dummy QC.
func (qc *QuorumCertificate) IsDummy() bool {
	return qc.BlockHash.IsDummy()
}

// SigningPreimage returns the canonical message the aggregate signature
// covers: msg = canonical_bytes(view, block_hash, kind), domain-separated
// by vote kind exactly as individual votes are (spec §4.3/§6).
func (qc *QuorumCertificate) SigningPreimage() []byte {
	v := Vote{View: qc.View, BlockHash: qc.BlockHash, Kind: qc.Kind}
	return v.SigningPreimage()
}

// ZeroQC is the well-defined placeholder QC for genesis: view 0, DummyHash,
// no signers. It lets HighestQC() and FinalizedTip() be well-defined before
// any view completes (SPEC_FULL §4.5 startup bootstrap).
func ZeroQC() QuorumCertificate {
	return QuorumCertificate{View: 0, BlockHash: DummyHash, Kind: Notarize}
}
