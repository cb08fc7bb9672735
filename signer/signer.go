// Package signer is the Signer collaborator (spec.md §6): sign/verify over
// a single key and aggregate/verify_aggregate over a committee, backed by
// BLS12-381 (grounds consensus/vote.go's Sign/VerifySignature and
// alpenglow/votor.go's use of bls.SecretKey across the reactor).
package signer

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/herumi/bls-eth-go-binary/bls"

	"github.com/mezonai/ockham/types"
)

var initOnce sync.Once

// Init initializes the underlying BLS library for the Ethereum BLS12-381
// curve. Safe to call more than once; only the first call takes effect.
func Init() error {
	var err error
	initOnce.Do(func() {
		err = bls.Init(bls.BLS12_381)
		if err != nil {
			return
		}
		err = bls.SetETHmode(bls.EthModeDraft07)
	})
	return err
}

// Signer is the collaborator interface the core calls through: sign over
// its own key, verify a single signature, and aggregate/verify-aggregate
// over a set of committee public keys (spec.md §6).
type Signer interface {
	PublicKey() types.PublicKey
	Sign(msg []byte) (types.Signature, error)
	Verify(pk types.PublicKey, msg []byte, sig types.Signature) bool
	Aggregate(sigs []types.Signature) (types.Signature, error)
	VerifyAggregate(pks []types.PublicKey, msg []byte, agg types.Signature) bool
}

// BLSSigner is the production Signer, holding one validator's secret key.
type BLSSigner struct {
	secret bls.SecretKey
	public types.PublicKey
}

// NewBLSSigner wraps an already-generated BLS secret key.
func NewBLSSigner(secret bls.SecretKey) (*BLSSigner, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	pub := secret.GetPublicKey()
	return &BLSSigner{secret: secret, public: types.PublicKey(pub.Serialize())}, nil
}

// GenerateBLSSigner creates a fresh random keypair, for tests and
// bootstrap tooling (ground: pack repos generate throwaway BLS keys for
// test fixtures the same way).
func GenerateBLSSigner() (*BLSSigner, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	var sk bls.SecretKey
	sk.SetByCSPRNG()
	return NewBLSSigner(sk)
}

// LoadBLSSigner reads a hex-encoded BLS secret key from path (the
// OCKHAM_GENESIS-adjacent privkey file named in the validator's config
// entry) and wraps it as a Signer.
func LoadBLSSigner(path string) (*BLSSigner, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("signer: read private key file: %w", err)
	}
	var sk bls.SecretKey
	if err := sk.SetHexString(strings.TrimSpace(string(raw))); err != nil {
		return nil, fmt.Errorf("signer: parse private key: %w", err)
	}
	return NewBLSSigner(sk)
}

func (s *BLSSigner) PublicKey() types.PublicKey {
	return s.public
}

func (s *BLSSigner) Sign(msg []byte) (types.Signature, error) {
	sig := s.secret.SignByte(msg)
	if sig == nil {
		return nil, fmt.Errorf("signer: sign failed")
	}
	return types.Signature(sig.Serialize()), nil
}

func (s *BLSSigner) Verify(pk types.PublicKey, msg []byte, sig types.Signature) bool {
	var blsPub bls.PublicKey
	if err := blsPub.Deserialize(pk); err != nil {
		return false
	}
	var blsSig bls.Sign
	if err := blsSig.Deserialize(sig); err != nil {
		return false
	}
	return blsSig.VerifyByte(&blsPub, msg)
}

func (s *BLSSigner) Aggregate(sigs []types.Signature) (types.Signature, error) {
	if len(sigs) == 0 {
		return nil, fmt.Errorf("signer: cannot aggregate zero signatures")
	}
	blsSigs := make([]bls.Sign, len(sigs))
	for i, raw := range sigs {
		if err := blsSigs[i].Deserialize(raw); err != nil {
			return nil, fmt.Errorf("signer: deserialize signature %d: %w", i, err)
		}
	}
	var agg bls.Sign
	agg.Aggregate(blsSigs)
	return types.Signature(agg.Serialize()), nil
}

func (s *BLSSigner) VerifyAggregate(pks []types.PublicKey, msg []byte, agg types.Signature) bool {
	if len(pks) == 0 {
		return false
	}
	blsPubs := make([]bls.PublicKey, len(pks))
	for i, raw := range pks {
		if err := blsPubs[i].Deserialize(raw); err != nil {
			return false
		}
	}
	var blsAgg bls.Sign
	if err := blsAgg.Deserialize(agg); err != nil {
		return false
	}
	return blsAgg.FastAggregateVerify(blsPubs, msg)
}
