package chainstore

import (
	"fmt"

	"github.com/mezonai/ockham/types"
)

// Persisted key layout, exactly as spec.md §6.

func blockKey(h types.Hash) []byte {
	return []byte(fmt.Sprintf("b:%s", h.String()))
}

func qcKey(v types.View) []byte {
	return []byte(fmt.Sprintf("q:%d", uint64(v)))
}

func voteKey(v types.View, author types.PublicKey, kind types.VoteKind) []byte {
	return []byte(fmt.Sprintf("v:%d:%s:%d", uint64(v), author.String(), uint8(kind)))
}

var finalizedTipKey = []byte("f:tip")
var highestQCKey = []byte("m:hq")
var preferredBlockKey = []byte("m:pref")
