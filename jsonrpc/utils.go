package jsonrpc

import (
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/mezonai/ockham/types"
)

// decodeHash parses the base58 display form get_block/get_qc accept back
// into a types.Hash (the same encoding types.Hash.String produces).
func decodeHash(s string) (types.Hash, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return types.Hash{}, fmt.Errorf("invalid base58: %w", err)
	}
	return types.HashFromBytes(b)
}
