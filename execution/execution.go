// Package execution is the Execution collaborator (spec.md §6):
// execute(parent_state_root, payload) -> new_state_root, deterministic,
// same inputs always yielding the same output. The real state-transition
// function is out of scope (spec.md §1); this package exists only to
// satisfy the collaborator interface shape the core calls through (ground:
// original_source/src/vm.rs's deterministic execute signature).
package execution

import "github.com/mezonai/ockham/types"

// Executor is the collaborator interface the core calls through when
// proposing (to derive state_root) and validating (to check the claimed
// state_root is reproducible).
type Executor interface {
	Execute(parentStateRoot types.Hash, payload []byte) (types.Hash, error)
}

// Deterministic is a stand-in execution function: new_state_root =
// H(parent_state_root || payload). It satisfies the collaborator's
// determinism contract without implementing a real VM (stdlib-only,
// justified: execution is explicitly out of scope, this is a scope
// stand-in, not a target for any pack library).
type Deterministic struct{}

func (Deterministic) Execute(parentStateRoot types.Hash, payload []byte) (types.Hash, error) {
	buf := make([]byte, 0, types.HashSize+len(payload))
	buf = append(buf, parentStateRoot[:]...)
	buf = append(buf, payload...)
	return types.SumCanonical(buf), nil
}
