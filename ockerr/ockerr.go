// Package ockerr defines the closed error taxonomy the reactor classifies
// every fault into, so handler code can switch exhaustively instead of
// string-matching (grounds errors/network_errors.go's NetworkErrorCode
// pattern, narrowed to the consensus fault categories of spec.md §7).
package ockerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is a closed taxonomy of consensus-core faults.
type Kind uint8

const (
	// TransientNetwork: message not delivered; ignored, transport retries.
	TransientNetwork Kind = iota
	// InvalidMessage: bad signature, malformed encoding, wrong committee
	// member. Dropped silently, logged at debug.
	InvalidMessage
	// EquivocationDetected: logged at warn; evidence stashed, not acted on.
	EquivocationDetected
	// MissingDependency: unknown parent block or justify target. Triggers
	// a sync request; the message is buffered with a TTL.
	MissingDependency
	// StorageFailure: fatal. The node must halt rather than proceed with
	// partially-persisted state.
	StorageFailure
	// Stale: message for a view <= finalized tip. Dropped.
	Stale
)

func (k Kind) String() string {
	switch k {
	case TransientNetwork:
		return "TransientNetwork"
	case InvalidMessage:
		return "InvalidMessage"
	case EquivocationDetected:
		return "EquivocationDetected"
	case MissingDependency:
		return "MissingDependency"
	case StorageFailure:
		return "StorageFailure"
	case Stale:
		return "Stale"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Fatal reports whether a fault of this kind must halt the node rather
// than be absorbed or repaired (spec.md §7 propagation policy).
func (k Kind) Fatal() bool {
	return k == StorageFailure
}

// Error wraps an underlying cause with a classified Kind, carrying stack
// context via github.com/pkg/errors on fatal paths.
type Error struct {
	kind  Kind
	cause error
}

// New builds a classified Error, wrapping cause with stack context.
func New(kind Kind, cause error) *Error {
	return &Error{kind: kind, cause: errors.WithStack(cause)}
}

// Newf builds a classified Error from a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return New(kind, fmt.Errorf(format, args...))
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.kind, e.cause)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf classifies err, defaulting to InvalidMessage for untyped errors
// (the conservative choice: an unrecognized fault is dropped, never acted
// on as if it were benign).
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.kind
	}
	return InvalidMessage
}
