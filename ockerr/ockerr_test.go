package ockerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfClassifiesWrappedError(t *testing.T) {
	e := New(MissingDependency, errors.New("unknown parent"))
	assert.Equal(t, MissingDependency, KindOf(e))
}

func TestKindOfDefaultsToInvalidMessage(t *testing.T) {
	assert.Equal(t, InvalidMessage, KindOf(errors.New("plain error")))
}

func TestOnlyStorageFailureIsFatal(t *testing.T) {
	assert.True(t, StorageFailure.Fatal())
	for _, k := range []Kind{TransientNetwork, InvalidMessage, EquivocationDetected, MissingDependency, Stale} {
		assert.False(t, k.Fatal(), k.String())
	}
}
