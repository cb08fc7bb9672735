package exception

import (
	"os"
	"runtime/debug"

	"github.com/mezonai/ockham/logx"
	"github.com/mezonai/ockham/monitoring"
)

func SafeGo(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				monitoring.IncreasePanicCount()
				logx.Error("Panic in: ", name, r, string(debug.Stack()))
			}
		}()
		fn()
	}()
}

// Recover is the non-goroutine counterpart of SafeGo: deferred directly in
// a function body, it absorbs a panic from the current call without
// spawning anything, for synchronous loops (the reactor's dispatch) that
// must never die from one malformed message.
func Recover(name string) {
	if r := recover(); r != nil {
		monitoring.IncreasePanicCount()
		logx.Error("Panic in: ", name, r, string(debug.Stack()))
	}
}

func SafeGoWithPanic(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				monitoring.IncreasePanicCount()
				logx.Error("Panic in: ", name, r, string(debug.Stack()))
				os.Exit(1)
			}
		}()
		fn()
	}()
}
