package reactor

import (
	"sync"

	"github.com/joeycumines/logiface"
)

// The package logger backs code paths with no loop in scope, most notably
// DeleteLater when no loop is resolvable. Loops inherit it at New unless
// WithLogger overrides. A nil logger is valid and disables output; logiface
// treats every call on a nil *Logger as a no-op.
var packageLogger struct {
	sync.RWMutex
	logger *logiface.Logger[logiface.Event]
}

// SetLogger replaces the package-level logger. Pass nil to disable.
func SetLogger(logger *logiface.Logger[logiface.Event]) {
	packageLogger.Lock()
	defer packageLogger.Unlock()
	packageLogger.logger = logger
}

func defaultLogger() *logiface.Logger[logiface.Event] {
	packageLogger.RLock()
	defer packageLogger.RUnlock()
	return packageLogger.logger
}
