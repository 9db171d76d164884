package logging

import (
	"log"
	"os"
	"sync/atomic"
)

var debug atomic.Bool

// Init configures the standard logger. Debugf output is only written when
// debugEnabled is set.
func Init(debugEnabled bool) {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	debug.Store(debugEnabled)
}

// SetDebug toggles Debugf output
func SetDebug(enabled bool) {
	debug.Store(enabled)
}

// Debugf logs per-message chatter such as dropped stale replies
func Debugf(format string, args ...any) {
	if debug.Load() {
		log.Printf(format, args...)
	}
}
