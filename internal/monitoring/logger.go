// Package monitoring holds the package-level loggers used by library code.
// Commands log with the standard log package directly.
package monitoring

import (
	"log"
	"sync/atomic"
)

// Logf is the diagnostic logger. It defaults to log.Printf and may be
// replaced by SetLogger.
var Logf func(format string, v ...any) = log.Printf

var verbose atomic.Bool

// SetLogger replaces the package logger. Passing nil installs a no-op.
func SetLogger(f func(format string, v ...any)) {
	if f == nil {
		Logf = func(string, ...any) {}
		return
	}
	Logf = f
}

// SetVerbose enables Debugf output.
func SetVerbose(on bool) {
	verbose.Store(on)
}

// Verbose reports whether Debugf output is enabled.
func Verbose() bool {
	return verbose.Load()
}

// Debugf logs through Logf when verbose output is enabled.
func Debugf(format string, v ...any) {
	if verbose.Load() {
		Logf(format, v...)
	}
}
