// Package log holds the process-wide logger for the runtime. It defaults to
// a nop logger so embedding the runtime never produces output unless the
// embedder opts in.
package log

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logger *zap.Logger
	mu     sync.RWMutex
)

// Logger returns the configured logger, or a nop logger if none was set.
func Logger() *zap.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger
}

// SetLogger replaces the process-wide logger. Passing nil restores the nop
// default on the next Logger call.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}
