// Package config holds the process-wide tunables and the logging helpers
// every other package in bankfed reaches for instead of calling log/fmt
// directly.
package config

import (
	"fmt"
	"log"
	"time"
)

// Debugging switches, flipped from cmd/branch's flag parsing.
var (
	ShowDebug = false
	ShowTrace = false
	ShowWarn  = false
	LogToFile = false
)

// System-wide timing constants.
const (
	ReadDeadline         = 10 * time.Second
	RemoteCallTimeout    = 5 * time.Second
	ReplicationTimeout   = 2 * time.Second
	ReplicationRetries   = 2
	ReplicationBackoff   = 100 * time.Millisecond
	MaxConnectionWorkers = 64
)

// Debugf logs a line only when -debug was passed.
func Debugf(format string, a ...interface{}) {
	if !ShowDebug {
		return
	}
	emit(format, a...)
}

// Tracef logs fine-grained protocol chatter (message framing, dispatch).
func Tracef(format string, a ...interface{}) {
	if !ShowTrace {
		return
	}
	emit(format, a...)
}

// Warnf logs a condition that is recoverable but worth an operator's attention
// (a failed replicate attempt, a stale pending_tx row recovered at startup).
func Warnf(format string, a ...interface{}) {
	if !ShowWarn {
		return
	}
	emit("[WARN] "+format, a...)
}

func emit(format string, a ...interface{}) {
	line := time.Now().Format("15:04:05.000") + " <-> " + format
	if LogToFile {
		log.Printf(line, a...)
	} else {
		fmt.Printf(line+"\n", a...)
	}
}
