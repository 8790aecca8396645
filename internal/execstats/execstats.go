// Package execstats reports per-block counters and phase timings
// through a plain stdlib *log.Logger.
package execstats

import (
	"log"
	"time"
)

// statsLogThreshold gates phase-timing logs to blocks large enough
// that per-block log volume isn't noise.
const statsLogThreshold = 1000

// Stats captures one block's execution shape.
type Stats struct {
	NumThreads     int
	NumTxns        int
	MaxDependency  int
	InferTime      time.Duration
	StartupTime    time.Duration
	ExecutionTime  time.Duration
	CleanupTime    time.Duration
}

// Logger writes Stats through a package-local *log.Logger so callers
// can redirect output (tests typically discard it).
type Logger struct {
	l *log.Logger
}

// New wraps l; a nil l falls back to log.Default().
func New(l *log.Logger) *Logger {
	if l == nil {
		l = log.Default()
	}
	return &Logger{l: l}
}

// Report logs s if the block was large enough to warrant it.
func (lg *Logger) Report(s Stats) {
	if s.NumTxns <= statsLogThreshold {
		return
	}
	lg.l.Printf(
		"tinystm: txns=%d max_dependency=%d threads=%d infer=%s startup=%s exec=%s cleanup=%s",
		s.NumTxns, s.MaxDependency, s.NumThreads,
		s.InferTime, s.StartupTime, s.ExecutionTime, s.CleanupTime,
	)
}
