// Package tinystm is a deterministic parallel executor for a block of
// ordered transactions that mutate a shared key/value state. Given
// each transaction's statically-inferred read/write set, ExecuteBlock
// produces the same outputs as running the block strictly
// sequentially, while running transactions across multiple worker
// goroutines through a multi-version store and a dependency-tracking
// scheduler.
//
// The VM that interprets an individual transaction — here named
// ExecutorTask — and the inferencer that predicts its access set are
// both external collaborators: this package only defines the
// contracts they must satisfy (see ExecutorTask, Task, and
// Inferencer) and the engine that schedules calls into them.
package tinystm

import (
	"context"
	"log"

	"github.com/kvexec/tinystm/internal/execstats"
	"github.com/kvexec/tinystm/internal/executor"
)

// Version is a transaction's index within a block; also its
// serialization order.
type Version = int

// Output is the write set a transaction produced.
type Output[K comparable, V any] = executor.Output[K, V]

// KV is one (key, value) write within an Output.
type KV[K comparable, V any] = executor.KV[K, V]

// Task is the per-worker handle returned by an ExecutorTask's Init.
type Task[K comparable, V any, Txn any, Out any, UserErr any] = executor.Task[K, V, Txn, Out, UserErr]

// ExecutorTask is the contract the single-transaction VM must
// satisfy. Init is called once per block; the driver clones the
// returned Task once per worker when it implements Cloner, and
// otherwise shares the single instance.
type ExecutorTask[K comparable, V any, Arg any, Txn any, Out any, UserErr any] = executor.TaskFactory[K, V, Arg, Txn, Out, UserErr]

// Cloner lets a Task provide a genuine per-worker clone (e.g. to give
// each worker its own VM cache) instead of being shared read-only.
type Cloner[K comparable, V any, Txn any, Out any, UserErr any] = executor.Cloner[K, V, Txn, Out, UserErr]

// View is the per-transaction read-through handle passed to
// Task.Execute.
type View[K comparable, V any] = executor.View[K, V]

// ExecutionStatus is the VM's verdict for one transaction attempt.
type ExecutionStatus[Out any, UserErr any] = executor.ExecutionStatus[Out, UserErr]

// StatusKind enumerates ExecutionStatus's three shapes.
type StatusKind = executor.StatusKind

const (
	StatusSuccess  = executor.StatusSuccess
	StatusSkipRest = executor.StatusSkipRest
	StatusAbort    = executor.StatusAbort
)

// AccessSet is one transaction's predicted read/write set, a
// conservative over-approximation of its actual accesses.
type AccessSet[K comparable] = executor.AccessSet[K]

// Inferencer predicts each transaction's AccessSet ahead of
// execution.
type Inferencer[Txn any, K comparable] = executor.Inferencer[Txn, K]

// Error is the block-fatal error ExecuteBlock returns.
type Error[UserErr any] = executor.Error[UserErr]

// ErrorKind enumerates Error's fatal shapes.
type ErrorKind = executor.ErrorKind

const (
	ErrInferencer       = executor.ErrInferencer
	ErrUnestimatedWrite = executor.ErrUnestimatedWrite
	ErrUser             = executor.ErrUser
)

// StatsLogger controls the phase-timing log line ExecuteBlock emits
// for blocks above execstats's logging threshold. Pass nil to
// silence it entirely.
type StatsLogger = execstats.Logger

// NewStatsLogger wraps l (nil for log.Default()) as a StatsLogger.
func NewStatsLogger(l *log.Logger) *StatsLogger { return execstats.New(l) }

// WithMaxWorkers caps the worker count ExecuteBlock will choose,
// overriding runtime.NumCPU() as the degree-of-parallelism formula's
// first input. Lets internal/execconfig's MaxWorkers setting reach
// the driver without widening ExecuteBlock's own signature.
func WithMaxWorkers(ctx context.Context, n int) context.Context {
	return executor.WithMaxWorkers(ctx, n)
}

// ExecuteBlock runs txns against task, seeded by inferencer's
// predicted access sets, and returns one ExecutionStatus per
// transaction that survived up to the block's final stop version, in
// order. A user Abort occupies its own terminal slot rather than
// failing the call; only an inferencer failure or an unestimated
// write come back as a non-nil error.
//
// ctx is an addition beyond the original interface this package is
// modeled on: it is checked once per version a worker picks up, so a
// caller-side timeout or cancellation trims the worker pool early
// without otherwise changing any invariant — the block still runs the
// versions already in flight to completion.
//
// An empty txns returns (nil, nil) without spawning any worker.
func ExecuteBlock[K comparable, V any, Arg any, Txn any, Out Output[K, V], UserErr any](
	ctx context.Context,
	task ExecutorTask[K, V, Arg, Txn, Out, UserErr],
	inferencer Inferencer[Txn, K],
	arg Arg,
	txns []Txn,
	stats *StatsLogger,
) ([]ExecutionStatus[Out, UserErr], error) {
	return executor.ExecuteBlock[K, V, Arg, Txn, Out, UserErr](ctx, task, inferencer, arg, txns, stats)
}
