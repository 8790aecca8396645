// Package executor glues the inferencer, MVStore, and Scheduler to
// the VM-provided Task, and owns the worker pool and commit protocol:
// a bounded number of goroutines each pull the next version off the
// Scheduler, run it, and signal completion on a shared channel.
package executor

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/kvexec/tinystm/internal/execstats"
	"github.com/kvexec/tinystm/internal/mvstore"
	"github.com/kvexec/tinystm/internal/outcome"
	"github.com/kvexec/tinystm/internal/scheduler"
)

// ExecuteBlock runs txns against task, seeded by inferencer's
// predicted access sets, and returns one ExecutionStatus per valid
// version in order. Only the two block-fatal conditions —
// InferencerError and UnestimatedWrite — come back as a non-nil
// error with a nil slice; a user Abort is not block-fatal, it simply
// occupies its own slot (truncating every version after it via
// stop_version) the same way Success and SkipRest do. An empty txns
// returns an empty slice without spawning any worker.
func ExecuteBlock[K comparable, V any, Arg any, Txn any, Out Output[K, V], UserErr any](
	ctx context.Context,
	factory TaskFactory[K, V, Arg, Txn, Out, UserErr],
	inferencer Inferencer[Txn, K],
	arg Arg,
	txns []Txn,
	statsLogger *execstats.Logger,
) ([]ExecutionStatus[Out, UserErr], error) {
	if len(txns) == 0 {
		return nil, nil
	}
	numTxns := len(txns)
	stats := execstats.Stats{NumTxns: numTxns}

	start := time.Now()
	accesses, err := inferAll(inferencer, txns)
	if err != nil {
		return nil, &Error[UserErr]{Kind: ErrInferencer, Cause: err}
	}
	stats.InferTime = time.Since(start)

	start = time.Now()
	var hints []mvstore.WriteHint[K]
	for idx, acc := range accesses {
		for _, k := range acc.KeysWritten {
			hints = append(hints, mvstore.WriteHint[K]{Key: k, Version: idx})
		}
	}
	store := mvstore.New[K, V]()
	maxDependencyLevel := store.Prime(hints)
	if maxDependencyLevel == 0 {
		return nil, &Error[UserErr]{Kind: ErrInferencer, Cause: errNoWrites}
	}

	outcomes := outcome.New[ExecutionStatus[Out, UserErr]](numTxns)
	sched := scheduler.New(numTxns)

	stats.StartupTime = time.Since(start)
	stats.MaxDependency = maxDependencyLevel

	sharedTask := factory.Init(arg)

	numWorkers := chooseWorkerCount(ctx, numTxns, maxDependencyLevel)
	stats.NumThreads = numWorkers

	unestimated := &unestimatedSignal{}
	start = time.Now()
	runWorkers(ctx, numWorkers, sharedTask, store, sched, txns, accesses, outcomes, unestimated)
	stats.ExecutionTime = time.Since(start)

	if err := unestimated.get(); err != nil {
		return nil, &Error[UserErr]{Kind: ErrUnestimatedWrite, Cause: err}
	}

	start = time.Now()
	validLen := sched.NumTxnToExecute()

	results := outcomes.GetAllResults(validLen)
	stats.CleanupTime = time.Since(start)

	if statsLogger != nil {
		statsLogger.Report(stats)
	}

	return results, nil
}

var errNoWrites = newSentinel("inferencer predicted no writes for any transaction")

type sentinelErr string

func newSentinel(s string) error    { return sentinelErr(s) }
func (e sentinelErr) Error() string { return string(e) }

// unestimatedSignal latches the first UnestimatedWrite error seen by
// any worker. Unlike a user Abort (which only truncates the block at
// the offending version), an unestimated write is a block-fatal
// condition: the inferencer's access sets were wrong, so every
// commitWrites call cooperating on store is working off unsound
// priming. Workers that trip it still stop the block the same way an
// Abort does (SetStopVersion), but ExecuteBlock reports it as
// ErrUnestimatedWrite rather than folding it into the result slice.
type unestimatedSignal struct {
	tripped atomic.Bool
	cause   atomic.Value // error
}

func (u *unestimatedSignal) trip(err error) {
	if u.tripped.CompareAndSwap(false, true) {
		u.cause.Store(err)
	}
}

func (u *unestimatedSignal) get() error {
	if !u.tripped.Load() {
		return nil
	}
	err, _ := u.cause.Load().(error)
	return err
}

func inferAll[Txn any, K comparable](inferencer Inferencer[Txn, K], txns []Txn) ([]AccessSet[K], error) {
	n := len(txns)
	out := make([]AccessSet[K], n)
	errs := make([]error, n)

	numWorkers := min(runtime.NumCPU(), n)
	if numWorkers < 1 {
		numWorkers = 1
	}
	jobs := make(chan int, n)
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)

	done := make(chan struct{})
	for w := 0; w < numWorkers; w++ {
		go func() {
			for i := range jobs {
				out[i], errs[i] = inferencer.Infer(txns[i])
			}
			done <- struct{}{}
		}()
	}
	for w := 0; w < numWorkers; w++ {
		<-done
	}

	for _, e := range errs {
		if e != nil {
			return nil, e
		}
	}
	return out, nil
}

// maxWorkersKey is the context key internal/execconfig's MaxWorkers
// setting rides in on, via WithMaxWorkers, so the driver's public
// signature doesn't need an options struct just for this one knob.
type maxWorkersKey struct{}

// WithMaxWorkers returns a context that caps the worker count
// chooseWorkerCount picks, in place of runtime.NumCPU(). A cap <= 0
// is ignored.
func WithMaxWorkers(ctx context.Context, n int) context.Context {
	if n <= 0 {
		return ctx
	}
	return context.WithValue(ctx, maxWorkersKey{}, n)
}

// chooseWorkerCount picks the block's degree of parallelism:
// threads = min(num_cpus, 1 + N/50, N / max_dependency_level),
// collapsing to 1 for small N. The N/50 term keeps tiny blocks from
// oversubscribing goroutines relative to work, and the dependency-level
// term keeps a block with one deeply-contended key from spreading more
// workers than it can actually keep busy.
func chooseWorkerCount(ctx context.Context, numTxns, maxDependencyLevel int) int {
	n := runtime.NumCPU()
	if override, ok := ctx.Value(maxWorkersKey{}).(int); ok && override > 0 {
		n = override
	}
	n = min(n, 1+numTxns/50)
	if maxDependencyLevel > 0 {
		n = min(n, numTxns/maxDependencyLevel)
	}
	if n < 1 {
		n = 1
	}
	return n
}

func runWorkers[K comparable, V any, Txn any, Out Output[K, V], UserErr any](
	ctx context.Context,
	numWorkers int,
	sharedTask Task[K, V, Txn, Out, UserErr],
	store *mvstore.Store[K, V],
	sched *scheduler.Scheduler,
	txns []Txn,
	accesses []AccessSet[K],
	outcomes *outcome.Array[ExecutionStatus[Out, UserErr]],
	unestimated *unestimatedSignal,
) {
	done := make(chan struct{}, numWorkers)
	for w := 0; w < numWorkers; w++ {
		task := sharedTask
		if cloner, ok := sharedTask.(Cloner[K, V, Txn, Out, UserErr]); ok {
			task = cloner.CloneForWorker()
		}
		go func(task Task[K, V, Txn, Out, UserErr]) {
			workerLoop(ctx, task, store, sched, txns, accesses, outcomes, unestimated)
			done <- struct{}{}
		}(task)
	}
	for w := 0; w < numWorkers; w++ {
		<-done
	}
}

// workerLoop repeatedly claims the next version from sched, executes
// it against a fresh View, and commits or records its outcome before
// looping for the next version.
func workerLoop[K comparable, V any, Txn any, Out Output[K, V], UserErr any](
	ctx context.Context,
	task Task[K, V, Txn, Out, UserErr],
	store *mvstore.Store[K, V],
	sched *scheduler.Scheduler,
	txns []Txn,
	accesses []AccessSet[K],
	outcomes *outcome.Array[ExecutionStatus[Out, UserErr]],
	unestimated *unestimatedSignal,
) {
	for {
		if ctx.Err() != nil {
			// A worker that sees cancellation simply stops picking up
			// new versions; it does not interrupt a peer blocked in
			// NextToExecute. The block still runs to completion on
			// the remaining workers — ctx only trims the pool early,
			// it is not a hard abort of in-flight work.
			return
		}
		v, ok := sched.NextToExecute()
		if !ok {
			return
		}

		view := newView(store, sched, v)
		status := task.Execute(view, txns[v])

		if view.HasUnexpectedRead() {
			// Already re-queued by the view; this attempt is moot.
			continue
		}

		var result ExecutionStatus[Out, UserErr]
		switch status.Kind {
		case StatusSuccess:
			if err := commitWrites[K, V, Out](store, v, status.Out); err != nil {
				unestimated.trip(err)
				sched.SetStopVersion(v)
				result = ExecutionStatus[Out, UserErr]{Kind: StatusAbort}
			} else {
				result = status
			}
		case StatusSkipRest:
			if err := commitWrites[K, V, Out](store, v, status.Out); err != nil {
				unestimated.trip(err)
				sched.SetStopVersion(v)
				result = ExecutionStatus[Out, UserErr]{Kind: StatusAbort}
			} else {
				sched.SetStopVersion(v + 1)
				result = status
			}
		case StatusAbort:
			sched.SetStopVersion(v + 1)
			result = status
		}

		for _, k := range accesses[v].KeysWritten {
			store.SkipIfUnset(k, v)
		}

		sched.FinishExecution(v)
		outcomes.SetResult(v, result)
	}
}

// commitWrites writes every (key, value) the transaction produced
// into the store. It returns the first error seen if any write
// targets a (key, version) the inferencer never primed — an
// UnestimatedWrite.
func commitWrites[K comparable, V any, Out Output[K, V]](store *mvstore.Store[K, V], v scheduler.Version, out Out) error {
	for _, w := range out.Writes() {
		if err := store.Write(w.Key, v, w.Value); err != nil {
			return err
		}
	}
	return nil
}
