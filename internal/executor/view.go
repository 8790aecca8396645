package executor

import (
	"sync/atomic"

	"github.com/kvexec/tinystm/internal/mvstore"
	"github.com/kvexec/tinystm/internal/scheduler"
)

// View is the per-(version, attempt) read-through handle a worker
// builds before calling Task.Execute. It never owns the store or the
// scheduler, only borrows them for the lifetime of one attempt — the
// reference back to the scheduler is logical only, so a View never
// outlives the block it was built for.
type View[K comparable, V any] struct {
	store   *mvstore.Store[K, V]
	sched   *scheduler.Scheduler
	version scheduler.Version

	hasUnexpectedRead atomic.Bool
}

func newView[K comparable, V any](store *mvstore.Store[K, V], sched *scheduler.Scheduler, version scheduler.Version) *View[K, V] {
	return &View[K, V]{store: store, sched: sched, version: version}
}

// Version returns the reader's own version.
func (v *View[K, V]) Version() scheduler.Version { return v.version }

// Read returns the value visible to this version at key, or ok=false
// if no earlier version wrote it. A Blocked result from the store
// registers a scheduler dependency (or, if the producer already
// finished, re-enqueues this version directly) and sets
// HasUnexpectedRead so the worker loop knows to abandon this attempt
// rather than trust whatever the task returns.
func (v *View[K, V]) Read(key K) (value V, ok bool) {
	res := v.store.Read(key, v.version)
	switch res.Kind {
	case mvstore.Ready:
		return res.Value, true
	case mvstore.NoWriter:
		var zero V
		return zero, false
	default: // mvstore.Blocked
		if !v.sched.AddDependency(v.version, res.BlockedOn) {
			// Producer already finished; no wake-up will ever come
			// for us, so we must put ourselves back in the queue.
			v.sched.Requeue(v.version)
		}
		v.hasUnexpectedRead.Store(true)
		var zero V
		return zero, false
	}
}

// HasUnexpectedRead reports whether this attempt hit a Blocked read.
// The worker loop checks this instead of trusting the task's return
// value: the task is expected to abort cheaply on a blocked read, but
// the driver must not commit the result or call FinishExecution in
// that case either way.
func (v *View[K, V]) HasUnexpectedRead() bool {
	return v.hasUnexpectedRead.Load()
}
