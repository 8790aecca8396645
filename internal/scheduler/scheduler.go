// Package scheduler tracks the execution cursor, the ready queue, the
// stop-version watermark, and per-version dependency lists for one
// block. It hands workers the next version to run and turns a
// runtime-discovered read dependency into a correct, race-free
// wake-up.
//
// All state sits behind one sync.Mutex, with a sync.Cond for the
// single blocking point in NextToExecute. Reads of the store never
// touch the scheduler, so contention is proportional to handouts and
// wake-ups, not to reads.
package scheduler

import "sync"

// Version is a transaction's index in the block.
type Version = int

// status is the lifecycle state of one version.
type status uint8

const (
	statusPending status = iota
	statusInProgress
	statusExecuted
)

// Scheduler owns the execution cursor, ready queue, stop-version
// watermark, and per-version dependency lists for one block. It must
// be constructed with New and is not safe to reuse across blocks.
type Scheduler struct {
	mu sync.Mutex

	numTxns    int
	nextToExec Version
	stopAt     Version // exclusive upper bound, starts at numTxns

	status       []status
	dependencies [][]Version // dependencies[v] = versions waiting on v
	inProgress   int         // count of versions currently InProgress

	// ready holds versions that were blocked and have since been
	// woken by finish_execution. LIFO order (append/pop from the
	// back); LIFO is a fixed, observable policy rather than one that
	// depends on wall-clock timing or worker identity, so a block's
	// handout order never carries non-determinism visible to the VM.
	ready []Version

	cond *sync.Cond
}

// New creates a Scheduler primed to hand out versions 0..numTxns-1.
func New(numTxns int) *Scheduler {
	s := &Scheduler{
		numTxns:    numTxns,
		nextToExec: 0,
		stopAt:     numTxns,
		status:     make([]status, numTxns),
	}
	if numTxns > 0 {
		s.dependencies = make([][]Version, numTxns)
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// NextToExecute returns the next version to run, or ok=false if the
// block is finished: the ready queue is empty, next_to_execute has
// reached stop_version, and no version is still in progress.
//
// It blocks (on an internal condition variable, never a spin loop)
// when the ready queue is empty but some version is still
// InProgress — the only suspension point anywhere in this package.
func (s *Scheduler) NextToExecute() (Version, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if n := len(s.ready); n > 0 {
			// A re-queued version was already counted in inProgress
			// when it was first claimed (either here or via
			// next_to_execute below) and never released — a blocked
			// read abandons the attempt without calling
			// FinishExecution. So inProgress is not bumped again here,
			// only status is reaffirmed.
			v := s.ready[n-1]
			s.ready = s.ready[:n-1]
			s.status[v] = statusInProgress
			return v, true
		}
		if s.nextToExec < s.stopAt {
			v := s.nextToExec
			s.nextToExec++
			s.status[v] = statusInProgress
			s.inProgress++
			return v, true
		}
		if s.inProgress == 0 {
			return 0, false
		}
		s.cond.Wait()
	}
}

// AddDependency records that waiter is blocked on producer's
// completion. It returns false if producer has already finished (in
// which case the caller must re-enqueue waiter itself instead of
// relying on a wake-up that will never come); true if the waiter was
// recorded and will be woken by FinishExecution(producer).
//
// This check-and-append is done under the same lock as
// FinishExecution's publish-and-drain, which is what prevents the
// classic lost-wakeup race: a waiter can never observe producer as
// not-yet-finished and then have FinishExecution's broadcast slip by
// unseen.
func (s *Scheduler) AddDependency(waiter, producer Version) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status[producer] == statusExecuted {
		return false
	}
	s.dependencies[producer] = append(s.dependencies[producer], waiter)
	return true
}

// Requeue pushes a version back onto the ready queue without waiting
// for a FinishExecution wake-up — used when AddDependency reports the
// producer already finished.
func (s *Scheduler) Requeue(v Version) {
	s.mu.Lock()
	s.ready = append(s.ready, v)
	s.cond.Signal()
	s.mu.Unlock()
}

// FinishExecution marks v Executed and wakes every version that
// called AddDependency(_, v), exactly once each.
func (s *Scheduler) FinishExecution(v Version) {
	s.mu.Lock()
	s.status[v] = statusExecuted
	s.inProgress--
	waiters := s.dependencies[v]
	s.dependencies[v] = nil
	if len(waiters) > 0 {
		s.ready = append(s.ready, waiters...)
	}
	s.cond.Broadcast()
	s.mu.Unlock()
}

// SetStopVersion atomically lowers stop_version to min(current, v).
// Versions >= the new stop that have not yet started will never be
// handed out by NextToExecute; versions already InProgress run to
// completion but their results are dropped at collection.
func (s *Scheduler) SetStopVersion(v Version) {
	s.mu.Lock()
	if v < s.stopAt {
		s.stopAt = v
		s.cond.Broadcast()
	}
	s.mu.Unlock()
}

// NumTxnToExecute returns the final stop_version: the count of valid
// results to extract from the outcome array.
func (s *Scheduler) NumTxnToExecute() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopAt
}
