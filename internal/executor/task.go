package executor

// Output is the write set a transaction produced: the ExecutorTask
// contract requires that every per-transaction result expose its
// writes this way, so the driver can commit them without knowing
// anything else about Out.
type Output[K comparable, V any] interface {
	Writes() []KV[K, V]
}

// KV is one (key, value) write.
type KV[K comparable, V any] struct {
	Key   K
	Value V
}

// StatusKind enumerates the three shapes an ExecutionStatus can take.
type StatusKind uint8

const (
	// StatusSuccess: the transaction ran to completion.
	StatusSuccess StatusKind = iota
	// StatusSkipRest: the transaction ran to completion and every
	// version after it should be discarded.
	StatusSkipRest
	// StatusAbort: the transaction failed for a user-level reason.
	StatusAbort
)

// ExecutionStatus is the VM's verdict for one transaction attempt.
type ExecutionStatus[Out any, UserErr any] struct {
	Kind StatusKind
	Out  Out     // populated for StatusSuccess / StatusSkipRest
	Err  UserErr // populated for StatusAbort
}

// Task is the per-worker handle the VM hands back from Init. When it
// implements Cloner, one clone is created per worker; otherwise the
// single instance is shared by all workers. Its lifecycle is bounded
// to the block it was created for.
type Task[K comparable, V any, Txn any, Out any, UserErr any] interface {
	// Execute runs one transaction attempt against a read-through
	// view. A ReadBlocked condition from the view (see View.Read)
	// should make the VM return cheaply; the driver detects this via
	// View.HasUnexpectedRead and does not inspect the returned
	// status in that case.
	Execute(view *View[K, V], txn Txn) ExecutionStatus[Out, UserErr]
}

// TaskFactory is the `init(arg) -> Task` half of the ExecutorTask
// contract; the driver calls Init once per block and then clones the
// result once per worker (see Cloner).
type TaskFactory[K comparable, V any, Arg any, Txn any, Out any, UserErr any] interface {
	// Init is called once per block.
	Init(arg Arg) Task[K, V, Txn, Out, UserErr]
}

// Cloner is implemented by tasks that carry per-worker state (e.g. a
// cache); CloneForWorker is called once per spawned worker. Tasks
// that are already safe to share read-only need not implement it —
// the driver falls back to reusing the single instance returned by
// Init when a Task does not satisfy Cloner.
type Cloner[K comparable, V any, Txn any, Out any, UserErr any] interface {
	CloneForWorker() Task[K, V, Txn, Out, UserErr]
}
