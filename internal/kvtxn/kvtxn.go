// Package kvtxn is a minimal, concrete instantiation of the
// ExecutorTask/Inferencer contracts over string keys and int64
// values. It plays the role of the transaction VM — a black box
// producing writes or aborts — and exists so the rest of this module
// (the gRPC service, the CLI demo, the root package's integration
// tests) has something concrete to run without pulling in a real
// transaction-interpreting VM.
package kvtxn

import (
	"fmt"

	"github.com/kvexec/tinystm/internal/executor"
)

// Op is a single instruction: read each key in Reads, then add each
// amount in Writes to that key's current balance (a key with no
// earlier writer starts from zero). There is no balance check; an Op
// with a non-empty Fail aborts instead of writing.
type Op struct {
	Reads   []string
	Writes  map[string]int64 // key -> amount to add to the current balance
	SkipAll bool             // if true, this is the block's last valid transaction
	Fail    string           // non-empty: abort with this message instead of writing
}

// Receipt is the Output this package's Task produces.
type Receipt struct {
	WrittenKeys []string
	Balances    map[string]int64
}

// Writes implements executor.Output[string, int64].
func (r Receipt) Writes() []executor.KV[string, int64] {
	out := make([]executor.KV[string, int64], 0, len(r.Balances))
	for _, k := range r.WrittenKeys {
		out = append(out, executor.KV[string, int64]{Key: k, Value: r.Balances[k]})
	}
	return out
}

// Status is the alias used throughout this package for readability.
type Status = executor.ExecutionStatus[Receipt, string]

// Task runs Op instructions against a ledger view.
type Task struct{}

// Init returns the single stateless Task; kvtxn has nothing worth
// per-worker cloning, so Task does not implement executor.Cloner and
// the driver shares one instance across workers.
func (Task) Init(arg struct{}) executor.Task[string, int64, Op, Receipt, string] {
	return Task{}
}

// Execute implements executor.Task.
func (Task) Execute(view *executor.View[string, int64], op Op) Status {
	if op.Fail != "" {
		return Status{Kind: executor.StatusAbort, Err: op.Fail}
	}

	balances := make(map[string]int64, len(op.Writes))
	written := make([]string, 0, len(op.Writes))

	for _, key := range op.Reads {
		current, ok := view.Read(key)
		if view.HasUnexpectedRead() {
			return Status{} // abandoned; the driver discards this
		}
		if ok {
			balances[key] = current
		}
	}
	for key, delta := range op.Writes {
		current, ok := view.Read(key)
		if view.HasUnexpectedRead() {
			return Status{}
		}
		if ok {
			current += delta
		} else {
			current = delta
		}
		balances[key] = current
		written = append(written, key)
	}

	out := Receipt{WrittenKeys: written, Balances: balances}
	if op.SkipAll {
		return Status{Kind: executor.StatusSkipRest, Out: out}
	}
	return Status{Kind: executor.StatusSuccess, Out: out}
}

// Inferencer statically reports each Op's declared read/write set, a
// conservative over-approximation of what it will actually touch.
type Inferencer struct{}

// Infer implements executor.Inferencer[Op, string].
func (Inferencer) Infer(op Op) (executor.AccessSet[string], error) {
	if len(op.Writes) == 0 && op.Fail == "" {
		return executor.AccessSet[string]{}, fmt.Errorf("kvtxn: op has no declared writes")
	}
	keysWritten := make([]string, 0, len(op.Writes))
	for k := range op.Writes {
		keysWritten = append(keysWritten, k)
	}
	return executor.AccessSet[string]{
		KeysRead:    op.Reads,
		KeysWritten: keysWritten,
	}, nil
}
