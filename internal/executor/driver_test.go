package executor

import (
	"context"
	"testing"
)

// testTxn is a minimal harness transaction: each test scenario
// supplies its own closure plus the predicted access set the
// inferencer should report for it, so every spec scenario can be
// expressed directly without a real VM.
type testTxn struct {
	reads, writes []string // predicted access set
	run           func(v *View[string, int]) ExecutionStatus[testOut, string]
}

type testOut struct {
	kvs []KV[string, int]
}

func (o testOut) Writes() []KV[string, int] { return o.kvs }

type testTask struct{}

func (testTask) Init(struct{}) Task[string, int, testTxn, testOut, string] { return testTask{} }

func (testTask) Execute(v *View[string, int], txn testTxn) ExecutionStatus[testOut, string] {
	return txn.run(v)
}

type testInferencer struct{}

func (testInferencer) Infer(txn testTxn) (AccessSet[string], error) {
	return AccessSet[string]{KeysRead: txn.reads, KeysWritten: txn.writes}, nil
}

func success(kvs ...KV[string, int]) ExecutionStatus[testOut, string] {
	return ExecutionStatus[testOut, string]{Kind: StatusSuccess, Out: testOut{kvs: kvs}}
}

func skipRest(kvs ...KV[string, int]) ExecutionStatus[testOut, string] {
	return ExecutionStatus[testOut, string]{Kind: StatusSkipRest, Out: testOut{kvs: kvs}}
}

func abort(msg string) ExecutionStatus[testOut, string] {
	return ExecutionStatus[testOut, string]{Kind: StatusAbort, Err: msg}
}

func kv(k string, v int) KV[string, int] { return KV[string, int]{Key: k, Value: v} }

func TestExecuteBlockEmptyInput(t *testing.T) {
	out, err := ExecuteBlock[string, int, struct{}, testTxn, testOut, string](
		context.Background(), testTask{}, testInferencer{}, struct{}{}, nil, nil,
	)
	if out != nil || err != nil {
		t.Fatalf("ExecuteBlock(nil) = (%v, %v), want (nil, nil)", out, err)
	}
}

// Scenario 1: an independent block. Four transactions each write a
// distinct key with no reads; every one must succeed in order.
func TestExecuteBlockIndependentBlock(t *testing.T) {
	txns := []testTxn{
		{writes: []string{"A"}, run: func(v *View[string, int]) ExecutionStatus[testOut, string] {
			return success(kv("A", 1))
		}},
		{writes: []string{"B"}, run: func(v *View[string, int]) ExecutionStatus[testOut, string] {
			return success(kv("B", 2))
		}},
		{writes: []string{"C"}, run: func(v *View[string, int]) ExecutionStatus[testOut, string] {
			return success(kv("C", 3))
		}},
		{writes: []string{"D"}, run: func(v *View[string, int]) ExecutionStatus[testOut, string] {
			return success(kv("D", 4))
		}},
	}

	results, err := ExecuteBlock[string, int, struct{}, testTxn, testOut, string](
		context.Background(), testTask{}, testInferencer{}, struct{}{}, txns, nil,
	)
	if err != nil {
		t.Fatalf("ExecuteBlock: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("len(results) = %d, want 4", len(results))
	}
	for i, want := range []int{1, 2, 3, 4} {
		if results[i].Kind != StatusSuccess || results[i].Out.kvs[0].Value != want {
			t.Fatalf("results[%d] = %+v, want Success(%d)", i, results[i], want)
		}
	}
}

// Scenario 2: a strict chain. Each transaction reads and rewrites the
// same key; each must observe its predecessor's committed value.
func TestExecuteBlockStrictChain(t *testing.T) {
	chainStep := func(delta int) func(v *View[string, int]) ExecutionStatus[testOut, string] {
		return func(v *View[string, int]) ExecutionStatus[testOut, string] {
			cur, ok := v.Read("K")
			if v.HasUnexpectedRead() {
				return ExecutionStatus[testOut, string]{}
			}
			if !ok {
				cur = 0
			}
			return success(kv("K", cur+delta))
		}
	}
	txns := []testTxn{
		{reads: []string{"K"}, writes: []string{"K"}, run: chainStep(10)},
		{reads: []string{"K"}, writes: []string{"K"}, run: chainStep(1)},
		{reads: []string{"K"}, writes: []string{"K"}, run: chainStep(1)},
	}

	results, err := ExecuteBlock[string, int, struct{}, testTxn, testOut, string](
		context.Background(), testTask{}, testInferencer{}, struct{}{}, txns, nil,
	)
	if err != nil {
		t.Fatalf("ExecuteBlock: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	want := []int{10, 11, 12}
	for i, w := range want {
		if results[i].Kind != StatusSuccess || results[i].Out.kvs[0].Value != w {
			t.Fatalf("results[%d] = %+v, want Success(%d)", i, results[i], w)
		}
	}
}

// Scenario 3: over-predicted writes. Tx 0 predicts {A,B} but only
// writes A; tx 1 predicts reading B and must see NoWriter (ok=false),
// not a permanent block, because the unused predicted cell at (B,0)
// gets skipped.
func TestExecuteBlockOverPredictedWrites(t *testing.T) {
	txns := []testTxn{
		{writes: []string{"A", "B"}, run: func(v *View[string, int]) ExecutionStatus[testOut, string] {
			return success(kv("A", 1)) // B predicted but never written
		}},
		{reads: []string{"B"}, writes: []string{"C"}, run: func(v *View[string, int]) ExecutionStatus[testOut, string] {
			_, ok := v.Read("B")
			if v.HasUnexpectedRead() {
				return ExecutionStatus[testOut, string]{}
			}
			if ok {
				t.Error("tx1 read a value for B, want NoWriter")
			}
			return success(kv("C", 5))
		}},
	}

	results, err := ExecuteBlock[string, int, struct{}, testTxn, testOut, string](
		context.Background(), testTask{}, testInferencer{}, struct{}{}, txns, nil,
	)
	if err != nil {
		t.Fatalf("ExecuteBlock: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Kind != StatusSuccess || results[1].Kind != StatusSuccess {
		t.Fatalf("results = %+v, want both Success", results)
	}
}

// Scenario 4: under-predicted write. Tx 0 predicts {A} but writes
// {A,B}; ExecuteBlock must fail the whole block with
// ErrUnestimatedWrite and return no results.
func TestExecuteBlockUnderPredictedWrite(t *testing.T) {
	txns := []testTxn{
		{writes: []string{"A"}, run: func(v *View[string, int]) ExecutionStatus[testOut, string] {
			return success(kv("A", 1), kv("B", 2)) // B was never predicted
		}},
		{writes: []string{"C"}, run: func(v *View[string, int]) ExecutionStatus[testOut, string] {
			return success(kv("C", 3))
		}},
	}

	results, err := ExecuteBlock[string, int, struct{}, testTxn, testOut, string](
		context.Background(), testTask{}, testInferencer{}, struct{}{}, txns, nil,
	)
	if err == nil {
		t.Fatalf("ExecuteBlock = (%v, nil), want UnestimatedWrite error", results)
	}
	execErr, ok := err.(*Error[string])
	if !ok || execErr.Kind != ErrUnestimatedWrite {
		t.Fatalf("err = %v, want *Error with Kind=ErrUnestimatedWrite", err)
	}
	if results != nil {
		t.Fatalf("results = %v, want nil on a block-fatal error", results)
	}
}

// Scenario 5: early termination via SkipRest. Tx 2 returns SkipRest;
// the result vector must truncate to length 3 even though tx 3 might
// otherwise have been claimed by a worker.
func TestExecuteBlockSkipRestTruncates(t *testing.T) {
	txns := []testTxn{
		{writes: []string{"A"}, run: func(v *View[string, int]) ExecutionStatus[testOut, string] {
			return success(kv("A", 1))
		}},
		{writes: []string{"B"}, run: func(v *View[string, int]) ExecutionStatus[testOut, string] {
			return success(kv("B", 2))
		}},
		{writes: []string{"C"}, run: func(v *View[string, int]) ExecutionStatus[testOut, string] {
			return skipRest(kv("C", 3))
		}},
		{writes: []string{"D"}, run: func(v *View[string, int]) ExecutionStatus[testOut, string] {
			return success(kv("D", 4))
		}},
	}

	results, err := ExecuteBlock[string, int, struct{}, testTxn, testOut, string](
		context.Background(), testTask{}, testInferencer{}, struct{}{}, txns, nil,
	)
	if err != nil {
		t.Fatalf("ExecuteBlock: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	if results[2].Kind != StatusSkipRest {
		t.Fatalf("results[2].Kind = %v, want StatusSkipRest", results[2].Kind)
	}
}

// Scenario 6: user abort. Tx 1 aborts; the result vector must be
// exactly [Success, Abort], not a top-level error.
func TestExecuteBlockUserAbort(t *testing.T) {
	txns := []testTxn{
		{writes: []string{"A"}, run: func(v *View[string, int]) ExecutionStatus[testOut, string] {
			return success(kv("A", 1))
		}},
		{writes: []string{"B"}, run: func(v *View[string, int]) ExecutionStatus[testOut, string] {
			return abort("insufficient funds")
		}},
		{writes: []string{"C"}, run: func(v *View[string, int]) ExecutionStatus[testOut, string] {
			return success(kv("C", 3))
		}},
	}

	results, err := ExecuteBlock[string, int, struct{}, testTxn, testOut, string](
		context.Background(), testTask{}, testInferencer{}, struct{}{}, txns, nil,
	)
	if err != nil {
		t.Fatalf("ExecuteBlock: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Kind != StatusSuccess {
		t.Fatalf("results[0].Kind = %v, want StatusSuccess", results[0].Kind)
	}
	if results[1].Kind != StatusAbort || results[1].Err != "insufficient funds" {
		t.Fatalf("results[1] = %+v, want Abort(\"insufficient funds\")", results[1])
	}
}

// Worst case: every transaction writes the same key, so
// max_dependency_level = N and the worker count collapses to 1;
// outputs must still equal a sequential run.
func TestExecuteBlockAllSameKeyCollapsesToSequential(t *testing.T) {
	const n = 6
	txns := make([]testTxn, n)
	for i := range txns {
		txns[i] = testTxn{
			reads:  []string{"K"},
			writes: []string{"K"},
			run: func(v *View[string, int]) ExecutionStatus[testOut, string] {
				cur, ok := v.Read("K")
				if v.HasUnexpectedRead() {
					return ExecutionStatus[testOut, string]{}
				}
				if !ok {
					cur = 0
				}
				return success(kv("K", cur+1))
			},
		}
	}

	results, err := ExecuteBlock[string, int, struct{}, testTxn, testOut, string](
		context.Background(), testTask{}, testInferencer{}, struct{}{}, txns, nil,
	)
	if err != nil {
		t.Fatalf("ExecuteBlock: %v", err)
	}
	if len(results) != n {
		t.Fatalf("len(results) = %d, want %d", len(results), n)
	}
	for i := 0; i < n; i++ {
		if results[i].Out.kvs[0].Value != i+1 {
			t.Fatalf("results[%d] value = %d, want %d", i, results[i].Out.kvs[0].Value, i+1)
		}
	}
}

