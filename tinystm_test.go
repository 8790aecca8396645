package tinystm_test

import (
	"context"
	"testing"

	"github.com/kvexec/tinystm"
	"github.com/kvexec/tinystm/internal/kvtxn"
)

func TestExecuteBlockPublicFacadeLedger(t *testing.T) {
	ops := []kvtxn.Op{
		{Writes: map[string]int64{"alice": 100}},
		{Writes: map[string]int64{"bob": 50}},
		{Reads: []string{"alice"}, Writes: map[string]int64{"alice": -30}},
	}

	results, err := tinystm.ExecuteBlock[string, int64, struct{}, kvtxn.Op, kvtxn.Receipt, string](
		context.Background(), kvtxn.Task{}, kvtxn.Inferencer{}, struct{}{}, ops, nil,
	)
	if err != nil {
		t.Fatalf("ExecuteBlock: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	if got := results[2].Out.Balances["alice"]; got != 70 {
		t.Fatalf("final alice balance = %d, want 70", got)
	}
}

func TestExecuteBlockPublicFacadeAbort(t *testing.T) {
	ops := []kvtxn.Op{
		{Writes: map[string]int64{"alice": 100}},
		{Fail: "overdraft"},
		{Writes: map[string]int64{"carol": 10}},
	}

	results, err := tinystm.ExecuteBlock[string, int64, struct{}, kvtxn.Op, kvtxn.Receipt, string](
		context.Background(), kvtxn.Task{}, kvtxn.Inferencer{}, struct{}{}, ops, nil,
	)
	if err != nil {
		t.Fatalf("ExecuteBlock: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[1].Kind != tinystm.StatusAbort || results[1].Err != "overdraft" {
		t.Fatalf("results[1] = %+v, want Abort(\"overdraft\")", results[1])
	}
}

func TestExecuteBlockPublicFacadeEmpty(t *testing.T) {
	results, err := tinystm.ExecuteBlock[string, int64, struct{}, kvtxn.Op, kvtxn.Receipt, string](
		context.Background(), kvtxn.Task{}, kvtxn.Inferencer{}, struct{}{}, nil, nil,
	)
	if results != nil || err != nil {
		t.Fatalf("ExecuteBlock(nil) = (%v, %v), want (nil, nil)", results, err)
	}
}

func TestExecuteBlockRespectsMaxWorkersOverride(t *testing.T) {
	ops := make([]kvtxn.Op, 20)
	for i := range ops {
		ops[i] = kvtxn.Op{Writes: map[string]int64{"k": int64(i)}}
	}
	ctx := tinystm.WithMaxWorkers(context.Background(), 1)

	results, err := tinystm.ExecuteBlock[string, int64, struct{}, kvtxn.Op, kvtxn.Receipt, string](
		ctx, kvtxn.Task{}, kvtxn.Inferencer{}, struct{}{}, ops, nil,
	)
	if err != nil {
		t.Fatalf("ExecuteBlock: %v", err)
	}
	if len(results) != len(ops) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(ops))
	}
}
