package rpc

import (
	"context"
	"testing"

	"github.com/kvexec/tinystm/internal/kvtxn"
)

func TestJSONCodecRoundTrips(t *testing.T) {
	req := &ExecuteRequest{Ops: []kvtxn.Op{{Writes: map[string]int64{"a": 1}}}}

	data, err := (jsonCodec{}).Marshal(req)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got ExecuteRequest
	if err := (jsonCodec{}).Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(got.Ops) != 1 || got.Ops[0].Writes["a"] != 1 {
		t.Fatalf("round-tripped request = %+v, want one op writing a=1", got)
	}
}

func TestServerExecuteReturnsReceiptsUpToAbort(t *testing.T) {
	srv := NewServer(nil)
	reply, err := srv.Execute(context.Background(), &ExecuteRequest{
		Ops: []kvtxn.Op{
			{Writes: map[string]int64{"a": 10}},
			{Fail: "denied"},
			{Writes: map[string]int64{"b": 20}},
		},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if reply.Error != "" {
		t.Fatalf("reply.Error = %q, want empty", reply.Error)
	}
	if len(reply.Results) != 1 {
		t.Fatalf("len(Results) = %d, want 1", len(reply.Results))
	}
	if reply.AbortedAt != 1 || reply.AbortErr != "denied" {
		t.Fatalf("AbortedAt=%d AbortErr=%q, want 1 \"denied\"", reply.AbortedAt, reply.AbortErr)
	}
}
