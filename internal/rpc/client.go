package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/kvexec/tinystm/internal/kvtxn"
)

// Execute dials addr and submits ops as one block: a short-lived
// connection per call, forced onto the JSON codec.
func Execute(ctx context.Context, addr string, ops []kvtxn.Op) (*ExecuteReply, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", addr, err)
	}
	defer conn.Close()

	var resp ExecuteReply
	req := &ExecuteRequest{Ops: ops}
	if err := conn.Invoke(ctx, "/tinystm.Executor/Execute", req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return &resp, fmt.Errorf("%s", resp.Error)
	}
	return &resp, nil
}
