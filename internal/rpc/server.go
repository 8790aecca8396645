// Package rpc exposes tinystm.ExecuteBlock as a unary gRPC call over
// the kvtxn demo instantiation. It registers a hand-rolled
// grpc.ServiceDesc with a JSON wire codec instead of generating code
// from a .proto file, so no protobuf toolchain is required to build
// or run this service.
package rpc

import (
	"context"
	"encoding/json"
	"log"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/kvexec/tinystm/internal/blockid"
	"github.com/kvexec/tinystm/internal/execstats"
	"github.com/kvexec/tinystm/internal/executor"
	"github.com/kvexec/tinystm/internal/kvtxn"
)

// ExecuteRequest is the wire shape of one block submission.
type ExecuteRequest struct {
	Ops []kvtxn.Op `json:"ops"`
}

// ExecuteReply is the wire shape of a successful response. Results
// holds one entry per transaction that survived up to the block's
// stop version; AbortedAt/AbortErr are set when the last entry is a
// user abort rather than a successful receipt.
type ExecuteReply struct {
	BlockID   string          `json:"block_id"`
	Results   []kvtxn.Receipt `json:"results"`
	AbortedAt int             `json:"aborted_at,omitempty"`
	AbortErr  string          `json:"abort_err,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Server implements the KV-over-tinystm gRPC service.
type Server struct {
	logger *log.Logger
}

// NewServer constructs a Server; a nil logger falls back to
// log.Default().
func NewServer(logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{logger: logger}
}

// Execute runs req.Ops through the core executor and returns one
// Receipt per valid transaction.
func (s *Server) Execute(ctx context.Context, req *ExecuteRequest) (*ExecuteReply, error) {
	id := blockid.New()
	stats := execstats.New(s.logger)

	statuses, err := executor.ExecuteBlock[string, int64, struct{}, kvtxn.Op, kvtxn.Receipt, string](
		ctx, kvtxn.Task{}, kvtxn.Inferencer{}, struct{}{}, req.Ops, stats,
	)
	if err != nil {
		return &ExecuteReply{BlockID: string(id), Error: err.Error()}, nil
	}

	reply := &ExecuteReply{BlockID: string(id), Results: make([]kvtxn.Receipt, 0, len(statuses))}
	for i, st := range statuses {
		if st.Kind == executor.StatusAbort {
			reply.AbortedAt = i
			reply.AbortErr = st.Err
			break
		}
		reply.Results = append(reply.Results, st.Out)
	}
	return reply, nil
}

// jsonCodec is an encoding.Codec that marshals through encoding/json
// instead of protobuf, so no .proto toolchain is required.
type jsonCodec struct{}

func (jsonCodec) Name() string                      { return "json" }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// tinystmServer is the interface grpc.ServiceDesc's handler dispatches
// to; Server satisfies it.
type tinystmServer interface {
	Execute(context.Context, *ExecuteRequest) (*ExecuteReply, error)
}

// Register attaches the service to s, so callers control their own
// listener and interceptor chain.
func Register(s *grpc.Server, srv *Server) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "tinystm.Executor",
		HandlerType: (*tinystmServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Execute", Handler: executeHandler},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "tinystm.proto",
	}, srv)
}

func executeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(ExecuteRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(tinystmServer).Execute(ctx, req)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/tinystm.Executor/Execute",
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(tinystmServer).Execute(ctx, req.(*ExecuteRequest))
	}
	return interceptor(ctx, req, info, handler)
}

// CodecCallOption exposes jsonCodec for clients dialing this server;
// grpc.CallContentSubtype together with encoding.RegisterCodec (done
// in this package's init) is how a client forces the same codec the
// server expects.
func CodecCallOption() grpc.CallOption {
	return grpc.CallContentSubtype(jsonCodec{}.Name())
}
