package mpi

import (
	"context"
	"errors"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/paraprof/paraprof"
)

// maxMessageSize lifts gRPC's 4 MiB default so Gatherv can carry whole
// vectors.
const maxMessageSize = 1 << 30

const (
	serviceName      = "paraprof.mpi.Coordinator"
	collectiveMethod = "/" + serviceName + "/Collective"
	abortMethod      = "/" + serviceName + "/Abort"
)

// coordinatorServer is the gRPC face of a coordinator hosted by rank 0.
type coordinatorServer interface {
	Collective(context.Context, *collectiveRequest) (*collectiveResponse, error)
	Abort(context.Context, *abortRequest) (*abortResponse, error)
}

type coordinatorService struct {
	c *coordinator
}

func (s *coordinatorService) Collective(ctx context.Context, in *collectiveRequest) (*collectiveResponse, error) {
	r, err := s.c.collective(ctx, &in.req)
	if err == nil {
		return &collectiveResponse{reply: r}, nil
	}
	var ae *AbortError
	if errors.As(err, &ae) {
		return &collectiveResponse{
			errKind:   wireErrAbort,
			message:   causeText(ae),
			abortRank: ae.Rank,
			abortCode: ae.Code,
		}, nil
	}
	if paraprof.IsCommunicationError(err) {
		return &collectiveResponse{errKind: wireErrComm, message: err.Error()}, nil
	}
	// Context errors of the caller travel as gRPC status.
	return nil, err
}

func (s *coordinatorService) Abort(_ context.Context, in *abortRequest) (*abortResponse, error) {
	s.c.abort(&AbortError{Rank: in.rank, Code: in.code, Err: errors.New(in.message)})
	return &abortResponse{}, nil
}

func _Coordinator_Collective_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(collectiveRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(coordinatorServer).Collective(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: collectiveMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(coordinatorServer).Collective(ctx, req.(*collectiveRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Coordinator_Abort_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(abortRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(coordinatorServer).Abort(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: abortMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(coordinatorServer).Abort(ctx, req.(*abortRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var coordinatorServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*coordinatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Collective", Handler: _Coordinator_Collective_Handler},
		{MethodName: "Abort", Handler: _Coordinator_Abort_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "paraprof/mpi/coordinator",
}

// serveCoordinator starts a coordinator for a world of size ranks on lis.
// The caller stops the returned server.
func serveCoordinator(lis net.Listener, size int) (*grpc.Server, *coordinator) {
	coord := newCoordinator(size)
	srv := grpc.NewServer(
		grpc.MaxRecvMsgSize(maxMessageSize),
		grpc.MaxSendMsgSize(maxMessageSize),
	)
	srv.RegisterService(&coordinatorServiceDesc, &coordinatorService{c: coord})
	go srv.Serve(lis)
	return srv, coord
}

// grpcTransport reaches the coordinator of rank 0 over gRPC.
type grpcTransport struct {
	conn *grpc.ClientConn
}

func dialCoordinator(addr string) (*grpcTransport, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.CallContentSubtype(codecName),
			grpc.MaxCallRecvMsgSize(maxMessageSize),
			grpc.MaxCallSendMsgSize(maxMessageSize),
			// Rank 0 may still be starting its server.
			grpc.WaitForReady(true),
		),
	)
	if err != nil {
		return nil, paraprof.NewCommunicationError("Dial", "cannot reach coordinator at "+addr, err)
	}
	return &grpcTransport{conn: conn}, nil
}

func (t *grpcTransport) collective(ctx context.Context, req *request) (reply, error) {
	out := new(collectiveResponse)
	if err := t.conn.Invoke(ctx, collectiveMethod, &collectiveRequest{req: *req}, out); err != nil {
		if ctx.Err() != nil {
			return reply{}, ctx.Err()
		}
		return reply{}, paraprof.NewCommunicationError(req.kind.String(), "coordinator call failed", err)
	}
	switch out.errKind {
	case wireErrAbort:
		return reply{}, &AbortError{Rank: out.abortRank, Code: out.abortCode, Err: errors.New(out.message)}
	case wireErrComm:
		return reply{}, paraprof.NewCommunicationError(req.kind.String(), out.message, nil)
	}
	return out.reply, nil
}

func (t *grpcTransport) abort(ctx context.Context, ae *AbortError) error {
	in := &abortRequest{rank: ae.Rank, code: ae.Code, message: causeText(ae)}
	// The coordinator may already be gone; do not wait for it.
	return t.conn.Invoke(ctx, abortMethod, in, new(abortResponse), grpc.WaitForReady(false))
}

func (t *grpcTransport) Close() error {
	return t.conn.Close()
}

func causeText(ae *AbortError) string {
	if ae.Err == nil {
		return "abort"
	}
	return ae.Err.Error()
}
