package rpc

import (
	"context"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/grpc"
)

// Handler processes one decoded operation against some backend and returns
// the msgpack-encoded response payload, or an error.
type Handler func(ctx context.Context, op string, payload []byte) ([]byte, Status, error)

// daemonServiceDesc is a hand-written grpc.ServiceDesc for
// gkfs.v1.DaemonService, in the same style as the teacher's
// internal/cluster/forward.go clusterServiceDesc — registered manually so
// no protoc-generated stub is required.
var daemonServiceDesc = grpc.ServiceDesc{
	ServiceName: "gkfs.v1.DaemonService",
	HandlerType: (*daemonServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Dispatch",
			Handler:    dispatchHandler,
		},
	},
}

type daemonServiceServer interface {
	dispatch(ctx context.Context, req *Envelope) (*Envelope, error)
}

func dispatchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := &Envelope{}
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(daemonServiceServer)
	if interceptor == nil {
		return s.dispatch(ctx, req)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/gkfs.v1.DaemonService/Dispatch",
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return s.dispatch(ctx, req.(*Envelope))
	}
	return interceptor(ctx, req, info, handler)
}

// Server adapts a Handler to the hand-written daemonServiceServer
// interface and can be attached to a *grpc.Server.
type Server struct {
	handler Handler
}

// NewServer wraps handler (usually produced by Bind) for registration.
func NewServer(handler Handler) *Server {
	return &Server{handler: handler}
}

func (s *Server) dispatch(ctx context.Context, req *Envelope) (*Envelope, error) {
	payload, status, err := s.handler(ctx, req.Op, req.Payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{Op: req.Op, Status: status, Payload: payload}, nil
}

// RegisterServer attaches srv to gs under the daemon service descriptor.
func RegisterServer(gs *grpc.Server, srv *Server) {
	gs.RegisterService(&daemonServiceDesc, srv)
}

// Bind adapts a concrete Transport implementation (typically a daemon
// backend) into a Handler that the gRPC server dispatches decoded
// operations to. Mirrors the callback-injection shape of the teacher's
// RecordAppender/SearchExecutor/ContextExecutor (internal/cluster/forward.go),
// generalized to one binding covering every operation by name instead of
// one field per operation.
func Bind(backend Transport) Handler {
	return func(ctx context.Context, op string, payload []byte) ([]byte, Status, error) {
		switch op {
		case "Create":
			var req CreateRequest
			if err := msgpack.Unmarshal(payload, &req); err != nil {
				return nil, InvalidArgument, err
			}
			resp, status, err := backend.Create(ctx, req)
			return encodeResp(resp, status, err)
		case "Stat":
			var req StatRequest
			if err := msgpack.Unmarshal(payload, &req); err != nil {
				return nil, InvalidArgument, err
			}
			resp, status, err := backend.Stat(ctx, req)
			return encodeResp(resp, status, err)
		case "Remove":
			var req RemoveRequest
			if err := msgpack.Unmarshal(payload, &req); err != nil {
				return nil, InvalidArgument, err
			}
			resp, status, err := backend.Remove(ctx, req)
			return encodeResp(resp, status, err)
		case "DecrSize":
			var req DecrSizeRequest
			if err := msgpack.Unmarshal(payload, &req); err != nil {
				return nil, InvalidArgument, err
			}
			resp, status, err := backend.DecrSize(ctx, req)
			return encodeResp(resp, status, err)
		case "UpdateMetadentry":
			var req UpdateMetadentryRequest
			if err := msgpack.Unmarshal(payload, &req); err != nil {
				return nil, InvalidArgument, err
			}
			resp, status, err := backend.UpdateMetadentry(ctx, req)
			return encodeResp(resp, status, err)
		case "GetMetadentrySize":
			var req GetMetadentrySizeRequest
			if err := msgpack.Unmarshal(payload, &req); err != nil {
				return nil, InvalidArgument, err
			}
			resp, status, err := backend.GetMetadentrySize(ctx, req)
			return encodeResp(resp, status, err)
		case "UpdateMetadentrySize":
			var req UpdateMetadentrySizeRequest
			if err := msgpack.Unmarshal(payload, &req); err != nil {
				return nil, InvalidArgument, err
			}
			resp, status, err := backend.UpdateMetadentrySize(ctx, req)
			return encodeResp(resp, status, err)
		case "GetDirents":
			var req GetDirentsRequest
			if err := msgpack.Unmarshal(payload, &req); err != nil {
				return nil, InvalidArgument, err
			}
			resp, status, err := backend.GetDirents(ctx, req)
			return encodeResp(resp, status, err)
		case "MkSymlink":
			var req MkSymlinkRequest
			if err := msgpack.Unmarshal(payload, &req); err != nil {
				return nil, InvalidArgument, err
			}
			resp, status, err := backend.MkSymlink(ctx, req)
			return encodeResp(resp, status, err)
		case "Read":
			var req ReadRequest
			if err := msgpack.Unmarshal(payload, &req); err != nil {
				return nil, InvalidArgument, err
			}
			resp, status, err := backend.Read(ctx, req)
			return encodeResp(resp, status, err)
		case "Write":
			var req WriteRequest
			if err := msgpack.Unmarshal(payload, &req); err != nil {
				return nil, InvalidArgument, err
			}
			resp, status, err := backend.Write(ctx, req)
			return encodeResp(resp, status, err)
		case "Truncate":
			var req TruncateRequest
			if err := msgpack.Unmarshal(payload, &req); err != nil {
				return nil, InvalidArgument, err
			}
			resp, status, err := backend.Truncate(ctx, req)
			return encodeResp(resp, status, err)
		case "ChunkStat":
			var req ChunkStatRequest
			if err := msgpack.Unmarshal(payload, &req); err != nil {
				return nil, InvalidArgument, err
			}
			resp, status, err := backend.ChunkStat(ctx, req)
			return encodeResp(resp, status, err)
		case "GetFsConfig":
			var req GetFsConfigRequest
			if err := msgpack.Unmarshal(payload, &req); err != nil {
				return nil, InvalidArgument, err
			}
			resp, status, err := backend.GetFsConfig(ctx, req)
			return encodeResp(resp, status, err)
		default:
			return nil, NotSupported, fmt.Errorf("rpc: unknown op %q", op)
		}
	}
}

func encodeResp(resp any, status Status, err error) ([]byte, Status, error) {
	if err != nil {
		return nil, status, err
	}
	out, err := msgpack.Marshal(resp)
	if err != nil {
		return nil, TransportFault, err
	}
	return out, status, nil
}
