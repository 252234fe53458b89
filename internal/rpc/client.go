package rpc

import (
	"context"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/grpc"
)

// GrpcClient issues Dispatch RPCs against one daemon's gRPC connection. It
// implements Transport, the same interface a daemon backend satisfies
// directly for in-process use — client.Dispatcher never needs to know
// which kind of Transport it is holding.
type GrpcClient struct {
	cc *grpc.ClientConn
}

// NewGrpcClient wraps an already-dialed connection (see ConnCache).
func NewGrpcClient(cc *grpc.ClientConn) *GrpcClient {
	return &GrpcClient{cc: cc}
}

func call[Req any, Resp any](ctx context.Context, c *GrpcClient, op string, req Req) (Resp, Status, error) {
	var resp Resp

	payload, err := msgpack.Marshal(req)
	if err != nil {
		return resp, TransportFault, fmt.Errorf("rpc: marshal %s request: %w", op, err)
	}

	in := &Envelope{Op: op, Payload: payload}
	out := new(Envelope)
	if err := c.cc.Invoke(ctx, "/gkfs.v1.DaemonService/Dispatch", in, out, grpc.ForceCodec(msgpackCodec{})); err != nil {
		return resp, TransportFault, fmt.Errorf("rpc: dispatch %s: %w", op, err)
	}

	if len(out.Payload) > 0 {
		if err := msgpack.Unmarshal(out.Payload, &resp); err != nil {
			return resp, TransportFault, fmt.Errorf("rpc: unmarshal %s response: %w", op, err)
		}
	}
	return resp, out.Status, nil
}

func (c *GrpcClient) Create(ctx context.Context, req CreateRequest) (CreateResponse, Status, error) {
	return call[CreateRequest, CreateResponse](ctx, c, "Create", req)
}

func (c *GrpcClient) Stat(ctx context.Context, req StatRequest) (StatResponse, Status, error) {
	return call[StatRequest, StatResponse](ctx, c, "Stat", req)
}

func (c *GrpcClient) Remove(ctx context.Context, req RemoveRequest) (RemoveResponse, Status, error) {
	return call[RemoveRequest, RemoveResponse](ctx, c, "Remove", req)
}

func (c *GrpcClient) DecrSize(ctx context.Context, req DecrSizeRequest) (DecrSizeResponse, Status, error) {
	return call[DecrSizeRequest, DecrSizeResponse](ctx, c, "DecrSize", req)
}

func (c *GrpcClient) UpdateMetadentry(ctx context.Context, req UpdateMetadentryRequest) (UpdateMetadentryResponse, Status, error) {
	return call[UpdateMetadentryRequest, UpdateMetadentryResponse](ctx, c, "UpdateMetadentry", req)
}

func (c *GrpcClient) GetMetadentrySize(ctx context.Context, req GetMetadentrySizeRequest) (GetMetadentrySizeResponse, Status, error) {
	return call[GetMetadentrySizeRequest, GetMetadentrySizeResponse](ctx, c, "GetMetadentrySize", req)
}

func (c *GrpcClient) UpdateMetadentrySize(ctx context.Context, req UpdateMetadentrySizeRequest) (UpdateMetadentrySizeResponse, Status, error) {
	return call[UpdateMetadentrySizeRequest, UpdateMetadentrySizeResponse](ctx, c, "UpdateMetadentrySize", req)
}

func (c *GrpcClient) GetDirents(ctx context.Context, req GetDirentsRequest) (GetDirentsResponse, Status, error) {
	return call[GetDirentsRequest, GetDirentsResponse](ctx, c, "GetDirents", req)
}

func (c *GrpcClient) MkSymlink(ctx context.Context, req MkSymlinkRequest) (MkSymlinkResponse, Status, error) {
	return call[MkSymlinkRequest, MkSymlinkResponse](ctx, c, "MkSymlink", req)
}

func (c *GrpcClient) Read(ctx context.Context, req ReadRequest) (ReadResponse, Status, error) {
	return call[ReadRequest, ReadResponse](ctx, c, "Read", req)
}

func (c *GrpcClient) Write(ctx context.Context, req WriteRequest) (WriteResponse, Status, error) {
	return call[WriteRequest, WriteResponse](ctx, c, "Write", req)
}

func (c *GrpcClient) Truncate(ctx context.Context, req TruncateRequest) (TruncateResponse, Status, error) {
	return call[TruncateRequest, TruncateResponse](ctx, c, "Truncate", req)
}

func (c *GrpcClient) ChunkStat(ctx context.Context, req ChunkStatRequest) (ChunkStatResponse, Status, error) {
	return call[ChunkStatRequest, ChunkStatResponse](ctx, c, "ChunkStat", req)
}

func (c *GrpcClient) GetFsConfig(ctx context.Context, req GetFsConfigRequest) (GetFsConfigResponse, Status, error) {
	return call[GetFsConfigRequest, GetFsConfigResponse](ctx, c, "GetFsConfig", req)
}

var _ Transport = (*GrpcClient)(nil)
