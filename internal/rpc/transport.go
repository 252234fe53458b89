package rpc

import "context"

// Transport is the abstract request/response channel spec.md §4.6 assumes
// every daemon operation travels over. client.Dispatcher holds one
// Transport per daemon; it is satisfied both by *GrpcClient (real wire
// transport) and directly by a daemon backend for in-process/single-node
// use, so tests exercise the exact same call shape production code does.
type Transport interface {
	Create(ctx context.Context, req CreateRequest) (CreateResponse, Status, error)
	Stat(ctx context.Context, req StatRequest) (StatResponse, Status, error)
	Remove(ctx context.Context, req RemoveRequest) (RemoveResponse, Status, error)
	DecrSize(ctx context.Context, req DecrSizeRequest) (DecrSizeResponse, Status, error)
	UpdateMetadentry(ctx context.Context, req UpdateMetadentryRequest) (UpdateMetadentryResponse, Status, error)
	GetMetadentrySize(ctx context.Context, req GetMetadentrySizeRequest) (GetMetadentrySizeResponse, Status, error)
	UpdateMetadentrySize(ctx context.Context, req UpdateMetadentrySizeRequest) (UpdateMetadentrySizeResponse, Status, error)
	GetDirents(ctx context.Context, req GetDirentsRequest) (GetDirentsResponse, Status, error)
	MkSymlink(ctx context.Context, req MkSymlinkRequest) (MkSymlinkResponse, Status, error)
	Read(ctx context.Context, req ReadRequest) (ReadResponse, Status, error)
	Write(ctx context.Context, req WriteRequest) (WriteResponse, Status, error)
	Truncate(ctx context.Context, req TruncateRequest) (TruncateResponse, Status, error)
	ChunkStat(ctx context.Context, req ChunkStatRequest) (ChunkStatResponse, Status, error)
	GetFsConfig(ctx context.Context, req GetFsConfigRequest) (GetFsConfigResponse, Status, error)
}
