package rpc_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"gkfs/internal/rpc"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// fakeBackend is an in-memory Transport implementation used to exercise
// Bind/Server/GrpcClient without a real daemon.
type fakeBackend struct {
	records map[string]string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{records: map[string]string{}}
}

func (f *fakeBackend) Create(ctx context.Context, req rpc.CreateRequest) (rpc.CreateResponse, rpc.Status, error) {
	if _, ok := f.records[req.Path]; ok {
		return rpc.CreateResponse{}, rpc.AlreadyExists, nil
	}
	f.records[req.Path] = "created"
	return rpc.CreateResponse{}, rpc.OK, nil
}

func (f *fakeBackend) Stat(ctx context.Context, req rpc.StatRequest) (rpc.StatResponse, rpc.Status, error) {
	v, ok := f.records[req.Path]
	if !ok {
		return rpc.StatResponse{}, rpc.NotFound, nil
	}
	return rpc.StatResponse{Metadata: v}, rpc.OK, nil
}

func (f *fakeBackend) Remove(ctx context.Context, req rpc.RemoveRequest) (rpc.RemoveResponse, rpc.Status, error) {
	delete(f.records, req.Path)
	return rpc.RemoveResponse{}, rpc.OK, nil
}

func (f *fakeBackend) DecrSize(ctx context.Context, req rpc.DecrSizeRequest) (rpc.DecrSizeResponse, rpc.Status, error) {
	return rpc.DecrSizeResponse{}, rpc.OK, nil
}

func (f *fakeBackend) UpdateMetadentry(ctx context.Context, req rpc.UpdateMetadentryRequest) (rpc.UpdateMetadentryResponse, rpc.Status, error) {
	return rpc.UpdateMetadentryResponse{}, rpc.OK, nil
}

func (f *fakeBackend) GetMetadentrySize(ctx context.Context, req rpc.GetMetadentrySizeRequest) (rpc.GetMetadentrySizeResponse, rpc.Status, error) {
	return rpc.GetMetadentrySizeResponse{Size: 123}, rpc.OK, nil
}

func (f *fakeBackend) UpdateMetadentrySize(ctx context.Context, req rpc.UpdateMetadentrySizeRequest) (rpc.UpdateMetadentrySizeResponse, rpc.Status, error) {
	return rpc.UpdateMetadentrySizeResponse{NewSize: req.Offset + req.Size}, rpc.OK, nil
}

func (f *fakeBackend) GetDirents(ctx context.Context, req rpc.GetDirentsRequest) (rpc.GetDirentsResponse, rpc.Status, error) {
	return rpc.GetDirentsResponse{Entries: []rpc.DirentEntry{{Name: "child", IsDir: false}}}, rpc.OK, nil
}

func (f *fakeBackend) MkSymlink(ctx context.Context, req rpc.MkSymlinkRequest) (rpc.MkSymlinkResponse, rpc.Status, error) {
	return rpc.MkSymlinkResponse{}, rpc.OK, nil
}

func (f *fakeBackend) Read(ctx context.Context, req rpc.ReadRequest) (rpc.ReadResponse, rpc.Status, error) {
	return rpc.ReadResponse{Data: []byte("hello"), BytesRead: 5}, rpc.OK, nil
}

func (f *fakeBackend) Write(ctx context.Context, req rpc.WriteRequest) (rpc.WriteResponse, rpc.Status, error) {
	return rpc.WriteResponse{BytesWritten: int64(len(req.Data))}, rpc.OK, nil
}

func (f *fakeBackend) Truncate(ctx context.Context, req rpc.TruncateRequest) (rpc.TruncateResponse, rpc.Status, error) {
	return rpc.TruncateResponse{}, rpc.OK, nil
}

func (f *fakeBackend) ChunkStat(ctx context.Context, req rpc.ChunkStatRequest) (rpc.ChunkStatResponse, rpc.Status, error) {
	return rpc.ChunkStatResponse{ChunkSize: 1 << 19, ChunkTotal: 100, ChunkFree: 90}, rpc.OK, nil
}

func (f *fakeBackend) GetFsConfig(ctx context.Context, req rpc.GetFsConfigRequest) (rpc.GetFsConfigResponse, rpc.Status, error) {
	return rpc.GetFsConfigResponse{MountDir: "/mnt/gkfs", ChunkSize: 1 << 19}, rpc.OK, nil
}

var _ rpc.Transport = (*fakeBackend)(nil)

func startTestServer(t *testing.T, backend rpc.Transport) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	gs := grpc.NewServer()
	rpc.RegisterServer(gs, rpc.NewServer(rpc.Bind(backend)))
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)

	return lis.Addr().String()
}

func TestGrpcClientCreateAndStat(t *testing.T) {
	backend := newFakeBackend()
	addr := startTestServer(t, backend)

	cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer cc.Close()
	client := rpc.NewGrpcClient(cc)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, status, err := client.Create(ctx, rpc.CreateRequest{Path: "/a", Mode: 0o644})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if status != rpc.OK {
		t.Fatalf("expected OK, got %v", status)
	}

	statResp, status, err := client.Stat(ctx, rpc.StatRequest{Path: "/a"})
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if status != rpc.OK || statResp.Metadata != "created" {
		t.Fatalf("unexpected stat result: status=%v resp=%+v", status, statResp)
	}

	_, status, err = client.Stat(ctx, rpc.StatRequest{Path: "/missing"})
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if status != rpc.NotFound {
		t.Fatalf("expected NotFound, got %v", status)
	}
}

func TestGrpcClientWriteRead(t *testing.T) {
	backend := newFakeBackend()
	addr := startTestServer(t, backend)

	cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer cc.Close()
	client := rpc.NewGrpcClient(cc)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	writeResp, status, err := client.Write(ctx, rpc.WriteRequest{Path: "/f", Data: []byte("abcde")})
	if err != nil || status != rpc.OK {
		t.Fatalf("Write: status=%v err=%v", status, err)
	}
	if writeResp.BytesWritten != 5 {
		t.Errorf("expected 5 bytes written, got %d", writeResp.BytesWritten)
	}

	readResp, status, err := client.Read(ctx, rpc.ReadRequest{Path: "/f", ByteCount: 5})
	if err != nil || status != rpc.OK {
		t.Fatalf("Read: status=%v err=%v", status, err)
	}
	if string(readResp.Data) != "hello" {
		t.Errorf("expected %q, got %q", "hello", readResp.Data)
	}
}

func TestBroadcastAggregatesFirstError(t *testing.T) {
	backend1 := newFakeBackend()
	backend2 := newFakeBackend()
	boom := errors.New("boom")

	var calls int
	err := rpc.Broadcast(context.Background(), []rpc.Transport{backend1, backend2}, func(ctx context.Context, tr rpc.Transport) error {
		calls++
		if tr == rpc.Transport(backend2) {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected both targets invoked, got %d calls", calls)
	}
}

func TestStatusString(t *testing.T) {
	if rpc.NotFound.String() != "NotFound" {
		t.Errorf("unexpected Status.String(): %s", rpc.NotFound.String())
	}
}
