package client

import (
	"context"
	"sort"

	"gkfs/internal/distributor"
	"gkfs/internal/rpc"

	"golang.org/x/sync/errgroup"
)

// TransportLookup resolves a daemon host id to the rpc.Transport used to
// reach it — a real gRPC connection in production, or a daemon.Server
// called in-process in tests. Grounded on the teacher's connection-cache
// pattern (internal/cluster/forwarder.go): the dispatcher never dials
// itself, it only asks for "the transport to host H".
type TransportLookup func(distributor.HostID) rpc.Transport

// Dispatcher implements the client-side fan-out algorithm of spec.md §4.8
// over an abstract Distributor (C2) and TransportLookup, so it runs
// identically against a real multi-daemon gRPC deployment or an in-process
// test harness of bare daemon.Server values.
type Dispatcher struct {
	dist      distributor.Distributor
	transport TransportLookup
	chunkSize uint64
}

// NewDispatcher constructs a Dispatcher. chunkSize must match every
// daemon's configured chunk size (spec.md §6: negotiated once at mount via
// GetFsConfig).
func NewDispatcher(dist distributor.Distributor, transport TransportLookup, chunkSize uint64) *Dispatcher {
	return &Dispatcher{dist: dist, transport: transport, chunkSize: chunkSize}
}

func (d *Dispatcher) metadataTransport(path string) rpc.Transport {
	return d.transport(d.dist.LocateFileMetadata(path))
}

// Create routes to path's metadata-owning daemon.
func (d *Dispatcher) Create(ctx context.Context, path string, mode uint32) error {
	_, status, err := d.metadataTransport(path).Create(ctx, rpc.CreateRequest{Path: path, Mode: mode})
	return statusErr("create", path, status, err)
}

// MkSymlink routes to path's metadata-owning daemon.
func (d *Dispatcher) MkSymlink(ctx context.Context, path, target string) error {
	_, status, err := d.metadataTransport(path).MkSymlink(ctx, rpc.MkSymlinkRequest{Path: path, TargetPath: target})
	return statusErr("mk_symlink", path, status, err)
}

// Stat routes to path's metadata-owning daemon.
func (d *Dispatcher) Stat(ctx context.Context, path string) (string, error) {
	resp, status, err := d.metadataTransport(path).Stat(ctx, rpc.StatRequest{Path: path})
	if err := statusErr("stat", path, status, err); err != nil {
		return "", err
	}
	return resp.Metadata, nil
}

// Remove broadcasts a chunk-reclaiming remove to every data daemon and
// then issues the single authoritative KV removal to the metadata-owning
// daemon, per spec.md §4.8: "chunks for a path may live on many nodes".
func (d *Dispatcher) Remove(ctx context.Context, path string) error {
	owner := d.dist.LocateFileMetadata(path)
	var targets []rpc.Transport
	for _, h := range d.dist.LocateDirectoryMetadata(path) {
		targets = append(targets, d.transport(h))
	}

	err := rpc.Broadcast(ctx, targets, func(ctx context.Context, t rpc.Transport) error {
		_, status, err := t.Remove(ctx, rpc.RemoveRequest{Path: path, MetadentryOnly: true})
		return statusErr("remove(broadcast)", path, status, err)
	})
	if err != nil {
		return err
	}

	_, status, err := d.transport(owner).Remove(ctx, rpc.RemoveRequest{Path: path, MetadentryOnly: false})
	return statusErr("remove", path, status, err)
}

// GetDirents broadcasts to every daemon and merges the returned entries,
// since directory listings fan out across whichever daemons the hash
// placed children on (spec.md §4.8).
func (d *Dispatcher) GetDirents(ctx context.Context, path string) ([]rpc.DirentEntry, error) {
	hosts := d.dist.LocateDirectoryMetadata(path)
	results := make([][]rpc.DirentEntry, len(hosts))

	g, gctx := errgroup.WithContext(ctx)
	for i, h := range hosts {
		i, h := i, h
		g.Go(func() error {
			resp, status, err := d.transport(h).GetDirents(gctx, rpc.GetDirentsRequest{Path: path})
			if err := statusErr("get_dirents", path, status, err); err != nil {
				return err
			}
			results[i] = resp.Entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var merged []rpc.DirentEntry
	for _, entries := range results {
		for _, e := range entries {
			if seen[e.Name] {
				continue
			}
			seen[e.Name] = true
			merged = append(merged, e)
		}
	}
	return merged, nil
}

// runResult is one chunkRun's outcome, kept alongside its starting chunk
// id so errors can be reported "in chunk-id order" per spec.md §4.8 step 5
// even though runs are issued concurrently.
type runResult struct {
	chunkIDStart uint64
	bytes        int64
	err          error
}

func sortedByChunkID(results []runResult) {
	sort.Slice(results, func(i, j int) bool { return results[i].chunkIDStart < results[j].chunkIDStart })
}

// Write issues the write fan-out of spec.md §4.8 over [offset, offset+n)
// and, on full success, updates the file's logical size at its
// metadata-owning daemon.
//
// If appendMode is set, offset is ignored: the write position is instead
// the file's current size, fetched from the metadata-owning daemon
// immediately before the chunk writes to narrow (not eliminate — no
// cross-client append ordering guarantee is made, per spec.md §1
// Non-goals) the race against a concurrent appender. The position actually
// used is returned as actualOffset either way, confirmed in append mode by
// the daemon's pre-merge size from step 6's append-offset swap.
func (d *Dispatcher) Write(ctx context.Context, path string, buf []byte, offset int64, appendMode bool) (transferred int64, actualOffset int64, err error) {
	n := int64(len(buf))
	if n == 0 {
		return 0, offset, nil
	}

	if appendMode {
		sizeResp, status, err := d.metadataTransport(path).GetMetadentrySize(ctx, rpc.GetMetadentrySizeRequest{Path: path})
		if err := statusErr("get_metadentry_size", path, status, err); err != nil {
			return 0, offset, err
		}
		offset = sizeResp.Size
	}

	spans := planChunkSpans(offset, n, d.chunkSize)
	runs := planRuns(path, spans, d.dist)

	results := make([]runResult, len(runs))
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range runs {
		i, r := i, r
		g.Go(func() error {
			data := buf[r.dataStart():r.dataEnd()]
			resp, status, err := d.transport(r.host).Write(gctx, rpc.WriteRequest{
				Path:          path,
				ChunkIDStart:  r.chunkIDStart(),
				TotalChunks:   r.totalChunks(),
				OffsetInFirst: r.offsetInFirst(),
				Data:          data,
			})
			results[i] = runResult{
				chunkIDStart: r.chunkIDStart(),
				bytes:        resp.BytesWritten,
				err:          statusErr("write", path, status, err),
			}
			return nil // partial success: don't let errgroup cancel siblings
		})
	}
	g.Wait()
	sortedByChunkID(results)

	var firstErr error
	for _, res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		transferred += res.bytes
	}
	if firstErr != nil {
		return transferred, offset, firstErr
	}

	owner := d.dist.LocateFileMetadata(path)
	sizeResp, status, err := d.transport(owner).UpdateMetadentrySize(ctx, rpc.UpdateMetadentrySizeRequest{
		Path: path, Size: n, Offset: offset, Append: appendMode,
	})
	if err := statusErr("update_metadentry_size", path, status, err); err != nil {
		return transferred, offset, err
	}

	if appendMode {
		return transferred, sizeResp.NewSize, nil
	}
	return transferred, offset, nil
}

// Read issues the read fan-out of spec.md §4.8 over [offset, offset+len(buf)),
// clamped to the file's current logical size: a read past end-of-file — in
// particular, past a point a prior Truncate shrank the file to — returns
// fewer bytes than requested rather than zero-filling the tail (spec.md §8
// scenario 4).
func (d *Dispatcher) Read(ctx context.Context, path string, buf []byte, offset int64) (int64, error) {
	n := int64(len(buf))
	if n == 0 {
		return 0, nil
	}

	sizeResp, status, err := d.metadataTransport(path).GetMetadentrySize(ctx, rpc.GetMetadentrySizeRequest{Path: path})
	if err := statusErr("get_metadentry_size", path, status, err); err != nil {
		return 0, err
	}
	if offset >= sizeResp.Size {
		return 0, nil
	}
	if avail := sizeResp.Size - offset; n > avail {
		n = avail
	}

	spans := planChunkSpans(offset, n, d.chunkSize)
	runs := planRuns(path, spans, d.dist)

	results := make([]runResult, len(runs))
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range runs {
		i, r := i, r
		g.Go(func() error {
			resp, status, err := d.transport(r.host).Read(gctx, rpc.ReadRequest{
				Path:          path,
				ChunkIDStart:  r.chunkIDStart(),
				TotalChunks:   r.totalChunks(),
				OffsetInFirst: r.offsetInFirst(),
				ByteCount:     r.dataEnd() - r.dataStart(),
			})
			if err := statusErr("read", path, status, err); err != nil {
				results[i] = runResult{chunkIDStart: r.chunkIDStart(), err: err}
				return nil
			}
			copy(buf[r.dataStart():r.dataEnd()], resp.Data)
			results[i] = runResult{chunkIDStart: r.chunkIDStart(), bytes: resp.BytesRead}
			return nil
		})
	}
	g.Wait()
	sortedByChunkID(results)

	var transferred int64
	var firstErr error
	for _, res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		transferred += res.bytes
	}
	return transferred, firstErr
}

// Truncate routes the chunk-boundary truncate arithmetic (spec.md §4.6) to
// every data daemon — since chunks for a path may live on many nodes, this
// broadcasts like Remove — and then updates the file's logical size at its
// metadata-owning daemon, mirroring Write's step 6. Growing and shrinking
// both route through the existing size-merge RPCs (no separate "set size"
// operation is needed): shrinking uses DecrSize's associative min, growing
// uses UpdateMetadentrySize's associative max.
func (d *Dispatcher) Truncate(ctx context.Context, path string, newSize int64) error {
	var targets []rpc.Transport
	for _, h := range d.dist.LocateDirectoryMetadata(path) {
		targets = append(targets, d.transport(h))
	}
	if err := rpc.Broadcast(ctx, targets, func(ctx context.Context, t rpc.Transport) error {
		_, status, err := t.Truncate(ctx, rpc.TruncateRequest{Path: path, NewSize: newSize})
		return statusErr("truncate", path, status, err)
	}); err != nil {
		return err
	}

	owner := d.metadataTransport(path)
	sizeResp, status, err := owner.GetMetadentrySize(ctx, rpc.GetMetadentrySizeRequest{Path: path})
	if err := statusErr("get_metadentry_size", path, status, err); err != nil {
		return err
	}
	switch {
	case newSize < sizeResp.Size:
		_, status, err := owner.DecrSize(ctx, rpc.DecrSizeRequest{Path: path, Length: newSize})
		return statusErr("decr_size", path, status, err)
	case newSize > sizeResp.Size:
		_, status, err := owner.UpdateMetadentrySize(ctx, rpc.UpdateMetadentrySizeRequest{Path: path, Size: newSize, Offset: 0, Append: false})
		return statusErr("update_metadentry_size", path, status, err)
	default:
		return nil
	}
}

func statusErr(op, path string, status rpc.Status, err error) error {
	if err != nil {
		return &StatusError{Op: op, Path: path, Status: rpc.TransportFault, Err: err}
	}
	if status != rpc.OK {
		return &StatusError{Op: op, Path: path, Status: status}
	}
	return nil
}
