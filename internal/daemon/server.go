package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gkfs/internal/chunkcalc"
	"gkfs/internal/chunkstore"
	"gkfs/internal/logging"
	"gkfs/internal/metadata"
	"gkfs/internal/metakv"
	"gkfs/internal/rpc"
)

// Server implements rpc.Transport directly against a local metadata engine
// and chunk store (spec.md §4.6, C6). It is used both as the in-process
// backend a gRPC rpc.Server wraps (see rpc.Bind) and, in tests, as a
// Transport a client.Dispatcher can talk to without any network hop.
type Server struct {
	meta   *metakv.Engine
	chunks *chunkstore.Store
	pool   *IOPool
	cfg    Config
	logger *slog.Logger

	// now is overridable in tests; defaults to the wall clock.
	now func() int64
}

// NewServer constructs a daemon backend over meta and chunks, using pool
// for chunk I/O fan-out. If pool is nil, a default-sized IOPool is created.
func NewServer(meta *metakv.Engine, chunks *chunkstore.Store, pool *IOPool, cfg Config, logger *slog.Logger) *Server {
	if pool == nil {
		pool = NewIOPool(defaultIOPoolSize)
	}
	return &Server{
		meta:   meta,
		chunks: chunks,
		pool:   pool,
		cfg:    cfg,
		logger: logging.Default(logger).With("component", "daemon"),
		now:    func() int64 { return time.Now().Unix() },
	}
}

var _ rpc.Transport = (*Server)(nil)

// faultStatus maps a lower-layer error to the rpc.Status a handler should
// report, without discarding the underlying error for logging.
func faultStatus(err error) rpc.Status {
	switch {
	case errors.Is(err, metakv.ErrNotFound):
		return rpc.NotFound
	case errors.Is(err, metakv.ErrExists):
		return rpc.AlreadyExists
	default:
		return rpc.StorageFault
	}
}

func (s *Server) trackedTimes() metadata.TimeFlags {
	var flags metadata.TimeFlags
	if s.cfg.TrackATime {
		flags |= metadata.ATime
	}
	if s.cfg.TrackMTime {
		flags |= metadata.MTime
	}
	if s.cfg.TrackCTime {
		flags |= metadata.CTime
	}
	return flags
}

// Create enqueues a create-if-absent merge operand carrying a freshly
// stamped metadata record (spec.md §4.6).
func (s *Server) Create(ctx context.Context, req rpc.CreateRequest) (rpc.CreateResponse, rpc.Status, error) {
	rec := metadata.New(req.Mode)
	if flags := s.trackedTimes(); flags != 0 {
		rec.InitTimes(s.now())
	}
	if err := s.meta.Create(req.Path, rec.Serialize()); err != nil {
		return rpc.CreateResponse{}, faultStatus(err), err
	}
	return rpc.CreateResponse{}, rpc.OK, nil
}

// Stat reads the current (merge-applied) record for req.Path.
func (s *Server) Stat(ctx context.Context, req rpc.StatRequest) (rpc.StatResponse, rpc.Status, error) {
	v, err := s.meta.Get(req.Path)
	if err != nil {
		if errors.Is(err, metakv.ErrNotFound) {
			return rpc.StatResponse{}, rpc.NotFound, nil
		}
		return rpc.StatResponse{}, faultStatus(err), err
	}
	return rpc.StatResponse{Metadata: v}, rpc.OK, nil
}

// Remove destroys req.Path's chunk space unconditionally, and additionally
// removes its metadata record unless MetadentryOnly is set.
//
// MetadentryOnly is set by the client's broadcast fan-out (spec.md §4.8):
// every data daemon gets a MetadentryOnly=true call to reclaim whatever
// chunks it holds for the path, while the single metadata-owning daemon
// gets one more call with MetadentryOnly=false to additionally drop the KV
// record. A missing record on that MetadentryOnly=false call is tolerated
// rather than reported as an error (original_source
// src/daemon/ops/metadentry.cpp: NotFoundException from the KV remove is
// swallowed, not propagated).
func (s *Server) Remove(ctx context.Context, req rpc.RemoveRequest) (rpc.RemoveResponse, rpc.Status, error) {
	if err := s.chunks.DestroyChunkSpace(req.Path); err != nil {
		return rpc.RemoveResponse{}, faultStatus(err), err
	}
	if req.MetadentryOnly {
		return rpc.RemoveResponse{}, rpc.OK, nil
	}
	if err := s.meta.Remove(req.Path); err != nil && !errors.Is(err, metakv.ErrNotFound) {
		return rpc.RemoveResponse{}, faultStatus(err), err
	}
	return rpc.RemoveResponse{}, rpc.OK, nil
}

// DecrSize enqueues a DecreaseSize merge operand, used to shrink the
// logical size recorded for a path without touching its chunks directly
// (e.g. a truncate that only needs the size field updated on this daemon).
func (s *Server) DecrSize(ctx context.Context, req rpc.DecrSizeRequest) (rpc.DecrSizeResponse, rpc.Status, error) {
	if err := s.meta.DecreaseSize(req.Path, req.Length); err != nil {
		return rpc.DecrSizeResponse{}, faultStatus(err), err
	}
	return rpc.DecrSizeResponse{}, rpc.OK, nil
}

// UpdateMetadentry performs a read-modify-write of the fields req.Flags
// selects, under the KV engine's single-key atomicity (spec.md §4.6). Any
// pending size-merge operands are applied as part of the read.
func (s *Server) UpdateMetadentry(ctx context.Context, req rpc.UpdateMetadentryRequest) (rpc.UpdateMetadentryResponse, rpc.Status, error) {
	current, err := s.meta.Get(req.Path)
	if err != nil {
		if errors.Is(err, metakv.ErrNotFound) {
			return rpc.UpdateMetadentryResponse{}, rpc.NotFound, nil
		}
		return rpc.UpdateMetadentryResponse{}, faultStatus(err), err
	}
	rec, err := metadata.Deserialize(current)
	if err != nil {
		return rpc.UpdateMetadentryResponse{}, rpc.StorageFault, err
	}
	patch, err := metadata.Deserialize(req.Metadata)
	if err != nil {
		return rpc.UpdateMetadentryResponse{}, rpc.InvalidArgument, err
	}

	if req.Flags&rpc.FlagSize != 0 {
		rec.SetSize(patch.Size())
	}
	if req.Flags&rpc.FlagLinkCount != 0 {
		rec.SetLinkCount(patch.LinkCount())
	}
	if req.Flags&rpc.FlagBlocks != 0 {
		rec.SetBlocks(patch.Blocks())
	}
	if req.Flags&rpc.FlagATime != 0 {
		rec.SetATime(patch.ATime())
	}
	if req.Flags&rpc.FlagMTime != 0 {
		rec.SetMTime(patch.MTime())
	}
	if req.Flags&rpc.FlagCTime != 0 {
		rec.SetCTime(patch.CTime())
	}
	if req.Flags&rpc.FlagMode != 0 {
		rec.SetMode(patch.Mode())
	}

	if err := s.meta.Put(req.Path, rec.Serialize()); err != nil {
		return rpc.UpdateMetadentryResponse{}, faultStatus(err), err
	}
	return rpc.UpdateMetadentryResponse{}, rpc.OK, nil
}

// GetMetadentrySize returns the current logical size of req.Path.
func (s *Server) GetMetadentrySize(ctx context.Context, req rpc.GetMetadentrySizeRequest) (rpc.GetMetadentrySizeResponse, rpc.Status, error) {
	v, err := s.meta.Get(req.Path)
	if err != nil {
		if errors.Is(err, metakv.ErrNotFound) {
			return rpc.GetMetadentrySizeResponse{}, rpc.NotFound, nil
		}
		return rpc.GetMetadentrySizeResponse{}, faultStatus(err), err
	}
	rec, err := metadata.Deserialize(v)
	if err != nil {
		return rpc.GetMetadentrySizeResponse{}, rpc.StorageFault, err
	}
	return rpc.GetMetadentrySizeResponse{Size: rec.Size()}, rpc.OK, nil
}

// UpdateMetadentrySize enqueues an IncreaseSize merge operand and reports
// back the value the client needs for offset bookkeeping (spec.md §4.6,
// §4.8 point 6):
//
//   - Append mode: the actual write offset isn't known until this call
//     resolves, since concurrent appenders race for the tail. The operand's
//     n is the write length alone (summed at merge time); the response
//     carries the size observed *before* this operand is enqueued, which
//     the client treats as the real offset its bytes landed at.
//   - Non-append mode: the client already knows the absolute offset, so n
//     is the prospective new end (offset+size, merged via max); the
//     response echoes offset+size, which is the file's new logical size
//     only if it exceeds the size already recorded.
func (s *Server) UpdateMetadentrySize(ctx context.Context, req rpc.UpdateMetadentrySizeRequest) (rpc.UpdateMetadentrySizeResponse, rpc.Status, error) {
	if req.Append {
		preSize, err := s.currentSize(req.Path)
		if err != nil {
			return rpc.UpdateMetadentrySizeResponse{}, faultStatus(err), err
		}
		if err := s.meta.IncreaseSize(req.Path, req.Size, true); err != nil {
			return rpc.UpdateMetadentrySizeResponse{}, faultStatus(err), err
		}
		return rpc.UpdateMetadentrySizeResponse{NewSize: preSize}, rpc.OK, nil
	}

	newEnd := req.Offset + req.Size
	if err := s.meta.IncreaseSize(req.Path, newEnd, false); err != nil {
		return rpc.UpdateMetadentrySizeResponse{}, faultStatus(err), err
	}
	return rpc.UpdateMetadentrySizeResponse{NewSize: newEnd}, rpc.OK, nil
}

func (s *Server) currentSize(path string) (int64, error) {
	v, err := s.meta.Get(path)
	if err != nil {
		return 0, err
	}
	rec, err := metadata.Deserialize(v)
	if err != nil {
		return 0, err
	}
	return rec.Size(), nil
}

// GetDirents lists the immediate children of req.Path.
func (s *Server) GetDirents(ctx context.Context, req rpc.GetDirentsRequest) (rpc.GetDirentsResponse, rpc.Status, error) {
	dirents, err := s.meta.GetDirents(req.Path)
	if err != nil {
		return rpc.GetDirentsResponse{}, faultStatus(err), err
	}
	entries := make([]rpc.DirentEntry, len(dirents))
	for i, d := range dirents {
		entries[i] = rpc.DirentEntry{Name: d.Name, IsDir: d.IsDir}
	}
	return rpc.GetDirentsResponse{Entries: entries}, rpc.OK, nil
}

// MkSymlink is Create with symlink mode bits and a stored target, per
// spec.md §4.6.
func (s *Server) MkSymlink(ctx context.Context, req rpc.MkSymlinkRequest) (rpc.MkSymlinkResponse, rpc.Status, error) {
	rec := metadata.NewSymlink(0, req.TargetPath)
	if flags := s.trackedTimes(); flags != 0 {
		rec.InitTimes(s.now())
	}
	if err := s.meta.Create(req.Path, rec.Serialize()); err != nil {
		return rpc.MkSymlinkResponse{}, faultStatus(err), err
	}
	return rpc.MkSymlinkResponse{}, rpc.OK, nil
}

// chunkSpan describes one chunk's share of a byte range: its id, the
// window of offsets within that chunk, and the window's position within
// the caller's flat buffer.
type chunkSpan struct {
	chunkID   uint64
	offInChnk uint64
	n         int64
	bufStart  int64
}

// planSpans partitions [chunkIDStart, chunkIDStart+totalChunks) against a
// byteCount-byte transfer starting offsetInFirst into the first chunk, per
// the layout spec.md §3/§4.1 define. Only the first chunk carries a
// nonzero offInChnk; every subsequent chunk starts at 0.
func planSpans(chunkIDStart, totalChunks, offsetInFirst uint64, byteCount int64, chunkSize uint64) []chunkSpan {
	spans := make([]chunkSpan, 0, totalChunks)
	remaining := byteCount
	var bufPos int64
	for i := uint64(0); i < totalChunks && remaining > 0; i++ {
		off := uint64(0)
		if i == 0 {
			off = offsetInFirst
		}
		avail := int64(chunkSize - off)
		n := avail
		if remaining < n {
			n = remaining
		}
		spans = append(spans, chunkSpan{
			chunkID:   chunkIDStart + i,
			offInChnk: off,
			n:         n,
			bufStart:  bufPos,
		})
		bufPos += n
		remaining -= n
	}
	return spans
}

// Read assembles byte_count bytes starting offset_in_first_chunk into
// chunk_id_start, using the I/O pool for the underlying per-chunk reads
// (spec.md §4.6/§4.7).
func (s *Server) Read(ctx context.Context, req rpc.ReadRequest) (rpc.ReadResponse, rpc.Status, error) {
	buf := make([]byte, req.ByteCount)
	spans := planSpans(req.ChunkIDStart, req.TotalChunks, req.OffsetInFirst, req.ByteCount, s.cfg.ChunkSize)

	tasks := make([]func() error, len(spans))
	for i, sp := range spans {
		sp := sp
		tasks[i] = func() error {
			n, err := s.chunks.ReadChunk(req.Path, sp.chunkID, buf[sp.bufStart:sp.bufStart+sp.n], sp.offInChnk)
			if err != nil {
				return err
			}
			// A short read (missing or truncated chunk) leaves the rest of
			// its window zero-filled, which is already buf's zero value.
			_ = n
			return nil
		}
	}
	if err := s.pool.Run(ctx, tasks); err != nil {
		return rpc.ReadResponse{}, faultStatus(err), err
	}
	return rpc.ReadResponse{Data: buf, BytesRead: int64(len(buf))}, rpc.OK, nil
}

// Write scatters req.Data across the chunks it spans, using the I/O pool
// for the underlying per-chunk writes.
func (s *Server) Write(ctx context.Context, req rpc.WriteRequest) (rpc.WriteResponse, rpc.Status, error) {
	byteCount := int64(len(req.Data))
	spans := planSpans(req.ChunkIDStart, req.TotalChunks, req.OffsetInFirst, byteCount, s.cfg.ChunkSize)

	tasks := make([]func() error, len(spans))
	for i, sp := range spans {
		sp := sp
		tasks[i] = func() error {
			_, err := s.chunks.WriteChunk(req.Path, sp.chunkID, req.Data[sp.bufStart:sp.bufStart+sp.n], sp.offInChnk)
			return err
		}
	}
	if err := s.pool.Run(ctx, tasks); err != nil {
		return rpc.WriteResponse{}, faultStatus(err), err
	}
	return rpc.WriteResponse{BytesWritten: byteCount}, rpc.OK, nil
}

// Truncate shrinks or extends req.Path's chunk space to req.NewSize,
// following spec.md §4.6's exact boundary arithmetic: the last surviving
// chunk is truncated to its remainder (or a full chunk, if new_size lands
// exactly on a boundary above zero), and every chunk beyond it is removed.
func (s *Server) Truncate(ctx context.Context, req rpc.TruncateRequest) (rpc.TruncateResponse, rpc.Status, error) {
	if req.NewSize < 0 {
		return rpc.TruncateResponse{}, rpc.InvalidArgument, fmt.Errorf("daemon: negative truncate size %d", req.NewSize)
	}

	var trimStart uint64
	if req.NewSize > 0 {
		kLast := chunkcalc.ChunkID(req.NewSize-1, s.cfg.ChunkSize)
		length := int64(chunkcalc.LeftPad(req.NewSize, s.cfg.ChunkSize))
		if length == 0 {
			length = int64(s.cfg.ChunkSize)
		}
		if err := s.chunks.TruncateChunkFile(req.Path, kLast, length); err != nil {
			return rpc.TruncateResponse{}, faultStatus(err), err
		}
		trimStart = kLast + 1
	}

	if err := s.chunks.TrimChunkSpace(req.Path, trimStart); err != nil {
		return rpc.TruncateResponse{}, faultStatus(err), err
	}
	return rpc.TruncateResponse{}, rpc.OK, nil
}

// ChunkStat reports this daemon's backing-filesystem capacity in chunks.
func (s *Server) ChunkStat(ctx context.Context, req rpc.ChunkStatRequest) (rpc.ChunkStatResponse, rpc.Status, error) {
	st, err := s.chunks.ChunkStat()
	if err != nil {
		return rpc.ChunkStatResponse{}, faultStatus(err), err
	}
	return rpc.ChunkStatResponse{
		ChunkSize:  st.ChunkSize,
		ChunkTotal: st.ChunkTotal,
		ChunkFree:  st.ChunkFree,
	}, rpc.OK, nil
}

// GetFsConfig returns the mount-time handshake fields (spec.md §6).
func (s *Server) GetFsConfig(ctx context.Context, req rpc.GetFsConfigRequest) (rpc.GetFsConfigResponse, rpc.Status, error) {
	return rpc.GetFsConfigResponse{
		MountDir:   s.cfg.MountDir,
		RootDir:    s.cfg.RootDir,
		ChunkSize:  s.cfg.ChunkSize,
		TrackATime: s.cfg.TrackATime,
		TrackMTime: s.cfg.TrackMTime,
		TrackCTime: s.cfg.TrackCTime,
		UID:        s.cfg.UID,
		GID:        s.cfg.GID,
	}, rpc.OK, nil
}
