// Package chunkstore implements per-daemon on-disk chunk storage (spec.md
// §4.5, C5): lazily-created, fixed-size chunk files named by decimal chunk
// id, one directory per owned file.
//
// Grounded on original_source include/daemon/backend/data/chunk_storage.hpp
// for the operation set, and on the teacher's internal/chunk/file/manager.go
// for on-disk-directory conventions (per-entity subdirectory, lazy file
// creation, os.File-based I/O, syscall.Statfs usage).
package chunkstore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"gkfs/internal/logging"
)

// StorageFault wraps an OS-level I/O failure, carrying the underlying errno
// the way spec.md §4.5/§7 require ("a structured storage-fault carrying the
// underlying OS error code").
type StorageFault struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageFault) Error() string {
	return fmt.Sprintf("chunkstore: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageFault) Unwrap() error { return e.Err }

// Errno extracts the underlying syscall.Errno, if the fault wraps one.
func (e *StorageFault) Errno() (syscall.Errno, bool) {
	var errno syscall.Errno
	if errors.As(e.Err, &errno) {
		return errno, true
	}
	return 0, false
}

func fault(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageFault{Op: op, Path: path, Err: err}
}

// ChunkStat summarizes backing-filesystem capacity in units of chunks.
type ChunkStat struct {
	ChunkSize  uint64
	ChunkTotal uint64
	ChunkFree  uint64
}

// Store is the chunk tree rooted at a single daemon's data directory.
type Store struct {
	root      string
	chunkSize uint64
	logger    *slog.Logger
}

// New constructs a Store rooted at root, with the daemon's configured
// chunk size. If logger is nil, logging.Discard() is used.
func New(root string, chunkSize uint64, logger *slog.Logger) *Store {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Store{
		root:      root,
		chunkSize: chunkSize,
		logger:    logger.With("component", "chunkstore"),
	}
}

// encodePath turns an absolute slash-separated path into a single
// filesystem path component, so a file's chunk directory never collides
// with a directory implied by its own path (spec.md §3: "<encoded-path> is
// the file's absolute path with slashes escaped so it is a single
// filesystem component").
func encodePath(path string) string {
	var b strings.Builder
	b.Grow(len(path))
	for i := 0; i < len(path); i++ {
		switch path[i] {
		case '/':
			b.WriteString("%2F")
		case '%':
			b.WriteString("%25")
		default:
			b.WriteByte(path[i])
		}
	}
	return b.String()
}

func (s *Store) chunkDir(path string) string {
	return filepath.Join(s.root, encodePath(path))
}

func (s *Store) chunkFilePath(path string, chunkID uint64) string {
	return filepath.Join(s.chunkDir(path), strconv.FormatUint(chunkID, 10))
}

// WriteChunk ensures path's chunk directory exists, opens/creates chunk
// chunkID, and writes buf at offInChunk. Caller guarantees
// offInChunk+len(buf) <= chunk size.
func (s *Store) WriteChunk(path string, chunkID uint64, buf []byte, offInChunk uint64) (int, error) {
	dir := s.chunkDir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return 0, fault("write_chunk:mkdir", dir, err)
	}

	fp := s.chunkFilePath(path, chunkID)
	f, err := os.OpenFile(fp, os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return 0, fault("write_chunk:open", fp, err)
	}
	defer f.Close()

	n, err := f.WriteAt(buf, int64(offInChunk))
	if err != nil {
		return n, fault("write_chunk:write", fp, err)
	}
	return n, nil
}

// ReadChunk reads into buf at offInChunk from chunk chunkID. A missing
// chunk file reads as all zero; a short read at end-of-chunk is legal and
// returned without error.
func (s *Store) ReadChunk(path string, chunkID uint64, buf []byte, offInChunk uint64) (int, error) {
	fp := s.chunkFilePath(path, chunkID)
	f, err := os.Open(fp)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fault("read_chunk:open", fp, err)
	}
	defer f.Close()

	n, err := f.ReadAt(buf, int64(offInChunk))
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fault("read_chunk:read", fp, err)
	}
	return n, nil
}

// TruncateChunkFile truncates chunk chunkID to length (length <= chunk
// size). A missing chunk file is created first so the truncated length is
// still observable on a subsequent read.
func (s *Store) TruncateChunkFile(path string, chunkID uint64, length int64) error {
	dir := s.chunkDir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fault("truncate_chunk_file:mkdir", dir, err)
	}

	fp := s.chunkFilePath(path, chunkID)
	f, err := os.OpenFile(fp, os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return fault("truncate_chunk_file:open", fp, err)
	}
	defer f.Close()

	if err := f.Truncate(length); err != nil {
		return fault("truncate_chunk_file:truncate", fp, err)
	}
	return nil
}

// TrimChunkSpace removes every chunk file for path with id >= chunkStart.
func (s *Store) TrimChunkSpace(path string, chunkStart uint64) error {
	dir := s.chunkDir(path)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fault("trim_chunk_space:readdir", dir, err)
	}

	for _, entry := range entries {
		id, err := strconv.ParseUint(entry.Name(), 10, 64)
		if err != nil {
			continue // not a chunk file
		}
		if id >= chunkStart {
			fp := filepath.Join(dir, entry.Name())
			if err := os.Remove(fp); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fault("trim_chunk_space:remove", fp, err)
			}
		}
	}
	return nil
}

// DestroyChunkSpace removes path's entire chunk directory. Idempotent.
func (s *Store) DestroyChunkSpace(path string) error {
	dir := s.chunkDir(path)
	if err := os.RemoveAll(dir); err != nil {
		return fault("destroy_chunk_space", dir, err)
	}
	return nil
}

// ChunkStat derives chunk-sized capacity figures from the backing
// filesystem's statfs, per spec.md §4.5.
func (s *Store) ChunkStat() (ChunkStat, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(s.root, &st); err != nil {
		return ChunkStat{}, fault("chunk_stat", s.root, err)
	}

	blockSize := uint64(st.Bsize)
	totalBytes := st.Blocks * blockSize
	freeBytes := st.Bavail * blockSize

	return ChunkStat{
		ChunkSize:  s.chunkSize,
		ChunkTotal: totalBytes / s.chunkSize,
		ChunkFree:  freeBytes / s.chunkSize,
	}, nil
}
