// Package metadata implements the per-path metadentry record (spec.md §4.3,
// C3): a serializable inode-like record carrying mode, size, optional
// timestamps, optional link count and block count, and an optional symlink
// target.
//
// Serialization is a delimited ASCII form: fields are joined with a 0x1f
// unit-separator byte, in a fixed field order, so that the KV merge operator
// (internal/metakv) can patch the size field's textual span without decoding
// the whole record (see original_source/include/global/metadata.hpp, which
// this type mirrors field-for-field).
package metadata

import (
	"fmt"
	"strconv"
	"strings"
)

// sep is the unit-separator byte joining serialized fields.
const sep = "\x1f"

// numField is the number of fields in the serialized form.
const numField = 8

// field indices within the serialized form.
const (
	fMode = iota
	fSize
	fLinkCount
	fBlocks
	fATime
	fMTime
	fCTime
	fTargetPath
)

// LinkMode is ORed into Mode to mark a symlink record, mirroring the
// original's LINK_MODE constant (rwx for user/group/other, plus S_IFLNK).
const LinkMode = 0o777 | 0o120000

// DirMode is ORed into Mode to mark a directory record (S_IFDIR).
const DirMode = 0o040000

// fmtMask isolates the file-type bits of a mode (S_IFMT).
const fmtMask = 0o170000

// TimeFlags selects which of atime/mtime/ctime UpdateTimes refreshes.
type TimeFlags uint8

const (
	ATime TimeFlags = 1 << iota
	MTime
	CTime
)

// Record is a single metadentry: the value stored for a path key in the
// metadata KV engine.
type Record struct {
	mode      uint32
	size      int64
	linkCount uint32
	blocks    int64
	atime     int64
	mtime     int64
	ctime     int64
	// targetPath is non-empty iff mode encodes a symbolic link.
	targetPath string
}

// New constructs a default record for a regular file or directory with the
// given mode. size, times, and blocks start at zero; link count starts at one.
func New(mode uint32) *Record {
	return &Record{mode: mode, linkCount: 1}
}

// NewSymlink constructs a record for a symbolic link pointing at targetPath.
// mode has LinkMode ORed in automatically.
func NewSymlink(mode uint32, targetPath string) *Record {
	return &Record{mode: mode | LinkMode, linkCount: 1, targetPath: targetPath}
}

// IsLink reports whether the record's mode encodes a symbolic link.
func (r *Record) IsLink() bool {
	return r.mode&LinkMode == LinkMode
}

// IsDir reports whether the record's mode encodes a directory.
func (r *Record) IsDir() bool {
	return r.mode&fmtMask == DirMode
}

func (r *Record) Mode() uint32      { return r.mode }
func (r *Record) Size() int64       { return r.size }
func (r *Record) LinkCount() uint32 { return r.linkCount }
func (r *Record) Blocks() int64     { return r.blocks }
func (r *Record) ATime() int64      { return r.atime }
func (r *Record) MTime() int64      { return r.mtime }
func (r *Record) CTime() int64      { return r.ctime }
func (r *Record) TargetPath() string { return r.targetPath }

func (r *Record) SetMode(mode uint32)         { r.mode = mode }
func (r *Record) SetSize(size int64)          { r.size = size }
func (r *Record) SetLinkCount(n uint32)       { r.linkCount = n }
func (r *Record) SetBlocks(n int64)           { r.blocks = n }
func (r *Record) SetATime(t int64)            { r.atime = t }
func (r *Record) SetMTime(t int64)            { r.mtime = t }
func (r *Record) SetCTime(t int64)            { r.ctime = t }
func (r *Record) SetTargetPath(path string)   { r.targetPath = path }

// InitTimes sets atime, mtime, and ctime to now. Called once at create.
func (r *Record) InitTimes(now int64) {
	r.atime, r.mtime, r.ctime = now, now, now
}

// UpdateTimes refreshes whichever of atime/mtime/ctime flags selects, to now.
func (r *Record) UpdateTimes(flags TimeFlags, now int64) {
	if flags&ATime != 0 {
		r.atime = now
	}
	if flags&MTime != 0 {
		r.mtime = now
	}
	if flags&CTime != 0 {
		r.ctime = now
	}
}

// Serialize encodes r as a delimited ASCII string: mode, size, link_count,
// blocks, atime, mtime, ctime, target_path, joined by 0x1f. Every field is
// always present (unset optional fields serialize as "0" or ""), which keeps
// field offsets fixed so a merge operator can locate the size field by
// splitting on sep without parsing the rest.
func (r *Record) Serialize() string {
	fields := make([]string, numField)
	fields[fMode] = strconv.FormatUint(uint64(r.mode), 10)
	fields[fSize] = strconv.FormatInt(r.size, 10)
	fields[fLinkCount] = strconv.FormatUint(uint64(r.linkCount), 10)
	fields[fBlocks] = strconv.FormatInt(r.blocks, 10)
	fields[fATime] = strconv.FormatInt(r.atime, 10)
	fields[fMTime] = strconv.FormatInt(r.mtime, 10)
	fields[fCTime] = strconv.FormatInt(r.ctime, 10)
	fields[fTargetPath] = r.targetPath
	return strings.Join(fields, sep)
}

// Deserialize parses the output of Serialize back into a Record.
func Deserialize(s string) (*Record, error) {
	fields := strings.Split(s, sep)
	if len(fields) != numField {
		return nil, fmt.Errorf("metadata: expected %d fields, got %d", numField, len(fields))
	}

	mode, err := strconv.ParseUint(fields[fMode], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("metadata: mode: %w", err)
	}
	size, err := strconv.ParseInt(fields[fSize], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("metadata: size: %w", err)
	}
	linkCount, err := strconv.ParseUint(fields[fLinkCount], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("metadata: link_count: %w", err)
	}
	blocks, err := strconv.ParseInt(fields[fBlocks], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("metadata: blocks: %w", err)
	}
	atime, err := strconv.ParseInt(fields[fATime], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("metadata: atime: %w", err)
	}
	mtime, err := strconv.ParseInt(fields[fMTime], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("metadata: mtime: %w", err)
	}
	ctime, err := strconv.ParseInt(fields[fCTime], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("metadata: ctime: %w", err)
	}

	return &Record{
		mode:       uint32(mode),
		size:       size,
		linkCount:  uint32(linkCount),
		blocks:     blocks,
		atime:      atime,
		mtime:      mtime,
		ctime:      ctime,
		targetPath: fields[fTargetPath],
	}, nil
}

// SizeFieldOffset returns the byte offset of the size field's textual span
// within s, and its length, so a merge operator can patch it in place
// without decoding the rest of the record (spec.md §4.3/§4.4). s must be a
// value produced by Serialize.
func SizeFieldOffset(s string) (offset, length int, ok bool) {
	fields := strings.SplitN(s, sep, numField)
	if len(fields) < fSize+1 {
		return 0, 0, false
	}
	offset = 0
	for i := 0; i < fSize; i++ {
		offset += len(fields[i]) + len(sep)
	}
	return offset, len(fields[fSize]), true
}
