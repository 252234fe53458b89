package client

import (
	"fmt"
	"sync"
)

// FileType distinguishes a regular open file from an open directory
// stream, per original_source include/client/open_file_map.hpp.
type FileType int

const (
	Regular FileType = iota
	Directory
)

// OpenFlags mirrors the original's OpenFile_flags bitmask.
type OpenFlags uint16

const (
	FlagAppend OpenFlags = 1 << iota
	FlagCreat
	FlagTrunc
	FlagRDOnly
	FlagWROnly
	FlagRDWR
	FlagCloExec
)

// OpenFile is one process-wide open-file-description: a path, its open
// flags, and a shared read/write position. Multiple descriptor indices can
// point at the same OpenFile after dup/dup2, exactly like a POSIX open
// file description — that's why pos has its own lock independent of the
// table's.
type OpenFile struct {
	mu    sync.Mutex
	path  string
	typ   FileType
	flags OpenFlags
	pos   int64

	refs int32 // protected by OpenFileMap.mu; see OpenFileMap.Dup/Remove
}

// NewOpenFile constructs a fresh OpenFile description.
func NewOpenFile(path string, flags OpenFlags, typ FileType) *OpenFile {
	return &OpenFile{path: path, flags: flags, typ: typ, refs: 1}
}

func (f *OpenFile) Path() string    { return f.path }
func (f *OpenFile) Type() FileType  { return f.typ }
func (f *OpenFile) HasFlag(flag OpenFlags) bool { return f.flags&flag != 0 }

func (f *OpenFile) Pos() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}

func (f *OpenFile) SetPos(pos int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pos = pos
}

// fdBase is the first descriptor index handed out, chosen high enough to
// rarely collide with unintercepted kernel descriptors (original_source
// include/client/open_file_map.hpp: "we set the initial fd number to a
// high value... this is no permanent solution").
const fdBase = 100000

// OpenFileMap is the process-wide table from descriptor index to open-file
// state (spec.md §4.9, C9).
type OpenFileMap struct {
	mu      sync.RWMutex
	files   map[int]*OpenFile
	nextFD  int
}

// NewOpenFileMap constructs an empty table.
func NewOpenFileMap() *OpenFileMap {
	return &OpenFileMap{files: make(map[int]*OpenFile), nextFD: fdBase}
}

// Add registers f under a freshly allocated descriptor index.
func (m *OpenFileMap) Add(f *OpenFile) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	fd := m.nextFD
	m.nextFD++
	m.files[fd] = f
	return fd
}

// Get returns the OpenFile registered under fd, if any.
func (m *OpenFileMap) Get(fd int) (*OpenFile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[fd]
	return f, ok
}

// Exists reports whether fd is currently registered.
func (m *OpenFileMap) Exists(fd int) bool {
	_, ok := m.Get(fd)
	return ok
}

// Remove closes fd, decrementing the underlying OpenFile's refcount. The
// OpenFile itself is only actually done-with once no descriptor still
// refers to it (mirroring the original's shared_ptr-based lifetime, made
// explicit here since Go has no automatic refcounting).
func (m *OpenFileMap) Remove(fd int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[fd]
	if !ok {
		return false
	}
	delete(m.files, fd)
	f.refs--
	return true
}

// Dup allocates a new descriptor index referring to the same OpenFile as
// oldfd, incrementing its refcount.
func (m *OpenFileMap) Dup(oldfd int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[oldfd]
	if !ok {
		return 0, fmt.Errorf("client: dup: fd %d not open", oldfd)
	}
	f.refs++
	fd := m.nextFD
	m.nextFD++
	m.files[fd] = f
	return fd, nil
}

// Dup2 makes newfd refer to the same OpenFile as oldfd, closing whatever
// newfd previously pointed at (if anything, and if different from oldfd).
func (m *OpenFileMap) Dup2(oldfd, newfd int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if oldfd == newfd {
		if _, ok := m.files[oldfd]; !ok {
			return fmt.Errorf("client: dup2: fd %d not open", oldfd)
		}
		return nil
	}
	f, ok := m.files[oldfd]
	if !ok {
		return fmt.Errorf("client: dup2: fd %d not open", oldfd)
	}
	if old, ok := m.files[newfd]; ok {
		old.refs--
	}
	f.refs++
	m.files[newfd] = f
	return nil
}
