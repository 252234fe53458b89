// Package distributor implements the deterministic placement of file
// metadata and data chunks onto daemons (spec.md §4.2, C2).
//
// A Distributor is constructed once per client/daemon process from the
// hosts file and the process's own host id, and is immutable thereafter —
// there is no dynamic membership, join protocol, or rebalancing (spec.md §1
// Non-goals).
package distributor

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// HostID identifies a daemon by its 0-based position in the hosts file.
type HostID uint32

// ChunkID identifies a chunk within a file (see internal/chunkcalc).
type ChunkID uint64

// Distributor is the capability set every variant implements, per spec.md
// §4.2: localhost, locate_data, locate_file_metadata, locate_directory_metadata.
type Distributor interface {
	// Localhost returns this process's own host id.
	Localhost() HostID

	// LocateData returns the daemon that owns chunk chunkID of path.
	LocateData(path string, chunkID ChunkID) HostID

	// LocateFileMetadata returns the daemon that owns path's metadentry.
	LocateFileMetadata(path string) HostID

	// LocateDirectoryMetadata returns every daemon a directory listing of
	// path must fan out to.
	LocateDirectoryMetadata(path string) []HostID
}

// stableHash is the build-stable string hash required by spec.md §4.2: it
// must be identical on client and daemon for a given build, but need not be
// cryptographic. xxhash is a pure function of its input bytes with no
// per-process seed, so it satisfies that contract directly.
func stableHash(s string) uint64 {
	return xxhash.Sum64String(s)
}

func dataKey(path string, chunkID ChunkID) string {
	return path + "\x00" + strconv.FormatUint(uint64(chunkID), 10)
}

// Hash is the default multi-daemon distributor: data and file-metadata
// placement are both derived from a stable hash of the key, modulo the
// number of hosts. Directory metadata is "replicated" for listing purposes
// by fanning out to every host, since a hash placement may scatter a
// directory's children across many daemons (spec.md §4.8).
type Hash struct {
	localhost HostID
	numHosts  uint32
	allHosts  []HostID
}

// NewHash constructs a Hash distributor for a process whose own host id is
// localhost, among numHosts total daemons.
func NewHash(localhost HostID, numHosts uint32) *Hash {
	all := make([]HostID, numHosts)
	for i := range all {
		all[i] = HostID(i)
	}
	return &Hash{localhost: localhost, numHosts: numHosts, allHosts: all}
}

func (d *Hash) Localhost() HostID { return d.localhost }

func (d *Hash) LocateData(path string, chunkID ChunkID) HostID {
	return HostID(stableHash(dataKey(path, chunkID)) % uint64(d.numHosts))
}

func (d *Hash) LocateFileMetadata(path string) HostID {
	return HostID(stableHash(path) % uint64(d.numHosts))
}

func (d *Hash) LocateDirectoryMetadata(path string) []HostID {
	return d.allHosts
}

// LocalOnly is the single-node development-mode distributor: every locator
// returns the local host.
type LocalOnly struct {
	localhost HostID
}

// NewLocalOnly constructs a LocalOnly distributor for the given host id.
func NewLocalOnly(localhost HostID) *LocalOnly {
	return &LocalOnly{localhost: localhost}
}

func (d *LocalOnly) Localhost() HostID { return d.localhost }

func (d *LocalOnly) LocateData(path string, chunkID ChunkID) HostID { return d.localhost }

func (d *LocalOnly) LocateFileMetadata(path string) HostID { return d.localhost }

func (d *LocalOnly) LocateDirectoryMetadata(path string) []HostID {
	return []HostID{d.localhost}
}

// Forwarder routes all data placement to a single configured forwarder host
// (used when compute nodes forward I/O to a dedicated I/O node); metadata
// placement still uses the hash function. Its Localhost reports the
// forwarder host; a Forwarder keeps no separate id for the local process.
type Forwarder struct {
	fwdHost  HostID
	numHosts uint32
	allHosts []HostID
}

// NewForwarder constructs a Forwarder distributor that sends all data I/O to
// fwdHost, among numHosts total daemons for metadata placement.
func NewForwarder(fwdHost HostID, numHosts uint32) *Forwarder {
	all := make([]HostID, numHosts)
	for i := range all {
		all[i] = HostID(i)
	}
	return &Forwarder{fwdHost: fwdHost, numHosts: numHosts, allHosts: all}
}

func (d *Forwarder) Localhost() HostID { return d.fwdHost }

func (d *Forwarder) LocateData(path string, chunkID ChunkID) HostID { return d.fwdHost }

func (d *Forwarder) LocateFileMetadata(path string) HostID {
	return HostID(stableHash(path) % uint64(d.numHosts))
}

func (d *Forwarder) LocateDirectoryMetadata(path string) []HostID {
	return d.allHosts
}

var (
	_ Distributor = (*Hash)(nil)
	_ Distributor = (*LocalOnly)(nil)
	_ Distributor = (*Forwarder)(nil)
)
