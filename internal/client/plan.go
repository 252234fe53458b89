// Package client implements the client-side dispatch algorithm (spec.md
// §4.8, C8) and the process-wide open-file table (spec.md §4.9, C9).
package client

import (
	"gkfs/internal/chunkcalc"
	"gkfs/internal/distributor"
)

// chunkSpan is one chunk's share of a contiguous byte range: which chunk,
// the window of bytes within it, and that window's position in the
// caller's flat buffer.
type chunkSpan struct {
	chunkID    uint64
	offInChunk uint64
	n          int64
	bufStart   int64
}

// planChunkSpans partitions the byte range [offset, offset+n) into one
// chunkSpan per chunk it touches, per the chunk_id/alignment functions of
// spec.md §4.1 (C1).
func planChunkSpans(offset, n int64, chunkSize uint64) []chunkSpan {
	if n <= 0 {
		return nil
	}
	end := offset + n
	spans := make([]chunkSpan, 0, int(chunkcalc.Count(offset, n, chunkSize)))
	pos := offset
	var bufStart int64
	for pos < end {
		id := chunkcalc.ChunkID(pos, chunkSize)
		offInChunk := chunkcalc.LeftPad(pos, chunkSize)
		avail := int64(chunkSize - offInChunk)
		remaining := end - pos
		length := avail
		if remaining < length {
			length = remaining
		}
		spans = append(spans, chunkSpan{
			chunkID:    id,
			offInChunk: offInChunk,
			n:          length,
			bufStart:   bufStart,
		})
		pos += length
		bufStart += length
	}
	return spans
}

// chunkRun groups consecutive chunkSpans that land on the same destination
// daemon into one request, so a host that owns a contiguous stretch of a
// file's chunks gets one RPC instead of one per chunk.
type chunkRun struct {
	host  distributor.HostID
	spans []chunkSpan
}

// dataStart and dataEnd give the run's contiguous slice of the caller's
// flat buffer (spans within one run are always buffer-contiguous, since
// planChunkSpans lays them out in order).
func (r chunkRun) dataStart() int64 { return r.spans[0].bufStart }
func (r chunkRun) dataEnd() int64 {
	last := r.spans[len(r.spans)-1]
	return last.bufStart + last.n
}
func (r chunkRun) chunkIDStart() uint64  { return r.spans[0].chunkID }
func (r chunkRun) totalChunks() uint64   { return uint64(len(r.spans)) }
func (r chunkRun) offsetInFirst() uint64 { return r.spans[0].offInChunk }

// planRuns partitions spans by destination daemon (spec.md §4.8 step 2),
// coalescing adjacent same-host chunks into a single run (step 3: "a bulk
// region covering exactly the bytes this daemon is responsible for").
// Runs are returned in ascending chunk-id order.
func planRuns(path string, spans []chunkSpan, dist distributor.Distributor) []chunkRun {
	var runs []chunkRun
	for _, sp := range spans {
		host := dist.LocateData(path, distributor.ChunkID(sp.chunkID))
		if n := len(runs); n > 0 {
			last := &runs[n-1]
			prev := last.spans[len(last.spans)-1]
			if last.host == host && sp.chunkID == prev.chunkID+1 {
				last.spans = append(last.spans, sp)
				continue
			}
		}
		runs = append(runs, chunkRun{host: host, spans: []chunkSpan{sp}})
	}
	return runs
}
