// Package chunkcalc implements the pure chunk-arithmetic functions that map
// a byte range onto chunk ids, alignments, and paddings (spec.md §4.1, C1).
//
// Chunk size is always a power of two, which lets every function here
// replace division/modulus with shifts and masks.
package chunkcalc

import "math/bits"

// Log2 returns ⌊log2(n)⌋ for 1 ≤ n ≤ 2^63. The original computes this with a
// de Bruijn lookup table; bits.Len64 gives the identical result in one
// instruction-equivalent call and needs no table, so it is used directly
// (see DESIGN.md for why this substitution is noted rather than silent).
func Log2(n uint64) int {
	if n == 0 {
		return 0
	}
	return bits.Len64(n) - 1
}

// ChunkID returns the id of the chunk containing byte offset off, for a
// chunk size chunkSize (must be a power of two).
func ChunkID(off int64, chunkSize uint64) uint64 {
	return uint64(LeftAlign(off, chunkSize)) >> Log2(chunkSize)
}

// LeftAlign rounds off down to the nearest chunk boundary.
func LeftAlign(off int64, chunkSize uint64) int64 {
	return off &^ (int64(chunkSize) - 1)
}

// RightAlign rounds off up to the nearest chunk boundary.
func RightAlign(off int64, chunkSize uint64) int64 {
	return LeftAlign(off+int64(chunkSize), chunkSize)
}

// LeftPad returns the number of bytes between off and the chunk boundary to
// its left. Zero if off is itself a boundary.
func LeftPad(off int64, chunkSize uint64) uint64 {
	return uint64(off) % chunkSize
}

// RightPad returns the number of bytes between off and the chunk boundary to
// its right. Zero if off is itself a boundary.
func RightPad(off int64, chunkSize uint64) uint64 {
	return uint64(-off) % chunkSize
}

// Count returns the number of chunks touched by an operation spanning count
// bytes starting at off. Returns 0 for count == 0, per spec.md §4.1.
func Count(off int64, count int64, chunkSize uint64) uint64 {
	if count == 0 {
		return 0
	}
	start := LeftAlign(off, chunkSize) >> Log2(chunkSize)
	end := LeftAlign(off+count-1, chunkSize) >> Log2(chunkSize)
	return uint64(end-start) + 1
}
