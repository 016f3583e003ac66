package diskcache

import (
	"crypto/sha1"
	"hash"

	sha256simd "github.com/minio/sha256-simd"
)

// pieceEntry owns one piece's block array and its incremental v1
// hasher state. It is created the first time any block of its
// location is ingested and destroyed either when a flush completes
// with pieceHashReturned true, or by a storage-wide purge.
type pieceEntry struct {
	location PieceLocation

	blocksInPiece int
	blocks        []blockEntry

	ph hash.Hash // incremental v1 (SHA-1) hasher

	readyToFlush       bool
	hashing            bool
	flushing           bool
	pieceHashReturned  bool
	v1Hashes, v2Hashes bool

	hasherCursor  int
	flushedCursor int

	hashJob    *HashJob
	clearPiece *ClearJob
}

func newPieceEntry(loc PieceLocation, blocksInPiece int, v1, v2 bool) *pieceEntry {
	return &pieceEntry{
		location:      loc,
		blocksInPiece: blocksInPiece,
		blocks:        make([]blockEntry, blocksInPiece),
		ph:            sha1.New(),
		v1Hashes:      v1,
		v2Hashes:      v2,
	}
}

// cheapToFlush is the number of contiguous leading blocks, beyond the
// flushed cursor, that have already been hashed and can be written to
// disk without requiring a later read-back. It is the key of index V1.
func (pe *pieceEntry) cheapToFlush() int {
	return pe.hasherCursor - pe.flushedCursor
}

// computeReadyToFlush recomputes P3: every block has either a pending
// write job or is already flushed.
func computeReadyToFlush(blocks []blockEntry) bool {
	for i := range blocks {
		if blocks[i].writeJob == nil && !blocks[i].flushedToDisk {
			return false
		}
	}
	return true
}

// computeFlushedCursor recomputes the count of contiguous leading
// flushed blocks.
func computeFlushedCursor(blocks []blockEntry) int {
	n := 0
	for i := range blocks {
		if !blocks[i].flushedToDisk {
			return n
		}
		n++
	}
	return n
}

// countJobs returns the number of blocks still carrying a pending
// write job.
func countJobs(blocks []blockEntry) int {
	n := 0
	for i := range blocks {
		if blocks[i].writeJob != nil {
			n++
		}
	}
	return n
}

// haveBuffers reports whether every block in blocks currently has a
// byte view (buffer or write-job payload).
func haveBuffers(blocks []blockEntry) bool {
	for i := range blocks {
		if blocks[i].bytes() == nil {
			return false
		}
	}
	return true
}

func newSHA256() hash.Hash {
	return sha256simd.New()
}
