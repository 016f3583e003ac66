package diskcache

import (
	"github.com/gofrs/uuid"

	"github.com/cenkalti/diskcache/internal/bitfield"
	"github.com/cenkalti/diskcache/internal/bufferpool"
	"github.com/cenkalti/diskcache/internal/storage"
)

// WriteJob carries one block's worth of payload into the cache. The
// cache takes ownership of Buf once the block has been durably
// flushed; until then Buf belongs to the caller.
type WriteJob struct {
	ID      uuid.UUID
	Storage storage.Handle
	Piece   PieceIndex
	Block   int
	Buf     bufferpool.Buffer
}

// HashJob requests the final v1 piece hash and, optionally, the
// per-block v2 hashes of a piece. BlockHashes, if non-nil, is filled in
// up to min(len(BlockHashes), blocks_in_piece) entries.
type HashJob struct {
	ID          uuid.UUID
	PieceHash   [20]byte
	BlockHashes [][32]byte
}

// ClearJob is an opaque token the engine hands to TryClearPiece and
// receives back, unmodified, through a ClearPieceSink once the clear
// has actually run.
type ClearJob struct {
	ID uuid.UUID
}

// NewWriteJob returns a WriteJob with a fresh correlation ID.
func NewWriteJob(h storage.Handle, piece PieceIndex, block int, buf bufferpool.Buffer) *WriteJob {
	return &WriteJob{ID: mustUUID(), Storage: h, Piece: piece, Block: block, Buf: buf}
}

// NewHashJob returns a HashJob with a fresh correlation ID.
func NewHashJob(blockHashes [][32]byte) *HashJob {
	return &HashJob{ID: mustUUID(), BlockHashes: blockHashes}
}

// NewClearJob returns a ClearJob with a fresh correlation ID.
func NewClearJob() *ClearJob {
	return &ClearJob{ID: mustUUID()}
}

func mustUUID() uuid.UUID {
	id, err := uuid.NewV4()
	if err != nil {
		// Entropy exhaustion is not a condition this cache can recover
		// from meaningfully; callers get a zero UUID instead of a panic
		// so job bookkeeping degrades to "no correlation" rather than
		// crashing the ingest path.
		return uuid.UUID{}
	}
	return id
}

// WriterFunc writes the given blocks to disk. It must set a bit in
// flushed for every block it durably wrote and return the count of
// bits set. hashCursor is the piece's hasher cursor at the time the
// flush transaction began, passed through so the writer can decide
// whether a block it's about to write has already been consumed by
// the hasher (informational only; the cache does the bookkeeping that
// depends on it).
type WriterFunc func(flushed *bitfield.BitField, blocks []BlockView, hashCursor int) (count int)

// ClearPieceSink receives the write jobs aborted by a deferred clear,
// and the clear job itself, once a flush that was holding the piece
// locked completes and runs the parked clear.
type ClearPieceSink func(aborted []*WriteJob, job *ClearJob)
