package diskcache

import "github.com/cenkalti/diskcache/internal/bufferpool"

// blockEntry is the per-block cell of a pieceEntry. At most one of
// writeJob and buf is ever set (invariant B1); flushedToDisk implies
// writeJob is nil and buf is set, until the buffer is released.
type blockEntry struct {
	writeJob *WriteJob

	// buf is the owned buffer once the block has been flushed to disk.
	// hasBuf tracks its presence, since the zero value of
	// bufferpool.Buffer is not itself a meaningful "absent" sentinel.
	buf    bufferpool.Buffer
	hasBuf bool

	flushedToDisk bool

	// blockHash is meaningful only once the piece's hasherCursor has
	// passed this block's index on a v2 torrent.
	blockHash [32]byte
}

// bytes returns the block's current byte view per invariant B2: the
// owned buffer if present, else the pending write job's payload, else
// nil.
func (b *blockEntry) bytes() []byte {
	if b.hasBuf {
		return b.buf.Data
	}
	if b.writeJob != nil {
		return b.writeJob.Buf.Data
	}
	return nil
}

// setBuf installs an owned buffer, releasing any buffer already held.
func (b *blockEntry) setBuf(buf bufferpool.Buffer) {
	if b.hasBuf {
		b.buf.Release()
	}
	b.buf = buf
	b.hasBuf = true
}

// releaseBuf releases the owned buffer, if any, back to its pool.
func (b *blockEntry) releaseBuf() {
	if b.hasBuf {
		b.buf.Release()
		b.hasBuf = false
		b.buf = bufferpool.Buffer{}
	}
}

// BlockView is the read-only projection of a block handed to writer
// callbacks outside the cache mutex. Index is the block's position
// within the piece being flushed or hashed.
type BlockView struct {
	Index int
	Bytes []byte
}
