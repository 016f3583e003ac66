// Package diskcache implements a block-level disk cache for a
// BitTorrent-style piece I/O layer. It buffers inbound write jobs
// arriving block by block and possibly out of order, drives the v1
// (SHA-1) and optional v2 (SHA-256 per block) hashing pipelines, and
// flushes buffered blocks to persistent storage under a target memory
// ceiling. It does not perform disk I/O itself: callers supply a
// WriterFunc and read back bytes via the block views the cache hands
// out.
package diskcache

import (
	"hash"
	"sync"

	"github.com/cenkalti/diskcache/internal/logger"
	"github.com/cenkalti/diskcache/internal/storage"
)

// DefaultBlockSize is the block size a Handle implementation should
// return from BlockSize() absent a reason to do otherwise. It is not
// used by the cache itself for sizing pieces — that is taken from the
// handle, per spec §9 — but is exported as the value real engines are
// expected to default to.
const DefaultBlockSize = 16 * 1024

var log = logger.New("diskcache")

// Cache is the façade described in spec §4.4. All methods acquire mu
// on entry; HashPiece, KickHasher, FlushToDisk, and FlushStorage
// release and reacquire it around hashing and I/O, as documented on
// each method.
type Cache struct {
	mu sync.Mutex

	pieces *store

	// mBlocks is the count of dirty blocks (writeJob != nil) across all
	// pieces. mFlushingBlocks is the sum of block counts currently
	// claimed by in-progress flush transactions.
	mBlocks         int
	mFlushingBlocks int

	metrics *cacheMetrics
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{
		pieces:  newStore(),
		metrics: newCacheMetrics(),
	}
}

// Get is the read-side peek of spec §4.4: if the piece exists and the
// given block has a non-empty byte view, f is invoked with those bytes
// while mu is held, and Get returns true. f must not reenter the
// cache.
func (c *Cache) Get(loc PieceLocation, blockIdx int, f func([]byte)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	pe, ok := c.pieces.get(loc)
	if !ok {
		return false
	}
	b := pe.blocks[blockIdx].bytes()
	if b == nil {
		return false
	}
	f(b)
	return true
}

// Get2 is the two-consecutive-block peek used for read assembly across
// a block boundary. If either block has a byte view, f is invoked with
// both views (nil for the one that's absent) and Get2 returns f's
// result; otherwise it returns 0.
func (c *Cache) Get2(loc PieceLocation, blockIdx int, f func(v1, v2 []byte) int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	pe, ok := c.pieces.get(loc)
	if !ok {
		return 0
	}
	b1 := pe.blocks[blockIdx].bytes()
	b2 := pe.blocks[blockIdx+1].bytes()
	if b1 == nil && b2 == nil {
		return 0
	}
	return f(b1, b2)
}

// Hash2 obtains a v2 block hash, following the policy of spec §4.4:
// absent piece or concurrent hashing ⇒ fall back to f (caller reads
// from disk and hashes); already hashed ⇒ cached hash; bytes present
// ⇒ hash inline; otherwise ⇒ fall back to f. f is called without mu
// held.
func (c *Cache) Hash2(loc PieceLocation, blockIdx int, f func() [32]byte) [32]byte {
	c.mu.Lock()

	pe, ok := c.pieces.get(loc)
	if ok {
		if pe.hashing {
			c.mu.Unlock()
			return f()
		}
		blk := &pe.blocks[blockIdx]
		if pe.hasherCursor > blockIdx {
			h := blk.blockHash
			c.mu.Unlock()
			return h
		}
		if b := blk.bytes(); b != nil {
			h := newSHA256()
			h.Write(b)
			var out [32]byte
			copy(out[:], h.Sum(nil))
			c.mu.Unlock()
			return out
		}
	}
	c.mu.Unlock()
	return f()
}

// HashPiece drives the v1 piece hasher from a hasher thread. If the
// piece is absent, it returns false without calling f. Otherwise it
// snapshots the piece's block byte views, marks the piece hashing,
// releases mu, calls f with the live hasher (f is expected to Write
// bytes into it) and pointers into the piece's v2 block hashes (f may
// assign through them), then reacquires mu and clears hashing on every
// exit path — even if f panics.
func (c *Cache) HashPiece(loc PieceLocation, f func(ph hash.Hash, hasherCursor int, blocks []BlockView, v2Hashes []*[32]byte)) bool {
	c.mu.Lock()

	pe, ok := c.pieces.get(loc)
	if !ok {
		c.mu.Unlock()
		return false
	}

	blocks := make([]BlockView, pe.blocksInPiece)
	v2Hashes := make([]*[32]byte, pe.blocksInPiece)
	for i := range pe.blocks {
		blocks[i] = BlockView{Index: i, Bytes: pe.blocks[i].bytes()}
		v2Hashes[i] = &pe.blocks[i].blockHash
	}
	pe.hashing = true
	hasherCursor := pe.hasherCursor
	ph := pe.ph

	log.Debugf("hashing started: piece %v hasher cursor %d", loc, hasherCursor)

	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		pe.hashing = false
		log.Debugf("hashing finished: piece %v", loc)
		c.mu.Unlock()
	}()

	f(ph, hasherCursor, blocks, v2Hashes)
	return true
}

// Insert ingests a write job for one block, per spec §4.4. The piece
// entry is created on first use, sizing blocksInPiece from the job's
// storage handle. It returns true iff blockIdx == 0 or the piece just
// became ready to flush — the signal callers use to kick the hasher
// and/or the flusher.
func (c *Cache) Insert(loc PieceLocation, blockIdx int, job *WriteJob) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	pe, ok := c.pieces.get(loc)
	if !ok {
		blocksInPiece := blocksInPiece(job.Storage, loc.Piece)
		pe = newPieceEntry(loc, blocksInPiece, job.Storage.V1(), job.Storage.V2())
		c.pieces.insert(pe)
		log.Debugf("created piece entry %v with %d blocks", loc, blocksInPiece)
	}

	blk := &pe.blocks[blockIdx]
	assertf(blk.writeJob == nil, "insert: block %d of %v already has a write job", blockIdx, loc)
	assertf(!blk.hasBuf, "insert: block %d of %v already has a buffer", blockIdx, loc)
	assertf(!blk.flushedToDisk, "insert: block %d of %v already flushed", blockIdx, loc)
	assertf(blockIdx >= pe.flushedCursor, "insert: block %d of %v below flushed cursor %d", blockIdx, loc, pe.flushedCursor)
	assertf(blockIdx >= pe.hasherCursor, "insert: block %d of %v below hasher cursor %d", blockIdx, loc, pe.hasherCursor)

	blk.writeJob = job
	c.mBlocks++
	c.metrics.blocksInserted.Mark(1)

	ready := computeReadyToFlush(pe.blocks)
	if ready != pe.readyToFlush {
		c.pieces.modify(pe, func(pe *pieceEntry) { pe.readyToFlush = ready })
	}

	return blockIdx == 0 || ready
}

// blocksInPiece computes ceil(piece_size / block_size) from the
// storage handle, resolving the spec §9 Open Question by taking the
// block size from the handle rather than a hard-coded constant.
func blocksInPiece(h storage.Handle, piece PieceIndex) int {
	size := h.PieceSize(piece)
	bs := h.BlockSize()
	assertf(bs > 0, "blocksInPiece: non-positive block size %d", bs)
	n := (size + bs - 1) / bs
	if n < 1 {
		n = 1
	}
	return int(n)
}

// HashResult is the outcome of TryHashPiece.
type HashResult int

const (
	// Completed means the hash job was filled in immediately.
	Completed HashResult = iota
	// Queued means the job was attached to the piece and will be
	// completed by the hasher thread that finishes hashing it.
	Queued
	// PostJob means the caller must post a read-and-hash job to the
	// disk layer; the cache cannot satisfy the request itself.
	PostJob
)

func (r HashResult) String() string {
	switch r {
	case Completed:
		return "Completed"
	case Queued:
		return "Queued"
	case PostJob:
		return "PostJob"
	default:
		return "HashResult(?)"
	}
}

// TryHashPiece requests the final piece hash per spec §4.4.
func (c *Cache) TryHashPiece(loc PieceLocation, job *HashJob) HashResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	pe, ok := c.pieces.get(loc)
	if !ok {
		return PostJob
	}

	assertf(!pe.pieceHashReturned, "try_hash_piece: %v already returned its hash", loc)

	if !pe.hashing && pe.hasherCursor == pe.blocksInPiece {
		job.PieceHash = sumToArray20(pe.ph.Sum(nil))
		toCopy := pe.blocksInPiece
		if len(job.BlockHashes) < toCopy {
			toCopy = len(job.BlockHashes)
		}
		for i := 0; i < toCopy; i++ {
			job.BlockHashes[i] = pe.blocks[i].blockHash
		}
		pe.pieceHashReturned = true
		return Completed
	}

	if pe.hashing && pe.hasherCursor < pe.blocksInPiece && haveBuffers(pe.blocks[pe.hasherCursor:]) {
		assertf(pe.hashJob == nil, "try_hash_piece: %v already has a queued hash job", loc)
		pe.hashJob = job
		return Queued
	}

	return PostJob
}

func sumToArray20(b []byte) [20]byte {
	var out [20]byte
	copy(out[:], b)
	return out
}

// Size returns the current count of dirty blocks.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mBlocks
}

// NumFlushing returns the current count of blocks claimed by
// in-progress flush transactions.
func (c *Cache) NumFlushing() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mFlushingBlocks
}
