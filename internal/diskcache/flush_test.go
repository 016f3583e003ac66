package diskcache

import (
	"testing"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/cenkalti/diskcache/internal/bitfield"
)

func writeAll(flushed *bitfield.BitField, blocks []BlockView, hashCursor int) int {
	for i := range blocks {
		flushed.Set(uint32(i))
	}
	return len(blocks)
}

// writePresent marks every block that actually has bytes to write,
// the contract pass 3's full-array writer calls are expected to
// honor since the array can include blocks with no pending job at all.
func writePresent(flushed *bitfield.BitField, blocks []BlockView, hashCursor int) int {
	n := 0
	for i, b := range blocks {
		if b.Bytes != nil {
			flushed.Set(uint32(i))
			n++
		}
	}
	return n
}

func writeN(n int) WriterFunc {
	return func(flushed *bitfield.BitField, blocks []BlockView, hashCursor int) int {
		for i := 0; i < n && i < len(blocks); i++ {
			flushed.Set(uint32(i))
		}
		if n < len(blocks) {
			return n
		}
		return len(blocks)
	}
}

func TestFlushPass1FlushesFinishedPieceAndErasesItWhenHashAlreadyReturned(t *testing.T) {
	defer leaktest.Check(t)()

	c := New()
	h := newFakeHandle(8, testBlockSize, true, false)
	loc := PieceLocation{Piece: 0}
	c.Insert(loc, 0, NewWriteJob(h, 0, 0, block("aaaa")))
	c.Insert(loc, 1, NewWriteJob(h, 0, 1, block("bbbb")))

	var completed []*HashJob
	c.KickHasher(loc, &completed)
	job := NewHashJob(nil)
	require.Equal(t, Completed, c.TryHashPiece(loc, job))

	pe := c.pieces.byID[loc]
	require.True(t, pe.readyToFlush)
	require.True(t, pe.pieceHashReturned)

	c.FlushToDisk(writeAll, 0, nil)

	require.Equal(t, 0, c.Size())
	_, ok := c.pieces.get(loc)
	require.False(t, ok, "a finished, hash-returned piece is erased once fully flushed")
}

func TestFlushPass1KeepsUnreturnedPieceAfterFlushing(t *testing.T) {
	defer leaktest.Check(t)()

	c := New()
	h := newFakeHandle(8, testBlockSize, true, false)
	loc := PieceLocation{Piece: 0}
	c.Insert(loc, 0, NewWriteJob(h, 0, 0, block("aaaa")))
	c.Insert(loc, 1, NewWriteJob(h, 0, 1, block("bbbb")))

	c.FlushToDisk(writeAll, 0, nil)

	pe, ok := c.pieces.get(loc)
	require.True(t, ok, "piece stays cached until its hash is collected")
	require.Equal(t, 2, pe.flushedCursor)
	require.Equal(t, 0, c.Size())
}

func TestFlushPass2FlushesOnlyHashedPrefix(t *testing.T) {
	defer leaktest.Check(t)()

	c := New()
	h := newFakeHandle(16, testBlockSize, true, false)
	loc := PieceLocation{Piece: 0}
	c.Insert(loc, 0, NewWriteJob(h, 0, 0, block("aaaa")))
	c.Insert(loc, 1, NewWriteJob(h, 0, 1, block("bbbb")))
	c.Insert(loc, 3, NewWriteJob(h, 0, 3, block("dddd")))

	var completed []*HashJob
	c.KickHasher(loc, &completed)

	pe := c.pieces.byID[loc]
	require.Equal(t, 2, pe.hasherCursor)
	require.False(t, pe.readyToFlush, "block 2 is still missing")

	c.FlushToDisk(writeAll, 1, nil)

	require.Equal(t, 2, pe.flushedCursor, "only the hashed prefix is cheap to flush")
	require.Equal(t, 1, c.Size(), "block 3's write job is still dirty, untouched by pass 2")
}

func TestFlushPass3ForcesRemainingDirtyBlocksUnderCeiling(t *testing.T) {
	defer leaktest.Check(t)()

	c := New()
	h := newFakeHandle(16, testBlockSize, true, false)
	loc := PieceLocation{Piece: 0}
	c.Insert(loc, 0, NewWriteJob(h, 0, 0, block("aaaa")))
	c.Insert(loc, 3, NewWriteJob(h, 0, 3, block("dddd")))

	c.FlushToDisk(writePresent, 0, nil)

	pe := c.pieces.byID[loc]
	require.Nil(t, pe.blocks[0].writeJob)
	require.Nil(t, pe.blocks[3].writeJob)
	require.Equal(t, 0, c.Size())
}

// TestFlushPass3ReportsFlushingCountOfOnlyDirtyBlocks samples
// NumFlushing() while pass 3's writer callback is blocked for a piece
// where countJobs(pe.blocks) is strictly less than blocksInPiece
// (blocks 0 and 3 dirty out of 4). mFlushingBlocks must reflect the
// two dirty blocks actually claimed by the transaction, not the whole
// piece array, and must return to 0 once the transaction completes.
func TestFlushPass3ReportsFlushingCountOfOnlyDirtyBlocks(t *testing.T) {
	defer leaktest.Check(t)()

	c := New()
	h := newFakeHandle(16, testBlockSize, true, false)
	loc := PieceLocation{Piece: 0}
	c.Insert(loc, 0, NewWriteJob(h, 0, 0, block("aaaa")))
	c.Insert(loc, 3, NewWriteJob(h, 0, 3, block("dddd")))

	release := make(chan struct{})
	entered := make(chan struct{})
	stallingWriter := func(flushed *bitfield.BitField, blocks []BlockView, hashCursor int) int {
		close(entered)
		<-release
		return writePresent(flushed, blocks, hashCursor)
	}

	require.Equal(t, 0, c.NumFlushing())

	var g errgroup.Group
	g.Go(func() error {
		c.FlushToDisk(stallingWriter, 0, nil)
		return nil
	})

	<-entered
	require.Equal(t, 2, c.NumFlushing(), "only the 2 dirty blocks should be claimed, not all 4 in the piece")

	close(release)
	require.NoError(t, g.Wait())

	require.Equal(t, 0, c.NumFlushing(), "mFlushingBlocks must return to 0 once the transaction completes")
}

func TestFlushStopsUnderCeilingBeforeForcing(t *testing.T) {
	defer leaktest.Check(t)()

	c := New()
	h := newFakeHandle(16, testBlockSize, true, false)
	loc := PieceLocation{Piece: 0}
	c.Insert(loc, 0, NewWriteJob(h, 0, 0, block("aaaa")))
	c.Insert(loc, 3, NewWriteJob(h, 0, 3, block("dddd")))

	c.FlushToDisk(writePresent, 10, nil)

	require.Equal(t, 2, c.Size(), "dirty count is already at/under the ceiling, nothing forced")
}

func TestFlushShortWriteStopsTheWholeDriver(t *testing.T) {
	defer leaktest.Check(t)()

	c := New()
	h := newFakeHandle(16, testBlockSize, true, false)

	locA := PieceLocation{Piece: 0}
	c.Insert(locA, 0, NewWriteJob(h, 0, 0, block("aaaa")))
	c.Insert(locA, 1, NewWriteJob(h, 0, 1, block("bbbb")))
	c.Insert(locA, 2, NewWriteJob(h, 0, 2, block("cccc")))
	c.Insert(locA, 3, NewWriteJob(h, 0, 3, block("dddd")))

	locB := PieceLocation{Piece: 1}
	c.Insert(locB, 0, NewWriteJob(h, 1, 0, block("eeee")))
	c.Insert(locB, 1, NewWriteJob(h, 1, 1, block("ffff")))
	c.Insert(locB, 2, NewWriteJob(h, 1, 2, block("gggg")))
	c.Insert(locB, 3, NewWriteJob(h, 1, 3, block("hhhh")))

	c.FlushToDisk(writeN(2), 0, nil)

	require.Equal(t, 6, c.Size(), "only the first piece's transaction ran before the short write stopped the driver")
}

func TestFlushStorageErasesRegardlessOfHashReturned(t *testing.T) {
	defer leaktest.Check(t)()

	c := New()
	h := newFakeHandle(8, testBlockSize, true, false)
	loc := PieceLocation{Storage: 3, Piece: 0}
	c.Insert(loc, 0, NewWriteJob(h, 0, 0, block("aaaa")))
	c.Insert(loc, 1, NewWriteJob(h, 0, 1, block("bbbb")))

	_, ok := c.pieces.get(loc)
	require.True(t, ok)

	c.FlushStorage(writeAll, 3, nil)

	_, ok = c.pieces.get(loc)
	require.False(t, ok, "FlushStorage erases every piece it flushes, hash collected or not")
}

func TestFlushStorageOnlyTouchesNamedStorage(t *testing.T) {
	defer leaktest.Check(t)()

	c := New()
	h := newFakeHandle(8, testBlockSize, true, false)
	keep := PieceLocation{Storage: 1, Piece: 0}
	gone := PieceLocation{Storage: 2, Piece: 0}
	c.Insert(keep, 0, NewWriteJob(h, 0, 0, block("aaaa")))
	c.Insert(gone, 0, NewWriteJob(h, 0, 0, block("bbbb")))

	c.FlushStorage(writeAll, 2, nil)

	_, ok := c.pieces.get(keep)
	require.True(t, ok)
	_, ok = c.pieces.get(gone)
	require.False(t, ok)
}

func TestTryClearPieceDeferredDuringFlushRunsOnCompletion(t *testing.T) {
	defer leaktest.Check(t)()

	c := New()
	h := newFakeHandle(8, testBlockSize, true, false)
	loc := PieceLocation{Piece: 0}
	c.Insert(loc, 0, NewWriteJob(h, 0, 0, block("aaaa")))
	c.Insert(loc, 1, NewWriteJob(h, 0, 1, block("bbbb")))

	pe := c.pieces.byID[loc]
	pe.flushing = true

	clearJob := NewClearJob()
	ok, aborted := c.TryClearPiece(loc, clearJob)
	require.False(t, ok)
	require.Nil(t, aborted)
	require.Equal(t, clearJob, pe.clearPiece)

	var sunkAborted []*WriteJob
	var sunkJob *ClearJob
	c.mu.Lock()
	pe.flushing = false
	c.runDeferredClear(pe, func(aborted []*WriteJob, job *ClearJob) {
		sunkAborted = aborted
		sunkJob = job
	})
	c.mu.Unlock()

	require.Equal(t, clearJob, sunkJob)
	require.Len(t, sunkAborted, 2)
	require.Nil(t, pe.clearPiece)
}
