package diskcache

import "github.com/cenkalti/diskcache/internal/bitfield"

// FlushToDisk is the disk-thread flush driver of spec §4.5. It makes
// three passes over different indexes of the piece store, stopping
// early as soon as the writer signals a short write or the ceiling on
// dirty blocks (targetBlocks) is met:
//
//  1. Finished pieces (V2, ready_to_flush first): flush every block of
//     every eligible piece regardless of targetBlocks.
//  2. Cheapest partial flushes (V1, cheapToFlush descending): flush the
//     contiguous hashed-but-unflushed prefix of each eligible piece.
//  3. Forced flush (V0, location order): flush whatever write jobs
//     remain, accepting that this may force a later disk re-read to
//     finish hashing.
//
// Passes 1 and 2 snapshot their candidate pieces before running any
// transaction, rather than walking the live btree, since a
// transaction's store.modify call rekeys the very trees a live walk
// would be iterating (spec §9's fourth Open Question).
func (c *Cache) FlushToDisk(writer WriterFunc, targetBlocks int, clearSink ClearPieceSink) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.flushPass1(writer, clearSink) {
		return
	}
	if c.flushPass2(writer, targetBlocks, clearSink) {
		return
	}
	c.flushPass3(writer, targetBlocks, clearSink)
}

// flushPass1 returns true if the driver should return immediately
// (a short write occurred).
func (c *Cache) flushPass1(writer WriterFunc, clearSink ClearPieceSink) bool {
	for _, pe := range c.pieces.snapshotReadyToFlush() {
		if pe.flushing {
			continue
		}
		if !pe.readyToFlush {
			break
		}

		numBlocks := countJobs(pe.blocks)
		count := c.runFlushTransaction(pe, 0, pe.blocks, numBlocks, writer)
		c.pieces.modify(pe, func(pe *pieceEntry) {
			pe.flushedCursor = computeFlushedCursor(pe.blocks)
			pe.readyToFlush = computeReadyToFlush(pe.blocks)
		})
		c.runDeferredClear(pe, clearSink)

		if pe.pieceHashReturned {
			c.pieces.erase(pe)
			c.metrics.piecesErased.Mark(1)
			log.Debugf("erased piece %v after its hash was collected", pe.location)
		}

		if count < numBlocks {
			return true
		}
	}
	return false
}

// flushPass2 returns true if the driver should return immediately.
func (c *Cache) flushPass2(writer WriterFunc, targetBlocks int, clearSink ClearPieceSink) bool {
	for _, pe := range c.pieces.snapshotCheapToFlush() {
		if c.mBlocks-c.mFlushingBlocks <= targetBlocks {
			return true
		}
		numBlocks := pe.cheapToFlush()
		if numBlocks <= 0 {
			break
		}
		if pe.flushing {
			continue
		}

		blocks := pe.blocks[pe.flushedCursor : pe.flushedCursor+numBlocks]
		count := c.runFlushTransaction(pe, pe.flushedCursor, blocks, numBlocks, writer)
		c.pieces.modify(pe, func(pe *pieceEntry) {
			pe.flushedCursor = computeFlushedCursor(pe.blocks)
		})
		c.runDeferredClear(pe, clearSink)

		if count < numBlocks {
			return true
		}
	}
	return false
}

func (c *Cache) flushPass3(writer WriterFunc, targetBlocks int, clearSink ClearPieceSink) {
	for _, pe := range c.pieces.snapshotByLocation() {
		if c.mBlocks-c.mFlushingBlocks <= targetBlocks {
			return
		}
		if pe.flushing {
			continue
		}
		numBlocks := countJobs(pe.blocks)
		if numBlocks == 0 {
			continue
		}

		count := c.runFlushTransaction(pe, 0, pe.blocks, numBlocks, writer)
		c.pieces.modify(pe, func(pe *pieceEntry) {
			pe.flushedCursor = computeFlushedCursor(pe.blocks)
		})
		c.runDeferredClear(pe, clearSink)

		if count < numBlocks {
			return
		}
	}
}

// FlushStorage purges one torrent's pieces, per spec §4.4/§9. Every
// piece it manages to flush is erased from the store regardless of
// pieceHashReturned — the spec's source notes this policy as possibly
// incorrect and asks implementers to make it explicit and testable
// rather than infer a fix, so this module does exactly that.
func (c *Cache) FlushStorage(writer WriterFunc, id StorageID, clearSink ClearPieceSink) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, pe := range c.pieces.piecesByStorage(id) {
		if pe.flushing {
			continue
		}
		numBlocks := countJobs(pe.blocks)
		if numBlocks == 0 {
			continue
		}

		c.runFlushTransaction(pe, 0, pe.blocks, numBlocks, writer)
		c.pieces.modify(pe, func(pe *pieceEntry) {
			pe.flushedCursor = computeFlushedCursor(pe.blocks)
		})
		c.runDeferredClear(pe, clearSink)

		assertf(!pe.flushing, "flush_storage: %v still flushing after transaction", pe.location)
		assertf(!pe.hashing, "flush_storage: %v hashing during purge", pe.location)
		c.pieces.erase(pe)
		c.metrics.piecesErased.Mark(1)
		log.Debugf("erased piece %v during storage purge", pe.location)
	}
}

// runFlushTransaction runs the per-iteration flush transaction common
// to all three FlushToDisk passes and to FlushStorage (spec §4.5): it
// marks pe flushing, releases mu for the writer call, and on every
// exit path (including a panicking writer) reacquires mu, then clears
// flushing and restores mFlushingBlocks. mu must be held on entry and
// is held again on return.
//
// numBlocks is the count claimed against mFlushingBlocks and is not
// always len(blocks): passes 1 and 3 and FlushStorage pass the whole
// piece array as blocks but only countJobs(blocks) of them are
// actually dirty, and mFlushingBlocks must track the latter.
func (c *Cache) runFlushTransaction(pe *pieceEntry, offset int, blocks []blockEntry, numBlocks int, writer WriterFunc) int {
	assertf(!pe.flushing, "flush: %v already flushing", pe.location)
	pe.flushing = true
	c.mFlushingBlocks += numBlocks
	hashCursor := pe.hasherCursor

	// Only blocks with a pending write job get bytes in their view: a
	// flushed block may still hold its buffer but has nothing to write.
	views := make([]BlockView, len(blocks))
	for i := range blocks {
		views[i] = BlockView{Index: offset + i}
		if blocks[i].writeJob != nil {
			views[i].Bytes = blocks[i].writeJob.Buf.Data
		}
	}

	log.Debugf("flush transaction start: piece %v offset %d blocks %d", pe.location, offset, numBlocks)

	c.mu.Unlock()
	flushed := bitfield.New(uint32(len(blocks)))
	var count int
	func() {
		defer func() {
			c.mu.Lock()
			pe.flushing = false
			c.mFlushingBlocks -= numBlocks
		}()
		count = writer(&flushed, views, hashCursor)
	}()

	var bytesFlushed int64
	for i := 0; i < len(blocks); i++ {
		if !flushed.Test(uint32(i)) {
			continue
		}
		blk := &blocks[i]
		assertf(blk.writeJob != nil, "flush: block %d of %v has no write job to flush", offset+i, pe.location)
		blk.setBuf(blk.writeJob.Buf)
		bytesFlushed += int64(len(blk.bytes()))
		blk.flushedToDisk = true
		blk.writeJob = nil
		if offset+i < hashCursor {
			blk.releaseBuf()
		}
	}

	c.mBlocks -= count
	c.metrics.blocksFlushed.Mark(int64(count))
	c.metrics.bytesFlushed.Mark(bytesFlushed)

	log.Debugf("flush transaction end: piece %v flushed %d of %d blocks", pe.location, count, numBlocks)

	return count
}

// runDeferredClear runs a clear that was parked on pe while it was
// flushing, handing the aborted write jobs and the clear job to sink.
// No-op if no clear is parked.
func (c *Cache) runDeferredClear(pe *pieceEntry, sink ClearPieceSink) {
	if pe.clearPiece == nil {
		return
	}
	job := pe.clearPiece
	aborted := c.clearPieceImpl(pe)
	pe.clearPiece = nil
	c.metrics.clearsExecuted.Mark(1)
	if sink != nil {
		sink(aborted, job)
	}
}
