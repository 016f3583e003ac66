package diskcache

import "crypto/sha1"

// TryClearPiece is the explicit clear of spec §4.4, called by the
// engine after a failed piece hash check (or any time it wants the
// cache to forget a piece's in-flight state).
//
//   - Absent piece: nothing to do, returns true.
//   - flushing == true: the clear can't safely run while a disk thread
//     holds the piece pinned, so it's parked as clearPiece and TryClearPiece
//     returns false; the flush transaction that eventually clears
//     flushing runs it.
//   - hashing == true: per spec §9, this branch is unreachable in a
//     correct engine (clears only follow a failed hash check, by which
//     point hashing should already be false) — but the assertion and
//     the defensive parking are kept exactly as the source does, rather
//     than silently assuming they can't both be asked for.
//   - Otherwise clearPieceImpl runs inline and TryClearPiece returns
//     true.
func (c *Cache) TryClearPiece(loc PieceLocation, job *ClearJob) (ok bool, aborted []*WriteJob) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pe, found := c.pieces.get(loc)
	if !found {
		return true, nil
	}

	if pe.flushing {
		pe.clearPiece = job
		c.metrics.clearsDeferred.Mark(1)
		log.Debugf("clear parked: piece %v is flushing", loc)
		return false, nil
	}

	assertf(!pe.hashing, "try_clear_piece: %v is hashing; clears should only follow a failed hash check", loc)
	if pe.hashing {
		pe.clearPiece = job
		c.metrics.clearsDeferred.Mark(1)
		log.Errorf("clear parked: piece %v is hashing, which should be unreachable for a correct engine", loc)
		return false, nil
	}

	aborted = c.clearPieceImpl(pe)
	c.metrics.clearsExecuted.Mark(1)
	return true, aborted
}

// clearPieceImpl is the internal helper of spec §4.6, run with mu held
// and both flushing and hashing already false. It drains pending write
// jobs into aborted, releases owned buffers, and resets the cursors,
// flags and v1 hasher so new blocks can be ingested again. Blocks that
// had already been flushed (no pending write job) keep flushedToDisk
// set, so Insert still rejects those block indices afterwards.
func (c *Cache) clearPieceImpl(pe *pieceEntry) []*WriteJob {
	assertf(!pe.flushing, "clear_piece_impl: %v is flushing", pe.location)
	assertf(!pe.hashing, "clear_piece_impl: %v is hashing", pe.location)

	var aborted []*WriteJob
	for i := range pe.blocks {
		blk := &pe.blocks[i]
		if blk.writeJob != nil {
			aborted = append(aborted, blk.writeJob)
			blk.writeJob = nil
			blk.flushedToDisk = false
			c.mBlocks--
		}
		blk.releaseBuf()
	}

	c.pieces.modify(pe, func(pe *pieceEntry) {
		pe.readyToFlush = false
		pe.pieceHashReturned = false
		pe.hasherCursor = 0
		pe.flushedCursor = 0
		pe.ph = sha1.New()
	})

	log.Debugf("cleared piece %v, aborted %d write jobs", pe.location, len(aborted))
	return aborted
}
