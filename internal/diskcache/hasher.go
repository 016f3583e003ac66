package diskcache

// KickHasher is the hasher-thread entry point of spec §4.4. If the
// piece is absent or already being hashed by another thread, it
// returns immediately. Otherwise it repeatedly claims the contiguous
// run of blocks starting at the piece's hasher cursor whose bytes are
// present, hashes that run without holding mu, and loops as long as
// more contiguous blocks have arrived by the time it reacquires mu. Any
// HashJob that was waiting on this piece finishing is appended to
// *completedJobs.
func (c *Cache) KickHasher(loc PieceLocation, completedJobs *[]*HashJob) {
	c.mu.Lock()

	pe, ok := c.pieces.get(loc)
	if !ok || pe.hashing {
		c.mu.Unlock()
		return
	}

	for {
		cursor := pe.hasherCursor
		end := cursor
		for end < pe.blocksInPiece && pe.blocks[end].bytes() != nil {
			end++
		}
		runLen := end - cursor
		pe.hashing = true
		needV1, needV2 := pe.v1Hashes, pe.v2Hashes
		ph := pe.ph

		log.Debugf("hashing started: piece %v blocks [%d,%d)", loc, cursor, end)

		bufs := make([][]byte, runLen)
		for i := cursor; i < end; i++ {
			bufs[i-cursor] = pe.blocks[i].bytes()
		}

		c.mu.Unlock()

		for i := cursor; i < end; i++ {
			buf := bufs[i-cursor]
			if needV1 {
				ph.Write(buf)
			}
			if needV2 {
				h := newSHA256()
				h.Write(buf)
				copy(pe.blocks[i].blockHash[:], h.Sum(nil))
			}
		}

		c.mu.Lock()

		for i := cursor; i < end; i++ {
			pe.blocks[i].releaseBuf()
		}
		c.pieces.modify(pe, func(pe *pieceEntry) {
			pe.hasherCursor = end
		})
		pe.hashing = false
		if runLen > 0 {
			c.metrics.blocksHashed.Mark(int64(runLen))
		}
		log.Debugf("hashing finished: piece %v hasher cursor now %d", loc, end)

		if end == pe.blocksInPiece || pe.blocks[end].bytes() == nil {
			break
		}
		// A block the hasher can now consume arrived while we were
		// hashing without the mutex; keep going instead of waiting for
		// another KickHasher call.
	}

	if pe.hashJob == nil {
		c.mu.Unlock()
		return
	}

	job := pe.hashJob
	c.pieces.modify(pe, func(pe *pieceEntry) {
		pe.hashJob = nil
		pe.readyToFlush = computeReadyToFlush(pe.blocks)
	})

	job.PieceHash = sumToArray20(pe.ph.Sum(nil))
	if len(job.BlockHashes) > 0 {
		assertf(pe.v2Hashes, "kick_hasher: hash job requested block hashes on a v1-only piece %v", loc)
		toCopy := pe.blocksInPiece
		if len(job.BlockHashes) < toCopy {
			toCopy = len(job.BlockHashes)
		}
		for i := 0; i < toCopy; i++ {
			job.BlockHashes[i] = pe.blocks[i].blockHash
		}
	}
	*completedJobs = append(*completedJobs, job)

	c.mu.Unlock()
}
