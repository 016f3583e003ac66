package diskcache

import "github.com/fatih/structs"

// Stats is an instantaneous diagnostic snapshot of the cache, additive
// to the invariant-bearing state: nothing here feeds back into index
// keys or flush policy.
type Stats struct {
	Size        int
	NumFlushing int
	NumPieces   int
	countersSnapshot `structs:",flatten"`
}

// Stats returns a snapshot of the cache's counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:             c.mBlocks,
		NumFlushing:      c.mFlushingBlocks,
		NumPieces:        c.pieces.len(),
		countersSnapshot: c.metrics.snapshot(),
	}
}

// Fields renders Stats as a flat map, the shape a structured logger's
// WithFields call expects.
func (s Stats) Fields() map[string]interface{} {
	return structs.Map(s)
}
