package diskcache

import "github.com/rcrowley/go-metrics"

// cacheMetrics mirrors the instrumentation style of internal/piececache
// (EWMAs) and internal/piecewriter (meters): plain go-metrics objects
// owned by the cache, read by Stats, never exported as their own
// locking surface.
type cacheMetrics struct {
	blocksInserted metrics.Meter
	blocksFlushed  metrics.Meter
	bytesFlushed   metrics.Meter
	blocksHashed   metrics.Meter
	piecesErased   metrics.Meter
	clearsExecuted metrics.Meter
	clearsDeferred metrics.Meter
}

func newCacheMetrics() *cacheMetrics {
	return &cacheMetrics{
		blocksInserted: metrics.NewMeter(),
		blocksFlushed:  metrics.NewMeter(),
		bytesFlushed:   metrics.NewMeter(),
		blocksHashed:   metrics.NewMeter(),
		piecesErased:   metrics.NewMeter(),
		clearsExecuted: metrics.NewMeter(),
		clearsDeferred: metrics.NewMeter(),
	}
}

// countersSnapshot holds the instantaneous Count() of each meter, used
// to populate Stats without exposing the metrics.Meter objects (and
// their background goroutines) to callers.
type countersSnapshot struct {
	BlocksInserted int64
	BlocksFlushed  int64
	BytesFlushed   int64
	BlocksHashed   int64
	PiecesErased   int64
	ClearsExecuted int64
	ClearsDeferred int64
}

func (m *cacheMetrics) snapshot() countersSnapshot {
	return countersSnapshot{
		BlocksInserted: m.blocksInserted.Count(),
		BlocksFlushed:  m.blocksFlushed.Count(),
		BytesFlushed:   m.bytesFlushed.Count(),
		BlocksHashed:   m.blocksHashed.Count(),
		PiecesErased:   m.piecesErased.Count(),
		ClearsExecuted: m.clearsExecuted.Count(),
		ClearsDeferred: m.clearsDeferred.Count(),
	}
}
