package diskcache

import "github.com/google/btree"

// store is the multi-index piece collection described in spec §4.3.
// It keeps one hash map (V3, the hot-path point lookup) and three
// google/btree.BTreeG indexes that stand in for the teacher's inherited
// boost::multi_index_container views:
//
//   - byLocation:     V0, ordered by (Storage, Piece), unique.
//   - byCheapToFlush: V1, ordered by cheapToFlush() descending.
//   - byReadyToFlush: V2, ordered with readyToFlush == true first.
//
// byCheapToFlush and byReadyToFlush break ties on location so that the
// underlying btree, which requires a strict total order, can still
// represent the spec's "non-unique" orderings without losing entries.
//
// Any mutation that changes cheapToFlush() or readyToFlush must go
// through modify, which deletes-then-reinserts into those two trees
// around the mutation so they stay correctly positioned. location never
// changes once a piece is created, so byLocation is never rekeyed.
type store struct {
	byID           map[PieceLocation]*pieceEntry
	byLocation     *btree.BTreeG[*pieceEntry]
	byCheapToFlush *btree.BTreeG[*pieceEntry]
	byReadyToFlush *btree.BTreeG[*pieceEntry]
}

const btreeDegree = 32

func newStore() *store {
	return &store{
		byID: make(map[PieceLocation]*pieceEntry),
		byLocation: btree.NewG(btreeDegree, func(a, b *pieceEntry) bool {
			return a.location.Less(b.location)
		}),
		byCheapToFlush: btree.NewG(btreeDegree, func(a, b *pieceEntry) bool {
			ca, cb := a.cheapToFlush(), b.cheapToFlush()
			if ca != cb {
				return ca > cb
			}
			return a.location.Less(b.location)
		}),
		byReadyToFlush: btree.NewG(btreeDegree, func(a, b *pieceEntry) bool {
			if a.readyToFlush != b.readyToFlush {
				return a.readyToFlush
			}
			return a.location.Less(b.location)
		}),
	}
}

func (s *store) get(loc PieceLocation) (*pieceEntry, bool) {
	pe, ok := s.byID[loc]
	return pe, ok
}

func (s *store) len() int {
	return len(s.byID)
}

// insert adds a newly created piece entry to all four indexes.
func (s *store) insert(pe *pieceEntry) {
	s.byID[pe.location] = pe
	s.byLocation.ReplaceOrInsert(pe)
	s.byCheapToFlush.ReplaceOrInsert(pe)
	s.byReadyToFlush.ReplaceOrInsert(pe)
}

// erase removes a piece entry from all four indexes.
func (s *store) erase(pe *pieceEntry) {
	delete(s.byID, pe.location)
	s.byLocation.Delete(pe)
	s.byCheapToFlush.Delete(pe)
	s.byReadyToFlush.Delete(pe)
}

// modify runs fn against pe, rekeying the volatile-keyed indexes around
// the mutation. byLocation is untouched since location is immutable.
func (s *store) modify(pe *pieceEntry, fn func(*pieceEntry)) {
	s.byCheapToFlush.Delete(pe)
	s.byReadyToFlush.Delete(pe)
	fn(pe)
	s.byCheapToFlush.ReplaceOrInsert(pe)
	s.byReadyToFlush.ReplaceOrInsert(pe)
}

// piecesByStorage returns, in ascending piece order, the pieces
// currently cached for storage id. Pieces of one storage form a
// contiguous range of byLocation because its order is lexicographic.
func (s *store) piecesByStorage(id StorageID) []*pieceEntry {
	var out []*pieceEntry
	s.byLocation.AscendGreaterOrEqual(&pieceEntry{location: PieceLocation{Storage: id}}, func(pe *pieceEntry) bool {
		if pe.location.Storage != id {
			return false
		}
		out = append(out, pe)
		return true
	})
	return out
}

// snapshotReadyToFlush returns the leading run of pieces with
// readyToFlush == true, in the order V2 would visit them, followed by
// the first piece encountered with readyToFlush == false (so callers
// can tell where the ready run ended without a second pass). It does
// not include pieces after that first non-ready one, matching the
// spec's "on encountering the first ready_to_flush = false piece, stop"
// walk.
func (s *store) snapshotReadyToFlush() []*pieceEntry {
	var out []*pieceEntry
	s.byReadyToFlush.Ascend(func(pe *pieceEntry) bool {
		out = append(out, pe)
		return pe.readyToFlush
	})
	return out
}

// snapshotCheapToFlush returns the leading run of pieces with
// cheapToFlush() > 0 (plus, like snapshotReadyToFlush, one trailing
// non-positive entry as a sentinel), in V1's order.
func (s *store) snapshotCheapToFlush() []*pieceEntry {
	var out []*pieceEntry
	s.byCheapToFlush.Ascend(func(pe *pieceEntry) bool {
		out = append(out, pe)
		return pe.cheapToFlush() > 0
	})
	return out
}

// snapshotByLocation returns every cached piece in V0 order.
func (s *store) snapshotByLocation() []*pieceEntry {
	out := make([]*pieceEntry, 0, s.byLocation.Len())
	s.byLocation.Ascend(func(pe *pieceEntry) bool {
		out = append(out, pe)
		return true
	})
	return out
}
