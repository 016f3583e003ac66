package diskcache

import "github.com/cenkalti/diskcache/internal/storage"

// StorageID names one torrent's storage within the cache. The cache
// does not interpret it beyond equality and ordering; the engine
// assigns these.
type StorageID int32

// PieceIndex identifies a piece within a storage.
type PieceIndex = storage.PieceIndex

// PieceLocation uniquely identifies a piece across all storages known
// to the cache. Its order is lexicographic, first by Storage then by
// Piece, so that all pieces of one storage form a contiguous range
// under that order.
type PieceLocation struct {
	Storage StorageID
	Piece   PieceIndex
}

// Less reports whether loc sorts before other under the lexicographic
// (Storage, Piece) order.
func (loc PieceLocation) Less(other PieceLocation) bool {
	if loc.Storage != other.Storage {
		return loc.Storage < other.Storage
	}
	return loc.Piece < other.Piece
}
