// Package storage names the contract a torrent engine's storage layer
// must satisfy for the disk cache to size and classify pieces. It does
// not read or write any bytes itself; the disk I/O backend is a
// collaborator supplied by the engine, not something this module owns.
package storage

// PieceIndex identifies a piece within a single torrent's storage.
type PieceIndex int32

// Handle is the per-torrent collaborator a write job carries. The cache
// calls it exactly once per newly seen piece, to size the piece's block
// array and to learn which hash flavors the torrent needs.
type Handle interface {
	// PieceSize returns the length in bytes of the given piece. Only the
	// last piece of a torrent is expected to be shorter than the rest.
	PieceSize(piece PieceIndex) int64

	// BlockSize returns the block size used to divide pieces of this
	// torrent into blocks. Pieces smaller than one block still have
	// exactly one block, of length PieceSize.
	BlockSize() int64

	// V1 reports whether this torrent needs the incremental SHA-1 piece
	// hash.
	V1() bool

	// V2 reports whether this torrent needs per-block SHA-256 hashes.
	V2() bool
}
