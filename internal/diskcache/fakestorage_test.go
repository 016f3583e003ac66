package diskcache

import "github.com/cenkalti/diskcache/internal/storage"

// fakeHandle is a minimal storage.Handle for tests: every piece is the
// same size except the last, which can be made shorter to exercise
// ragged final pieces.
type fakeHandle struct {
	pieceSize int64
	lastPiece PieceIndex
	lastSize  int64
	blockSize int64
	v1, v2    bool
}

func newFakeHandle(pieceSize, blockSize int64, v1, v2 bool) *fakeHandle {
	return &fakeHandle{
		pieceSize: pieceSize,
		lastPiece: -1,
		blockSize: blockSize,
		v1:        v1,
		v2:        v2,
	}
}

func (h *fakeHandle) withRaggedLastPiece(piece PieceIndex, size int64) *fakeHandle {
	h.lastPiece = piece
	h.lastSize = size
	return h
}

func (h *fakeHandle) PieceSize(piece PieceIndex) int64 {
	if piece == h.lastPiece {
		return h.lastSize
	}
	return h.pieceSize
}

func (h *fakeHandle) BlockSize() int64 { return h.blockSize }
func (h *fakeHandle) V1() bool         { return h.v1 }
func (h *fakeHandle) V2() bool         { return h.v2 }

var _ storage.Handle = (*fakeHandle)(nil)
