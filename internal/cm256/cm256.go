// Package cm256 implements the Cauchy MDS GF(256) block codec that
// underlies package lrc: given a sub-geometry of original shards (a
// contiguous or strided run), it produces Cauchy recovery shards and can
// recover missing originals from any sufficient subset via an LDU
// decomposition of the Cauchy submatrix.
package cm256

import (
	"github.com/pkg/errors"

	"go.yottachain.io/lrc/internal/gf256"
)

// maxShards is the hard ceiling imposed by the one-byte shard index: the
// original count plus every recovery class can never exceed 256 symbols.
const maxShards = 256

// Params describes one sub-geometry: which originals contribute
// (FirstElement, Step, OriginalCount) and how many recovery symbols are
// being produced or consumed over it (RecoveryCount).
type Params struct {
	// TotalOriginalCount is x0, the parity-row parameter: the Cauchy
	// matrix's y values range over [0, TotalOriginalCount), and its x
	// values (decode rows) start at TotalOriginalCount.
	TotalOriginalCount int
	// OriginalCount is the number of originals contributing to this
	// sub-geometry (may be less than TotalOriginalCount for a row or
	// column view).
	OriginalCount int
	// RecoveryCount is the number of recovery symbols being produced
	// (encode) or the number of missing originals being recovered
	// (decode).
	RecoveryCount int
	// FirstElement and Step describe the stride over the block table:
	// contributing original index j (0..OriginalCount-1) sits at logical
	// position FirstElement + j*Step.
	FirstElement int
	Step         int
	// BlockBytes is the size of each shard's payload.
	BlockBytes int
}

// Block is one data block participating in an encode or decode: either an
// original (LRCIndex < TotalOriginalCount) or a recovery (LRCIndex >=
// TotalOriginalCount). DecodeIndex selects the Cauchy decode row used to
// produce it and is only consulted for recoveries during Decode.
type Block struct {
	Data        []byte
	LRCIndex    int
	DecodeIndex int
}

// Decode-row conventions. HorDecodeRow (row x0) is the all-ones parity row
// and takes the XOR fast path; VerDecodeRow and GlobalDecodeRow(i) are
// ordinary Cauchy rows.
func HorDecodeRow(totalOriginalCount int) int { return totalOriginalCount }
func VerDecodeRow(totalOriginalCount int) int { return totalOriginalCount + 1 }
func GlobalDecodeRow(totalOriginalCount, i int) int {
	return totalOriginalCount + i + 2
}

// matrixElement computes M(x, x0, y) = (y + x0) / (x + y) in GF(256), the
// Cauchy element with the parity-row normalization folded in. Callers must
// never invoke this with x == x0 (the parity row): that case is defined as
// all-ones and handled via the XOR fast path instead.
func matrixElement(x, x0, y byte) byte {
	return gf256.Div(gf256.Add(y, x0), gf256.Add(x, y))
}

var (
	// ErrInvalidParams is returned when a Params value is internally
	// inconsistent (negative counts, geometry overrunning maxShards, a
	// zero BlockBytes, and so on).
	ErrInvalidParams = errors.New("cm256: invalid parameters")
	// ErrNilBlocks is returned when a required block slice is nil.
	ErrNilBlocks = errors.New("cm256: nil block slice")
	// ErrDuplicateIndex is returned when two supplied original blocks
	// claim the same LRCIndex.
	ErrDuplicateIndex = errors.New("cm256: duplicate original index")
)
