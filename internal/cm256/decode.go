package cm256

import (
	"github.com/pkg/errors"

	"go.yottachain.io/lrc/internal/gf256"
)

// decodeState is the working state for one multi-erasure decode: the
// originals and recoveries pulled out of the caller's block array, plus the
// erasure positions they're reconstructing.
type decodeState struct {
	params         Params
	originalBlocks []*Block
	recoveryBlocks []*Block
	erasures       []byte // the missing original positions
}

func newDecodeState(params Params, blocks []Block) (*decodeState, error) {
	if params.OriginalCount <= 0 || params.RecoveryCount <= 0 ||
		params.TotalOriginalCount < params.OriginalCount ||
		params.BlockBytes <= 0 || params.FirstElement < 0 ||
		params.FirstElement > params.TotalOriginalCount || params.Step <= 0 {
		return nil, ErrInvalidParams
	}
	if params.TotalOriginalCount+params.RecoveryCount > maxShards {
		return nil, ErrInvalidParams
	}
	if blocks == nil {
		return nil, ErrNilBlocks
	}

	var originalPresent [maxShards]bool
	st := &decodeState{params: params}

	pos := params.FirstElement
	for i := 0; i < params.OriginalCount; i++ {
		if pos >= len(blocks) {
			return nil, ErrInvalidParams
		}
		b := &blocks[pos]
		if b.LRCIndex < params.TotalOriginalCount {
			if originalPresent[b.LRCIndex] {
				return nil, errors.Wrapf(ErrDuplicateIndex, "sub-geometry first=%d step=%d: original slot %d claimed twice", params.FirstElement, params.Step, b.LRCIndex)
			}
			originalPresent[b.LRCIndex] = true
			st.originalBlocks = append(st.originalBlocks, b)
		} else {
			st.recoveryBlocks = append(st.recoveryBlocks, b)
		}
		pos += params.Step
	}

	for ii := params.FirstElement; ii < maxShards && len(st.erasures) < len(st.recoveryBlocks); ii += params.Step {
		if !originalPresent[ii] {
			st.erasures = append(st.erasures, byte(ii))
		}
	}

	return st, nil
}

// decodeM1 handles the single-erasure, parity-row fast path: XOR every
// surviving original into the recovery block in place.
func decodeM1(st *decodeState) {
	out := st.recoveryBlocks[0].Data

	var pending []byte
	for _, b := range st.originalBlocks {
		if pending == nil {
			pending = b.Data
		} else {
			gf256.Add2Mem(out, pending, b.Data)
			pending = nil
		}
	}
	if pending != nil {
		gf256.AddMem(out, pending)
	}

	st.recoveryBlocks[0].DecodeIndex = int(st.erasures[0])
	st.recoveryBlocks[0].LRCIndex = int(st.erasures[0])
}

// ldu holds the flattened L/D/U factors of the Cauchy submatrix: U
// column-major bottom-up, L column-major top-down, D as a plain diagonal
// vector, a layout that turns the triangular solves into bulk multiplies.
type ldu struct {
	l []byte
	d []byte
	u []byte
}

// generateLDU factors the N x N Cauchy submatrix G (rows = recovery decode
// indices, columns = erasure positions) as G = L*D*U using the Schur-type
// direct Cauchy algorithm (Boros/Kailath/Olshevsky, algorithm 2.5), with
// the triangular factors' diagonals folded into D to avoid a separate
// multiply pass.
func generateLDU(st *decodeState) ldu {
	n := len(st.recoveryBlocks)
	x0 := byte(st.params.TotalOriginalCount)

	g := make([]byte, n)
	b := make([]byte, n)
	for i := range g {
		g[i] = 1
		b[i] = 1
	}

	out := ldu{
		l: make([]byte, n*(n-1)/2),
		d: make([]byte, n),
		u: make([]byte, n*(n-1)/2),
	}

	lPos := 0
	lastU := len(out.u) - 1
	firstOffsetU := 0

	for k := 0; k < n-1; k++ {
		xk := byte(st.recoveryBlocks[k].DecodeIndex)
		yk := st.erasures[k]

		dKK := gf256.Add(xk, yk)
		lKK := gf256.Div(g[k], dKK)
		uKK := gf256.Mul(gf256.Div(b[k], dKK), gf256.Add(x0, yk))

		out.d[k] = gf256.Mul(dKK, gf256.Mul(lKK, uKK))

		rotatedU := make([]byte, n-k-1)
		lRow := out.l[lPos : lPos+(n-k-1)]

		for j := k + 1; j < n; j++ {
			xj := byte(st.recoveryBlocks[j].DecodeIndex)
			yj := st.erasures[j]

			lJK := gf256.Div(g[j], gf256.Add(xj, yk))
			uKJ := gf256.Div(b[j], gf256.Add(xk, yj))

			lRow[j-k-1] = lJK
			rotatedU[j-k-1] = uKJ

			g[j] = gf256.Mul(g[j], gf256.Div(gf256.Add(xj, xk), gf256.Add(xj, yk)))
			b[j] = gf256.Mul(b[j], gf256.Div(gf256.Add(yj, yk), gf256.Add(yj, xk)))
		}

		gf256.DivMem(lRow, lRow, lKK)
		gf256.DivMem(rotatedU, rotatedU, uKK)

		outputU := lastU + firstOffsetU
		for j := k + 1; j < n; j++ {
			out.u[outputU] = rotatedU[j-k-1]
			outputU -= j
		}
		firstOffsetU -= k + 2
		lPos += n - k - 1
	}

	// Multiply the diagonal into U.
	rowStart := 0
	for j := n - 1; j > 0; j-- {
		yj := st.erasures[j]
		count := j
		row := out.u[rowStart : rowStart+count]
		gf256.MulMem(row, row, gf256.Add(x0, yj))
		rowStart += count
	}

	xn := byte(st.recoveryBlocks[n-1].DecodeIndex)
	yn := st.erasures[n-1]
	lNN := g[n-1]
	uNN := gf256.Mul(b[n-1], gf256.Add(x0, yn))
	out.d[n-1] = gf256.Div(gf256.Mul(lNN, uNN), gf256.Add(xn, yn))

	return out
}

// decodeMulti performs the N > 1 multi-erasure decode: eliminate the
// known-original contribution from every recovery row, factor the
// resulting Cauchy submatrix, then solve by forward substitution, diagonal
// division, and back substitution, bulk over the shard buffers.
func decodeMulti(st *decodeState) {
	n := len(st.recoveryBlocks)
	x0 := st.params.TotalOriginalCount

	for _, ob := range st.originalBlocks {
		in := ob.Data
		iElement := byte(ob.LRCIndex)
		for _, rb := range st.recoveryBlocks {
			elem := matrixElement(byte(rb.DecodeIndex), byte(x0), iElement)
			gf256.MulAddMem(rb.Data, elem, in)
		}
	}

	factors := generateLDU(st)

	// Eliminate the lower-left triangle (forward substitution against L).
	lPos := 0
	for j := 0; j < n-1; j++ {
		blockJ := st.recoveryBlocks[j].Data
		for i := j + 1; i < n; i++ {
			cij := factors.l[lPos]
			lPos++
			gf256.MulAddMem(st.recoveryBlocks[i].Data, cij, blockJ)
		}
	}

	// Eliminate the diagonal and recover each erasure's logical position.
	for i := 0; i < n; i++ {
		st.recoveryBlocks[i].DecodeIndex = int(st.erasures[i])
		st.recoveryBlocks[i].LRCIndex = int(st.erasures[i])
		gf256.DivMem(st.recoveryBlocks[i].Data, st.recoveryBlocks[i].Data, factors.d[i])
	}

	// Eliminate the upper-right triangle (back substitution against U).
	uPos := 0
	for j := n - 1; j >= 1; j-- {
		blockJ := st.recoveryBlocks[j].Data
		for i := j - 1; i >= 0; i-- {
			cij := factors.u[uPos]
			uPos++
			gf256.MulAddMem(st.recoveryBlocks[i].Data, cij, blockJ)
		}
	}
}

// Decode recovers missing originals in place, given blocks covering the
// sub-geometry described by params: some positions hold originals, and the
// rest hold recovery payloads with the correct DecodeIndex set. On success,
// every former recovery Block has been overwritten with its recovered
// original payload and its LRCIndex/DecodeIndex updated to that original's
// logical position.
func Decode(params Params, blocks []Block) error {
	// A single-original geometry repeats the same block, so whatever sits
	// in the slot already holds the original's bytes.
	if params.OriginalCount == 1 {
		blocks[params.FirstElement].LRCIndex = params.FirstElement
		blocks[params.FirstElement].DecodeIndex = params.FirstElement
		return nil
	}

	st, err := newDecodeState(params, blocks)
	if err != nil {
		return err
	}

	if len(st.recoveryBlocks) == 0 {
		return nil // nothing erased
	}

	if len(st.recoveryBlocks) == 1 && st.recoveryBlocks[0].DecodeIndex == HorDecodeRow(params.TotalOriginalCount) {
		decodeM1(st)
		return nil
	}

	decodeMulti(st)
	return nil
}
