package cm256

import "go.yottachain.io/lrc/internal/gf256"

// EncodeBlock produces one recovery block from the originals described by
// params. recoveryBlockIndex selects the Cauchy decode row:
// recoveryBlockIndex == params.TotalOriginalCount is the parity row (row
// x0, all-ones) and is reduced to a plain XOR; any other value is an
// ordinary Cauchy-coded row.
//
// originals must have at least params.FirstElement +
// (params.OriginalCount-1)*params.Step + 1 entries, each with Data of
// length params.BlockBytes. out must have length params.BlockBytes.
// EncodeBlock does not validate its inputs; validation is the caller's
// job (lrc.Encode checks the geometry and shard sizes before calling it).
func EncodeBlock(params Params, originals []Block, recoveryBlockIndex int, out []byte) {
	if params.OriginalCount == 1 {
		copy(out, originals[params.FirstElement].Data)
		return
	}

	if recoveryBlockIndex == params.TotalOriginalCount {
		// Parity row: XOR of every contributing original.
		y := params.FirstElement + params.Step
		gf256.AddSetMem(out, originals[params.FirstElement].Data, originals[y].Data)
		for j := 2; j < params.OriginalCount; j++ {
			y += params.Step
			gf256.AddMem(out, originals[y].Data)
		}
		return
	}

	x0 := byte(params.TotalOriginalCount)
	xi := byte(recoveryBlockIndex)

	y0 := byte(params.FirstElement)
	gf256.MulMem(out, originals[params.FirstElement].Data, matrixElement(xi, x0, y0))

	for j := 1; j < params.OriginalCount; j++ {
		yjInt := params.FirstElement + j*params.Step
		gf256.MulAddMem(out, matrixElement(xi, x0, byte(yjInt)), originals[yjInt].Data)
	}
}
