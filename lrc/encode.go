package lrc

import (
	"github.com/pkg/errors"

	"go.yottachain.io/lrc/internal/cm256"
	"go.yottachain.io/lrc/internal/gf256"
)

var (
	// ErrNilOriginals is returned when Encode is given a nil originals
	// slice.
	ErrNilOriginals = errors.New("lrc: nil originals")
	// ErrOutputTooSmall is returned when outRecoveryBuf cannot hold every
	// recovery shard this geometry produces.
	ErrOutputTooSmall = errors.New("lrc: outRecoveryBuf too small")
)

// Encode derives the LRC geometry for len(originals) original shards and
// writes every recovery shard (row parities, then column parities, then
// global parities, then the local parity of the globals) end to end into
// outRecoveryBuf, each shard prefixed by its one-byte on-wire index.
//
// Each element of originals must be shardSize bytes: a one-byte index
// followed by shardSize-1 bytes of payload. outRecoveryBuf must be at
// least TotalRecoveryCount*shardSize bytes, where TotalRecoveryCount is
// given by DeriveParams. Encode returns the number of recovery shards
// written.
func Encode(originals [][]byte, shardSize int, outRecoveryBuf []byte) (int, error) {
	if originals == nil {
		return 0, ErrNilOriginals
	}
	n, err := currentGlobalRecoveryCount()
	if err != nil {
		return 0, err
	}
	params, err := DeriveParams(len(originals), shardSize, n)
	if err != nil {
		return 0, err
	}
	for _, o := range originals {
		if len(o) != shardSize {
			return 0, errors.New("lrc: all original shards must be shardSize bytes")
		}
	}
	if len(outRecoveryBuf) < params.TotalRecoveryCount*shardSize {
		return 0, ErrOutputTooSmall
	}

	blocks := make([]cm256.Block, params.TotalOriginalCount)
	for i, o := range originals {
		blocks[i] = cm256.Block{Data: shardPayload(o), LRCIndex: i, DecodeIndex: i}
	}
	zero := make([]byte, params.BlockBytes)
	for i := params.OriginalCount; i < params.TotalOriginalCount; i++ {
		blocks[i] = cm256.Block{Data: zero, LRCIndex: i, DecodeIndex: i}
	}

	cursor := 0
	emit := func(recoveryBlockIndex int, payload []byte) {
		dst := outRecoveryBuf[cursor*shardSize : (cursor+1)*shardSize]
		putShard(dst, params.RecoveryShardIndex(recoveryBlockIndex), payload)
		cursor++
	}

	// Row parities: one per horizontal local group, XOR of that row.
	rowParams := cm256.Params{
		TotalOriginalCount: params.TotalOriginalCount,
		OriginalCount:      params.HorLocalCount,
		RecoveryCount:      1,
		Step:               1,
		BlockBytes:         params.BlockBytes,
	}
	payload := make([]byte, params.BlockBytes)
	for y := 0; y < params.VerLocalCount; y++ {
		rowParams.FirstElement = y * params.HorLocalCount
		cm256.EncodeBlock(rowParams, blocks, params.TotalOriginalCount, payload)
		emit(params.FirstHorRecoveryIndex+y, payload)
	}

	// Column parities: one per vertical local group, Cauchy-coded over the
	// column's stride.
	colParams := cm256.Params{
		TotalOriginalCount: params.TotalOriginalCount,
		OriginalCount:      params.VerLocalCount,
		RecoveryCount:      1,
		Step:               params.HorLocalCount,
		BlockBytes:         params.BlockBytes,
	}
	for x := 0; x < params.HorLocalCount; x++ {
		colParams.FirstElement = x
		cm256.EncodeBlock(colParams, blocks, params.TotalOriginalCount+1, payload)
		emit(params.FirstVerRecoveryIndex+x, payload)
	}

	// Global parities, accumulating their XOR into the local-of-globals
	// parity as we go.
	localOfGlobals := make([]byte, params.BlockBytes)
	globalParams := cm256.Params{
		TotalOriginalCount: params.TotalOriginalCount,
		OriginalCount:      params.OriginalCount,
		RecoveryCount:      1,
		FirstElement:       0,
		Step:               1,
		BlockBytes:         params.BlockBytes,
	}
	for i := 0; i < params.GlobalRecoveryCount; i++ {
		cm256.EncodeBlock(globalParams, blocks, params.TotalOriginalCount+i+2, payload)
		gf256.AddMem(localOfGlobals, payload)
		emit(params.FirstGlobalRecoveryIndex+i, payload)
	}

	emit(params.LocalRecoveryOfGlobalRecoveryIndex, localOfGlobals)

	return params.TotalRecoveryCount, nil
}
