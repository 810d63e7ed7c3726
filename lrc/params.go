// Package lrc implements a Locally Repairable Code over GF(256): a
// two-dimensional grid of original shards protected by row parities,
// column parities, and a bank of global Cauchy recovery shards (plus one
// local parity over the globals). Single-shard loss is repairable from one
// row or column alone; rare multi-shard losses fall back to the global
// bank.
package lrc

import "github.com/pkg/errors"

// Params is the derived, immutable geometry of one encode/decode/rebuild.
type Params struct {
	OriginalCount int

	HorLocalCount int
	VerLocalCount int

	// TotalOriginalCount = HorLocalCount * VerLocalCount. Equal to
	// OriginalCount unless OriginalCount isn't a multiple of
	// HorLocalCount, in which case the excess cells are implicit zero
	// shards.
	TotalOriginalCount int

	GlobalRecoveryCount int

	// FirstHorRecoveryIndex, FirstVerRecoveryIndex, FirstGlobalRecoveryIndex,
	// and LocalRecoveryOfGlobalRecoveryIndex are offsets into the recovery
	// index space (relative to OriginalCount, i.e. on-wire index minus
	// OriginalCount), in the layout order row -> column -> global ->
	// local-of-globals.
	FirstHorRecoveryIndex              int
	FirstVerRecoveryIndex              int
	FirstGlobalRecoveryIndex           int
	LocalRecoveryOfGlobalRecoveryIndex int

	// TotalRecoveryCount = LocalRecoveryOfGlobalRecoveryIndex + 1.
	TotalRecoveryCount int

	// BlockBytes is the shard payload size, excluding the one-byte index
	// prefix used on the wire (see shardPayload/putShard in shard.go).
	BlockBytes int
}

// MinGlobalRecoveryCount is the smallest globalRecoveryCount Init will
// accept: below three globals the local-of-globals parity stops paying for
// itself.
const MinGlobalRecoveryCount = 3

// MaxOriginalCount is the upper bound of DeriveParams' originalCount range
// check. Counts at or below it can still be rejected with
// ErrTooManySymbols, since whether the originals plus every recovery class
// fit the one-byte index space also depends on globalRecoveryCount (with
// 10 globals, 210 is the largest originalCount that fits).
const MaxOriginalCount = 230

var (
	// ErrOriginalCountRange is returned when originalCount is outside
	// [1, MaxOriginalCount].
	ErrOriginalCountRange = errors.New("lrc: originalCount out of range")
	// ErrShardTooSmall is returned when shardSize is too small to hold
	// even the one index byte plus one payload byte.
	ErrShardTooSmall = errors.New("lrc: shardSize must be at least 2")
	// ErrTooManySymbols is returned when the derived geometry would
	// require more than 256 on-wire indices.
	ErrTooManySymbols = errors.New("lrc: originalCount + recovery count exceeds 256")
)

// horLocalCount is the grid width: 8 once originalCount reaches 64,
// otherwise floor(sqrt(originalCount)).
func horLocalCount(originalCount int) int {
	if originalCount >= 64 {
		return 8
	}
	h := 1
	for (h+1)*(h+1) <= originalCount {
		h++
	}
	return h
}

// DeriveParams computes the immutable LRC geometry for one
// encode/decode/rebuild, given the number of original shards, the on-wire
// shard size (including the index byte), and the configured global
// recovery count.
func DeriveParams(originalCount, shardSize, globalRecoveryCount int) (Params, error) {
	if originalCount <= 0 || originalCount > MaxOriginalCount {
		return Params{}, ErrOriginalCountRange
	}
	if shardSize < 2 {
		return Params{}, ErrShardTooSmall
	}
	if globalRecoveryCount < MinGlobalRecoveryCount {
		return Params{}, errors.New("lrc: globalRecoveryCount must be at least 3")
	}

	hor := horLocalCount(originalCount)
	ver := (originalCount + hor - 1) / hor
	total := hor * ver

	p := Params{
		OriginalCount:            originalCount,
		HorLocalCount:            hor,
		VerLocalCount:            ver,
		TotalOriginalCount:       total,
		GlobalRecoveryCount:      globalRecoveryCount,
		FirstHorRecoveryIndex:    0,
		FirstVerRecoveryIndex:    ver,
		FirstGlobalRecoveryIndex: ver + hor,
		BlockBytes:               shardSize - 1,
	}
	p.LocalRecoveryOfGlobalRecoveryIndex = p.FirstGlobalRecoveryIndex + globalRecoveryCount
	p.TotalRecoveryCount = p.LocalRecoveryOfGlobalRecoveryIndex + 1

	if p.OriginalCount+p.TotalRecoveryCount > 256 {
		return Params{}, ErrTooManySymbols
	}
	return p, nil
}

// OriginalShardIndex returns the on-wire index of original shard i
// (0 <= i < OriginalCount).
func (p Params) OriginalShardIndex(i int) int {
	return i
}

// RecoveryShardIndex returns the on-wire index of the recovery shard at
// recoveryBlockIndex within the recovery class offsets above (0 <=
// recoveryBlockIndex < TotalRecoveryCount).
func (p Params) RecoveryShardIndex(recoveryBlockIndex int) int {
	return p.OriginalCount + recoveryBlockIndex
}

// Grid coordinates for original/implicit-zero cell i (0 <= i <
// TotalOriginalCount): row y, column x, such that i == y*HorLocalCount+x.
func (p Params) gridCoords(i int) (x, y int) {
	return i % p.HorLocalCount, i / p.HorLocalCount
}
