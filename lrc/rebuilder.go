package lrc

import (
	"github.com/pkg/errors"

	"go.yottachain.io/lrc/internal/cm256"
	"go.yottachain.io/lrc/internal/gf256"
)

// rebuildStage is one state of the rebuild state machine. Transitions only
// ever move toward more expensive routes: a lost original tries its row,
// then its column, then the global bank; a lost parity tries its own local
// group, then the global bank.
type rebuildStage int

const (
	stageInit rebuildStage = iota
	stageHorRebuild
	stageVerRebuild
	stageHorRecoveryRebuild
	stageVerRecoveryRebuild
	stageGlobalRecoveryRebuild
	stageGlobalRebuild
)

// Rebuilder reconstructs exactly one lost shard from the smallest helper
// set it can assemble, escalating from a row/column-local route to the
// global Cauchy bank only when the cheap route proves unreachable.
type Rebuilder struct {
	params Params
	iLost  int
	out    []byte // caller's shardSize-byte output buffer

	stage     rebuildStage
	requested []int
	reqSet    map[int]bool
	received  map[int][]byte
	lost      map[int]bool

	nested    *Decoder
	nestedOut []byte

	done bool
}

var (
	// ErrRebuildFinished is returned by OneShardForRebuild once the target
	// shard has already been reconstructed.
	ErrRebuildFinished = errors.New("lrc: rebuild already finished")
	// ErrUnexpectedShard is returned when a shard arrives that the current
	// request list never asked for. Unlike a duplicate (which is ignored),
	// an unrequested shard is a protocol violation by the caller.
	ErrUnexpectedShard = errors.New("lrc: shard was not requested")
)

// BeginRebuild starts a rebuild of the single shard at on-wire index iLost
// (0 <= iLost < originalCount+totalRecoveryCount), given the on-wire
// shardSize and an output buffer of at least shardSize bytes.
func BeginRebuild(originalCount, iLost, shardSize int, out []byte) (*Rebuilder, error) {
	n, err := currentGlobalRecoveryCount()
	if err != nil {
		return nil, err
	}
	params, err := DeriveParams(originalCount, shardSize, n)
	if err != nil {
		return nil, err
	}
	if iLost < 0 || iLost >= params.OriginalCount+params.TotalRecoveryCount {
		return nil, errors.New("lrc: iLost out of range")
	}
	if len(out) < shardSize {
		return nil, errors.New("lrc: output buffer too small")
	}

	return &Rebuilder{
		params:   params,
		iLost:    iLost,
		out:      out,
		stage:    stageInit,
		received: make(map[int][]byte),
		lost:     map[int]bool{iLost: true},
	}, nil
}

type shardKind int

const (
	kindOriginal shardKind = iota
	kindHorRecovery
	kindVerRecovery
	kindGlobalRecovery
	kindLocalOfGlobals
)

// classify reports what role the on-wire index plays and its position
// within that role's class (row y, column x, or global i).
func (p Params) classify(index int) (kind shardKind, group int) {
	if index < p.OriginalCount {
		return kindOriginal, index
	}
	r := index - p.OriginalCount
	switch {
	case r >= p.FirstHorRecoveryIndex && r < p.FirstHorRecoveryIndex+p.VerLocalCount:
		return kindHorRecovery, r - p.FirstHorRecoveryIndex
	case r >= p.FirstVerRecoveryIndex && r < p.FirstVerRecoveryIndex+p.HorLocalCount:
		return kindVerRecovery, r - p.FirstVerRecoveryIndex
	case r >= p.FirstGlobalRecoveryIndex && r < p.FirstGlobalRecoveryIndex+p.GlobalRecoveryCount:
		return kindGlobalRecovery, r - p.FirstGlobalRecoveryIndex
	default:
		return kindLocalOfGlobals, 0
	}
}

func (p Params) horRecoveryIndex(y int) int { return p.OriginalCount + p.FirstHorRecoveryIndex + y }
func (p Params) verRecoveryIndex(x int) int { return p.OriginalCount + p.FirstVerRecoveryIndex + x }
func (p Params) globalRecoveryIndex(i int) int {
	return p.OriginalCount + p.FirstGlobalRecoveryIndex + i
}
func (p Params) localOfGlobalsIndex() int {
	return p.OriginalCount + p.LocalRecoveryOfGlobalRecoveryIndex
}

// realOriginalsInRow returns the on-wire indices of row y's originals that
// are not implicit-zero padding.
func (p Params) realOriginalsInRow(y int) []int {
	var out []int
	base := y * p.HorLocalCount
	for x := 0; x < p.HorLocalCount; x++ {
		i := base + x
		if i < p.OriginalCount {
			out = append(out, i)
		}
	}
	return out
}

// realOriginalsInColumn returns the on-wire indices of column x's originals
// that are not implicit-zero padding.
func (p Params) realOriginalsInColumn(x int) []int {
	var out []int
	for y := 0; y < p.VerLocalCount; y++ {
		i := x + y*p.HorLocalCount
		if i < p.OriginalCount {
			out = append(out, i)
		}
	}
	return out
}

// NextRequestList writes the on-wire indices the rebuilder needs next into
// out (which must hold at least 256 bytes) and returns how many it wrote.
// The first call picks the cheapest route for iLost; every later call
// signals that the previous request set could not be fully satisfied and
// escalates the route. A return of 0 means the shard is unrebuildable.
func (r *Rebuilder) NextRequestList(out []byte) (int, error) {
	if r.done {
		return 0, ErrRebuildFinished
	}
	p := &r.params

	if r.stage != stageInit {
		for _, idx := range r.requested {
			if _, ok := r.received[idx]; !ok {
				r.lost[idx] = true
			}
		}
		switch r.stage {
		case stageHorRebuild:
			r.stage = stageVerRebuild
		default:
			r.stage = stageGlobalRebuild
		}
	} else {
		kind, group := p.classify(r.iLost)
		switch kind {
		case kindOriginal:
			y := r.iLost / p.HorLocalCount
			req := make([]int, 0, p.HorLocalCount)
			for _, i := range p.realOriginalsInRow(y) {
				if i != r.iLost {
					req = append(req, i)
				}
			}
			req = append(req, p.horRecoveryIndex(y))
			r.requested = req
			r.stage = stageHorRebuild
		case kindHorRecovery:
			r.requested = p.realOriginalsInRow(group)
			r.stage = stageHorRecoveryRebuild
		case kindVerRecovery:
			r.requested = p.realOriginalsInColumn(group)
			r.stage = stageVerRecoveryRebuild
		case kindGlobalRecovery:
			req := make([]int, 0, p.GlobalRecoveryCount)
			for i := 0; i < p.GlobalRecoveryCount; i++ {
				if i != group {
					req = append(req, p.globalRecoveryIndex(i))
				}
			}
			req = append(req, p.localOfGlobalsIndex())
			r.requested = req
			r.stage = stageGlobalRecoveryRebuild
		case kindLocalOfGlobals:
			req := make([]int, 0, p.GlobalRecoveryCount)
			for i := 0; i < p.GlobalRecoveryCount; i++ {
				req = append(req, p.globalRecoveryIndex(i))
			}
			r.requested = req
			r.stage = stageGlobalRecoveryRebuild
		}
	}

	switch r.stage {
	case stageVerRebuild:
		x := r.iLost % p.HorLocalCount
		req := make([]int, 0, p.VerLocalCount)
		for _, i := range p.realOriginalsInColumn(x) {
			if i != r.iLost {
				req = append(req, i)
			}
		}
		req = append(req, p.verRecoveryIndex(x))
		r.requested = req
	case stageGlobalRebuild:
		// Every original not yet in hand is needed by the nested decode,
		// and so is every recovery shard not already observed; only shards
		// the caller has declared lost are off the table.
		nLost := 0
		for idx := range r.lost {
			if idx < p.OriginalCount {
				nLost++
			}
		}
		if nLost > p.TotalRecoveryCount {
			return 0, nil
		}

		req := make([]int, 0, p.OriginalCount+p.TotalRecoveryCount)
		for i := 0; i < p.OriginalCount; i++ {
			if i == r.iLost || r.lost[i] {
				continue
			}
			if _, ok := r.received[i]; ok {
				continue
			}
			req = append(req, i)
		}
		for _, idx := range r.recoveryClassIndices() {
			if idx == r.iLost || r.lost[idx] {
				continue
			}
			if _, ok := r.received[idx]; ok {
				continue
			}
			req = append(req, idx)
		}
		r.requested = req
	}

	// Drop anything already known (received before the stage transitioned,
	// e.g. a shard volunteered twice).
	filtered := r.requested[:0]
	for _, idx := range r.requested {
		if _, ok := r.received[idx]; !ok {
			filtered = append(filtered, idx)
		}
	}
	r.requested = filtered

	if len(r.requested) > len(out) {
		return 0, errors.New("lrc: request list buffer too small")
	}
	r.reqSet = make(map[int]bool, len(r.requested))
	for i, idx := range r.requested {
		out[i] = byte(idx)
		r.reqSet[idx] = true
	}
	return len(r.requested), nil
}

// recoveryClassIndices lists every recovery-class on-wire index: row
// parities, column parities, global parities, and the local-of-globals
// parity.
func (r *Rebuilder) recoveryClassIndices() []int {
	p := &r.params
	var idx []int
	for y := 0; y < p.VerLocalCount; y++ {
		idx = append(idx, p.horRecoveryIndex(y))
	}
	for x := 0; x < p.HorLocalCount; x++ {
		idx = append(idx, p.verRecoveryIndex(x))
	}
	for i := 0; i < p.GlobalRecoveryCount; i++ {
		idx = append(idx, p.globalRecoveryIndex(i))
	}
	idx = append(idx, p.localOfGlobalsIndex())
	return idx
}

// OneShardForRebuild supplies one helper shard (index byte + payload). It
// returns 1 once iLost has been fully reconstructed into the BeginRebuild
// output buffer, 0 if more shards are still needed, and an error only for
// malformed input.
func (r *Rebuilder) OneShardForRebuild(shard []byte) (int, error) {
	if r.done {
		return 0, ErrRebuildFinished
	}
	index, err := shardIndex(shard)
	if err != nil {
		return 0, err
	}
	payload := shardPayload(shard)
	if len(payload) != r.params.BlockBytes {
		return 0, errors.New("lrc: shard has the wrong payload size")
	}
	if _, ok := r.received[index]; ok {
		return 0, nil
	}
	if !r.reqSet[index] {
		return 0, errors.Wrapf(ErrUnexpectedShard, "shard %d", index)
	}
	r.received[index] = append([]byte(nil), payload...)

	if r.stage == stageGlobalRebuild {
		return r.progressGlobalRebuild(index, r.received[index])
	}
	if !r.allRequestedReceived() {
		return 0, nil
	}

	switch r.stage {
	case stageHorRebuild:
		return r.finishHorRebuild()
	case stageVerRebuild:
		return r.finishVerRebuild()
	case stageHorRecoveryRebuild:
		return r.finishHorRecoveryRebuild()
	case stageVerRecoveryRebuild:
		return r.finishVerRecoveryRebuild()
	case stageGlobalRecoveryRebuild:
		return r.finishGlobalRecoveryRebuild()
	}
	return 0, nil
}

func (r *Rebuilder) allRequestedReceived() bool {
	for _, idx := range r.requested {
		if _, ok := r.received[idx]; !ok {
			return false
		}
	}
	return true
}

func (r *Rebuilder) finish(payload []byte) (int, error) {
	putShard(r.out, r.iLost, payload)
	r.done = true
	return 1, nil
}

// finishHorRebuild: XOR of the row's other originals and its row parity is
// the lost original cell.
func (r *Rebuilder) finishHorRebuild() (int, error) {
	out := make([]byte, r.params.BlockBytes)
	first := true
	for _, idx := range r.requested {
		if first {
			copy(out, r.received[idx])
			first = false
			continue
		}
		gf256.AddMem(out, r.received[idx])
	}
	return r.finish(out)
}

// finishVerRebuild: the lost original cell is recovered by a single-erasure
// CM256 decode over its column.
func (r *Rebuilder) finishVerRebuild() (int, error) {
	p := &r.params
	x := r.iLost % p.HorLocalCount
	blocks := make([]cm256.Block, p.TotalOriginalCount)
	zero := make([]byte, p.BlockBytes)
	for y := 0; y < p.VerLocalCount; y++ {
		i := x + y*p.HorLocalCount
		if i >= p.OriginalCount {
			blocks[i] = cm256.Block{Data: zero, LRCIndex: i, DecodeIndex: i}
		} else if i != r.iLost {
			blocks[i] = cm256.Block{Data: r.received[i], LRCIndex: i, DecodeIndex: i}
		}
	}
	out := make([]byte, p.BlockBytes)
	copy(out, r.received[p.verRecoveryIndex(x)])
	blocks[r.iLost] = cm256.Block{
		Data:        out,
		LRCIndex:    p.TotalOriginalCount + 1,
		DecodeIndex: cm256.VerDecodeRow(p.TotalOriginalCount),
	}

	params := cm256.Params{
		BlockBytes:         p.BlockBytes,
		TotalOriginalCount: p.TotalOriginalCount,
		FirstElement:       x,
		OriginalCount:      p.VerLocalCount,
		RecoveryCount:      1,
		Step:               p.HorLocalCount,
	}
	if err := cm256.Decode(params, blocks); err != nil {
		return 0, errors.Wrapf(err, "lrc: column decode for shard %d", r.iLost)
	}
	return r.finish(out)
}

// finishHorRecoveryRebuild / finishGlobalRecoveryRebuild: the target parity
// is a plain XOR of whatever else was requested.
func (r *Rebuilder) finishHorRecoveryRebuild() (int, error) {
	return r.xorRequested()
}

func (r *Rebuilder) finishGlobalRecoveryRebuild() (int, error) {
	return r.xorRequested()
}

func (r *Rebuilder) xorRequested() (int, error) {
	out := make([]byte, r.params.BlockBytes)
	first := true
	for _, idx := range r.requested {
		if first {
			copy(out, r.received[idx])
			first = false
			continue
		}
		gf256.AddMem(out, r.received[idx])
	}
	return r.finish(out)
}

// finishVerRecoveryRebuild: the column parity is the Cauchy combination of
// the column's originals (and implicit zero pad cells).
func (r *Rebuilder) finishVerRecoveryRebuild() (int, error) {
	p := &r.params
	x := r.iLost - p.OriginalCount - p.FirstVerRecoveryIndex
	blocks := make([]cm256.Block, p.TotalOriginalCount)
	zero := make([]byte, p.BlockBytes)
	for y := 0; y < p.VerLocalCount; y++ {
		i := x + y*p.HorLocalCount
		if data, ok := r.received[i]; ok {
			blocks[i] = cm256.Block{Data: data}
		} else {
			blocks[i] = cm256.Block{Data: zero}
		}
	}
	colParams := cm256.Params{
		TotalOriginalCount: p.TotalOriginalCount,
		OriginalCount:      p.VerLocalCount,
		RecoveryCount:      1,
		FirstElement:       x,
		Step:               p.HorLocalCount,
		BlockBytes:         p.BlockBytes,
	}
	out := make([]byte, p.BlockBytes)
	cm256.EncodeBlock(colParams, blocks, p.TotalOriginalCount+1, out)
	return r.finish(out)
}

// progressGlobalRebuild feeds one shard into the nested full decoder used
// by the GlobalRebuild stage and derives iLost once the nested decode
// completes. On first use it creates the decoder and replays every shard
// collected by the earlier, failed stages.
func (r *Rebuilder) progressGlobalRebuild(index int, payload []byte) (int, error) {
	p := &r.params
	synth := make([]byte, 1+p.BlockBytes)
	if r.nested == nil {
		r.nestedOut = make([]byte, p.OriginalCount*p.BlockBytes)
		nested, err := BeginDecode(p.OriginalCount, p.BlockBytes+1, r.nestedOut)
		if err != nil {
			return 0, err
		}
		r.nested = nested
		for idx, data := range r.received {
			putShard(synth, idx, data)
			if _, err := r.nested.Decode(synth); err != nil {
				return 0, err
			}
			if r.nested.done {
				break
			}
		}
	} else {
		putShard(synth, index, payload)
		if _, err := r.nested.Decode(synth); err != nil {
			return 0, err
		}
	}

	if !r.nested.done {
		return 0, nil
	}
	return r.finishFromNestedDecode()
}

// finishFromNestedDecode derives iLost from the nested decoder's fully
// recovered original grid: a copy for an original cell, or a re-encode of
// the appropriate parity otherwise.
func (r *Rebuilder) finishFromNestedDecode() (int, error) {
	p := &r.params
	kind, group := p.classify(r.iLost)

	if kind == kindOriginal {
		out := append([]byte(nil), r.nestedOut[r.iLost*p.BlockBytes:(r.iLost+1)*p.BlockBytes]...)
		return r.finish(out)
	}

	blocks := make([]cm256.Block, p.TotalOriginalCount)
	zero := make([]byte, p.BlockBytes)
	for i := 0; i < p.TotalOriginalCount; i++ {
		if i < p.OriginalCount {
			blocks[i] = cm256.Block{Data: r.nestedOut[i*p.BlockBytes : (i+1)*p.BlockBytes]}
		} else {
			blocks[i] = cm256.Block{Data: zero}
		}
	}

	out := make([]byte, p.BlockBytes)
	switch kind {
	case kindHorRecovery:
		rowParams := cm256.Params{
			TotalOriginalCount: p.TotalOriginalCount,
			OriginalCount:      p.HorLocalCount,
			RecoveryCount:      1,
			FirstElement:       group * p.HorLocalCount,
			Step:               1,
			BlockBytes:         p.BlockBytes,
		}
		cm256.EncodeBlock(rowParams, blocks, p.TotalOriginalCount, out)
	case kindVerRecovery:
		colParams := cm256.Params{
			TotalOriginalCount: p.TotalOriginalCount,
			OriginalCount:      p.VerLocalCount,
			RecoveryCount:      1,
			FirstElement:       group,
			Step:               p.HorLocalCount,
			BlockBytes:         p.BlockBytes,
		}
		cm256.EncodeBlock(colParams, blocks, p.TotalOriginalCount+1, out)
	case kindGlobalRecovery:
		globalParams := cm256.Params{
			TotalOriginalCount: p.TotalOriginalCount,
			OriginalCount:      p.OriginalCount,
			RecoveryCount:      1,
			FirstElement:       0,
			Step:               1,
			BlockBytes:         p.BlockBytes,
		}
		cm256.EncodeBlock(globalParams, blocks, p.TotalOriginalCount+group+2, out)
	case kindLocalOfGlobals:
		globalParams := cm256.Params{
			TotalOriginalCount: p.TotalOriginalCount,
			OriginalCount:      p.OriginalCount,
			RecoveryCount:      1,
			FirstElement:       0,
			Step:               1,
			BlockBytes:         p.BlockBytes,
		}
		one := make([]byte, p.BlockBytes)
		for i := 0; i < p.GlobalRecoveryCount; i++ {
			cm256.EncodeBlock(globalParams, blocks, p.TotalOriginalCount+i+2, one)
			gf256.AddMem(out, one)
		}
	}
	return r.finish(out)
}

// Free releases the rebuild's resources. Safe to call at any time; a no-op
// if the rebuild has already finished.
func (r *Rebuilder) Free() {
	r.received = nil
	r.nested = nil
	r.nestedOut = nil
}
