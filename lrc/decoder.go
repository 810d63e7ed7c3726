package lrc

import (
	"github.com/pkg/errors"

	"go.yottachain.io/lrc/internal/cm256"
	"go.yottachain.io/lrc/internal/gf256"
)

var (
	// ErrDecodeFinished is returned by Decode once the decoder has already
	// recovered every original shard.
	ErrDecodeFinished = errors.New("lrc: decode already finished")
	// ErrBadShardIndex is returned when a shard's on-wire index is outside
	// the geometry's symbol space.
	ErrBadShardIndex = errors.New("lrc: shard index out of range")
)

// Decoder is one in-progress decode: feed it shards (originals or
// recoveries, in any order, duplicates tolerated) via Decode until every
// original shard has been recovered into the output buffer given to
// BeginDecode. Recovery is an opportunistic cascade across rows and
// columns, escalating to the global Cauchy bank only when local recovery
// stalls.
type Decoder struct {
	params Params

	decodedData []byte

	// shards is indexed by LRC grid index, not by on-wire index: grid
	// cells (originals plus implicit zero padding) occupy
	// [0, TotalOriginalCount), each recovery class sits at
	// TotalOriginalCount+recoveryIndex, and the two synthesized virtual
	// globals occupy the final two slots. Keeping padding and recoveries
	// in disjoint ranges matters: when OriginalCount is not a multiple of
	// HorLocalCount the pad cells would otherwise collide with the first
	// recovery slots.
	shards []cm256.Block

	horMissed []int
	verMissed []int

	globalMissed         int
	numGlobalRecovery    int
	totalGlobalRecovery  int
	numHorRecoveryShards int
	numVerRecoveryShards int

	// Scratch shards: the repaired global, the two virtual globals
	// synthesized from a complete row/column parity class, and the shared
	// zero payload backing every pad cell.
	globalRecoveryBuf []byte
	globalFromHorBuf  []byte
	globalFromVerBuf  []byte
	zeroBuf           []byte

	done bool
}

// Internal slot positions within d.shards for each recovery class and for
// the two virtual globals synthesized by XORing every row (resp. column)
// recovery shard together. Each virtual global stands in for one more
// global Cauchy symbol once every shard of its class has arrived.
func (d *Decoder) horRecoverySlot(y int) int {
	return d.params.TotalOriginalCount + d.params.FirstHorRecoveryIndex + y
}

func (d *Decoder) verRecoverySlot(x int) int {
	return d.params.TotalOriginalCount + d.params.FirstVerRecoveryIndex + x
}

func (d *Decoder) globalRecoverySlot(i int) int {
	return d.params.TotalOriginalCount + d.params.FirstGlobalRecoveryIndex + i
}

func (d *Decoder) localOfGlobalsSlot() int {
	return d.params.TotalOriginalCount + d.params.LocalRecoveryOfGlobalRecoveryIndex
}

func (d *Decoder) globalFromHorSlot() int {
	return d.params.TotalOriginalCount + d.params.TotalRecoveryCount
}

func (d *Decoder) globalFromVerSlot() int {
	return d.params.TotalOriginalCount + d.params.TotalRecoveryCount + 1
}

// BeginDecode starts a new decode for originalCount original shards of the
// given on-wire shardSize (index byte included). out must be at least
// originalCount*(shardSize-1) bytes and receives the recovered originals'
// payloads in place as they become known.
func BeginDecode(originalCount, shardSize int, out []byte) (*Decoder, error) {
	n, err := currentGlobalRecoveryCount()
	if err != nil {
		return nil, err
	}
	params, err := DeriveParams(originalCount, shardSize, n)
	if err != nil {
		return nil, err
	}
	if len(out) < params.OriginalCount*params.BlockBytes {
		return nil, errors.New("lrc: output buffer too small")
	}

	d := &Decoder{
		params:      params,
		decodedData: out,
		shards:      make([]cm256.Block, params.TotalOriginalCount+params.TotalRecoveryCount+2),
		horMissed:   make([]int, params.VerLocalCount),
		verMissed:   make([]int, params.HorLocalCount),
	}

	buf := make([]byte, 4*params.BlockBytes)
	d.globalRecoveryBuf = buf[:params.BlockBytes]
	d.globalFromHorBuf = buf[params.BlockBytes : 2*params.BlockBytes]
	d.globalFromVerBuf = buf[2*params.BlockBytes : 3*params.BlockBytes]
	d.zeroBuf = buf[3*params.BlockBytes : 4*params.BlockBytes]

	// The pad cells are known from the start: every implicit-zero position
	// shares the one zero payload, and the deficit counters below are
	// reduced to match so that a row or column containing padding still
	// recovers as soon as its one real missing cell is covered.
	for i := params.OriginalCount; i < params.TotalOriginalCount; i++ {
		d.shards[i] = cm256.Block{Data: d.zeroBuf, LRCIndex: i, DecodeIndex: i}
	}

	d.globalMissed = params.OriginalCount
	for y := range d.horMissed {
		d.horMissed[y] = params.HorLocalCount
	}
	d.horMissed[params.VerLocalCount-1] -= params.TotalOriginalCount - params.OriginalCount
	lastRowCells := params.OriginalCount % params.HorLocalCount
	for x := range d.verMissed {
		d.verMissed[x] = params.VerLocalCount
		if lastRowCells != 0 && x >= lastRowCells {
			d.verMissed[x]--
		}
	}

	return d, nil
}

func (d *Decoder) shardExists(slot int) bool {
	return d.shards[slot].Data != nil
}

// Free releases the decoder's resources. Safe to call at any time; a no-op
// if the decoder has already finished on its own.
func (d *Decoder) Free() {
	d.shards = nil
	d.globalRecoveryBuf = nil
	d.globalFromHorBuf = nil
	d.globalFromVerBuf = nil
	d.zeroBuf = nil
}

// Decode feeds one shard (index byte followed by BlockBytes of payload)
// into the decoder. It returns 1 once every original shard has been
// recovered (after which the Decoder must not be reused), 0 if more shards
// are still needed, and an error only for malformed input.
func (d *Decoder) Decode(shard []byte) (int, error) {
	if d.done {
		return 0, ErrDecodeFinished
	}
	index, err := shardIndex(shard)
	if err != nil {
		return 0, err
	}
	if index >= d.params.OriginalCount+d.params.TotalRecoveryCount {
		return 0, ErrBadShardIndex
	}
	payload := shardPayload(shard)
	if len(payload) != d.params.BlockBytes {
		return 0, errors.New("lrc: shard has the wrong payload size")
	}

	p := &d.params
	x, y := -1, -1

	if index < p.OriginalCount {
		if d.shardExists(index) {
			return 0, nil
		}
		dst := d.decodedData[index*p.BlockBytes : (index+1)*p.BlockBytes]
		copy(dst, payload)
		d.shards[index] = cm256.Block{
			Data:        dst,
			LRCIndex:    index,
			DecodeIndex: index,
		}

		x, y = p.gridCoords(index)
		if d.horMissed[y] > 0 {
			d.horMissed[y]--
		}
		if d.verMissed[x] > 0 {
			d.verMissed[x]--
		}
		if d.globalMissed > 0 {
			d.globalMissed--
		}
	} else {
		recoveryIndex := index - p.OriginalCount
		slot := p.TotalOriginalCount + recoveryIndex
		if d.shardExists(slot) {
			return 0, nil
		}
		block := cm256.Block{
			Data:     append([]byte(nil), payload...),
			LRCIndex: slot,
		}
		switch {
		case recoveryIndex >= p.FirstHorRecoveryIndex && recoveryIndex < p.FirstHorRecoveryIndex+p.VerLocalCount:
			block.DecodeIndex = cm256.HorDecodeRow(p.TotalOriginalCount)
			y = recoveryIndex - p.FirstHorRecoveryIndex
			d.numHorRecoveryShards++
		case recoveryIndex >= p.FirstVerRecoveryIndex && recoveryIndex < p.FirstVerRecoveryIndex+p.HorLocalCount:
			block.DecodeIndex = cm256.VerDecodeRow(p.TotalOriginalCount)
			x = recoveryIndex - p.FirstVerRecoveryIndex
			d.numVerRecoveryShards++
		case recoveryIndex >= p.FirstGlobalRecoveryIndex && recoveryIndex < p.FirstGlobalRecoveryIndex+p.GlobalRecoveryCount:
			block.DecodeIndex = cm256.GlobalDecodeRow(p.TotalOriginalCount, recoveryIndex-p.FirstGlobalRecoveryIndex)
			d.numGlobalRecovery++
			d.totalGlobalRecovery++
		case recoveryIndex == p.LocalRecoveryOfGlobalRecoveryIndex:
			block.DecodeIndex = cm256.HorDecodeRow(p.TotalOriginalCount) // XOR parity, same fast path as a row
		default:
			return 0, ErrBadShardIndex
		}
		d.shards[slot] = block
	}

	x1, y1 := x, y
	for y1 >= 0 {
		x1 = d.checkAndRecoverHor(y1)
		if x1 < 0 {
			break
		}
		y1 = d.checkAndRecoverVer(x1)
	}
	x1, y1 = x, y
	for x1 >= 0 {
		y1 = d.checkAndRecoverVer(x1)
		if y1 < 0 {
			break
		}
		x1 = d.checkAndRecoverHor(y1)
	}

	d.checkAndRecoverGlobal()

	if d.globalMissed <= 0 {
		d.done = true
		return 1, nil
	}
	if d.globalMissed > d.totalGlobalRecovery {
		return 0, nil
	}

	if err := d.finishWithGlobalRecovery(); err != nil {
		return 0, err
	}
	d.done = true
	return 1, nil
}

// checkAndRecoverHor recovers the lone missing shard of horizontal local
// group y, if exactly one is missing and that row's recovery shard has
// arrived. Returns the recovered shard's column, or a negative value when
// nothing was recovered (-1: not recoverable yet, -2: the row decode
// failed, -3: no missing cell found).
func (d *Decoder) checkAndRecoverHor(y int) int {
	p := &d.params
	recoverySlot := d.horRecoverySlot(y)
	if d.horMissed[y] != 1 || !d.shardExists(recoverySlot) {
		return -1
	}
	base := y * p.HorLocalCount
	for x := 0; x < p.HorLocalCount; x++ {
		index2 := base + x
		if d.shardExists(index2) {
			continue
		}
		dst := d.decodedData[index2*p.BlockBytes : (index2+1)*p.BlockBytes]
		copy(dst, d.shards[recoverySlot].Data)
		d.shards[index2] = cm256.Block{
			Data:        dst,
			LRCIndex:    recoverySlot,
			DecodeIndex: cm256.HorDecodeRow(p.TotalOriginalCount),
		}

		params := cm256.Params{
			BlockBytes:         p.BlockBytes,
			TotalOriginalCount: p.TotalOriginalCount,
			FirstElement:       base,
			OriginalCount:      p.HorLocalCount,
			RecoveryCount:      1,
			Step:               1,
		}
		if err := cm256.Decode(params, d.shards); err != nil {
			d.shards[index2].Data = nil
			return -2
		}

		if d.horMissed[y] > 0 {
			d.horMissed[y]--
		}
		if d.verMissed[x] > 0 {
			d.verMissed[x]--
		}
		if d.globalMissed > 0 {
			d.globalMissed--
		}
		return x
	}
	return -3
}

// checkAndRecoverVer is checkAndRecoverHor's column counterpart.
func (d *Decoder) checkAndRecoverVer(x int) int {
	p := &d.params
	recoverySlot := d.verRecoverySlot(x)
	if d.verMissed[x] != 1 || !d.shardExists(recoverySlot) {
		return -1
	}
	for y := 0; y < p.VerLocalCount; y++ {
		index2 := x + y*p.HorLocalCount
		if d.shardExists(index2) {
			continue
		}
		dst := d.decodedData[index2*p.BlockBytes : (index2+1)*p.BlockBytes]
		copy(dst, d.shards[recoverySlot].Data)
		d.shards[index2] = cm256.Block{
			Data:        dst,
			LRCIndex:    recoverySlot,
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
		if err := cm256.Decode(params, d.shards); err != nil {
			d.shards[index2].Data = nil
			return -2
		}

		if d.horMissed[y] > 0 {
			d.horMissed[y]--
		}
		if d.verMissed[x] > 0 {
			d.verMissed[x]--
		}
		if d.globalMissed > 0 {
			d.globalMissed--
		}
		return y
	}
	return -3
}

// checkAndRecoverGlobal synthesizes extra global-class recovery shards when
// it can: the missing global (if exactly one) from the local-of-globals
// parity, and the two virtual globals from the XOR of a fully-arrived row
// or column recovery class. The virtual globals decode with rows HOR and
// VER respectively: the XOR of every row parity is the all-ones parity
// over the whole grid, and the XOR of every column parity is the VER
// Cauchy row over the whole grid.
func (d *Decoder) checkAndRecoverGlobal() bool {
	p := &d.params
	recovered := false

	if d.numGlobalRecovery == p.GlobalRecoveryCount-1 && d.shardExists(d.localOfGlobalsSlot()) {
		copy(d.globalRecoveryBuf, d.shards[d.localOfGlobalsSlot()].Data)
		for i := 0; i < p.GlobalRecoveryCount; i++ {
			slot := d.globalRecoverySlot(i)
			if !d.shardExists(slot) {
				// The buffer still accumulates the remaining globals after
				// this point; by the end of the loop it holds the repaired
				// shard this block already references.
				d.shards[slot] = cm256.Block{
					Data:        d.globalRecoveryBuf,
					LRCIndex:    slot,
					DecodeIndex: cm256.GlobalDecodeRow(p.TotalOriginalCount, i),
				}
			} else {
				gf256.AddMem(d.globalRecoveryBuf, d.shards[slot].Data)
			}
		}
		d.numGlobalRecovery++
		d.totalGlobalRecovery++
		recovered = true
	}

	horSlot := d.globalFromHorSlot()
	if d.numHorRecoveryShards == p.VerLocalCount && !d.shardExists(horSlot) {
		copy(d.globalFromHorBuf, d.shards[d.horRecoverySlot(0)].Data)
		for i := 1; i < p.VerLocalCount; i++ {
			gf256.AddMem(d.globalFromHorBuf, d.shards[d.horRecoverySlot(i)].Data)
		}
		d.shards[horSlot] = cm256.Block{
			Data:        d.globalFromHorBuf,
			LRCIndex:    horSlot,
			DecodeIndex: cm256.HorDecodeRow(p.TotalOriginalCount),
		}
		d.totalGlobalRecovery++
		recovered = true
	}

	verSlot := d.globalFromVerSlot()
	if d.numVerRecoveryShards == p.HorLocalCount && !d.shardExists(verSlot) {
		copy(d.globalFromVerBuf, d.shards[d.verRecoverySlot(0)].Data)
		for i := 1; i < p.HorLocalCount; i++ {
			gf256.AddMem(d.globalFromVerBuf, d.shards[d.verRecoverySlot(i)].Data)
		}
		d.shards[verSlot] = cm256.Block{
			Data:        d.globalFromVerBuf,
			LRCIndex:    verSlot,
			DecodeIndex: cm256.VerDecodeRow(p.TotalOriginalCount),
		}
		d.totalGlobalRecovery++
		recovered = true
	}

	return recovered
}

// finishWithGlobalRecovery performs the final escalation: every remaining
// missing original is paired with one surviving global-class recovery
// shard (global Cauchy symbols, then the virtual row/column globals), by
// ascending slot, and the whole batch is recovered with one multi-erasure
// cm256.Decode.
func (d *Decoder) finishWithGlobalRecovery() error {
	p := &d.params
	globalSlot := d.globalRecoverySlot(0)
	for i := 0; i < p.OriginalCount; i++ {
		if d.shardExists(i) {
			continue
		}
		for globalSlot == d.localOfGlobalsSlot() || !d.shardExists(globalSlot) {
			globalSlot++
			if globalSlot > d.globalFromVerSlot() {
				return errors.New("lrc: not enough global recovery shards")
			}
		}
		dst := d.decodedData[i*p.BlockBytes : (i+1)*p.BlockBytes]
		copy(dst, d.shards[globalSlot].Data)
		d.shards[i] = cm256.Block{
			Data:        dst,
			LRCIndex:    d.shards[globalSlot].LRCIndex,
			DecodeIndex: d.shards[globalSlot].DecodeIndex,
		}
		globalSlot++
	}

	params := cm256.Params{
		BlockBytes:         p.BlockBytes,
		TotalOriginalCount: p.TotalOriginalCount,
		FirstElement:       0,
		OriginalCount:      p.OriginalCount,
		RecoveryCount:      d.globalMissed,
		Step:               1,
	}
	if err := cm256.Decode(params, d.shards); err != nil {
		return errors.Wrap(err, "lrc: global recovery decode")
	}
	return nil
}
