package lrc

import (
	"bytes"
	"testing"

	"lukechampine.com/frand"
)

func TestDecodeDuplicateShardIsNoOp(t *testing.T) {
	const originalCount = 12
	const shardSize = 9

	originals := buildOriginalShards(originalCount, shardSize)
	out := make([]byte, originalCount*(shardSize-1))
	dec, err := BeginDecode(originalCount, shardSize, out)
	if err != nil {
		t.Fatalf("BeginDecode: %v", err)
	}

	// Feed all but the last original, then repeat one: the duplicate must
	// be ignored without moving any deficit counter.
	for _, o := range originals[:originalCount-1] {
		if _, err := dec.Decode(o); err != nil {
			t.Fatalf("Decode: %v", err)
		}
	}
	missedBefore := dec.globalMissed
	status, err := dec.Decode(originals[0])
	if err != nil {
		t.Fatalf("Decode(duplicate): %v", err)
	}
	if status != 0 {
		t.Fatalf("duplicate shard: got status %d, want 0", status)
	}
	if dec.globalMissed != missedBefore {
		t.Fatalf("duplicate shard moved globalMissed: %d -> %d", missedBefore, dec.globalMissed)
	}

	status, err = dec.Decode(originals[originalCount-1])
	if err != nil {
		t.Fatalf("Decode(last): %v", err)
	}
	if status != 1 {
		t.Fatalf("decode did not finish: status=%d", status)
	}
}

func TestDecodeScatteredErasureEscalatesToGlobal(t *testing.T) {
	const originalCount = 24
	const shardSize = 41

	originals := buildOriginalShards(originalCount, shardSize)
	params, err := DeriveParams(originalCount, shardSize, 10)
	if err != nil {
		t.Fatalf("DeriveParams: %v", err)
	}
	recoveries := make([]byte, params.TotalRecoveryCount*shardSize)
	if _, err := Encode(originals, shardSize, recoveries); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// HorLocalCount for originalCount=24 is 4: indices 0,1,4,5 form a 2x2
	// block spanning rows 0-1 and columns 0-1. Losing all four leaves every
	// affected row and column with two missing cells, so neither a row nor
	// a column parity alone can recover any of them; only the global
	// Cauchy bank can.
	lost := map[int]bool{0: true, 1: true, 4: true, 5: true}

	out := make([]byte, originalCount*(shardSize-1))
	dec, err := BeginDecode(originalCount, shardSize, out)
	if err != nil {
		t.Fatalf("BeginDecode: %v", err)
	}

	var status int
	for i, o := range originals {
		if lost[i] {
			continue
		}
		status, err = dec.Decode(o)
		if err != nil {
			t.Fatalf("Decode(original %d): %v", i, err)
		}
	}
	for i := 0; i < params.TotalRecoveryCount && status != 1; i++ {
		shard := recoveries[i*shardSize : (i+1)*shardSize]
		status, err = dec.Decode(shard)
		if err != nil {
			t.Fatalf("Decode(recovery %d): %v", i, err)
		}
	}

	if status != 1 {
		t.Fatalf("decode did not finish: status=%d", status)
	}
	for i := range lost {
		got := out[i*(shardSize-1) : (i+1)*(shardSize-1)]
		want := shardPayload(originals[i])
		if !bytes.Equal(got, want) {
			t.Fatalf("original %d not recovered: got %x want %x", i, got, want)
		}
	}
}

func TestDecodePaddedGeometryRowRecovery(t *testing.T) {
	// 10 originals over a 3-wide grid: the last row holds one real cell
	// (index 9) and two implicit-zero pad cells, whose grid positions
	// overlap the first recovery shards' on-wire indices. Recovering the
	// lone real cell of that row from its parity exercises both the pad
	// seeding and the grid/recovery slot separation.
	const originalCount = 10
	const shardSize = 17

	originals := buildOriginalShards(originalCount, shardSize)
	params, err := DeriveParams(originalCount, shardSize, 10)
	if err != nil {
		t.Fatalf("DeriveParams: %v", err)
	}
	if params.TotalOriginalCount == originalCount {
		t.Fatalf("geometry has no padding; test needs a partial last row")
	}
	recoveries := make([]byte, params.TotalRecoveryCount*shardSize)
	if _, err := Encode(originals, shardSize, recoveries); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	out := make([]byte, originalCount*(shardSize-1))
	dec, err := BeginDecode(originalCount, shardSize, out)
	if err != nil {
		t.Fatalf("BeginDecode: %v", err)
	}

	const lost = 9 // the last row's only real cell
	for i, o := range originals {
		if i == lost {
			continue
		}
		if _, err := dec.Decode(o); err != nil {
			t.Fatalf("Decode(original %d): %v", i, err)
		}
	}
	lastRow := params.VerLocalCount - 1
	rowParity := recoveries[lastRow*shardSize : (lastRow+1)*shardSize]
	status, err := dec.Decode(rowParity)
	if err != nil {
		t.Fatalf("Decode(row parity): %v", err)
	}
	if status != 1 {
		t.Fatalf("expected padded-row recovery to finish the decode, got status=%d", status)
	}
	got := out[lost*(shardSize-1) : (lost+1)*(shardSize-1)]
	if !bytes.Equal(got, shardPayload(originals[lost])) {
		t.Fatalf("lost shard not recovered: got %x want %x", got, shardPayload(originals[lost]))
	}
}

func TestDecodeOrderIndependence(t *testing.T) {
	const originalCount = 15
	const shardSize = 25

	originals := buildOriginalShards(originalCount, shardSize)
	params, err := DeriveParams(originalCount, shardSize, 10)
	if err != nil {
		t.Fatalf("DeriveParams: %v", err)
	}
	recoveries := make([]byte, params.TotalRecoveryCount*shardSize)
	if _, err := Encode(originals, shardSize, recoveries); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	lost := map[int]bool{0: true, 7: true}
	var stream [][]byte
	for i, o := range originals {
		if !lost[i] {
			stream = append(stream, o)
		}
	}
	for i := 0; i < params.TotalRecoveryCount; i++ {
		stream = append(stream, recoveries[i*shardSize:(i+1)*shardSize])
	}

	decodeAll := func(order []int) []byte {
		out := make([]byte, originalCount*(shardSize-1))
		dec, err := BeginDecode(originalCount, shardSize, out)
		if err != nil {
			t.Fatalf("BeginDecode: %v", err)
		}
		for _, i := range order {
			status, err := dec.Decode(stream[i])
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if status == 1 {
				return out
			}
		}
		t.Fatalf("decode did not finish")
		return nil
	}

	first := decodeAll(frand.Perm(len(stream)))
	second := decodeAll(frand.Perm(len(stream)))
	if !bytes.Equal(first, second) {
		t.Fatalf("decoded output depends on shard arrival order")
	}
	for i, o := range originals {
		got := first[i*(shardSize-1) : (i+1)*(shardSize-1)]
		if !bytes.Equal(got, shardPayload(o)) {
			t.Fatalf("original %d mismatch after decode", i)
		}
	}
}

func TestDecodeTenScatteredLossesNeedGlobalBank(t *testing.T) {
	// 64 originals form an 8x8 grid. Losing two or more cells in every
	// affected row and column keeps the local cascade from making any
	// progress, so the decode must run the full Cauchy pass over all ten
	// borrowed globals at once.
	const originalCount = 64
	const shardSize = 29

	originals := buildOriginalShards(originalCount, shardSize)
	params, err := DeriveParams(originalCount, shardSize, 10)
	if err != nil {
		t.Fatalf("DeriveParams: %v", err)
	}
	recoveries := make([]byte, params.TotalRecoveryCount*shardSize)
	if _, err := Encode(originals, shardSize, recoveries); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	lost := map[int]bool{
		0: true, 1: true, 2: true,
		8: true, 9: true, 10: true,
		16: true, 17: true,
		24: true, 25: true,
	}

	out := make([]byte, originalCount*(shardSize-1))
	dec, err := BeginDecode(originalCount, shardSize, out)
	if err != nil {
		t.Fatalf("BeginDecode: %v", err)
	}

	var status int
	for i, o := range originals {
		if lost[i] {
			continue
		}
		status, err = dec.Decode(o)
		if err != nil {
			t.Fatalf("Decode(original %d): %v", i, err)
		}
	}
	for i := 0; i < params.TotalRecoveryCount && status != 1; i++ {
		shard := recoveries[i*shardSize : (i+1)*shardSize]
		status, err = dec.Decode(shard)
		if err != nil {
			t.Fatalf("Decode(recovery %d): %v", i, err)
		}
	}

	if status != 1 {
		t.Fatalf("decode did not finish: status=%d", status)
	}
	for i := range lost {
		got := out[i*(shardSize-1) : (i+1)*(shardSize-1)]
		if !bytes.Equal(got, shardPayload(originals[i])) {
			t.Fatalf("original %d not recovered", i)
		}
	}
}
