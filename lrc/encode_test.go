package lrc

import (
	"bytes"
	"testing"
)

func TestEncodeProducesTotalRecoveryCountShards(t *testing.T) {
	const originalCount = 20
	const shardSize = 65

	originals := buildOriginalShards(originalCount, shardSize)
	params, err := DeriveParams(originalCount, shardSize, 10)
	if err != nil {
		t.Fatalf("DeriveParams: %v", err)
	}

	recoveries := make([]byte, params.TotalRecoveryCount*shardSize)
	n, err := Encode(originals, shardSize, recoveries)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if n != params.TotalRecoveryCount {
		t.Fatalf("Encode returned %d shards, want %d", n, params.TotalRecoveryCount)
	}

	seen := map[int]bool{}
	for i := 0; i < n; i++ {
		shard := recoveries[i*shardSize : (i+1)*shardSize]
		idx, err := shardIndex(shard)
		if err != nil {
			t.Fatalf("shardIndex: %v", err)
		}
		if idx < originalCount || idx >= originalCount+params.TotalRecoveryCount {
			t.Fatalf("recovery shard %d has out-of-range index %d", i, idx)
		}
		if seen[idx] {
			t.Fatalf("duplicate recovery index %d", idx)
		}
		seen[idx] = true
	}
}

func TestEncodeRowParityIsXOR(t *testing.T) {
	const originalCount = 8
	const shardSize = 17

	originals := buildOriginalShards(originalCount, shardSize)
	params, err := DeriveParams(originalCount, shardSize, 10)
	if err != nil {
		t.Fatalf("DeriveParams: %v", err)
	}

	recoveries := make([]byte, params.TotalRecoveryCount*shardSize)
	if _, err := Encode(originals, shardSize, recoveries); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Row 0 runs from index 0 to HorLocalCount-1.
	want := make([]byte, shardSize-1)
	for i := 0; i < params.HorLocalCount; i++ {
		for j, b := range shardPayload(originals[i]) {
			want[j] ^= b
		}
	}

	rowShard := recoveries[0:shardSize]
	idx, _ := shardIndex(rowShard)
	if idx != params.RecoveryShardIndex(params.FirstHorRecoveryIndex) {
		t.Fatalf("first recovery shard has index %d, want row parity index", idx)
	}
	if !bytes.Equal(shardPayload(rowShard), want) {
		t.Fatalf("row parity mismatch: got %x want %x", shardPayload(rowShard), want)
	}
}

func TestEncodeDecodeFullErasureRecovery(t *testing.T) {
	const originalCount = 20
	const shardSize = 33

	originals := buildOriginalShards(originalCount, shardSize)
	params, err := DeriveParams(originalCount, shardSize, 10)
	if err != nil {
		t.Fatalf("DeriveParams: %v", err)
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

	// Lose the first 3 originals; feed everything else, including every
	// recovery shard, so the decode can finish however it needs to.
	lost := map[int]bool{0: true, 1: true, 2: true}
	status := 0
	for i, o := range originals {
		if lost[i] {
			continue
		}
		status, err = dec.Decode(o)
		if err != nil {
			t.Fatalf("Decode(original %d): %v", i, err)
		}
	}
	for i := 0; i < params.TotalRecoveryCount; i++ {
		if status == 1 {
			break
		}
		shard := recoveries[i*shardSize : (i+1)*shardSize]
		status, err = dec.Decode(shard)
		if err != nil {
			t.Fatalf("Decode(recovery %d): %v", i, err)
		}
	}

	if status != 1 {
		t.Fatalf("decode did not finish: status=%d", status)
	}
	for _, i := range []int{0, 1, 2} {
		got := out[i*(shardSize-1) : (i+1)*(shardSize-1)]
		want := shardPayload(originals[i])
		if !bytes.Equal(got, want) {
			t.Fatalf("original %d not recovered: got %x want %x", i, got, want)
		}
	}
}

func TestDecodeSingleRowRecoveryViaParity(t *testing.T) {
	const originalCount = 16 // four full horizontal groups of 4
	const shardSize = 17

	originals := buildOriginalShards(originalCount, shardSize)
	params, err := DeriveParams(originalCount, shardSize, 10)
	if err != nil {
		t.Fatalf("DeriveParams: %v", err)
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

	lost := 2 // somewhere in row 0
	rowParity := recoveries[0:shardSize]

	var status int
	for i, o := range originals {
		if i == lost {
			continue
		}
		status, err = dec.Decode(o)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
	}
	status, err = dec.Decode(rowParity)
	if err != nil {
		t.Fatalf("Decode(row parity): %v", err)
	}
	if status != 1 {
		t.Fatalf("expected row-local recovery to finish the decode, got status=%d", status)
	}
	got := out[lost*(shardSize-1) : (lost+1)*(shardSize-1)]
	want := shardPayload(originals[lost])
	if !bytes.Equal(got, want) {
		t.Fatalf("lost shard not recovered: got %x want %x", got, want)
	}
}

func TestEncodeLocalOfGlobalsIsXOROfGlobals(t *testing.T) {
	const originalCount = 20
	const shardSize = 33

	originals := buildOriginalShards(originalCount, shardSize)
	params, err := DeriveParams(originalCount, shardSize, 10)
	if err != nil {
		t.Fatalf("DeriveParams: %v", err)
	}
	recoveries := make([]byte, params.TotalRecoveryCount*shardSize)
	if _, err := Encode(originals, shardSize, recoveries); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	want := make([]byte, shardSize-1)
	for i := 0; i < params.GlobalRecoveryCount; i++ {
		pos := params.FirstGlobalRecoveryIndex + i
		for j, b := range shardPayload(recoveries[pos*shardSize : (pos+1)*shardSize]) {
			want[j] ^= b
		}
	}

	pos := params.LocalRecoveryOfGlobalRecoveryIndex
	got := shardPayload(recoveries[pos*shardSize : (pos+1)*shardSize])
	if !bytes.Equal(got, want) {
		t.Fatalf("local-of-globals parity mismatch: got %x want %x", got, want)
	}
}
