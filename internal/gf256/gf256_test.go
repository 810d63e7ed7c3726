package gf256

import (
	"testing"

	"lukechampine.com/frand"
)

func TestAddIsXOR(t *testing.T) {
	for a := 0; a < 256; a++ {
		for b := 0; b < 256; b++ {
			if got, want := Add(byte(a), byte(b)), byte(a)^byte(b); got != want {
				t.Fatalf("Add(%d,%d) = %d, want %d", a, b, got, want)
			}
		}
	}
}

func TestMulDivInverse(t *testing.T) {
	for a := 1; a < 256; a++ {
		for b := 1; b < 256; b++ {
			prod := Mul(byte(a), byte(b))
			if got := Div(prod, byte(b)); got != byte(a) {
				t.Fatalf("Div(Mul(%d,%d), %d) = %d, want %d", a, b, b, got, a)
			}
		}
	}
}

func TestMulZeroAndOne(t *testing.T) {
	for a := 0; a < 256; a++ {
		if Mul(byte(a), 0) != 0 || Mul(0, byte(a)) != 0 {
			t.Errorf("Mul(%d,0) should be 0", a)
		}
		if Mul(byte(a), 1) != byte(a) || Mul(1, byte(a)) != byte(a) {
			t.Errorf("Mul(%d,1) should be %d", a, a)
		}
	}
}

func TestBulkOpsMatchScalar(t *testing.T) {
	const n = 4096
	dst := frand.Bytes(n)
	src := frand.Bytes(n)
	a := frand.Bytes(n)
	b := frand.Bytes(n)
	c := byte(frand.Intn(254) + 1) // nonzero

	t.Run("AddMem", func(t *testing.T) {
		got := append([]byte(nil), dst...)
		AddMem(got, src)
		for i := range got {
			if want := Add(dst[i], src[i]); got[i] != want {
				t.Fatalf("byte %d: got %d want %d", i, got[i], want)
			}
		}
	})

	t.Run("AddSetMem", func(t *testing.T) {
		got := make([]byte, n)
		AddSetMem(got, a, b)
		for i := range got {
			if want := Add(a[i], b[i]); got[i] != want {
				t.Fatalf("byte %d: got %d want %d", i, got[i], want)
			}
		}
	})

	t.Run("Add2Mem", func(t *testing.T) {
		got := append([]byte(nil), dst...)
		Add2Mem(got, a, b)
		for i := range got {
			want := Add(dst[i], Add(a[i], b[i]))
			if got[i] != want {
				t.Fatalf("byte %d: got %d want %d", i, got[i], want)
			}
		}
	})

	t.Run("MulMem", func(t *testing.T) {
		got := make([]byte, n)
		MulMem(got, src, c)
		for i := range got {
			if want := Mul(src[i], c); got[i] != want {
				t.Fatalf("byte %d: got %d want %d", i, got[i], want)
			}
		}
	})

	t.Run("MulAddMem", func(t *testing.T) {
		got := append([]byte(nil), dst...)
		MulAddMem(got, c, src)
		for i := range got {
			want := Add(dst[i], Mul(src[i], c))
			if got[i] != want {
				t.Fatalf("byte %d: got %d want %d", i, got[i], want)
			}
		}
	})

	t.Run("DivMem", func(t *testing.T) {
		got := make([]byte, n)
		DivMem(got, src, c)
		for i := range got {
			if want := Div(src[i], c); got[i] != want {
				t.Fatalf("byte %d: got %d want %d", i, got[i], want)
			}
		}
	})
}

func TestAddMemAliasing(t *testing.T) {
	buf := frand.Bytes(1024)
	other := append([]byte(nil), buf...)
	AddMem(buf, buf)
	for i, v := range buf {
		if v != 0 {
			t.Fatalf("byte %d: AddMem(x,x) should be all zero, got %d (orig %d)", i, v, other[i])
		}
	}
}
