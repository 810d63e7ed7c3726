// Package gf256 implements arithmetic over GF(2^8), the finite field used
// by the Cauchy matrix codec in internal/cm256 and the LRC geometry in
// package lrc.
//
// The field is fixed: there is exactly one instance, built once at package
// init time from a single primitive polynomial, and the exported functions
// are the only way to touch it. There is no way to construct a second field
// or to reconfigure the polynomial at runtime; GF(256) is the only size
// this module ever needs.
package gf256

import (
	"github.com/templexxx/xorsimd"
	"golang.org/x/sys/cpu"
)

// primitivePolynomial is the modulus used to build the log/exp tables.
// 0x11D is the standard GF(2^8) primitive polynomial shared by AES,
// QR codes, and most Reed-Solomon implementations.
const primitivePolynomial = 0x11D

var (
	expTable [512]byte
	logTable [256]byte

	// mulTable[a][b] = a*b in GF(256). Built once from the log/exp tables;
	// every bulk multiply routine below is a lookup against one row of it.
	mulTable [256][256]byte
)

func init() {
	// Build the exp table by walking the multiplicative group generated by 2.
	x := 1
	for i := 0; i < 255; i++ {
		expTable[i] = byte(x)
		logTable[byte(x)] = byte(i)
		x <<= 1
		if x&0x100 != 0 {
			x ^= primitivePolynomial
		}
	}
	// Double the table so Mul can index log(a)+log(b) without wrapping.
	for i := 255; i < 512; i++ {
		expTable[i] = expTable[i-255]
	}
	logTable[0] = 0 // never consulted: Mul/Div special-case zero operands.

	for a := 0; a < 256; a++ {
		for b := 0; b < 256; b++ {
			mulTable[a][b] = mulComputed(byte(a), byte(b))
		}
	}
}

func mulComputed(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return expTable[int(logTable[a])+int(logTable[b])]
}

// useWideMulLoop selects the 8-wide unrolled variant of the bulk multiply
// routines on platforms wide enough to benefit; elsewhere they walk one
// byte at a time.
var useWideMulLoop = cpu.X86.HasAVX2 || cpu.X86.HasSSSE3

// Add returns a+b in GF(256), i.e. a XOR b.
func Add(a, b byte) byte {
	return a ^ b
}

// Mul returns a*b in GF(256).
func Mul(a, b byte) byte {
	return mulTable[a][b]
}

// Div returns a/b in GF(256). The caller must never pass b == 0; the
// precondition is not checked, since every call site in this module derives
// b from a Cauchy coefficient or table row that is already known nonzero.
func Div(a, b byte) byte {
	if a == 0 {
		return 0
	}
	diff := int(logTable[a]) - int(logTable[b])
	if diff < 0 {
		diff += 255
	}
	return expTable[diff]
}

// AddMem computes dst ^= src over blockBytes-sized buffers (GF(256) add is
// XOR). dst and src may alias.
func AddMem(dst, src []byte) {
	xorsimd.Encode(dst, [][]byte{dst, src})
}

// AddSetMem computes dst = a ^ b. dst may alias a or b.
func AddSetMem(dst, a, b []byte) {
	xorsimd.Bytes(dst, a, b)
}

// Add2Mem computes dst ^= a ^ b in one pass. dst may alias a or b.
func Add2Mem(dst, a, b []byte) {
	xorsimd.Encode(dst, [][]byte{dst, a, b})
}

// MulMem computes dst = src*c. dst and src may alias.
func MulMem(dst, src []byte, c byte) {
	if c == 0 {
		for i := range dst {
			dst[i] = 0
		}
		return
	}
	if c == 1 {
		copy(dst, src)
		return
	}
	row := &mulTable[c]
	n := len(src)
	if useWideMulLoop {
		i := 0
		for ; i+8 <= n; i += 8 {
			dst[i] = row[src[i]]
			dst[i+1] = row[src[i+1]]
			dst[i+2] = row[src[i+2]]
			dst[i+3] = row[src[i+3]]
			dst[i+4] = row[src[i+4]]
			dst[i+5] = row[src[i+5]]
			dst[i+6] = row[src[i+6]]
			dst[i+7] = row[src[i+7]]
		}
		for ; i < n; i++ {
			dst[i] = row[src[i]]
		}
		return
	}
	for i, s := range src {
		dst[i] = row[s]
	}
}

// MulAddMem computes dst ^= src*c.
func MulAddMem(dst []byte, c byte, src []byte) {
	if c == 0 {
		return
	}
	if c == 1 {
		AddMem(dst, src)
		return
	}
	row := &mulTable[c]
	n := len(src)
	if useWideMulLoop {
		i := 0
		for ; i+8 <= n; i += 8 {
			dst[i] ^= row[src[i]]
			dst[i+1] ^= row[src[i+1]]
			dst[i+2] ^= row[src[i+2]]
			dst[i+3] ^= row[src[i+3]]
			dst[i+4] ^= row[src[i+4]]
			dst[i+5] ^= row[src[i+5]]
			dst[i+6] ^= row[src[i+6]]
			dst[i+7] ^= row[src[i+7]]
		}
		for ; i < n; i++ {
			dst[i] ^= row[src[i]]
		}
		return
	}
	for i, s := range src {
		dst[i] ^= row[s]
	}
}

// DivMem computes dst = src/c. The caller must never pass c == 0. dst and
// src may alias.
func DivMem(dst, src []byte, c byte) {
	if c == 1 {
		copy(dst, src)
		return
	}
	logC := int(logTable[c])
	for i, s := range src {
		if s == 0 {
			dst[i] = 0
			continue
		}
		diff := int(logTable[s]) - logC
		if diff < 0 {
			diff += 255
		}
		dst[i] = expTable[diff]
	}
}
