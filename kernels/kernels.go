// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package kernels

import (
	"encoding/binary"
	"math/bits"

	"github.com/dchest/siphash"
)

const (
	// HashName is the function name of the kernel that hashes and reduces
	// every corpus entry.
	HashName = "hash_all"

	// CompareName is the function name of the kernel that compares reduced
	// hashes against filter values.
	CompareName = "compare_xy_simd"
)

// Argument binding indices for the hash kernel.
const (
	HashOpcodesIndex = 0
	HashOutputIndex  = 1
	HashParamsIndex  = 2
)

// Argument binding indices for the compare kernel.
const (
	CompareHashesIndex  = 0
	CompareFiltersIndex = 1
	CompareOutputIndex  = 2
	CompareParamsIndex  = 3
)

const (
	// KeySize is the size of the SipHash key.
	KeySize = 16

	// OpcodeBytes is the width of a single opcode slot including the trailing
	// length byte.
	OpcodeBytes = 40

	// MaxOpcodeLen is the longest corpus entry that fits in an opcode slot.
	MaxOpcodeLen = OpcodeBytes - 2

	// SentinelLength is the length byte used by padding slots.  It is out of
	// range for real entries so padding never hashes to anything.
	SentinelLength = 0xff

	// HashParamsSize is the size of the hash kernel parameter block: the key
	// followed by the little endian modulus.
	HashParamsSize = KeySize + 8

	// CompareParamsSize is the size of the compare kernel parameter block: the
	// number of live hashes followed by the number of live filter values, both
	// little endian uint32.
	CompareParamsSize = 8

	// ValueSize is the size of a single reduced hash or filter value.
	ValueSize = 4
)

// FastReduce maps x to the range [0, n) using a multiply and shift instead of
// a modulo operation.  The high 64 bits of the 128-bit product x*n are the
// result.
func FastReduce(x, n uint64) uint64 {
	hi, _ := bits.Mul64(x, n)
	return hi
}

// Hash returns the SipHash-2-4 of data with the given key.  The key halves are
// interpreted as little endian, matching GCS filter construction.
func Hash(key [KeySize]byte, data []byte) uint64 {
	k0 := binary.LittleEndian.Uint64(key[0:8])
	k1 := binary.LittleEndian.Uint64(key[8:16])
	return siphash.Hash(k0, k1, data)
}

// Value returns the 32-bit reduced hash the kernels compute for data.
func Value(key [KeySize]byte, modulus uint64, data []byte) uint32 {
	return uint32(FastReduce(Hash(key, data), modulus))
}

// PutOpcode writes op into the opcode slot dst, zero filling the unused bytes
// and recording the length in the final byte.
//
// It panics if dst is not exactly OpcodeBytes long or op is longer than
// MaxOpcodeLen.
func PutOpcode(dst, op []byte) {
	if len(dst) != OpcodeBytes {
		panic("kernels: opcode slot has wrong size")
	}
	if len(op) > MaxOpcodeLen {
		panic("kernels: opcode too long")
	}
	n := copy(dst, op)
	for i := n; i < OpcodeBytes-1; i++ {
		dst[i] = 0
	}
	dst[OpcodeBytes-1] = byte(len(op))
}

// PutSentinel writes a padding entry into the opcode slot dst.
func PutSentinel(dst []byte) {
	if len(dst) != OpcodeBytes {
		panic("kernels: opcode slot has wrong size")
	}
	for i := range dst {
		dst[i] = 0xff
	}
	dst[OpcodeBytes-1] = SentinelLength
}

// OpcodeLen returns the payload of the opcode slot and whether the slot holds
// a real entry as opposed to a sentinel.
func OpcodeLen(slot []byte) ([]byte, bool) {
	n := int(slot[OpcodeBytes-1])
	if n > MaxOpcodeLen {
		return nil, false
	}
	return slot[:n], true
}

// HashParams serializes the hash kernel parameter block.
func HashParams(key [KeySize]byte, modulus uint64) [HashParamsSize]byte {
	var p [HashParamsSize]byte
	copy(p[:KeySize], key[:])
	binary.LittleEndian.PutUint64(p[KeySize:], modulus)
	return p
}

// ParseHashParams is the inverse of HashParams.  ok is false when p has the
// wrong size.
func ParseHashParams(p []byte) (key [KeySize]byte, modulus uint64, ok bool) {
	if len(p) != HashParamsSize {
		return key, 0, false
	}
	copy(key[:], p[:KeySize])
	return key, binary.LittleEndian.Uint64(p[KeySize:]), true
}

// CompareParams serializes the compare kernel parameter block.
func CompareParams(hashes, filters uint32) [CompareParamsSize]byte {
	var p [CompareParamsSize]byte
	binary.LittleEndian.PutUint32(p[0:4], hashes)
	binary.LittleEndian.PutUint32(p[4:8], filters)
	return p
}

// ParseCompareParams is the inverse of CompareParams.
func ParseCompareParams(p []byte) (hashes, filters uint32, ok bool) {
	if len(p) != CompareParamsSize {
		return 0, 0, false
	}
	return binary.LittleEndian.Uint32(p[0:4]),
		binary.LittleEndian.Uint32(p[4:8]), true
}
