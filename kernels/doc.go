// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package kernels defines the binary interface shared by the matcher and the
compute kernels it dispatches, along with reference implementations of the
kernel arithmetic in Go.

Two kernels are required:

  - hash_all computes one reduced SipHash-2-4 value per corpus entry
  - compare_xy_simd compares every reduced hash against every filter value and
    sets a single shared output word when any pair is equal

# Opcode Slots

Corpus entries are laid out contiguously in fixed width slots of OpcodeBytes
bytes.  The final byte of each slot holds the true length of the entry and the
remaining unused bytes are zero.  Slots with a length byte larger than
MaxOpcodeLen are sentinels used to pad the corpus to the device execution
width and never produce a match.

# Reduction

Hashes are reduced to the range [0, modulus) with the same multiply and shift
reduction used by version 2 GCS filters and then truncated to 32 bits.  This
means values produced by Value for a filter modulus of N*M are directly
comparable with the truncated members of a decoded block filter.
*/
package kernels
