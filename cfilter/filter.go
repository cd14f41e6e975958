// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cfilter

import (
	"bytes"
	"fmt"
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/decred/cfmatch/kernels"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/wire"
)

const (
	// B is the bin size parameter of version 2 block filters.
	B = 19

	// M is the inverse false positive rate of version 2 block filters.
	M = 784931
)

// Set is the decoded membership set of a version 2 GCS filter.  It is
// immutable and safe for concurrent use.
type Set struct {
	n       uint32
	modulus uint64
	values  []uint64
}

// Decode decodes a version 2 GCS filter serialized with bin size parameter B
// and inverse false positive rate M.  The serialized form is the number of
// members as a varint followed by the Golomb-Rice coded deltas between the
// sorted members.
func Decode(B uint8, M uint64, data []byte) (*Set, error) {
	if B > 32 {
		str := fmt.Sprintf("B value of %d is greater than max allowed 32", B)
		return nil, makeError(ErrBTooBig, str)
	}
	if len(data) == 0 {
		return &Set{}, nil
	}

	n, err := wire.ReadVarInt(bytes.NewReader(data), 0)
	if err != nil {
		str := fmt.Sprintf("failed to read number of filter items: %v", err)
		return nil, makeError(ErrMisserialized, str)
	}
	encoded := data[wire.VarIntSerializeSize(n):]

	// Every member takes at least B+1 bits, which bounds N before anything
	// is allocated.
	if n > math.MaxUint32 || n*(uint64(B)+1) > uint64(len(encoded))*8 {
		str := fmt.Sprintf("filter claims %d items in %d bytes", n,
			len(encoded))
		return nil, makeError(ErrMisserialized, str)
	}

	s := &Set{
		n:       uint32(n),
		modulus: n * M,
		values:  make([]uint64, 0, n),
	}
	r := newBitReader(encoded)
	var last uint64
	for i := uint64(0); i < n; i++ {
		quotient, err := r.readUnary()
		if err != nil {
			str := fmt.Sprintf("filter item %d is truncated", i)
			return nil, makeError(ErrMisserialized, str)
		}
		rem, err := r.readNBits(uint(B))
		if err != nil {
			str := fmt.Sprintf("filter item %d is truncated", i)
			return nil, makeError(ErrMisserialized, str)
		}
		last += quotient<<B + rem
		s.values = append(s.values, last)
	}
	return s, nil
}

// N returns the number of members the filter was built with.
func (s *Set) N() uint32 {
	return s.n
}

// Modulus returns the range the members were reduced to, which is N*M.
func (s *Set) Modulus() uint64 {
	return s.modulus
}

// Values returns the sorted members.  The returned slice must not be
// modified.
func (s *Set) Values() []uint64 {
	return s.values
}

// Values32 returns the members truncated to 32 bits, deduplicated and sorted.
// Reduced hashes truncated the same way are members exactly when the full
// value is, except for the false positives introduced by truncation when the
// modulus exceeds 32 bits.
func (s *Set) Values32() []uint32 {
	rb := roaring.New()
	for _, v := range s.values {
		rb.Add(uint32(v))
	}
	return rb.ToArray()
}

// Chunks splits Values32 into consecutive chunks of at most capacity values.
// An empty set results in no chunks.
func (s *Set) Chunks(capacity int) [][]uint32 {
	if capacity <= 0 {
		panic(fmt.Sprintf("invalid chunk capacity %d", capacity))
	}
	values := s.Values32()
	chunks := make([][]uint32, 0, (len(values)+capacity-1)/capacity)
	for len(values) > 0 {
		n := capacity
		if n > len(values) {
			n = len(values)
		}
		chunks = append(chunks, values[:n:n])
		values = values[n:]
	}
	return chunks
}

// Match returns whether data is likely a member of the set.
func (s *Set) Match(key [kernels.KeySize]byte, data []byte) bool {
	if len(s.values) == 0 || len(data) == 0 {
		return false
	}
	term := kernels.FastReduce(kernels.Hash(key, data), s.modulus)
	i := sort.Search(len(s.values), func(i int) bool {
		return s.values[i] >= term
	})
	return i < len(s.values) && s.values[i] == term
}

// MatchAny returns whether any of the passed data is likely a member of the
// set.
func (s *Set) MatchAny(key [kernels.KeySize]byte, data [][]byte) bool {
	for _, d := range data {
		if s.Match(key, d) {
			return true
		}
	}
	return false
}

// Key returns the key used to build the version 2 filter of a block with the
// given merkle root.
func Key(merkleRoot *chainhash.Hash) [kernels.KeySize]byte {
	var key [kernels.KeySize]byte
	copy(key[:], merkleRoot[:])
	return key
}
