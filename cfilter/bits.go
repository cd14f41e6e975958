// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cfilter

import (
	"bytes"
	"io"

	"github.com/icza/bitio"
)

// bitReader reads the Golomb-Rice coded fields of a filter from a big-endian
// bitstream most significant bit first.  Every read past the end of the
// stream reports io.EOF.
type bitReader struct {
	r *bitio.Reader
}

// newBitReader returns a bitstream reader over the passed bytes.
func newBitReader(data []byte) *bitReader {
	return &bitReader{r: bitio.NewReader(bytes.NewReader(data))}
}

// readUnary returns the number of consecutive one bits before the next zero
// bit, which is consumed.  io.EOF is returned when the stream ends before a
// zero bit.
func (br *bitReader) readUnary() (uint64, error) {
	var value uint64
	for {
		bit, err := br.r.ReadBool()
		if err != nil {
			return 0, io.EOF
		}
		if !bit {
			return value, nil
		}
		value++
	}
}

// readNBits reads the next n bits, which must be at most 64, as a big-endian
// value.
func (br *bitReader) readNBits(n uint) (uint64, error) {
	if n == 0 {
		return 0, nil
	}
	if n > 64 {
		return 0, io.EOF
	}
	value, err := br.r.ReadBits(uint8(n))
	if err != nil {
		return 0, io.EOF
	}
	return value, nil
}
