// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cfilter

import (
	"encoding/hex"
	"io"
	"testing"
)

// TestBitReader ensures the bit reader and all associated methods work as
// expected including all corner cases at byte boundaries.
func TestBitReader(t *testing.T) {
	// read describes a single read against a shared reader.  A unary read is
	// performed when nBits is negative.
	type read struct {
		nBits   int
		want    uint64
		wantErr error
	}
	const unary = -1

	tests := []struct {
		name  string
		bytes string
		reads []read
	}{
		{"unary on empty", "", []read{{unary, 0, io.EOF}}},
		{"0 bits on empty", "", []read{{0, 0, nil}}},
		{"1 bit on empty", "", []read{{1, 0, io.EOF}}},
		{"9 bits straddling end", "0f", []read{{9, 0, io.EOF}}},
		{"16 bits past end", "0f", []read{{16, 0, io.EOF}}},
		{"0 then 8 bits", "ff", []read{{0, 0, nil}, {8, 0xff, nil}}},
		{"unary 1", "80", []read{{unary, 1, nil}}},
		{"unary 2", "c0", []read{{unary, 2, nil}}},
		{"unary 9 across bytes", "ff80", []read{{unary, 9, nil}}},
		{"unary without terminator", "ffff", []read{{unary, 0, io.EOF}}},
		{"unary 0 then 1 bit", "40", []read{{unary, 0, nil}, {1, 1, nil}}},
		{"unary 0 then 8 bits straddling", "5a80", []read{
			{unary, 0, nil}, {8, 0xb5, nil},
		}},
		{"unary 0 then 15 bits to boundary", "5ac5", []read{
			{unary, 0, nil}, {15, 0x5ac5, nil},
		}},
		{"unary 0 then 16 bits straddling", "5ac580", []read{
			{unary, 0, nil}, {16, 0xb58b, nil},
		}},
		{"unary 3, 15 bits, unary 2", "eac518", []read{
			{unary, 3, nil}, {15, 0x5628, nil}, {unary, 2, nil},
		}},
		{"64 bits", "0123456789abcdef", []read{
			{64, 0x0123456789abcdef, nil}, {1, 0, io.EOF},
		}},
		{"65 bits", "0123456789abcdef01", []read{{65, 0, io.EOF}}},
		{"unary past end after value", "fe", []read{
			{unary, 7, nil}, {unary, 0, io.EOF},
		}},
	}

nextTest:
	for _, test := range tests {
		data, err := hex.DecodeString(test.bytes)
		if err != nil {
			t.Errorf("%q: unexpected err parsing bytes hex: %v", test.name, err)
			continue
		}
		r := newBitReader(data)

		for i, rd := range test.reads {
			var got uint64
			if rd.nBits == unary {
				got, err = r.readUnary()
			} else {
				got, err = r.readNBits(uint(rd.nBits))
			}
			if err != rd.wantErr {
				t.Errorf("%q-#%d: unexpected err -- got %v, want %v",
					test.name, i, err, rd.wantErr)
				continue nextTest
			}
			if got != rd.want {
				t.Errorf("%q-#%d: got: %x want: %x", test.name, i, got,
					rd.want)
				continue nextTest
			}
		}
	}
}
