// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package matcher

import (
	"bytes"
	"errors"
	"testing"

	"github.com/decred/cfmatch/compute"
	"github.com/decred/cfmatch/compute/host"
	"github.com/decred/cfmatch/kernels"
)

// TestLayoutCorpus ensures corpus entries are laid out in opcode slots and
// padded with sentinels to a non-zero multiple of the execution width.
func TestLayoutCorpus(t *testing.T) {
	tests := []struct {
		name       string
		entries    [][]byte
		execWidth  int
		wantPadded int
	}{{
		name:       "empty corpus",
		entries:    nil,
		execWidth:  16,
		wantPadded: 16,
	}, {
		name:       "single entry",
		entries:    [][]byte{{0x51}},
		execWidth:  16,
		wantPadded: 16,
	}, {
		name:       "exact multiple",
		entries:    testScripts(32, 1),
		execWidth:  32,
		wantPadded: 32,
	}, {
		name:       "one past a multiple",
		entries:    testScripts(33, 2),
		execWidth:  32,
		wantPadded: 64,
	}, {
		name:       "maximum length entry",
		entries:    [][]byte{bytes.Repeat([]byte{0xff}, kernels.MaxOpcodeLen)},
		execWidth:  8,
		wantPadded: 8,
	}}

	for _, test := range tests {
		layout, padded := layoutCorpus(test.entries, test.execWidth)
		if padded != test.wantPadded {
			t.Errorf("%s: unexpected padded count -- got %d, want %d",
				test.name, padded, test.wantPadded)
			continue
		}
		if len(layout) != padded*kernels.OpcodeBytes {
			t.Errorf("%s: unexpected layout size -- got %d, want %d",
				test.name, len(layout), padded*kernels.OpcodeBytes)
			continue
		}
		for i := 0; i < padded; i++ {
			slot := layout[i*kernels.OpcodeBytes : (i+1)*kernels.OpcodeBytes]
			op, ok := kernels.OpcodeLen(slot)
			if i >= len(test.entries) {
				if ok {
					t.Errorf("%s: slot %d is not a sentinel", test.name, i)
				}
				continue
			}
			if !ok || !bytes.Equal(op, test.entries[i]) {
				t.Errorf("%s: slot %d: got: %x want: %x", test.name, i, op,
					test.entries[i])
			}
			for _, b := range slot[len(op) : kernels.OpcodeBytes-1] {
				if b != 0 {
					t.Errorf("%s: slot %d is not zero filled", test.name, i)
					break
				}
			}
		}
	}
}

// TestFingerprint ensures the corpus fingerprint commits to the entry
// boundaries, their order and their contents.
func TestFingerprint(t *testing.T) {
	base := [][]byte{{1, 2}, {3}}
	same := [][]byte{{1, 2}, {3}}
	others := [][][]byte{
		{{1}, {2, 3}},
		{{3}, {1, 2}},
		{{1, 2, 3}},
		{{1, 2}, {3}, {}},
		{{1, 2}, {4}},
		nil,
	}

	if fingerprint(base) != fingerprint(same) {
		t.Fatal("equal corpora have different fingerprints")
	}
	for i, other := range others {
		if fingerprint(base) == fingerprint(other) {
			t.Errorf("#%d: distinct corpora share a fingerprint", i)
		}
	}
}

// TestBuildCorpus ensures the device buffers of a corpus are sized for both
// the hash and the compare stages.
func TestBuildCorpus(t *testing.T) {
	tests := []struct {
		name          string
		count         int
		execWidth     int
		wantPadded    int
		wantGroups    int
		wantHashWidth int
		wantHashSlots int
	}{{
		name:          "empty",
		count:         0,
		execWidth:     16,
		wantPadded:    16,
		wantGroups:    1,
		wantHashWidth: 1,
		wantHashSlots: 16,
	}, {
		name:          "partial thread group",
		count:         13,
		execWidth:     8,
		wantPadded:    16,
		wantGroups:    2,
		wantHashWidth: 2,
		wantHashSlots: 16,
	}, {
		name:          "wide execution",
		count:         100,
		execWidth:     64,
		wantPadded:    128,
		wantGroups:    2,
		wantHashWidth: 13,
		wantHashSlots: 128,
	}}

	for _, test := range tests {
		dev, err := host.NewDevice(&host.Config{ExecutionWidth: test.execWidth})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", test.name, err)
		}
		c, err := buildCorpus(dev, testScripts(test.count, 3), test.execWidth)
		dev.Close()
		if err != nil {
			t.Errorf("%s: unexpected error: %v", test.name, err)
			continue
		}
		if c.count != test.count || c.padded != test.wantPadded ||
			c.groups != test.wantGroups || c.hashWidth != test.wantHashWidth {

			t.Errorf("%s: got: count %d padded %d groups %d width %d want: "+
				"count %d padded %d groups %d width %d", test.name, c.count,
				c.padded, c.groups, c.hashWidth, test.count, test.wantPadded,
				test.wantGroups, test.wantHashWidth)
			continue
		}
		if got := c.hashes.Len(); got != test.wantHashSlots*kernels.ValueSize {
			t.Errorf("%s: unexpected hash buffer size -- got %d, want %d",
				test.name, got, test.wantHashSlots*kernels.ValueSize)
		}
		if got := c.opcodes.Len(); got != test.wantPadded*kernels.OpcodeBytes {
			t.Errorf("%s: unexpected opcode buffer size -- got %d, want %d",
				test.name, got, test.wantPadded*kernels.OpcodeBytes)
		}
		if c.hashes.Contents() != nil {
			t.Errorf("%s: hash buffer is not private", test.name)
		}
	}
}

// TestBuildCorpusAllocFailure ensures allocation failures are reported as
// backend faults that wrap the device error.
func TestBuildCorpusAllocFailure(t *testing.T) {
	dev, err := host.NewDevice(&host.Config{ExecutionWidth: 8, MaxBufferSize: 64})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer dev.Close()

	_, err = buildCorpus(dev, testScripts(4, 4), 8)
	if !errors.Is(err, ErrBackendFault) || !errors.Is(err, compute.ErrBufferSize) {
		t.Fatalf("unexpected error -- got %v, want %v wrapping %v", err,
			ErrBackendFault, compute.ErrBufferSize)
	}
}
