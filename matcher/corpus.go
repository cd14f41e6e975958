// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package matcher

import (
	"fmt"

	"github.com/decred/cfmatch/compute"
	"github.com/decred/cfmatch/kernels"
	"github.com/decred/dcrd/crypto/blake256"
)

// corpus is the device resident form of a corpus snapshot.  It is never
// modified once built.
type corpus struct {
	// count is the number of real entries.  padded is count rounded up to
	// a multiple of the hash pipeline execution width with sentinel entries.
	count  int
	padded int

	// groups is the number of hash thread groups and hashWidth is the number
	// of compare thread groups along the hash axis.
	groups    int
	hashWidth int

	opcodes compute.Buffer
	hashes  compute.Buffer
}

// pendingCorpus is a corpus that has been reloaded but not yet built.
type pendingCorpus struct {
	entries     [][]byte
	fingerprint [blake256.Size]byte
}

// roundUp rounds n up to the next multiple of m.
func roundUp(n, m int) int {
	return (n + m - 1) / m * m
}

// fingerprint returns a digest that commits to the number of entries, their
// order and their contents.
func fingerprint(entries [][]byte) [blake256.Size]byte {
	h := blake256.NewHasher256()
	h.WriteUint32LE(uint32(len(entries)))
	for _, entry := range entries {
		h.WriteUint32LE(uint32(len(entry)))
		h.WriteBytes(entry)
	}
	return h.Sum256()
}

// layoutCorpus serializes entries into opcode slots and pads the result with
// sentinel slots to a non-zero multiple of execWidth.  It returns the
// serialized slots along with the padded count.
func layoutCorpus(entries [][]byte, execWidth int) ([]byte, int) {
	padded := roundUp(len(entries), execWidth)
	if padded == 0 {
		padded = execWidth
	}
	b := make([]byte, padded*kernels.OpcodeBytes)
	for i := 0; i < padded; i++ {
		slot := b[i*kernels.OpcodeBytes : (i+1)*kernels.OpcodeBytes]
		if i < len(entries) {
			kernels.PutOpcode(slot, entries[i])
			continue
		}
		kernels.PutSentinel(slot)
	}
	return b, padded
}

// buildCorpus uploads entries to dev for a hash pipeline with the given
// execution width.  Entries must already be validated to fit opcode slots.
func buildCorpus(dev compute.Device, entries [][]byte, execWidth int) (*corpus, error) {
	if execWidth <= 0 {
		str := fmt.Sprintf("invalid hash execution width %d", execWidth)
		return nil, makeError(ErrInternal, str)
	}
	layout, padded := layoutCorpus(entries, execWidth)
	opcodes, err := dev.NewBufferWithBytes(layout, compute.StorageShared)
	if err != nil {
		return nil, wrapError(ErrBackendFault, "unable to allocate opcode buffer",
			err)
	}

	// The compare stage reads hashWidth full thread group rows of hashes, so
	// the hash buffer must cover both that and every padded slot.
	hashWidth := (len(entries) + ThreadGroupWidth - 1) / ThreadGroupWidth
	if hashWidth == 0 {
		hashWidth = 1
	}
	slots := padded
	if hashWidth*ThreadGroupWidth > slots {
		slots = hashWidth * ThreadGroupWidth
	}
	hashes, err := dev.NewBuffer(slots*kernels.ValueSize, compute.StoragePrivate)
	if err != nil {
		return nil, wrapError(ErrBackendFault, "unable to allocate hash buffer",
			err)
	}

	return &corpus{
		count:     len(entries),
		padded:    padded,
		groups:    padded / execWidth,
		hashWidth: hashWidth,
		opcodes:   opcodes,
		hashes:    hashes,
	}, nil
}
