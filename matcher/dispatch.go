// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package matcher

import (
	"encoding/binary"
	"fmt"

	"github.com/decred/cfmatch/compute"
	"github.com/decred/cfmatch/kernels"
)

// applyReload builds the pending corpus, if any, and makes it current.  Recently
// built corpora are taken from the cache instead of being uploaded again.
//
// This function MUST be called with the mutex held.
func (c *core) applyReload(res *resources, execWidth int) error {
	p := c.pending
	if p == nil {
		return nil
	}
	c.pending = nil

	if c.cache != nil {
		if built, ok := c.cache.Get(p.fingerprint); ok {
			log.Debugf("Reusing cached corpus %x (%d entries)",
				p.fingerprint[:8], built.count)
			c.corpus = built
			return nil
		}
	}
	built, err := buildCorpus(res.device, p.entries, execWidth)
	if err != nil {
		return err
	}
	if c.cache != nil {
		c.cache.Put(p.fingerprint, built)
	}
	c.corpus = built
	log.Debugf("Built corpus %x (%d entries, %d slots)", p.fingerprint[:8],
		built.count, built.padded)
	return nil
}

// writeFilters copies filters into the slot contents and zero pads them to a
// non-zero multiple of rowHeight.  It returns the number of thread group rows
// the padded filters span.
func writeFilters(dst []byte, filters []uint32, rowHeight int) int {
	padded := roundUp(len(filters), rowHeight)
	if padded == 0 {
		padded = rowHeight
	}
	for i, v := range filters {
		binary.LittleEndian.PutUint32(dst[i*kernels.ValueSize:], v)
	}
	for i := len(filters); i < padded; i++ {
		binary.LittleEndian.PutUint32(dst[i*kernels.ValueSize:], 0)
	}
	return padded / rowHeight
}

// encode records the hash and compare stages for req and stages the command
// in the double buffer.  All fallible work happens before the double buffer is
// modified.
//
// This function MUST be called with the mutex held.
func (c *core) encode(res *resources, req *request) error {
	hash, err := res.kernels.first()
	if err != nil {
		return err
	}
	compare, err := res.kernels.compare()
	if err != nil {
		return err
	}
	simdHeight, err := compareHeight(compare)
	if err != nil {
		return err
	}
	if err := c.applyReload(res, hash.ThreadExecutionWidth()); err != nil {
		return err
	}
	corpus := c.corpus
	if corpus == nil {
		return makeError(ErrInternal, "no corpus has been loaded")
	}

	cmd, enc, err := res.device.NewCommand(hash)
	if err != nil {
		return wrapError(ErrBackendFault, "unable to create command", err)
	}
	output := res.output
	done := c.completion(req, output)
	return res.db.enqueue(cmd, done, func(slot compute.Buffer) error {
		contents := slot.Contents()
		if len(contents) < len(req.filters)*kernels.ValueSize {
			str := fmt.Sprintf("filter slot of %d bytes cannot hold %d "+
				"filters", len(contents), len(req.filters))
			return makeError(ErrInternal, str)
		}

		// Stage one hashes every corpus slot.
		params := kernels.HashParams(req.key, req.modulus)
		enc.SetBuffer(corpus.opcodes, 0, kernels.HashOpcodesIndex)
		enc.SetBuffer(corpus.hashes, 0, kernels.HashOutputIndex)
		enc.SetBytes(params[:], kernels.HashParamsIndex)
		enc.DispatchThreadgroups(
			compute.Size{Width: corpus.groups, Height: 1, Depth: 1},
			compute.Size{Width: hash.ThreadExecutionWidth(), Height: 1, Depth: 1})

		// Stage two compares every live hash with every live filter.
		rows := writeFilters(contents, req.filters, simdHeight)
		counts := kernels.CompareParams(uint32(corpus.count),
			uint32(len(req.filters)))
		enc.SetPipeline(compare)
		enc.SetBuffer(corpus.hashes, 0, kernels.CompareHashesIndex)
		enc.SetBuffer(slot, 0, kernels.CompareFiltersIndex)
		enc.SetBuffer(output, 0, kernels.CompareOutputIndex)
		enc.SetBytes(counts[:], kernels.CompareParamsIndex)
		enc.DispatchThreadgroups(
			compute.Size{Width: corpus.hashWidth, Height: rows, Depth: 1},
			compute.Size{Width: ThreadGroupWidth, Height: simdHeight, Depth: 1})
		enc.EndEncoding()
		return nil
	})
}

// completion returns the function that turns the completed command for req
// into a result.  Device faults take precedence over the output word and shut
// the matcher down after the request has been failed.
func (c *core) completion(req *request, output compute.Buffer) completion {
	return func(cmd compute.CommandUnit, err error) {
		if err != nil {
			req.done(false, err)
			return
		}

		if faults := cmd.Faults(); len(faults) != 0 {
			for _, f := range faults {
				log.Errorf("Compute fault: %v", f)
			}
			str := fmt.Sprintf("device reported %d fault(s), first: %v",
				len(faults), faults[0])
			err := makeError(ErrBackendFault, str)
			req.done(false, err)
			c.drive(shutdownAction(err))
			return
		}

		matched := binary.LittleEndian.Uint32(output.Contents()) != 0
		c.drive(action{kind: actDeliverResult, matched: matched, done: req.done})
	}
}
