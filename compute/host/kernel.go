// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package host

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/decred/cfmatch/compute"
	"github.com/decred/cfmatch/kernels"
	"golang.org/x/sync/errgroup"
)

// Kernel is the host implementation of a kernel function.  It is called once
// per dispatch and is responsible for executing every thread of the grid.
type Kernel func(inv *Invocation) error

// Invocation describes a single dispatch of a kernel along with the arguments
// bound to it.
type Invocation struct {
	Groups          compute.Size
	ThreadsPerGroup compute.Size

	buffers map[int]binding
	bytes   map[int][]byte
	workers int
}

// Threads returns the size of the dispatch grid in threads.
func (inv *Invocation) Threads() compute.Size {
	return compute.Size{
		Width:  inv.Groups.Width * inv.ThreadsPerGroup.Width,
		Height: inv.Groups.Height * inv.ThreadsPerGroup.Height,
		Depth:  inv.Groups.Depth * inv.ThreadsPerGroup.Depth,
	}
}

// Buffer returns the device view of the buffer bound at index starting at its
// bound offset.  Private buffers are accessible.
func (inv *Invocation) Buffer(index int) ([]byte, error) {
	b, ok := inv.buffers[index]
	if !ok {
		str := fmt.Sprintf("no buffer bound at index %d", index)
		return nil, compute.MakeError(compute.ErrBinding, str)
	}
	return b.buf.data[b.offset:], nil
}

// Bytes returns the inline bytes bound at index.
func (inv *Invocation) Bytes(index int) ([]byte, error) {
	b, ok := inv.bytes[index]
	if !ok {
		str := fmt.Sprintf("no bytes bound at index %d", index)
		return nil, compute.MakeError(compute.ErrBinding, str)
	}
	return b, nil
}

// Parallel splits [0, n) into contiguous ranges and calls fn for each of them
// from up to the configured number of worker goroutines.  The first error
// returned by fn is returned once all of them have finished.
func (inv *Invocation) Parallel(n int, fn func(lo, hi int) error) error {
	if n <= 0 {
		return nil
	}
	workers := inv.workers
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		return fn(0, n)
	}

	chunk := (n + workers - 1) / workers
	var g errgroup.Group
	for lo := 0; lo < n; lo += chunk {
		lo, hi := lo, lo+chunk
		if hi > n {
			hi = n
		}
		g.Go(func() error {
			return fn(lo, hi)
		})
	}
	return g.Wait()
}

// bindingTooSmall returns an ErrBinding error describing a buffer that cannot
// hold the data required by the dispatch.
func bindingTooSmall(what string, got, need int) error {
	str := fmt.Sprintf("%s buffer holds %d bytes, dispatch needs %d", what, got,
		need)
	return compute.MakeError(compute.ErrBinding, str)
}

// HashAll is the host implementation of the hash kernel.  Each thread reads
// one opcode slot and writes the reduced hash of the script it holds.
// Sentinel and malformed slots produce zero.
func HashAll(inv *Invocation) error {
	opcodes, err := inv.Buffer(kernels.HashOpcodesIndex)
	if err != nil {
		return err
	}
	out, err := inv.Buffer(kernels.HashOutputIndex)
	if err != nil {
		return err
	}
	params, err := inv.Bytes(kernels.HashParamsIndex)
	if err != nil {
		return err
	}
	key, modulus, ok := kernels.ParseHashParams(params)
	if !ok {
		str := fmt.Sprintf("hash parameters are %d bytes, want %d",
			len(params), kernels.HashParamsSize)
		return compute.MakeError(compute.ErrBinding, str)
	}

	n := inv.Threads().Volume()
	if need := n * kernels.OpcodeBytes; len(opcodes) < need {
		return bindingTooSmall("opcode", len(opcodes), need)
	}
	if need := n * kernels.ValueSize; len(out) < need {
		return bindingTooSmall("hash output", len(out), need)
	}

	return inv.Parallel(n, func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			slot := opcodes[i*kernels.OpcodeBytes : (i+1)*kernels.OpcodeBytes]
			var v uint32
			if op, ok := kernels.OpcodeLen(slot); ok {
				v = kernels.Value(key, modulus, op)
			}
			binary.LittleEndian.PutUint32(out[i*kernels.ValueSize:], v)
		}
		return nil
	})
}

// CompareXY is the host implementation of the compare kernel.  The grid is
// hashes wide and filters high.  Any equal pair among the live hashes and
// filters sets the output word to one.  The output word is never cleared.
func CompareXY(inv *Invocation) error {
	hashes, err := inv.Buffer(kernels.CompareHashesIndex)
	if err != nil {
		return err
	}
	filters, err := inv.Buffer(kernels.CompareFiltersIndex)
	if err != nil {
		return err
	}
	out, err := inv.Buffer(kernels.CompareOutputIndex)
	if err != nil {
		return err
	}
	params, err := inv.Bytes(kernels.CompareParamsIndex)
	if err != nil {
		return err
	}
	liveHashes, liveFilters, ok := kernels.ParseCompareParams(params)
	if !ok {
		str := fmt.Sprintf("compare parameters are %d bytes, want %d",
			len(params), kernels.CompareParamsSize)
		return compute.MakeError(compute.ErrBinding, str)
	}

	grid := inv.Threads()
	if need := grid.Width * kernels.ValueSize; len(hashes) < need {
		return bindingTooSmall("hash", len(hashes), need)
	}
	if need := grid.Height * kernels.ValueSize; len(filters) < need {
		return bindingTooSmall("filter", len(filters), need)
	}
	if len(out) < kernels.ValueSize {
		return bindingTooSmall("result", len(out), kernels.ValueSize)
	}

	// Threads outside of the live counts do nothing.
	width, height := grid.Width, grid.Height
	if int(liveHashes) < width {
		width = int(liveHashes)
	}
	if int(liveFilters) < height {
		height = int(liveFilters)
	}
	if width == 0 || height == 0 {
		return nil
	}

	// Each hash thread compares against every live filter row.  Sorting the
	// rows once and searching them is equivalent to the full cross product.
	rows := make([]uint32, height)
	for i := range rows {
		rows[i] = binary.LittleEndian.Uint32(filters[i*kernels.ValueSize:])
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i] < rows[j] })

	var hit int32
	err = inv.Parallel(width, func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			if atomic.LoadInt32(&hit) != 0 {
				return nil
			}
			v := binary.LittleEndian.Uint32(hashes[i*kernels.ValueSize:])
			j := sort.Search(len(rows), func(k int) bool { return rows[k] >= v })
			if j < len(rows) && rows[j] == v {
				atomic.StoreInt32(&hit, 1)
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if atomic.LoadInt32(&hit) != 0 {
		binary.LittleEndian.PutUint32(out, 1)
	}
	return nil
}
