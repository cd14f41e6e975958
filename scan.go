// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/decred/cfmatch/cfilter"
	"github.com/decred/cfmatch/internal/progresslog"
	"github.com/decred/cfmatch/kernels"
	"github.com/decred/cfmatch/matcher"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"golang.org/x/sync/errgroup"
)

const (
	// maxFiltersInFlight is the maximum number of filters submitted to the
	// matcher whose results have not been written yet.
	maxFiltersInFlight = 64

	// maxFilterLineSize is the longest filter file line accepted.
	maxFilterLineSize = 16 << 20
)

// filterLine is a parsed line of a filter file.
type filterLine struct {
	block chainhash.Hash
	key   [kernels.KeySize]byte
	set   *cfilter.Set
}

// parseFilterLine parses a filter file line of the form
// "<block hash> <merkle root> [filter hex]".  An empty filter serializes to
// nothing, so the filter field may be omitted.
func parseFilterLine(line string) (*filterLine, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 && len(fields) != 3 {
		return nil, fmt.Errorf("expected 2 or 3 fields, got %d", len(fields))
	}
	block, err := chainhash.NewHashFromStr(fields[0])
	if err != nil {
		return nil, fmt.Errorf("invalid block hash: %w", err)
	}
	merkleRoot, err := chainhash.NewHashFromStr(fields[1])
	if err != nil {
		return nil, fmt.Errorf("invalid merkle root: %w", err)
	}
	var data []byte
	if len(fields) == 3 {
		data, err = hex.DecodeString(fields[2])
		if err != nil {
			return nil, fmt.Errorf("invalid filter hex: %w", err)
		}
	}
	set, err := cfilter.Decode(cfilter.B, cfilter.M, data)
	if err != nil {
		return nil, err
	}
	return &filterLine{
		block: *block,
		key:   cfilter.Key(merkleRoot),
		set:   set,
	}, nil
}

// multiCloser closes a decompressor along with the file it reads from.
type multiCloser struct {
	io.Reader
	closers []func() error
}

func (c *multiCloser) Close() error {
	var err error
	for _, fn := range c.closers {
		if cerr := fn(); err == nil {
			err = cerr
		}
	}
	return err
}

// openFilters opens the filter file at path, or stdin for "-".  Files ending
// in .zst are zstd compressed and files ending in .lz4 are lz4 framed.
func openFilters(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst":
		dec, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		closeDec := func() error { dec.Close(); return nil }
		return &multiCloser{Reader: dec, closers: []func() error{closeDec, f.Close}}, nil

	case ".lz4":
		return &multiCloser{Reader: lz4.NewReader(f), closers: []func() error{f.Close}}, nil
	}
	return f, nil
}

// filterResult is the outcome of matching a single filter.
type filterResult struct {
	block     chainhash.Hash
	numValues int
	matched   bool
	err       error
}

// filterScanner submits filters to a matcher and aggregates the results of
// the chunks of each filter.
type filterScanner struct {
	m        *matcher.Matcher
	corpus   [][]byte
	progress *progresslog.Logger
}

// submit matches every chunk of the filter and returns a channel that
// receives the aggregated result once all of them have been delivered.
func (s *filterScanner) submit(fl *filterLine) <-chan filterResult {
	c := make(chan filterResult, 1)
	chunks := fl.set.Chunks(matcher.FilterCapacity)
	res := filterResult{block: fl.block}
	for _, chunk := range chunks {
		res.numValues += len(chunk)
	}
	if len(chunks) == 0 {
		c <- res
		return c
	}

	var mtx sync.Mutex
	remaining := len(chunks)
	modulus := fl.set.Modulus()
	done := func(matched bool, err error) {
		mtx.Lock()
		defer mtx.Unlock()
		res.matched = res.matched || matched
		if err != nil && res.err == nil {
			res.err = err
		}
		remaining--
		if remaining != 0 {
			return
		}

		// Matching truncated values only adds false positives, which the
		// full width filter rules out.
		if res.err == nil && res.matched && modulus > math.MaxUint32 {
			res.matched = fl.set.MatchAny(fl.key, s.corpus)
		}
		c <- res
	}
	for _, chunk := range chunks {
		s.m.Match(chunk, fl.key, modulus, done)
	}
	return c
}

// scanFilters matches every filter read from r against the corpus loaded
// into m and writes the hash of each matching block to w in file order.
// Blank lines and lines starting with # are skipped.
func scanFilters(ctx context.Context, m *matcher.Matcher, corpus [][]byte, r io.Reader, w io.Writer) (int, error) {
	s := &filterScanner{
		m:        m,
		corpus:   corpus,
		progress: progresslog.New("Scanned", cfmtLog),
	}
	pending := make(chan (<-chan filterResult), maxFiltersInFlight)
	g, gctx := errgroup.WithContext(ctx)

	// Read and submit filters in file order.  The buffered channel bounds the
	// number of filters in flight.
	g.Go(func() error {
		defer close(pending)
		lines := bufio.NewScanner(r)
		lines.Buffer(make([]byte, 0, 64*1024), maxFilterLineSize)
		var lineNum int
		for lines.Scan() {
			lineNum++
			line := strings.TrimSpace(lines.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			fl, err := parseFilterLine(line)
			if err != nil {
				return fmt.Errorf("line %d: %w", lineNum, err)
			}
			select {
			case pending <- s.submit(fl):
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return lines.Err()
	})

	// Write results in submission order.  Every submitted filter receives a
	// result, so waiting on one never blocks forever.  Progress for a result
	// is logged once the next one arrives so the final filter can force the
	// totals out.
	var numMatched int
	g.Go(func() error {
		var prev *filterResult
		defer func() {
			if prev != nil {
				s.progress.LogProgress(&prev.block, prev.numValues,
					prev.matched, true)
			}
		}()
		for c := range pending {
			res := <-c
			if prev != nil {
				s.progress.LogProgress(&prev.block, prev.numValues,
					prev.matched, false)
			}
			prev = &res
			if res.err != nil {
				return fmt.Errorf("block %v: %w", res.block, res.err)
			}
			if !res.matched {
				continue
			}
			numMatched++
			if _, err := fmt.Fprintln(w, res.block); err != nil {
				return err
			}
		}
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return numMatched, ctx.Err()
	}
	return numMatched, err
}
