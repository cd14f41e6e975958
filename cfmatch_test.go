// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/cfmatch/cfilter"
	"github.com/decred/cfmatch/compute/host"
	"github.com/decred/cfmatch/matcher"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/chaincfg/v3"
	"github.com/decred/dcrd/gcs/v4"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// testBlock is a block with a version 2 filter over random scripts.
type testBlock struct {
	hash    chainhash.Hash
	root    chainhash.Hash
	filter  []byte
	matched bool
}

// line returns the filter file line of the block.
func (b *testBlock) line() string {
	if len(b.filter) == 0 {
		return fmt.Sprintf("%v %v", b.hash, b.root)
	}
	return fmt.Sprintf("%v %v %x", b.hash, b.root, b.filter)
}

// randScript returns a random pay-to-pubkey-hash script.
func randScript(rng *rand.Rand) []byte {
	script := make([]byte, 25)
	script[0], script[1], script[2] = 0x76, 0xa9, 0x14
	rng.Read(script[3:23])
	script[23], script[24] = 0x88, 0xac
	return script
}

// watchedScripts returns the payment scripts of addresses derived from fixed
// private keys.
func watchedScripts(t *testing.T, n int) [][]byte {
	t.Helper()
	scripts := make([][]byte, n)
	for i := range scripts {
		addr := testAddress(t, byte(i+1), chaincfg.MainNetParams())
		_, scripts[i] = addr.PaymentScript()
	}
	return scripts
}

// makeTestBlocks returns blocks whose filters commit to the passed number of
// random scripts.  Every third block also commits to one of the watched
// scripts.  Whether a block matches is determined by the reference filter
// implementation so false positives are accounted for.
func makeTestBlocks(t *testing.T, rng *rand.Rand, sizes []int, watched [][]byte) []testBlock {
	t.Helper()
	blocks := make([]testBlock, len(sizes))
	for i, size := range sizes {
		b := &blocks[i]
		rng.Read(b.hash[:])
		rng.Read(b.root[:])

		members := make([][]byte, 0, size+1)
		for j := 0; j < size; j++ {
			members = append(members, randScript(rng))
		}
		if i%3 == 0 && size > 0 {
			members = append(members, watched[i%len(watched)])
		}

		key := cfilter.Key(&b.root)
		f, err := gcs.NewFilterV2(cfilter.B, cfilter.M, key, members)
		if err != nil {
			t.Fatalf("unable to create filter: %v", err)
		}
		b.filter = f.Bytes()
		b.matched = f.MatchAny(key, watched)
		if i%3 == 0 && size > 0 && !b.matched {
			t.Fatalf("block %d: reference filter does not match", i)
		}
	}
	return blocks
}

// expectedMatches returns the hashes of the matching blocks in order.
func expectedMatches(blocks []testBlock) []string {
	var hashes []string
	for i := range blocks {
		if blocks[i].matched {
			hashes = append(hashes, blocks[i].hash.String())
		}
	}
	return hashes
}

// writeFilterFile writes the filter lines of the blocks to path, compressed
// according to its extension.
func writeFilterFile(t *testing.T, path string, blocks []testBlock) {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("# block hash, merkle root, filter\n\n")
	for i := range blocks {
		buf.WriteString(blocks[i].line())
		buf.WriteByte('\n')
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("unable to create filter file: %v", err)
	}
	defer f.Close()

	var w io.WriteCloser
	switch filepath.Ext(path) {
	case ".zst":
		w, err = zstd.NewWriter(f)
		if err != nil {
			t.Fatalf("unable to create zstd writer: %v", err)
		}
	case ".lz4":
		w = lz4.NewWriter(f)
	default:
		if _, err := f.Write(buf.Bytes()); err != nil {
			t.Fatalf("unable to write filter file: %v", err)
		}
		return
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		t.Fatalf("unable to write filter file: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("unable to close compressor: %v", err)
	}
}

// newScanMatcher returns a started matcher on a host device with the corpus
// loaded.  The matcher is stopped and the device closed when the test
// finishes.
func newScanMatcher(t *testing.T, corpus [][]byte) *matcher.Matcher {
	t.Helper()
	dev, err := host.NewDevice(&host.Config{ExecutionWidth: 8})
	if err != nil {
		t.Fatalf("unable to create device: %v", err)
	}
	m, err := matcher.New(&matcher.Config{Device: dev, CorpusCacheSize: 2})
	if err != nil {
		dev.Close()
		t.Fatalf("unable to create matcher: %v", err)
	}
	t.Cleanup(func() {
		m.Stop()
		dev.Close()
	})
	if err := startMatcher(context.Background(), m); err != nil {
		t.Fatalf("unable to start matcher: %v", err)
	}
	if err := m.Reload(corpus); err != nil {
		t.Fatalf("unable to load corpus: %v", err)
	}
	return m
}

// TestScanFilters ensures the matching blocks of plain and compressed filter
// files are written in file order.
func TestScanFilters(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	watched := watchedScripts(t, 4)

	// Include empty filters and a filter that spans multiple matcher
	// requests.
	sizes := []int{10, 50, 0, 200, 1, matcher.FilterCapacity + 500, 30, 0,
		75, 120, 5, 60, 90}
	for i := 0; i < 40; i++ {
		sizes = append(sizes, 1+rng.Intn(300))
	}
	blocks := makeTestBlocks(t, rng, sizes, watched)
	want := expectedMatches(blocks)
	if len(want) == 0 {
		t.Fatal("no blocks match")
	}

	dir := t.TempDir()
	for _, name := range []string{"filters.txt", "filters.txt.zst", "filters.txt.lz4"} {
		path := filepath.Join(dir, name)
		writeFilterFile(t, path, blocks)

		r, err := openFilters(path)
		if err != nil {
			t.Fatalf("%s: unable to open filters: %v", name, err)
		}
		m := newScanMatcher(t, watched)
		var out bytes.Buffer
		numMatched, err := scanFilters(context.Background(), m, watched, r, &out)
		r.Close()
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		got := strings.Fields(out.String())
		if numMatched != len(got) {
			t.Fatalf("%s: reported %d matches, wrote %d", name, numMatched,
				len(got))
		}
		if len(got) != len(want) {
			t.Fatalf("%s: mismatched matches -- got: %s want: %s", name,
				spew.Sdump(got), spew.Sdump(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("%s: match %d -- got: %s want: %s", name, i, got[i],
					want[i])
			}
		}
	}
}

// TestScanFiltersErrors ensures malformed filter files are reported with the
// offending line.
func TestScanFiltersErrors(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	watched := watchedScripts(t, 2)
	blocks := makeTestBlocks(t, rng, []int{20, 20}, watched)
	m := newScanMatcher(t, watched)

	input := strings.Join([]string{
		blocks[0].line(),
		"",
		blocks[1].hash.String() + " zz",
		blocks[1].line(),
	}, "\n")
	var out bytes.Buffer
	_, err := scanFilters(context.Background(), m, watched,
		strings.NewReader(input), &out)
	if err == nil || !strings.Contains(err.Error(), "line 3") {
		t.Fatalf("unexpected error -- got %v, want line 3 error", err)
	}
}

// TestParseFilterLine ensures filter lines are parsed and malformed ones
// rejected.
func TestParseFilterLine(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	blocks := makeTestBlocks(t, rng, []int{40, 0}, watchedScripts(t, 1))

	fl, err := parseFilterLine(blocks[0].line())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fl.block != blocks[0].hash {
		t.Fatalf("unexpected block -- got %v, want %v", fl.block,
			blocks[0].hash)
	}
	if fl.key != cfilter.Key(&blocks[0].root) {
		t.Fatalf("unexpected key -- got %x, want %x", fl.key,
			cfilter.Key(&blocks[0].root))
	}
	if fl.set.N() != 41 {
		t.Fatalf("unexpected filter size -- got %d, want 41", fl.set.N())
	}

	fl, err = parseFilterLine(blocks[1].line())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fl.set.N() != 0 || len(fl.set.Chunks(matcher.FilterCapacity)) != 0 {
		t.Fatal("omitted filter is not empty")
	}

	hash, root := blocks[0].hash.String(), blocks[0].root.String()
	filterHex := hex.EncodeToString(blocks[0].filter)
	tests := []struct {
		name string
		line string
	}{
		{"one field", hash},
		{"four fields", hash + " " + root + " " + filterHex + " 00"},
		{"invalid block hash", "xyz " + root + " " + filterHex},
		{"invalid merkle root", hash + " xyz " + filterHex},
		{"invalid filter hex", hash + " " + root + " 0g"},
		{"truncated filter", hash + " " + root + " " + filterHex[:8]},
	}
	for _, test := range tests {
		if _, err := parseFilterLine(test.line); err == nil {
			t.Errorf("%s: did not receive expected error", test.name)
		}
	}
}

// TestRun ensures run creates the device and matcher from the config and
// scans the configured filter file.
func TestRun(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	watched := watchedScripts(t, 3)
	sizes := make([]int, 30)
	for i := range sizes {
		sizes[i] = 1 + rng.Intn(100)
	}
	blocks := makeTestBlocks(t, rng, sizes, watched)
	path := filepath.Join(t.TempDir(), "filters.zst")
	writeFilterFile(t, path, blocks)

	cfg := &config{
		Filters:     path,
		ExecWidth:   16,
		Workers:     2,
		CorpusCache: 1,
		corpus:      watched,
	}
	var out bytes.Buffer
	numMatched, err := run(context.Background(), cfg, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := expectedMatches(blocks)
	got := strings.Fields(out.String())
	if numMatched != len(want) || strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("unexpected matches -- got: %v want: %v", got, want)
	}

	// A missing filter file is reported after the matcher starts.
	cfg.Filters = filepath.Join(t.TempDir(), "missing.txt")
	if _, err := run(context.Background(), cfg, io.Discard); !os.IsNotExist(err) {
		t.Fatalf("unexpected error -- got %v, want not exist", err)
	}
}
