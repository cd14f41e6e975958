// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package matcher

import (
	"fmt"
	"runtime"

	"github.com/decred/cfmatch/compute"
	"github.com/decred/cfmatch/kernels"
	"github.com/decred/dcrd/container/lru"
)

const (
	// ThreadGroupWidth is the width of a compare thread group along the hash
	// axis.
	ThreadGroupWidth = 8

	// FilterCapacity is the maximum number of values in a filter set passed
	// to Match.
	FilterCapacity = 16192

	// queueCapacityHint is the initial capacity of the request queue.  The
	// queue grows without bound.
	queueCapacityHint = 16
)

// ResultFunc receives the outcome of a match request.  err is nil when matched
// is valid.
type ResultFunc func(matched bool, err error)

// request is a match request.  It is never modified once created.
type request struct {
	filters []uint32
	key     [kernels.KeySize]byte
	modulus uint64
	done    ResultFunc
}

// Config is a descriptor containing the matcher configuration.
type Config struct {
	// Device is the compute device kernels are compiled for and commands are
	// executed on.  It is required.
	Device compute.Device

	// CorpusCacheSize is the number of built corpora kept for reuse by
	// Reload.  Zero disables the cache.
	CorpusCacheSize uint32
}

// Matcher tests filter sets against a corpus on a compute device.
//
// All methods are safe for concurrent use.  Results are delivered to the
// callbacks passed to Match in the order the requests were submitted.
//
// A Matcher MUST be stopped with Stop before it becomes unreachable.  The
// process panics when a Matcher that was not stopped is garbage collected.
type Matcher struct {
	c *core
}

// New returns a new matcher in the preinit phase.  Start must be called before
// requests are accepted.
func New(cfg *Config) (*Matcher, error) {
	if cfg == nil || cfg.Device == nil {
		return nil, makeError(ErrInvalidConfig, "a compute device is required")
	}
	c := &core{
		state: &preinitState{device: cfg.Device},
		queue: newRequestQueue(queueCapacityHint),
	}
	if cfg.CorpusCacheSize > 0 {
		c.cache = lru.NewMap[[32]byte, *corpus](cfg.CorpusCacheSize)
	}

	m := &Matcher{c: c}
	runtime.SetFinalizer(m, func(m *Matcher) {
		if !m.c.isStopped() {
			panic("matcher: Matcher garbage collected without being stopped")
		}
	})
	return m, nil
}

// Start compiles the kernels and allocates the device buffers.  done, which
// may be nil, is called with the outcome once the matcher accepts requests or
// has stopped because of a failure.
//
// Start is only permitted once.  Further calls report ErrIllegalState to done
// without affecting the matcher.
func (m *Matcher) Start(done func(error)) {
	c := m.c
	c.mtx.Lock()
	dev, err := c.start()
	c.mtx.Unlock()
	if err != nil {
		if done != nil {
			done(err)
		}
		return
	}

	log.Debugf("Compiling kernels on %s", dev.Name())
	ready := func(ks kernelSet, err error) {
		if err != nil {
			c.drive(shutdownAction(err))
		} else {
			err = c.drive(action{kind: actKernelsReady, kernels: ks})
		}
		if done != nil {
			done(err)
		}
	}
	dev.CompilePipeline(kernels.HashName, func(hash compute.Pipeline, err error) {
		if err != nil {
			ready(nil, wrapError(ErrBackendCompile, "unable to compile "+
				kernels.HashName, err))
			return
		}
		dev.CompilePipeline(kernels.CompareName, func(compare compute.Pipeline, err error) {
			if err != nil {
				ready(nil, wrapError(ErrBackendCompile, "unable to compile "+
					kernels.CompareName, err))
				return
			}
			ready(kernelSet{
				kernels.HashName:    hash,
				kernels.CompareName: compare,
			}, nil)
		})
	})
}

// Match tests whether the reduced hash of any corpus entry under key and
// modulus is a member of filters.  The result is delivered to done exactly
// once, possibly before Match returns.
//
// filters is copied and may hold at most FilterCapacity values.  Requests are
// failed with ErrIllegalState before Start has completed and with ErrStopped
// once the matcher has been stopped.
func (m *Matcher) Match(filters []uint32, key [kernels.KeySize]byte, modulus uint64, done ResultFunc) {
	if done == nil {
		done = func(bool, error) {}
	}
	if len(filters) > FilterCapacity {
		str := fmt.Sprintf("filter set of %d values exceeds the capacity of %d",
			len(filters), FilterCapacity)
		done(false, makeError(ErrFilterCapacity, str))
		return
	}
	req := &request{
		filters: append([]uint32(nil), filters...),
		key:     key,
		modulus: modulus,
		done:    done,
	}

	c := m.c
	c.mtx.Lock()
	next, err := c.enqueue(req)
	c.mtx.Unlock()
	if err != nil {
		req.done(false, err)
	}
	c.drive(next)
}

// Reload replaces the corpus.  The new corpus is built on the device when the
// next request is encoded, so requests encoded earlier still see the previous
// corpus.  Every entry must be at most kernels.MaxOpcodeLen bytes.
func (m *Matcher) Reload(corpus [][]byte) error {
	entries := make([][]byte, len(corpus))
	for i, entry := range corpus {
		if len(entry) > kernels.MaxOpcodeLen {
			str := fmt.Sprintf("corpus entry %d is %d bytes, the maximum is %d",
				i, len(entry), kernels.MaxOpcodeLen)
			return makeError(ErrOpcodeTooLong, str)
		}
		entries[i] = append(make([]byte, 0, len(entry)), entry...)
	}
	fp := fingerprint(entries)

	c := m.c
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if _, ok := c.state.(*stopState); ok {
		return makeError(ErrStopped, "matcher is stopped")
	}
	c.pending = &pendingCorpus{entries: entries, fingerprint: fp}
	log.Debugf("Corpus reload of %d entries pending", len(entries))
	return nil
}

// Stop stops the matcher.  Every request that has not received its result yet
// is failed with ErrStopped.  Stop does not wait for the device and may be
// called any number of times.
func (m *Matcher) Stop() {
	m.c.drive(shutdownAction(nil))
}
