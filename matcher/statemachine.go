// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package matcher

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/decred/cfmatch/compute"
	"github.com/decred/cfmatch/kernels"
	"github.com/decred/dcrd/container/lru"
)

// state is a lifecycle phase of the matcher.  The set of phases is closed:
// preinitState, idleState, busyState and stopState.
type state interface {
	fmt.Stringer
	lifecycle()
}

// preinitState is the phase between construction and the kernels becoming
// available.
type preinitState struct {
	device    compute.Device
	compiling bool
}

// idleState is the phase in which the kernels and buffers are ready and no
// command is registered.
type idleState struct {
	res *resources
}

// busyState is the phase in which at least one command is registered with the
// double buffer or waiting in the request queue.
type busyState struct {
	res *resources
}

// stopState is the terminal phase.
type stopState struct {
	device compute.Device
}

func (*preinitState) lifecycle() {}
func (*idleState) lifecycle()    {}
func (*busyState) lifecycle()    {}
func (*stopState) lifecycle()    {}

func (*preinitState) String() string { return "preinit" }
func (*idleState) String() string    { return "idle" }
func (*busyState) String() string    { return "busy" }
func (*stopState) String() string    { return "stop" }

// kernelSet holds the compiled pipelines keyed by kernel name.
type kernelSet map[string]compute.Pipeline

// lookup returns the named pipeline or ErrKernelsEmpty.
func (ks kernelSet) lookup(name string) (compute.Pipeline, error) {
	p, ok := ks[name]
	if !ok || p == nil {
		str := fmt.Sprintf("kernel %q is not available", name)
		return nil, makeError(ErrKernelsEmpty, str)
	}
	return p, nil
}

// first returns the pipeline commands are created with, which is the hash
// pipeline.
func (ks kernelSet) first() (compute.Pipeline, error) {
	return ks.lookup(kernels.HashName)
}

// compare returns the compare pipeline.
func (ks kernelSet) compare() (compute.Pipeline, error) {
	return ks.lookup(kernels.CompareName)
}

// resources are the device objects owned by the idle and busy phases.
type resources struct {
	device  compute.Device
	kernels kernelSet
	db      *doubleBuffer
	output  compute.Buffer
}

// core is the state machine shared by a Matcher and the completion handlers it
// registers with the device.  Every field is protected by mtx.
type core struct {
	mtx     sync.Mutex
	state   state
	queue   *requestQueue
	corpus  *corpus
	pending *pendingCorpus
	cache   *lru.Map[[32]byte, *corpus]
}

// illegalState returns an ErrIllegalState error for event in the current
// state.
//
// This function MUST be called with the mutex held.
func (c *core) illegalState(event string) error {
	str := fmt.Sprintf("%s is not permitted in state %v", event, c.state)
	return makeError(ErrIllegalState, str)
}

// isStopped returns whether the matcher reached the stop phase.
func (c *core) isStopped() bool {
	c.mtx.Lock()
	_, ok := c.state.(*stopState)
	c.mtx.Unlock()
	return ok
}

// start marks the kernels as being compiled and returns the device to compile
// them with.  It is only permitted once, from the preinit phase.
//
// This function MUST be called with the mutex held.
func (c *core) start() (compute.Device, error) {
	s, ok := c.state.(*preinitState)
	if !ok {
		return nil, c.illegalState("start")
	}
	if s.compiling {
		return nil, c.illegalState("start while compiling")
	}
	s.compiling = true
	return s.device, nil
}

// provideKernels allocates the double buffer and output word for the compiled
// kernels and moves from preinit to idle.
//
// This function MUST be called with the mutex held.
func (c *core) provideKernels(ks kernelSet) (action, error) {
	s, ok := c.state.(*preinitState)
	if !ok {
		return suspendAction, c.illegalState("kernels ready")
	}
	hash, err := ks.first()
	if err != nil {
		return suspendAction, err
	}
	compare, err := ks.compare()
	if err != nil {
		return suspendAction, err
	}
	if w := hash.ThreadExecutionWidth(); w <= 0 {
		str := fmt.Sprintf("hash pipeline has invalid execution width %d", w)
		return suspendAction, makeError(ErrBackendCompile, str)
	}
	simdHeight, err := compareHeight(compare)
	if err != nil {
		return suspendAction, err
	}

	slotSize := roundUp(FilterCapacity, simdHeight) * kernels.ValueSize
	db, err := newDoubleBuffer(&c.mtx, s.device, slotSize)
	if err != nil {
		return suspendAction, err
	}
	output, err := s.device.NewBuffer(kernels.ValueSize, compute.StorageShared)
	if err != nil {
		return suspendAction, wrapError(ErrBackendFault, "unable to allocate "+
			"output buffer", err)
	}

	c.state = &idleState{res: &resources{
		device:  s.device,
		kernels: ks,
		db:      db,
		output:  output,
	}}
	log.Infof("Matcher started on %s (hash width %d, compare height %d)",
		s.device.Name(), hash.ThreadExecutionWidth(), simdHeight)
	return continueAction, nil
}

// compareHeight returns the number of filter rows covered by one compare
// thread group.
func compareHeight(p compute.Pipeline) (int, error) {
	w := p.ThreadExecutionWidth()
	if w < ThreadGroupWidth || w%ThreadGroupWidth != 0 {
		str := fmt.Sprintf("compare pipeline execution width %d is not a "+
			"multiple of the thread group width %d", w, ThreadGroupWidth)
		return 0, makeError(ErrBackendCompile, str)
	}
	return w / ThreadGroupWidth, nil
}

// enqueue encodes req or queues it behind the commands already registered.  A
// non-nil error means req was not accepted and must be failed with it by the
// caller once the mutex is released.
//
// This function MUST be called with the mutex held.
func (c *core) enqueue(req *request) (action, error) {
	switch s := c.state.(type) {
	case *idleState:
		if err := c.encode(s.res, req); err != nil {
			return shutdownAction(err), err
		}
		c.state = &busyState{res: s.res}
		return executeNextAction, nil

	case *busyState:
		if s.res.db.full() {
			c.queue.PushBack(req)
			log.Tracef("Request queue depth %d", c.queue.Len())
			return continueAction, nil
		}
		if err := c.encode(s.res, req); err != nil {
			return shutdownAction(err), err
		}
		return continueAction, nil

	case *stopState:
		return continueAction, makeError(ErrStopped, "matcher is stopped")
	}
	return continueAction, c.illegalState("match")
}

// executeNext commits the staged command and encodes the head of the request
// queue, if any, into the slot that became free.
//
// This function MUST be called with the mutex held.
func (c *core) executeNext() (action, error) {
	s, ok := c.state.(*busyState)
	if !ok {
		return suspendAction, c.illegalState("execute next")
	}
	if err := s.res.db.commit(); err != nil {
		return suspendAction, err
	}

	req := popRequest(c.queue)
	if req == nil {
		return suspendAction, nil
	}
	if err := c.encode(s.res, req); err != nil {
		// Return the request to the queue so the shutdown fails it.
		c.queue.PushFront(req)
		return suspendAction, err
	}
	return suspendAction, nil
}

// checkQueue is applied after a result has been delivered.  It clears the
// output word and either continues with the next command or returns to idle.
//
// This function MUST be called with the mutex held.
func (c *core) checkQueue() (action, error) {
	switch s := c.state.(type) {
	case *busyState:
		binary.LittleEndian.PutUint32(s.res.output.Contents(), 0)
		if c.queue.Len() != 0 || !s.res.db.idle() {
			return executeNextAction, nil
		}
		c.state = &idleState{res: s.res}
		return continueAction, nil

	case *stopState:
		return continueAction, nil
	}
	return continueAction, c.illegalState("check queue")
}

// stop moves to the stop phase and releases the corpus.  It returns the
// functions that fail every registered and queued request with err, or
// ErrStopped when err is nil, which must be called once the mutex is
// released.  Registered requests are failed before queued requests.
//
// This function MUST be called with the mutex held.
func (c *core) stop(err error) []func() {
	var device compute.Device
	var completions []completion
	switch s := c.state.(type) {
	case *preinitState:
		device = s.device
	case *idleState:
		device = s.res.device
	case *busyState:
		device = s.res.device
		completions = s.res.db.stop()
	case *stopState:
		return nil
	}
	c.state = &stopState{device: device}
	c.corpus = nil
	c.pending = nil
	if c.cache != nil {
		c.cache.Clear()
	}

	if err != nil {
		log.Errorf("Matcher stopping: %v", err)
	} else {
		err = makeError(ErrStopped, "matcher stopped")
	}
	queued := drainRequests(c.queue)
	flush := make([]func(), 0, len(completions)+len(queued))
	for _, done := range completions {
		done := done
		flush = append(flush, func() { done(nil, err) })
	}
	for _, req := range queued {
		req := req
		flush = append(flush, func() { req.done(false, err) })
	}
	log.Infof("Matcher stopped (%d outstanding requests cancelled)",
		len(flush))
	return flush
}
