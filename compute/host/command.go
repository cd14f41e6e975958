// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package host

import (
	"fmt"
	"sync"

	"github.com/decred/cfmatch/compute"
)

// binding is a buffer bound to a kernel argument index.
type binding struct {
	buf    *buffer
	offset int
}

// dispatch is a single recorded kernel dispatch along with a snapshot of the
// arguments bound when it was recorded.
type dispatch struct {
	pipeline        *pipeline
	groups          compute.Size
	threadsPerGroup compute.Size
	buffers         map[int]binding
	bytes           map[int][]byte
}

// encoder records dispatches into a command.  It implements the
// compute.Encoder interface.
//
// Misuse of the encoder is recorded as a fault so that it is reported through
// the completion handlers of the command instead of panicking.
type encoder struct {
	cmd      *command
	pipeline *pipeline
	buffers  map[int]binding
	bytes    map[int][]byte
	ended    bool
}

// label returns the label faults recorded by the encoder are reported under.
func (e *encoder) label() string {
	if e.pipeline == nil {
		return "encoder"
	}
	return e.pipeline.name
}

// fault records a misuse of the encoder.
func (e *encoder) fault(kind compute.ErrorKind, format string, args ...interface{}) {
	e.cmd.addFault(compute.Fault{
		Label:    e.label(),
		Dispatch: len(e.cmd.dispatches),
		Message:  fmt.Sprintf("%v: %s", kind, fmt.Sprintf(format, args...)),
	})
}

func (e *encoder) SetPipeline(p compute.Pipeline) {
	if e.ended {
		e.fault(compute.ErrEncoderEnded, "set pipeline after end of encoding")
		return
	}
	pl, ok := p.(*pipeline)
	if !ok || pl.dev != e.cmd.dev {
		e.fault(compute.ErrForeignObject, "pipeline %T from another device", p)
		return
	}
	e.pipeline = pl
}

func (e *encoder) SetBuffer(b compute.Buffer, offset, index int) {
	if e.ended {
		e.fault(compute.ErrEncoderEnded, "set buffer %d after end of encoding",
			index)
		return
	}
	buf, ok := b.(*buffer)
	if !ok || buf.dev != e.cmd.dev {
		e.fault(compute.ErrForeignObject, "buffer %T from another device", b)
		return
	}
	if offset < 0 || offset > len(buf.data) {
		e.fault(compute.ErrBinding, "offset %d out of range for buffer %d "+
			"of length %d", offset, index, len(buf.data))
		return
	}
	if e.buffers == nil {
		e.buffers = make(map[int]binding)
	}
	delete(e.bytes, index)
	e.buffers[index] = binding{buf: buf, offset: offset}
}

func (e *encoder) SetBytes(b []byte, index int) {
	if e.ended {
		e.fault(compute.ErrEncoderEnded, "set bytes %d after end of encoding",
			index)
		return
	}
	if e.bytes == nil {
		e.bytes = make(map[int][]byte)
	}
	delete(e.buffers, index)
	e.bytes[index] = append([]byte(nil), b...)
}

func (e *encoder) DispatchThreadgroups(groups, threadsPerGroup compute.Size) {
	if e.ended {
		e.fault(compute.ErrEncoderEnded, "dispatch after end of encoding")
		return
	}
	if groups.Volume() <= 0 || threadsPerGroup.Volume() <= 0 {
		e.fault(compute.ErrBinding, "empty dispatch of %v groups of %v threads",
			groups, threadsPerGroup)
		return
	}

	// Snapshot the bindings since later calls may rebind the same indices
	// for the next dispatch.
	d := dispatch{
		pipeline:        e.pipeline,
		groups:          groups,
		threadsPerGroup: threadsPerGroup,
		buffers:         make(map[int]binding, len(e.buffers)),
		bytes:           make(map[int][]byte, len(e.bytes)),
	}
	for index, b := range e.buffers {
		d.buffers[index] = b
	}
	for index, b := range e.bytes {
		d.bytes[index] = b
	}
	e.cmd.dispatches = append(e.cmd.dispatches, d)
}

func (e *encoder) EndEncoding() {
	e.ended = true
}

// command is a recorded unit of work for the host device.  It implements the
// compute.CommandUnit interface.
type command struct {
	dev        *Device
	enc        encoder
	dispatches []dispatch

	mtx       sync.Mutex
	handlers  []func(compute.CommandUnit)
	faults    []compute.Fault
	committed bool
}

// Ensure command implements the compute.CommandUnit interface.
var _ compute.CommandUnit = (*command)(nil)

func (c *command) AddCompletionHandler(fn func(compute.CommandUnit)) {
	c.mtx.Lock()
	c.handlers = append(c.handlers, fn)
	c.mtx.Unlock()
}

// Commit submits the command to the device worker.  Committing a command more
// than once panics.
func (c *command) Commit() {
	c.mtx.Lock()
	if c.committed {
		c.mtx.Unlock()
		panic("host: command committed twice")
	}
	c.committed = true
	c.mtx.Unlock()

	c.enc.ended = true
	c.dev.submit(c)
}

func (c *command) Faults() []compute.Fault {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if len(c.faults) == 0 {
		return nil
	}
	faults := make([]compute.Fault, len(c.faults))
	copy(faults, c.faults)
	return faults
}

func (c *command) addFault(f compute.Fault) {
	c.mtx.Lock()
	c.faults = append(c.faults, f)
	c.mtx.Unlock()
}

// execute runs the recorded dispatches in order.  Execution stops at the first
// fault, including faults recorded while encoding.
func (c *command) execute() {
	c.mtx.Lock()
	faulted := len(c.faults) != 0
	c.mtx.Unlock()
	if faulted {
		return
	}

	for i := range c.dispatches {
		d := &c.dispatches[i]
		if d.pipeline == nil {
			c.addFault(compute.Fault{
				Label:    "encoder",
				Dispatch: i,
				Message:  "dispatch without a pipeline",
			})
			return
		}
		inv := &Invocation{
			Groups:          d.groups,
			ThreadsPerGroup: d.threadsPerGroup,
			buffers:         d.buffers,
			bytes:           d.bytes,
			workers:         c.dev.workers,
		}
		if err := d.pipeline.fn(inv); err != nil {
			log.Debugf("Kernel %s failed in dispatch %d: %v",
				d.pipeline.name, i, err)
			c.addFault(compute.Fault{
				Label:    d.pipeline.name,
				Dispatch: i,
				Message:  err.Error(),
			})
			return
		}
	}
}

// complete calls the completion handlers in registration order.
func (c *command) complete() {
	c.mtx.Lock()
	handlers := c.handlers
	c.handlers = nil
	c.mtx.Unlock()

	for _, fn := range handlers {
		fn(c)
	}
}
