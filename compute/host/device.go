// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package host implements a compute device that executes kernels on the host
// CPU.
//
// It is the reference implementation of the compute interfaces: commands are
// executed one at a time by a dedicated worker goroutine in commit order, the
// threads of a dispatch are spread across a bounded number of goroutines, and
// kernel failures are reported as command faults rather than crashing the
// process.
package host

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/decred/cfmatch/compute"
	"github.com/decred/cfmatch/kernels"
	"golang.org/x/sys/cpu"
)

// Config holds the configuration options for a host device.
type Config struct {
	// Name is a human-readable name for the device.  Defaults to "host".
	Name string

	// ExecutionWidth is the thread execution width reported by every
	// pipeline.  It must be a positive power of two.  Zero selects a width
	// based on the vector extensions of the CPU.
	ExecutionWidth int

	// Workers is the maximum number of goroutines used to execute the
	// threads of a single dispatch.  Zero selects GOMAXPROCS.
	Workers int

	// MaxBufferSize limits the size of a single buffer allocation in bytes.
	// Zero means no limit.
	MaxBufferSize int

	// Kernels maps kernel function names to their implementations.  When nil
	// the device provides the hash and compare kernels used by the matcher.
	Kernels map[string]Kernel
}

// Device is a compute device that executes kernels on the host CPU.  It
// implements the compute.Device interface.
type Device struct {
	name          string
	width         int
	workers       int
	maxBufferSize int
	kernels       map[string]Kernel

	mtx    sync.Mutex
	queue  []*command
	closed bool
	wake   chan struct{}
	wg     sync.WaitGroup
}

// Ensure Device implements the compute.Device interface.
var _ compute.Device = (*Device)(nil)

// DefaultKernels returns the kernels the matcher requires.
func DefaultKernels() map[string]Kernel {
	return map[string]Kernel{
		kernels.HashName:    HashAll,
		kernels.CompareName: CompareXY,
	}
}

// detectExecutionWidth picks a thread execution width based on the widest
// vector extension available.
func detectExecutionWidth() int {
	switch {
	case cpu.X86.HasAVX512F:
		return 64
	case cpu.X86.HasAVX2, cpu.ARM64.HasASIMD:
		return 32
	}
	return 16
}

// NewDevice returns a new host device and starts its command worker.  The
// device must be closed with Close once it is no longer needed.
func NewDevice(cfg *Config) (*Device, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	width := cfg.ExecutionWidth
	if width == 0 {
		width = detectExecutionWidth()
	}
	if width < 0 || width&(width-1) != 0 {
		str := fmt.Sprintf("execution width %d is not a positive power of two",
			cfg.ExecutionWidth)
		return nil, compute.MakeError(compute.ErrBinding, str)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	name := cfg.Name
	if name == "" {
		name = "host"
	}
	kernelFns := cfg.Kernels
	if kernelFns == nil {
		kernelFns = DefaultKernels()
	}

	d := &Device{
		name:          name,
		width:         width,
		workers:       workers,
		maxBufferSize: cfg.MaxBufferSize,
		kernels:       kernelFns,
		wake:          make(chan struct{}, 1),
	}
	d.wg.Add(1)
	go d.commandHandler()
	log.Debugf("Host device %q started (execution width %d, %d workers)",
		name, width, workers)
	return d, nil
}

// Name returns the name of the device.
func (d *Device) Name() string {
	return d.name
}

// ExecutionWidth returns the thread execution width of the device.
func (d *Device) ExecutionWidth() int {
	return d.width
}

// CompilePipeline looks up the named kernel and delivers the pipeline to done
// from a new goroutine.
func (d *Device) CompilePipeline(name string, done func(compute.Pipeline, error)) {
	d.mtx.Lock()
	closed := d.closed
	d.mtx.Unlock()

	go func() {
		if closed {
			str := fmt.Sprintf("unable to compile %q: device closed", name)
			done(nil, compute.MakeError(compute.ErrDeviceClosed, str))
			return
		}
		fn, ok := d.kernels[name]
		if !ok {
			str := fmt.Sprintf("no kernel function named %q", name)
			done(nil, compute.MakeError(compute.ErrUnknownKernel, str))
			return
		}
		log.Debugf("Compiled pipeline %s", name)
		done(&pipeline{dev: d, name: name, fn: fn}, nil)
	}()
}

// checkBufferSize returns an error if a buffer of the given length may not be
// allocated.
func (d *Device) checkBufferSize(length int) error {
	if length <= 0 {
		str := fmt.Sprintf("invalid buffer length %d", length)
		return compute.MakeError(compute.ErrBufferSize, str)
	}
	if d.maxBufferSize > 0 && length > d.maxBufferSize {
		str := fmt.Sprintf("buffer length %d exceeds the maximum of %d",
			length, d.maxBufferSize)
		return compute.MakeError(compute.ErrBufferSize, str)
	}
	return nil
}

// NewBuffer allocates a zeroed buffer.
func (d *Device) NewBuffer(length int, mode compute.StorageMode) (compute.Buffer, error) {
	if err := d.checkBufferSize(length); err != nil {
		return nil, err
	}
	return &buffer{dev: d, data: make([]byte, length), mode: mode}, nil
}

// NewBufferWithBytes allocates a buffer holding a copy of b.
func (d *Device) NewBufferWithBytes(b []byte, mode compute.StorageMode) (compute.Buffer, error) {
	if err := d.checkBufferSize(len(b)); err != nil {
		return nil, err
	}
	data := make([]byte, len(b))
	copy(data, b)
	return &buffer{dev: d, data: data, mode: mode}, nil
}

// NewCommand returns a new command unit and its encoder with p active.
func (d *Device) NewCommand(p compute.Pipeline) (compute.CommandUnit, compute.Encoder, error) {
	pl, ok := p.(*pipeline)
	if !ok || pl.dev != d {
		str := fmt.Sprintf("pipeline %T does not belong to device %q", p, d.name)
		return nil, nil, compute.MakeError(compute.ErrForeignObject, str)
	}
	cmd := &command{dev: d}
	cmd.enc.cmd = cmd
	cmd.enc.pipeline = pl
	return cmd, &cmd.enc, nil
}

// submit queues a committed command for the worker.
func (d *Device) submit(cmd *command) {
	d.mtx.Lock()
	if d.closed {
		d.mtx.Unlock()
		cmd.addFault(compute.Fault{
			Label:   d.name,
			Message: compute.ErrDeviceClosed.Error(),
		})
		go cmd.complete()
		return
	}
	d.queue = append(d.queue, cmd)
	d.mtx.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// commandHandler executes committed commands in order until the device is
// closed and the queue is drained.  It must be run as a goroutine.
func (d *Device) commandHandler() {
	defer d.wg.Done()
	for {
		d.mtx.Lock()
		if len(d.queue) == 0 {
			closed := d.closed
			d.mtx.Unlock()
			if closed {
				return
			}
			<-d.wake
			continue
		}
		cmd := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mtx.Unlock()

		cmd.execute()
		cmd.complete()
	}
}

// Close executes every command committed so far and then stops the worker.
// Commands committed afterwards complete with a fault.  It must not be called
// from a completion handler.
func (d *Device) Close() {
	d.mtx.Lock()
	if d.closed {
		d.mtx.Unlock()
		return
	}
	d.closed = true
	d.mtx.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	d.wg.Wait()
	log.Debugf("Host device %q closed", d.name)
}

// pipeline is a kernel bound to a device.  It implements the compute.Pipeline
// interface.
type pipeline struct {
	dev  *Device
	name string
	fn   Kernel
}

func (p *pipeline) Name() string              { return p.name }
func (p *pipeline) ThreadExecutionWidth() int { return p.dev.width }

// buffer is device memory backed by a byte slice.  It implements the
// compute.Buffer interface.
type buffer struct {
	dev  *Device
	data []byte
	mode compute.StorageMode
}

func (b *buffer) Len() int { return len(b.data) }

func (b *buffer) Contents() []byte {
	if b.mode == compute.StoragePrivate {
		return nil
	}
	return b.data
}
