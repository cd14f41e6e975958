// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package compute defines the interface between the matcher and a compute
// device such as a GPU.
//
// The model follows the common shape of GPU command APIs: kernels are compiled
// by name into pipelines, work is recorded into a command unit through an
// encoder, and the command unit is committed to the device which reports
// completion asynchronously.  Implementations must deliver the completion
// handlers of one device serially and in commit order, and all handlers of a
// command must return before the next command starts executing.
package compute

import "fmt"

// Size describes the dimensions of a dispatch grid or thread group.
type Size struct {
	Width, Height, Depth int
}

// Volume returns the total number of elements described by the size.
func (s Size) Volume() int {
	return s.Width * s.Height * s.Depth
}

// String returns the size formatted as WxHxD.
func (s Size) String() string {
	return fmt.Sprintf("%dx%dx%d", s.Width, s.Height, s.Depth)
}

// StorageMode describes where the memory backing a buffer lives.
type StorageMode uint8

const (
	// StorageShared buffers are visible to both the host and the device.
	StorageShared StorageMode = iota

	// StoragePrivate buffers are only visible to the device.
	StoragePrivate
)

// String returns the storage mode as a human-readable name.
func (m StorageMode) String() string {
	switch m {
	case StorageShared:
		return "shared"
	case StoragePrivate:
		return "private"
	}
	return fmt.Sprintf("unknown storage mode (%d)", uint8(m))
}

// Device is a compute device capable of compiling kernels, allocating memory
// and executing commands.
type Device interface {
	// Name returns a human-readable name for the device.
	Name() string

	// CompilePipeline compiles the named kernel.  The result is delivered
	// asynchronously to done, possibly on a different goroutine.  done is
	// never called before CompilePipeline returns.
	CompilePipeline(name string, done func(Pipeline, error))

	// NewBuffer allocates a zeroed buffer of length bytes.
	NewBuffer(length int, mode StorageMode) (Buffer, error)

	// NewBufferWithBytes allocates a buffer initialized with a copy of b.
	NewBufferWithBytes(b []byte, mode StorageMode) (Buffer, error)

	// NewCommand creates a command unit along with an encoder for it with p
	// as the active pipeline.
	NewCommand(p Pipeline) (CommandUnit, Encoder, error)
}

// Pipeline is a compiled kernel.
type Pipeline interface {
	// Name returns the kernel function name the pipeline was compiled from.
	Name() string

	// ThreadExecutionWidth returns the number of threads the device executes
	// in lock step for this pipeline.
	ThreadExecutionWidth() int
}

// Buffer is a region of device memory.
type Buffer interface {
	// Len returns the length of the buffer in bytes.
	Len() int

	// Contents returns the host view of a shared buffer.  It returns nil for
	// private buffers.
	Contents() []byte
}

// Encoder records the work for a command unit.
type Encoder interface {
	SetPipeline(p Pipeline)
	SetBuffer(b Buffer, offset, index int)
	SetBytes(b []byte, index int)

	// DispatchThreadgroups records a dispatch of the active pipeline over
	// groups thread groups with threadsPerGroup threads each.
	DispatchThreadgroups(groups, threadsPerGroup Size)

	// EndEncoding finishes recording.  No further calls are permitted.
	EndEncoding()
}

// CommandUnit is a recorded unit of work.
type CommandUnit interface {
	// AddCompletionHandler registers fn to be called once the command has
	// finished executing.  Handlers are called in registration order.
	AddCompletionHandler(fn func(CommandUnit))

	// Commit submits the command for execution.  Completion handlers are
	// never called from within Commit.
	Commit()

	// Faults returns the diagnostics reported while executing the command.
	// It is only meaningful once the command has completed.
	Faults() []Fault
}

// Fault describes a failure reported by the device while executing a
// command.
type Fault struct {
	// Label identifies the failing encoder or pipeline.
	Label string

	// Dispatch is the index of the failing dispatch within the command.
	Dispatch int

	// Message describes the failure.
	Message string
}

// String returns a human-readable description of the fault.
func (f Fault) String() string {
	return fmt.Sprintf("%s[dispatch %d]: %s", f.Label, f.Dispatch, f.Message)
}
