// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package matcher

// ErrorKind identifies a kind of error.  It has full support for errors.Is and
// errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific Error.
const (
	// ErrIllegalState indicates an operation was attempted in a lifecycle
	// state that does not permit it.
	ErrIllegalState = ErrorKind("ErrIllegalState")

	// ErrInternal indicates an internal invariant was violated, such as a
	// match being encoded without a corpus.
	ErrInternal = ErrorKind("ErrInternal")

	// ErrKernelsEmpty indicates a required kernel pipeline is not available.
	ErrKernelsEmpty = ErrorKind("ErrKernelsEmpty")

	// ErrBackendCompile indicates a kernel pipeline could not be created by
	// the compute device.
	ErrBackendCompile = ErrorKind("ErrBackendCompile")

	// ErrBackendFault indicates a buffer allocation or command creation
	// failed or the compute device reported a fault while executing a
	// command.
	ErrBackendFault = ErrorKind("ErrBackendFault")

	// ErrStopped indicates the operation was cancelled because the matcher
	// has been stopped.
	ErrStopped = ErrorKind("ErrStopped")

	// ErrFilterCapacity indicates a filter set holds more values than a
	// double buffer slot can hold.
	ErrFilterCapacity = ErrorKind("ErrFilterCapacity")

	// ErrOpcodeTooLong indicates a corpus entry does not fit in an opcode
	// slot.
	ErrOpcodeTooLong = ErrorKind("ErrOpcodeTooLong")

	// ErrInvalidConfig indicates the matcher configuration is unusable.
	ErrInvalidConfig = ErrorKind("ErrInvalidConfig")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies a matcher related error.  It has full support for
// errors.Is and errors.As, so the caller can ascertain the specific reason for
// the error by checking the underlying error.
//
// Cause, when set, is the error reported by the compute device that led to
// the error and is also reachable via errors.Is and errors.As.
type Error struct {
	Err         error
	Description string
	Cause       error
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	return e.Description
}

// Unwrap returns the underlying wrapped errors.
func (e Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// makeError creates an Error given a set of arguments.
func makeError(kind ErrorKind, desc string) Error {
	return Error{Err: kind, Description: desc}
}

// wrapError creates an Error of the given kind caused by err.  The description
// of err is appended to desc.
func wrapError(kind ErrorKind, desc string, err error) Error {
	return Error{Err: kind, Description: desc + ": " + err.Error(), Cause: err}
}
