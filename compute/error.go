// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package compute

// ErrorKind identifies a kind of error.  It has full support for errors.Is and
// errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific Error.
const (
	// ErrUnknownKernel indicates a pipeline was requested for a kernel name
	// the device does not provide.
	ErrUnknownKernel = ErrorKind("ErrUnknownKernel")

	// ErrBufferSize indicates a buffer allocation with an invalid size.
	ErrBufferSize = ErrorKind("ErrBufferSize")

	// ErrEncoderEnded indicates work was recorded after the encoder was
	// ended.
	ErrEncoderEnded = ErrorKind("ErrEncoderEnded")

	// ErrBinding indicates a kernel argument is missing, has the wrong type
	// or is too small for the dispatch.
	ErrBinding = ErrorKind("ErrBinding")

	// ErrDeviceClosed indicates the device has been closed.
	ErrDeviceClosed = ErrorKind("ErrDeviceClosed")

	// ErrForeignObject indicates a pipeline or buffer created by a different
	// device implementation was passed to the device.
	ErrForeignObject = ErrorKind("ErrForeignObject")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies a compute device related error.  It has full support for
// errors.Is and errors.As, so the caller can ascertain the specific reason for
// the error by checking the underlying error.
type Error struct {
	Err         error
	Description string
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// MakeError creates an Error given a set of arguments.
func MakeError(kind ErrorKind, desc string) Error {
	return Error{Err: kind, Description: desc}
}
