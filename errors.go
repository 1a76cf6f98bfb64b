// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

import (
	"errors"
	"fmt"
)

// ErrNotFound signals that an expected tag, directory, or thumbnail is
// absent. Callers may treat this as benign.
var ErrNotFound = errors.New("not found")

// ErrNotSupported signals that a feature is recognized but not implemented,
// e.g. 12-bit Nikon lossless compression.
var ErrNotSupported = errors.New("not supported")

// errInvalidFormat is used when the format is invalid.
var errInvalidFormat = &FormatError{errors.New("invalid format")}

// IsFormatError reports whether the error was a FormatError.
func IsFormatError(err error) bool {
	return errors.Is(err, errInvalidFormat)
}

// FormatError is returned when a structural invariant of the container or
// file format is violated.
type FormatError struct {
	Err error
}

func (e *FormatError) Error() string {
	return "format error: " + e.Err.Error()
}

// Is reports whether the target error is a FormatError.
func (e *FormatError) Is(target error) bool {
	_, ok := target.(*FormatError)
	return ok
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

func newFormatErrorf(format string, args ...any) error {
	return &FormatError{fmt.Errorf(format, args...)}
}

func newFormatError(err error) error {
	return &FormatError{err}
}

// InvalidFormatError is used when a numeric field is out of the range the
// format specifies for it.
type InvalidFormatError struct {
	Err error
}

func (e *InvalidFormatError) Error() string {
	return "invalid format: " + e.Err.Error()
}

func (e *InvalidFormatError) Is(target error) bool {
	_, ok := target.(*InvalidFormatError)
	return ok
}

func (e *InvalidFormatError) Unwrap() error {
	return e.Err
}

func newInvalidFormatErrorf(format string, args ...any) error {
	return &InvalidFormatError{fmt.Errorf(format, args...)}
}

func newInvalidFormatError(err error) error {
	return &InvalidFormatError{err}
}

// BufferTooSmallError is returned when a read would underflow a view.
type BufferTooSmallError struct {
	Wanted, Have int64
}

func (e *BufferTooSmallError) Error() string {
	return fmt.Sprintf("buffer too small: wanted %d bytes, have %d", e.Wanted, e.Have)
}

// DecompressionError wraps a human-readable reason an entropy-coded stream
// failed to decode.
type DecompressionError struct {
	Reason string
}

func (e *DecompressionError) Error() string {
	return "decompression: " + e.Reason
}

func newDecompressionErrorf(format string, args ...any) error {
	return &DecompressionError{fmt.Sprintf(format, args...)}
}

// JpegFormatError is returned when a Lossless JPEG header violates one of
// the SOF constraints the decoder requires (e.g. non-unity sampling
// factors).
type JpegFormatError struct {
	Reason string
}

func (e *JpegFormatError) Error() string {
	return "ljpeg: " + e.Reason
}

func newJpegFormatErrorf(format string, args ...any) error {
	return &JpegFormatError{fmt.Sprintf(format, args...)}
}

// ErrAlreadyInited is returned when a caller attempts to re-load an IFD
// entry that already has materialized data.
var ErrAlreadyInited = errors.New("entry already initialized")

// These error situations come from malformed or truncated input data
// triggering panics deep in the decode path. We want to separate those
// from genuine programming errors so that a single bad file never aborts
// the process.
var invalidFormatErrorStrings = []string{
	"unexpected EOF",
	"EOF",
}

func isInvalidFormatErrorCandidate(err error) bool {
	if err == nil {
		return false
	}
	for _, s := range invalidFormatErrorStrings {
		if err.Error() == s {
			return true
		}
	}
	return false
}

// Internal sentinel used with panic/recover to unwind out of a deeply
// nested decode without aborting the process. See (*View).stop.
var errStop = errors.New("stop")
