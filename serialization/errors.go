// Package serialization implements the binary wire format the loader uses
// to ingest compiled modules: a growable output buffer, a bounded input
// view, and a LEB128 variable-length integer codec over both.
package serialization

import "fmt"

// FatalError is raised by the codec on truncation, range violations, and
// malformed LEB128 encodings. Unlike the loader's own fatal errors, this one
// is meant to be caught: a malformed binary module is a user-facing error,
// not a sign of process-wide corruption.
type FatalError struct {
	msg string
}

func (e *FatalError) Error() string { return e.msg }

func newFatalError(format string, args ...interface{}) *FatalError {
	return &FatalError{msg: fmt.Sprintf(format, args...)}
}

func errTruncated() error {
	return newFatalError("expected data but found end of stream")
}

func errOutOfRange(lo, v, hi interface{}) error {
	return newFatalError("out-of-range value: %v <= %v <= %v", lo, v, hi)
}

func errInvalidFinalByte() error {
	return newFatalError("Invalid LEB encoding: invalid final byte")
}
