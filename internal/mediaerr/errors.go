// Package mediaerr defines the error taxonomy shared by the composition, trim,
// export and synthesis operations.
package mediaerr

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	// ErrEmptyComposition is returned when compose is called with no sources.
	ErrEmptyComposition = errors.New("empty composition")
	// ErrInvalidRange is returned when a trim window is inverted or out of bounds.
	ErrInvalidRange = errors.New("invalid range")
	// ErrTrackInsertionFailed is returned when a source's video cannot be placed on the timeline.
	ErrTrackInsertionFailed = errors.New("track insertion failed")
	// ErrFrameSynthesisFailed is returned when a still cannot be drawn or encoded into a frame.
	ErrFrameSynthesisFailed = errors.New("frame synthesis failed")
	// ErrEncoderUnavailable is returned when no encoder session can be opened.
	ErrEncoderUnavailable = errors.New("encoder unavailable")
	// ErrEncoderNotReady is returned when an encoder sink never becomes ready for more data.
	ErrEncoderNotReady = errors.New("encoder not ready")
	// ErrExportFailed is returned when the encoder reports a failure.
	ErrExportFailed = errors.New("export failed")
	// ErrExportCancelled is returned when the caller cancelled an export.
	ErrExportCancelled = errors.New("export cancelled")
)

// NoIndex marks an OpError that does not concern a particular segment or source.
const NoIndex = -1

// OpError names the failing operation and, for batch operations, the offending
// segment or source index. It unwraps to both its Kind and its cause.
type OpError struct {
	Op    string
	Index int
	Kind  error
	Err   error
}

// New builds an OpError that is not tied to an index.
func New(op string, kind, err error) *OpError {
	return &OpError{Op: op, Index: NoIndex, Kind: kind, Err: err}
}

// AtIndex builds an OpError for segment or source i.
func AtIndex(op string, i int, kind, err error) *OpError {
	return &OpError{Op: op, Index: i, Kind: kind, Err: err}
}

func (e *OpError) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.Index != NoIndex {
		msg = fmt.Sprintf("%s: %s (segment %d)", e.Op, e.Kind, e.Index)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IndexOf returns the segment index carried by err, or NoIndex.
func IndexOf(err error) int {
	var op *OpError
	if errors.As(err, &op) {
		return op.Index
	}
	return NoIndex
}
