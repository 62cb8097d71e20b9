package streamstore

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrDisposed is returned when the reader is used after Close.
	ErrDisposed = errors.New("stream store is disposed")
	// ErrInvalidArgument is returned for negative versions or counts.
	ErrInvalidArgument = errors.New("invalid argument")
)

// ErrWrongExpectedVersion indicates that an append expected a different stream version.
type ErrWrongExpectedVersion struct {
	StreamKey       string
	ExpectedVersion int
	ActualVersion   int
}

func (e *ErrWrongExpectedVersion) Error() string {
	return fmt.Sprintf("expected version %d but stream '%s' is at version %d", e.ExpectedVersion, e.StreamKey, e.ActualVersion)
}

// CheckExpectedVersion validates expected against the current version of a stream
// (-1 when the stream does not exist or is empty).
func CheckExpectedVersion(streamKey string, expected, current int) error {
	switch expected {
	case ExpectedVersionAny:
		return nil
	case ExpectedVersionNoStream:
		if current != -1 {
			return &ErrWrongExpectedVersion{StreamKey: streamKey, ExpectedVersion: expected, ActualVersion: current}
		}
		return nil
	}
	if expected < 0 {
		return fmt.Errorf("%w: expected version %d", ErrInvalidArgument, expected)
	}
	if current != expected {
		return &ErrWrongExpectedVersion{StreamKey: streamKey, ExpectedVersion: expected, ActualVersion: current}
	}
	return nil
}
