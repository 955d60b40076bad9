package series

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSeriesFound is returned when a directory holds no readable
	// DICOM image with pixel data.
	ErrNoSeriesFound = errors.New("no DICOM series found")

	// ErrReadFailure matches every *ReadError.
	ErrReadFailure = errors.New("series read failure")
)

// ReadError reports a file or series that could not be turned into a volume.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("error reading %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrReadFailure) true for any ReadError.
func (e *ReadError) Is(target error) bool { return target == ErrReadFailure }
