package domain

import (
	"fmt"
)

// ExitError reports an abnormal recorder exit: a non-zero code or a signal.
type ExitError struct {
	Code   int
	Signal string
}

func (e *ExitError) Error() string {
	if e.Signal != "" {
		return fmt.Sprintf("terminated by signal %s", e.Signal)
	}
	return fmt.Sprintf("exited with code %d", e.Code)
}

// DiskQueryError is returned when free space for a path cannot be determined.
type DiskQueryError struct {
	Path string
	Err  error
}

func (e *DiskQueryError) Error() string {
	return fmt.Sprintf("disk query %s: %v", e.Path, e.Err)
}

func (e *DiskQueryError) Unwrap() error { return e.Err }

// ScanError describes a directory entry skipped during an inventory walk.
type ScanError struct {
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s: %v", e.Path, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// DeleteError is returned when a reclaim candidate could not be removed.
type DeleteError struct {
	Path string
	Err  error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("delete %s: %v", e.Path, e.Err)
}

func (e *DeleteError) Unwrap() error { return e.Err }
