package syncengine

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned by persistence calls made outside the ready state.
	ErrNotReady = errors.New("sync: not ready")
	// ErrUnsupported means the environment cannot bind a data file this session.
	ErrUnsupported = errors.New("sync: unsupported")
	// ErrPermissionDenied means access to the bound data file is not authorized.
	ErrPermissionDenied = errors.New("sync: permission denied")
	// ErrCanceled is returned by pickers when the user backs out.
	ErrCanceled = errors.New("sync: canceled")
	// ErrBusy is returned when an access request is already in flight.
	ErrBusy = errors.New("sync: access request in progress")
	// ErrClosed is returned for work submitted to or pending in a closed engine.
	ErrClosed = errors.New("sync: engine closed")
)

// OpError describes a failed engine operation on a bound data file.
type OpError struct {
	Op     string
	Target string
	Err    error
}

func (e *OpError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("sync: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("sync: %s %s: %v", e.Op, e.Target, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }
