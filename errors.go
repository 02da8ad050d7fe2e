package mmal

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidHandle is returned when a null native pointer is wrapped.
	ErrInvalidHandle = errors.New("mmal: invalid handle")
	// ErrClosed is returned when an object, or the Component owning it,
	// has been closed.
	ErrClosed = errors.New("mmal: use of closed resource")
	// ErrPoolCreation is returned when the engine yields no pool.
	ErrPoolCreation = errors.New("mmal: pool creation failed")
	// ErrConnectionCreation is returned when the engine yields no connection.
	ErrConnectionCreation = errors.New("mmal: connection creation failed")
	// ErrUnsupportedPlatform is returned by OpenEngine where libmmal cannot exist.
	ErrUnsupportedPlatform = errors.New("mmal: engine not supported on this platform")
)

// Status is an engine status code. Every non-success Status is an error.
type Status int32

// Status codes from mmal_types.h
const (
	Success Status = iota
	ENOMEM
	ENOSPC
	EINVAL
	ENOSYS
	ENOENT
	ENXIO
	EIO
	ESPIPE
	ECORRUPT
	ENOTREADY
	ECONFIG
	EISCONN
	ENOTCONN
	EAGAIN
	EFAULT
)

var statusNames = [...]string{
	Success:   "success",
	ENOMEM:    "out of memory",
	ENOSPC:    "out of resources",
	EINVAL:    "invalid argument",
	ENOSYS:    "not implemented",
	ENOENT:    "no such file or directory",
	ENXIO:     "no such device or address",
	EIO:       "i/o error",
	ESPIPE:    "illegal seek",
	ECORRUPT:  "data is corrupt",
	ENOTREADY: "component is not ready",
	ECONFIG:   "component is not configured",
	EISCONN:   "port is already connected",
	ENOTCONN:  "port is disconnected",
	EAGAIN:    "resource temporarily unavailable",
	EFAULT:    "bad address",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// Error implements error.
func (s Status) Error() string { return "mmal: " + s.String() }

// OK returns true for Success.
func (s Status) OK() bool { return s == Success }

// check turns a Status into nil or an error carrying the operation.
func check(st Status, format string, args ...any) error {
	if st == Success {
		return nil
	}
	return errors.Wrapf(st, format, args...)
}

// ComponentCreationError is returned when the engine's factory cannot
// resolve or instantiate a named component. Err is the engine Status, or
// ErrInvalidHandle when the factory reported success without a component.
type ComponentCreationError struct {
	Name string
	Err  error
}

func (e *ComponentCreationError) Error() string {
	return fmt.Sprintf("mmal: create component %q: %v", e.Name, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ComponentCreationError) Unwrap() error { return e.Err }

// Status returns the engine status behind the failure, or Success if the
// failure was not reported by the engine.
func (e *ComponentCreationError) Status() Status {
	var st Status
	if errors.As(e.Err, &st) {
		return st
	}
	return Success
}
