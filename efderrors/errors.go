package efderrors

import "errors"

var (
	// ErrInvalidArgument is returned for malformed requests: a value above
	// MaxValue, an I/O buffer shorter than 8 bytes or unknown creation flags.
	// It is always reported before the object state is touched.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrWouldBlock is returned by non-blocking handles when the operation
	// cannot complete now.
	ErrWouldBlock = errors.New("operation would block")

	// ErrInterrupted is returned when a blocked operation's context is done.
	// The returned error also wraps the context error.
	ErrInterrupted = errors.New("operation interrupted")

	// ErrAborted is returned when the eventfd is being torn down. It is
	// terminal: callers must not retry against the same object.
	ErrAborted = errors.New("operation aborted by close")

	// ErrClosed is returned by a handle after it has been closed.
	ErrClosed = errors.New("eventfd handle closed")

	ErrTimeout = errors.New("operation timed out")
)
