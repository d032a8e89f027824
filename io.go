//go:build darwin || netbsd || freebsd || openbsd || dragonfly || linux

package eventfd

import (
	"errors"
	"os"
	"runtime"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"

	"github.com/talostrading/eventfd/efderrors"
	"github.com/talostrading/eventfd/internal"
)

// IO is an event processing loop. Handlers of asynchronous operations, see
// File.AsyncRead and File.AsyncWrite, run on the goroutine calling Run,
// RunOne, Poll or PollOne.
type IO struct {
	poller *internal.Poller

	// pending is the number of asynchronous operations waiting for a
	// readiness edge.
	pending atomic.Int64

	closed atomic.Bool
}

func NewIO() (*IO, error) {
	poller, err := internal.NewPoller()
	if err != nil {
		return nil, err
	}

	return &IO{
		poller: poller,
	}, nil
}

func MustIO() *IO {
	ioc, err := NewIO()
	if err != nil {
		panic(err)
	}
	return ioc
}

// Run runs the event processing loop until the IO is closed.
func (ioc *IO) Run() error {
	for {
		if err := ioc.RunOne(); err != nil {
			if errors.Is(err, efderrors.ErrClosed) {
				return nil
			}
			if !errors.Is(err, efderrors.ErrTimeout) {
				return err
			}
		}
	}
}

// RunPending runs the event processing loop until no asynchronous operation
// is pending and no handler is posted.
//
// note: this blocks if a pending operation never becomes ready.
func (ioc *IO) RunPending() error {
	for ioc.pending.Load() > 0 || ioc.poller.Posted() > 0 {
		if err := ioc.RunOne(); err != nil && !errors.Is(err, efderrors.ErrTimeout) {
			return err
		}
	}
	return nil
}

// RunOne blocks until at least one handler is ready, then runs the ready
// handlers.
func (ioc *IO) RunOne() error {
	_, err := ioc.poll(-1)
	return err
}

// RunOneFor is RunOne waiting at most dur. It returns ErrTimeout if nothing
// became ready.
func (ioc *IO) RunOneFor(dur time.Duration) error {
	_, err := ioc.poll(int(dur.Milliseconds()))
	return err
}

// Poll runs the ready handlers until none is left, without blocking.
func (ioc *IO) Poll() error {
	for {
		n, err := ioc.PollOne()
		if err != nil {
			if errors.Is(err, efderrors.ErrTimeout) {
				return nil
			}
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

// PollOne runs the ready handlers without blocking and returns how many ran.
func (ioc *IO) PollOne() (int, error) {
	return ioc.poll(0)
}

func (ioc *IO) poll(timeoutMs int) (int, error) {
	n, err := ioc.poller.Poll(timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			if timeoutMs >= 0 {
				return 0, efderrors.ErrTimeout
			}

			runtime.Gosched()
			return 0, nil
		}

		if errors.Is(err, efderrors.ErrTimeout) || errors.Is(err, efderrors.ErrClosed) {
			return 0, err
		}

		return 0, os.NewSyscallError("poll_wait", err)
	}

	return n, nil
}

// Post schedules handler to run on the event processing loop. It is safe to
// call this concurrently.
func (ioc *IO) Post(handler func()) error {
	return ioc.poller.Post(handler)
}

// Posted returns the number of posted handlers which have not run yet.
func (ioc *IO) Posted() int {
	return ioc.poller.Posted()
}

// Pending returns the number of asynchronous operations waiting for a
// readiness edge.
func (ioc *IO) Pending() int64 {
	return ioc.pending.Load()
}

// Close releases the poller. A goroutine blocked in Run or RunOne is not
// woken, so Close should be called from the loop itself, typically through
// Post, or once the loop has returned.
func (ioc *IO) Close() error {
	if !ioc.closed.CompareAndSwap(false, true) {
		return efderrors.ErrClosed
	}

	return ioc.poller.Close()
}

func (ioc *IO) Closed() bool {
	return ioc.closed.Load()
}
