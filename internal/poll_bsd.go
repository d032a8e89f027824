//go:build darwin || netbsd || freebsd || openbsd || dragonfly

package internal

import (
	"os"

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"

	"github.com/talostrading/eventfd/efderrors"
)

type Poller struct {
	kq int

	eventlist []unix.Kevent_t

	// waker is a pipe whose read end is registered with kqueue.
	waker *Pipe

	posted *posted

	closed atomic.Bool
}

func NewPoller() (*Poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, os.NewSyscallError("kqueue", err)
	}
	unix.CloseOnExec(kq)

	pipe, err := NewPipe()
	if err == nil {
		err = pipe.SetReadNonblock()
	}
	if err == nil {
		err = pipe.SetWriteNonblock()
	}
	if err != nil {
		if pipe != nil {
			pipe.Close()
		}
		unix.Close(kq)
		return nil, err
	}

	changes := make([]unix.Kevent_t, 1)
	unix.SetKevent(&changes[0], pipe.Fd(), unix.EVFILT_READ, unix.EV_ADD)
	if _, err := unix.Kevent(kq, changes, nil, nil); err != nil {
		pipe.Close()
		unix.Close(kq)
		return nil, os.NewSyscallError("kevent_add", err)
	}

	return &Poller{
		kq:        kq,
		eventlist: make([]unix.Kevent_t, 128),
		waker:     pipe,
		posted:    newPosted(),
	}, nil
}

// Poll waits for at most timeoutMs milliseconds (forever if negative) and
// runs the posted handlers. It returns the number of handlers run.
func (p *Poller) Poll(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, efderrors.ErrClosed
	}

	var timeout *unix.Timespec
	if timeoutMs >= 0 { // 0 does a poll
		ts := unix.NsecToTimespec(int64(timeoutMs) * 1e6)
		timeout = &ts
	}

	n, err := unix.Kevent(p.kq, nil, p.eventlist, timeout)
	if err != nil {
		return 0, err
	}

	if n == 0 && timeoutMs >= 0 {
		return 0, efderrors.ErrTimeout
	}

	ran := 0
	for i := 0; i < n; i++ {
		if int(p.eventlist[i].Ident) == p.waker.Fd() {
			ran += p.posted.dispatch(p.waker)
		}
	}

	return ran, nil
}

// Post schedules handler to run on the polling goroutine. It is safe for
// concurrent use.
func (p *Poller) Post(handler func()) error {
	return p.posted.add(&p.closed, p.waker, handler)
}

// Posted returns the number of handlers registered with Post which have not
// run yet.
func (p *Poller) Posted() int {
	return p.posted.len()
}

func (p *Poller) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return efderrors.ErrClosed
	}

	p.waker.Close()
	return unix.Close(p.kq)
}

func (p *Poller) Closed() bool {
	return p.closed.Load()
}
