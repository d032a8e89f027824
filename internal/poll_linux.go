//go:build linux

package internal

import (
	"os"

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"

	"github.com/talostrading/eventfd/efderrors"
)

type Poller struct {
	// fd is the file descriptor returned by calling epoll_create1(0).
	fd int

	// events contains the events which occurred.
	events []unix.EpollEvent

	// waker is used to wake up the poller when a handler is posted.
	waker *EventFd

	posted *posted

	closed atomic.Bool
}

func NewPoller() (*Poller, error) {
	epollFd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}

	eventFd, err := NewEventFd(true)
	if err != nil {
		unix.Close(epollFd)
		return nil, err
	}

	p := &Poller{
		fd:     epollFd,
		waker:  eventFd,
		events: make([]unix.EpollEvent, 128),
		posted: newPosted(),
	}

	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, p.waker.Fd(), &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(p.waker.Fd()),
	}); err != nil {
		p.waker.Close()
		unix.Close(p.fd)
		return nil, os.NewSyscallError("epoll_ctl_add", err)
	}

	return p, nil
}

// Poll waits for at most timeoutMs milliseconds (forever if negative) and
// runs the posted handlers. It returns the number of handlers run.
func (p *Poller) Poll(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, efderrors.ErrClosed
	}

	n, err := unix.EpollWait(p.fd, p.events, timeoutMs)
	if err != nil {
		return 0, err
	}

	if n == 0 && timeoutMs >= 0 {
		return 0, efderrors.ErrTimeout
	}

	ran := 0
	for i := 0; i < n; i++ {
		if int(p.events[i].Fd) == p.waker.Fd() {
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
	return unix.Close(p.fd)
}

func (p *Poller) Closed() bool {
	return p.closed.Load()
}
