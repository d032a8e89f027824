//go:build linux

package internal

import (
	"encoding/binary"
	"os"

	"golang.org/x/sys/unix"
)

var _ Waker = &EventFd{}

// EventFd is a kernel eventfd, used by the Poller as its wakeup channel.
type EventFd struct {
	fd int
	b  [8]byte
}

func NewEventFd(nonBlocking bool) (*EventFd, error) {
	flags := unix.EFD_CLOEXEC
	if nonBlocking {
		flags |= unix.EFD_NONBLOCK
	}

	fd, err := unix.Eventfd(0, flags)
	if err != nil {
		return nil, os.NewSyscallError("eventfd", err)
	}
	return &EventFd{fd: fd}, nil
}

func (e *EventFd) Write(x uint64) (int, error) {
	var b [8]byte
	binary.NativeEndian.PutUint64(b[:], x)
	return unix.Write(e.fd, b[:])
}

func (e *EventFd) Read(b []byte) (int, error) {
	return unix.Read(e.fd, b)
}

func (e *EventFd) Fd() int {
	return e.fd
}

func (e *EventFd) Wake() error {
	_, err := e.Write(1)
	if err == unix.EAGAIN {
		// The counter is saturated, so the fd is readable already.
		return nil
	}
	return err
}

func (e *EventFd) Drain() {
	// A single read resets the counter.
	_, _ = e.Read(e.b[:])
}

func (e *EventFd) Close() error {
	return unix.Close(e.fd)
}
