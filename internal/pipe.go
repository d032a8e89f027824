//go:build darwin || netbsd || freebsd || openbsd || dragonfly || linux

package internal

import (
	"os"

	"golang.org/x/sys/unix"
)

var _ Waker = &Pipe{}

// Pipe is the Poller wakeup channel on platforms without eventfd.
type Pipe struct {
	pipe [2]int
	b    [64]byte
}

func NewPipe() (*Pipe, error) {
	p := &Pipe{}
	if err := unix.Pipe(p.pipe[:]); err != nil {
		return nil, os.NewSyscallError("pipe", err)
	}
	unix.CloseOnExec(p.pipe[0])
	unix.CloseOnExec(p.pipe[1])
	return p, nil
}

func (p *Pipe) SetReadNonblock() error {
	if err := unix.SetNonblock(p.pipe[0], true); err != nil {
		return os.NewSyscallError("pipe read set_nonblock", err)
	}
	return nil
}

func (p *Pipe) SetWriteNonblock() error {
	if err := unix.SetNonblock(p.pipe[1], true); err != nil {
		return os.NewSyscallError("pipe write set_nonblock", err)
	}
	return nil
}

func (p *Pipe) Write(b []byte) (int, error) {
	return unix.Write(p.pipe[1], b)
}

func (p *Pipe) Read(b []byte) (int, error) {
	return unix.Read(p.pipe[0], b)
}

func (p *Pipe) ReadFd() int {
	return p.pipe[0]
}

func (p *Pipe) WriteFd() int {
	return p.pipe[1]
}

func (p *Pipe) Fd() int {
	return p.pipe[0]
}

func (p *Pipe) Wake() error {
	_, err := p.Write([]byte{1})
	if err == unix.EAGAIN {
		// The pipe is full, so the read end is readable already.
		return nil
	}
	return err
}

func (p *Pipe) Drain() {
	for {
		n, err := p.Read(p.b[:])
		if err != nil || n < len(p.b) {
			return
		}
	}
}

func (p *Pipe) Close() error {
	if err := unix.Close(p.pipe[0]); err != nil {
		return err
	}

	return unix.Close(p.pipe[1])
}
