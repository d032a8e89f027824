//go:build darwin || netbsd || freebsd || openbsd || dragonfly || linux

package eventfd

import (
	"github.com/talostrading/eventfd/efderrors"
)

// AsyncRead reads the value without blocking the caller. cb runs on the
// IO's loop, or inline if the read completes immediately.
//
// If the Eventfd is torn down while the read waits, cb gets ErrAborted.
func (f *File) AsyncRead(ioc *IO, cb AsyncReadCallback) {
	if f.closed.Load() {
		cb(efderrors.ErrClosed, 0)
		return
	}

	v, err := f.efd.TryRead()
	if err == nil {
		cb(nil, v)
		return
	}
	if err != efderrors.ErrWouldBlock {
		cb(err, 0)
		return
	}

	f.schedule(ioc, ReadEvent, func(err error) {
		if err != nil {
			cb(err, 0)
		} else {
			f.AsyncRead(ioc, cb)
		}
	})
}

// AsyncWrite adds n to the value without blocking the caller. cb runs on
// the IO's loop, or inline if the write completes immediately.
func (f *File) AsyncWrite(ioc *IO, n uint64, cb AsyncWriteCallback) {
	if f.closed.Load() {
		cb(efderrors.ErrClosed)
		return
	}

	err := f.efd.TryWrite(n)
	if err != efderrors.ErrWouldBlock {
		cb(err)
		return
	}

	f.schedule(ioc, WriteEvent, func(err error) {
		if err != nil {
			cb(err)
		} else {
			f.AsyncWrite(ioc, n, cb)
		}
	})
}

// schedule retries an operation on the IO loop once ev is ready. The
// readiness handler may run on any goroutine, so it only posts the retry.
//
// If the IO is closed by the time the edge fires, the operation completes
// with the Post error on the Notifier's dispatcher goroutine instead.
func (f *File) schedule(ioc *IO, ev EventType, retry Handler) {
	ioc.pending.Inc()

	ready, err := f.efd.Poll(ev, func(err error) {
		if perr := ioc.Post(func() {
			ioc.pending.Dec()
			retry(err)
		}); perr != nil {
			ioc.pending.Dec()
			if err == nil {
				err = perr
			}
			retry(err)
		}
	})
	if err != nil {
		ioc.pending.Dec()
		retry(err)
		return
	}

	if ready {
		// The value changed between the attempt and Poll.
		if perr := ioc.Post(func() {
			ioc.pending.Dec()
			retry(nil)
		}); perr != nil {
			ioc.pending.Dec()
			retry(perr)
		}
	}
}
