//go:build darwin || netbsd || freebsd || openbsd || dragonfly || linux

package internal

import (
	"sync"

	"github.com/eapache/queue"
	"go.uber.org/atomic"

	"github.com/talostrading/eventfd/efderrors"
)

// posted holds the handlers scheduled with Poller.Post. Adding a handler
// entails waking the Poller through its Waker.
type posted struct {
	// lck synchronizes access to handlers, as multiple goroutines can call
	// Post at the same time.
	lck      sync.Mutex
	handlers *queue.Queue

	// scratch is only touched by the polling goroutine.
	scratch []func()

	n atomic.Int64
}

func newPosted() *posted {
	return &posted{
		handlers: queue.New(),
		scratch:  make([]func(), 0, 32),
	}
}

func (p *posted) add(closed *atomic.Bool, waker Waker, handler func()) error {
	if closed.Load() {
		return efderrors.ErrClosed
	}

	p.lck.Lock()
	p.handlers.Add(handler)
	p.n.Inc()
	p.lck.Unlock()

	return waker.Wake()
}

// dispatch runs the handlers posted so far. Handlers run without holding lck
// so they can Post again.
func (p *posted) dispatch(waker Waker) int {
	waker.Drain()

	p.lck.Lock()
	for p.handlers.Length() > 0 {
		p.scratch = append(p.scratch, p.handlers.Remove().(func()))
	}
	p.lck.Unlock()

	n := len(p.scratch)
	for i, handler := range p.scratch {
		p.scratch[i] = nil
		p.n.Dec()
		handler()
	}
	p.scratch = p.scratch[:0]

	return n
}

func (p *posted) len() int {
	return int(p.n.Load())
}
