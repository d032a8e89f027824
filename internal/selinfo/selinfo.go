// Package selinfo records interest in readiness events and completes it when
// the owning object reports a readiness edge.
//
// Notify, NotifyReadable, NotifyWritable and Abort are called by the owner
// while it holds its own lock. SelInfo never calls back into the owner:
// recorded handlers are handed to a dispatcher, which must not block.
package selinfo

import (
	"sync"

	"github.com/eapache/queue"
	"go.uber.org/atomic"

	"github.com/talostrading/eventfd/internal"
)

// Dispatcher runs fn, typically on another goroutine.
type Dispatcher func(fn func())

// Go runs every handler on its own goroutine.
func Go(fn func()) {
	go fn()
}

type SelInfo struct {
	dispatch Dispatcher

	lck     sync.Mutex
	records [internal.MaxEvent]*queue.Queue
	aborted error

	notified [internal.MaxEvent]atomic.Uint64
}

// New returns a SelInfo which hands handlers to dispatch. A nil dispatch
// defaults to Go.
func New(dispatch Dispatcher) *SelInfo {
	if dispatch == nil {
		dispatch = Go
	}
	s := &SelInfo{dispatch: dispatch}
	for i := range s.records {
		s.records[i] = queue.New()
	}
	return s
}

// Record registers a one-shot interest in ev. If the SelInfo has been
// aborted, h is dispatched right away with the abort error.
func (s *SelInfo) Record(ev internal.EventType, h internal.Handler) {
	s.lck.Lock()
	err := s.aborted
	if err == nil {
		s.records[ev].Add(h)
	}
	s.lck.Unlock()

	if err != nil {
		s.dispatch(func() { h(err) })
	}
}

// Register is Record. It lets SelInfo serve as the eventfd Notifier.
func (s *SelInfo) Register(ev internal.EventType, h internal.Handler) {
	s.Record(ev, h)
}

// Notify dispatches every handler recorded for ev and forgets them.
func (s *SelInfo) Notify(ev internal.EventType) {
	s.notified[ev].Inc()
	for _, h := range s.take(ev) {
		h := h
		s.dispatch(func() { h(nil) })
	}
}

func (s *SelInfo) NotifyReadable() {
	s.Notify(internal.ReadEvent)
}

func (s *SelInfo) NotifyWritable() {
	s.Notify(internal.WriteEvent)
}

// Abort completes every recorded handler with err. Handlers recorded after
// Abort complete immediately with err.
func (s *SelInfo) Abort(err error) {
	s.lck.Lock()
	if s.aborted == nil {
		s.aborted = err
	}
	s.lck.Unlock()

	for ev := internal.EventType(0); ev < internal.MaxEvent; ev++ {
		for _, h := range s.take(ev) {
			h := h
			s.dispatch(func() { h(err) })
		}
	}
}

// Notified returns the number of edges reported for ev.
func (s *SelInfo) Notified(ev internal.EventType) uint64 {
	return s.notified[ev].Load()
}

// Recorded returns the number of handlers waiting for ev.
func (s *SelInfo) Recorded(ev internal.EventType) int {
	s.lck.Lock()
	defer s.lck.Unlock()
	return s.records[ev].Length()
}

func (s *SelInfo) take(ev internal.EventType) []internal.Handler {
	s.lck.Lock()
	defer s.lck.Unlock()

	q := s.records[ev]
	if q.Length() == 0 {
		return nil
	}
	hs := make([]internal.Handler, 0, q.Length())
	for q.Length() > 0 {
		hs = append(hs, q.Remove().(internal.Handler))
	}
	return hs
}
