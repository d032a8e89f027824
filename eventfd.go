package eventfd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/joeycumines/logiface"

	"github.com/talostrading/eventfd/efderrors"
	"github.com/talostrading/eventfd/efdopts"
	"github.com/talostrading/eventfd/internal/selinfo"
)

type state uint8

const (
	stateOpen state = iota
	stateClosing
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateClosing:
		return "closing"
	case stateClosed:
		return "closed"
	default:
		return "state_unknown"
	}
}

// Eventfd is a 64-bit counter which readers drain and writers add to.
//
// Reads block while the value is 0. Writes block while adding to the value
// would exceed MaxValue. In semaphore mode each read takes 1 from the value,
// otherwise it takes the whole value.
//
// Eventfd is safe for concurrent use. Most callers want a File, see Open.
type Eventfd struct {
	mu sync.Mutex

	// readable is signalled when value leaves 0, writable when value
	// decreases, drained when the last waiter leaves during teardown.
	readable, writable, drained sync.Cond

	value     uint64
	semaphore bool

	// waiters is the number of goroutines blocked in Read or Write.
	waiters                   int64
	readWaiters, writeWaiters bool

	state state

	btime, atime, mtime, ctime time.Time

	notifier Notifier
	stats    *Stats
	log      *logiface.Logger[logiface.Event]
}

// New creates an Eventfd holding initval. The Nonblocking option is ignored
// here since blocking is a property of the handle, see Open.
func New(initval uint64, opts ...efdopts.Option) (*Eventfd, error) {
	if initval > MaxValue {
		return nil, efderrors.ErrInvalidArgument
	}

	now := time.Now()
	e := &Eventfd{
		value: initval,
		btime: now,
		atime: now,
		mtime: now,
		ctime: now,
	}
	e.readable.L = &e.mu
	e.writable.L = &e.mu
	e.drained.L = &e.mu

	for _, opt := range opts {
		switch opt.Type() {
		case efdopts.TypeSemaphore:
			e.semaphore = opt.Value().(bool)
		case efdopts.TypeNotifier:
			if v := opt.Value(); v != nil {
				n, ok := v.(Notifier)
				if !ok {
					return nil, fmt.Errorf(
						"%w: %T is not a Notifier", efderrors.ErrInvalidArgument, v)
				}
				e.notifier = n
			}
		case efdopts.TypeLogger:
			e.log = opt.Value().(*logiface.Logger[logiface.Event])
		case efdopts.TypeStats:
			if opt.Value().(bool) {
				e.stats = NewStats()
			}
		}
	}

	if e.notifier == nil {
		e.notifier = selinfo.New(selinfo.Go)
	}

	return e, nil
}

// Read blocks until the value is nonzero, then consumes it. It returns
// ErrAborted if the Eventfd is torn down and ErrInterrupted if ctx is done
// while waiting.
func (e *Eventfd) Read(ctx context.Context) (uint64, error) {
	return e.read(ctx, false)
}

// TryRead is Read on a non-blocking handle: it returns ErrWouldBlock instead
// of waiting.
func (e *Eventfd) TryRead() (uint64, error) {
	return e.read(context.Background(), true)
}

// Write blocks until n can be added to the value without exceeding
// MaxValue, then adds it. Writes are never partial.
func (e *Eventfd) Write(ctx context.Context, n uint64) error {
	return e.write(ctx, n, false)
}

// TryWrite is Write on a non-blocking handle: it returns ErrWouldBlock
// instead of waiting.
func (e *Eventfd) TryWrite(n uint64) error {
	return e.write(context.Background(), n, true)
}

func (e *Eventfd) read(ctx context.Context, nonblock bool) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateOpen {
		return 0, e.aborted("read")
	}

	for e.value == 0 {
		if nonblock {
			e.stats.wouldBlock()
			return 0, efderrors.ErrWouldBlock
		}
		e.readWaiters = true
		if err := e.wait(ctx, &e.readable, "read"); err != nil {
			return 0, err
		}
	}

	var v uint64
	if e.semaphore {
		v = 1
		e.value--
	} else {
		v = e.value
		e.value = 0
	}
	e.atime = time.Now()
	e.stats.read()

	if e.writeWaiters {
		e.writeWaiters = false
		e.writable.Broadcast()
	}
	e.stats.writableEdge()
	e.notifier.NotifyWritable()

	return v, nil
}

func (e *Eventfd) write(ctx context.Context, n uint64, nonblock bool) error {
	if n > MaxValue {
		return efderrors.ErrInvalidArgument
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateOpen {
		return e.aborted("write")
	}

	for MaxValue-e.value < n {
		if nonblock {
			e.stats.wouldBlock()
			return efderrors.ErrWouldBlock
		}
		e.writeWaiters = true
		if err := e.wait(ctx, &e.writable, "write"); err != nil {
			return err
		}
	}

	wasZero := e.value == 0
	e.value += n
	e.mtime = time.Now()
	e.stats.write()

	if e.value == 0 {
		return nil
	}

	if e.readWaiters {
		e.readWaiters = false
		e.readable.Broadcast()
	}
	if wasZero {
		e.stats.readableEdge()
		e.notifier.NotifyReadable()
	}

	return nil
}

// wait sleeps on c. It must be called with mu held and returns with mu held.
//
// Teardown takes priority: a waiter woken while the Eventfd is closing
// returns ErrAborted even if the condition it waited for now holds.
func (e *Eventfd) wait(ctx context.Context, c *sync.Cond, op string) error {
	if err := ctx.Err(); err != nil {
		e.stats.interrupted()
		return interrupted(err)
	}

	e.waiters++

	stop := context.AfterFunc(ctx, func() {
		e.mu.Lock()
		c.Broadcast()
		e.mu.Unlock()
	})

	start := time.Now()
	c.Wait()
	stop()

	e.waiters--
	e.stats.recordWait(time.Since(start))

	if e.state != stateOpen {
		if e.waiters == 0 {
			e.drained.Broadcast()
		}
		return e.aborted(op)
	}

	if err := ctx.Err(); err != nil {
		e.stats.interrupted()
		return interrupted(err)
	}

	return nil
}

func (e *Eventfd) aborted(op string) error {
	e.stats.aborted()
	e.log.Debug().
		Str("op", op).
		Str("state", e.state.String()).
		Int64("waiters", e.waiters).
		Log("eventfd operation aborted")
	return efderrors.ErrAborted
}

func interrupted(err error) error {
	return fmt.Errorf("%w: %w", efderrors.ErrInterrupted, err)
}

// Readable reports whether a read would complete without blocking.
func (e *Eventfd) Readable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value != 0
}

// Writable reports whether a write of 1 would complete without blocking.
func (e *Eventfd) Writable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value < MaxValue
}

// Poll reports whether ev is ready. If it is not, h is registered with the
// Notifier before the lock is released, so no edge between the check and
// the registration is lost. h is not called if Poll returns true.
func (e *Eventfd) Poll(ev EventType, h Handler) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateOpen {
		return false, efderrors.ErrAborted
	}

	var ready bool
	switch ev {
	case ReadEvent:
		ready = e.value != 0
	case WriteEvent:
		ready = e.value < MaxValue
	default:
		return false, efderrors.ErrInvalidArgument
	}

	if !ready {
		e.notifier.Register(ev, h)
	}
	return ready, nil
}

// BeginClose starts the teardown. Blocked and future reads and writes fail
// with ErrAborted. It does not wait for blocked callers to leave, see Close.
func (e *Eventfd) BeginClose() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.beginClose()
}

func (e *Eventfd) beginClose() {
	if e.state != stateOpen {
		return
	}

	e.state = stateClosing
	e.ctime = time.Now()

	e.log.Info().
		Int64("waiters", e.waiters).
		Bool("semaphore", e.semaphore).
		Uint64("value", e.value).
		Log("eventfd teardown")

	if e.waiters == 0 {
		e.state = stateClosed
	} else {
		if e.readWaiters {
			e.readWaiters = false
			e.readable.Broadcast()
		}
		if e.writeWaiters {
			e.writeWaiters = false
			e.writable.Broadcast()
		}
	}

	e.notifier.Abort(efderrors.ErrAborted)
}

// Close tears the Eventfd down and waits until every blocked caller has
// returned. It is idempotent.
func (e *Eventfd) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.beginClose()
	for e.waiters > 0 {
		e.drained.Wait()
	}
	e.state = stateClosed

	return nil
}

// Closing reports whether teardown has started.
func (e *Eventfd) Closing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state != stateOpen
}

// Closed reports whether teardown has completed.
func (e *Eventfd) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == stateClosed
}

// Waiters returns the number of goroutines blocked in Read or Write.
func (e *Eventfd) Waiters() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.waiters
}

// Value returns the current counter value.
func (e *Eventfd) Value() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

func (e *Eventfd) Semaphore() bool {
	return e.semaphore
}

// Stats returns nil unless the Eventfd was created with efdopts.Stats(true).
func (e *Eventfd) Stats() *Stats {
	return e.stats
}

// Notifier returns the readiness registry the Eventfd reports to.
func (e *Eventfd) Notifier() Notifier {
	return e.notifier
}
