package eventfd

import (
	"math"

	"github.com/talostrading/eventfd/internal"
)

const (
	// MaxValue is the largest value an eventfd can hold.
	MaxValue uint64 = math.MaxUint64 - 1

	// Size is the number of bytes consumed by each Read and Write.
	Size = 8
)

// Creation flags accepted by OpenFlags.
const (
	FlagSemaphore = 1 << iota
	FlagNonblock
	FlagCloexec

	allFlags = FlagSemaphore | FlagNonblock | FlagCloexec
)

type EventType = internal.EventType

const (
	ReadEvent  = internal.ReadEvent
	WriteEvent = internal.WriteEvent
)

// Handler completes a readiness interest registered with Poll. err is
// non-nil if the eventfd was torn down before the event fired.
type Handler = internal.Handler

type AsyncReadCallback func(err error, value uint64)
type AsyncWriteCallback func(err error)

// Notifier connects an Eventfd to an external readiness registry, like a
// poll/kqueue implementation or an event loop.
//
// NotifyReadable, NotifyWritable and Abort are called while the Eventfd lock
// is held. Implementations must not block and must not call back into the
// Eventfd.
type Notifier interface {
	// NotifyReadable is called when the value goes from 0 to nonzero.
	NotifyReadable()

	// NotifyWritable is called after every successful read.
	NotifyWritable()

	// Register records a one-shot interest in ev. It is called by Poll,
	// under the Eventfd lock, after the readiness check failed.
	Register(ev EventType, h Handler)

	// Abort is called once, when teardown starts. Interests registered so
	// far must complete with err.
	Abort(err error)
}
