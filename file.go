package eventfd

import (
	"context"
	"encoding/binary"
	"io"
	"os"
	"time"

	"go.uber.org/atomic"

	"github.com/talostrading/eventfd/efderrors"
	"github.com/talostrading/eventfd/efdopts"
)

var _ io.ReadWriteCloser = &File{}

// File is a handle to an Eventfd. Handles created with Dup share the
// Eventfd; the last handle to be closed tears it down.
//
// Read and Write transfer exactly Size bytes, holding the value in host
// byte order, like the eventfd(2) system call.
type File struct {
	efd  *Eventfd
	refs *atomic.Int64

	nonblock atomic.Bool
	cloexec  bool
	closed   atomic.Bool
}

// Open creates an Eventfd holding initval and returns the first handle to
// it.
func Open(initval uint64, opts ...efdopts.Option) (*File, error) {
	efd, err := New(initval, opts...)
	if err != nil {
		return nil, err
	}

	f := &File{
		efd:  efd,
		refs: atomic.NewInt64(1),
	}
	for _, opt := range opts {
		if opt.Type() == efdopts.TypeNonblocking {
			f.nonblock.Store(opt.Value().(bool))
		}
	}
	return f, nil
}

// OpenFlags is Open taking eventfd2(2) style flags. Unknown flags are
// rejected with ErrInvalidArgument.
func OpenFlags(initval uint64, flags int, opts ...efdopts.Option) (*File, error) {
	if flags&^allFlags != 0 {
		return nil, efderrors.ErrInvalidArgument
	}

	opts = append(opts,
		efdopts.Semaphore(flags&FlagSemaphore != 0),
		efdopts.Nonblocking(flags&FlagNonblock != 0),
	)
	f, err := Open(initval, opts...)
	if err != nil {
		return nil, err
	}
	f.cloexec = flags&FlagCloexec != 0
	return f, nil
}

// Read reads the value into b[:Size]. A b shorter than Size is rejected with
// ErrInvalidArgument.
func (f *File) Read(b []byte) (int, error) {
	if f.closed.Load() {
		return 0, efderrors.ErrClosed
	}
	if len(b) < Size {
		return 0, efderrors.ErrInvalidArgument
	}

	v, err := f.ReadValue(context.Background())
	if err != nil {
		return 0, err
	}
	binary.NativeEndian.PutUint64(b, v)
	return Size, nil
}

// Write adds the value held in b[:Size] to the Eventfd. A b shorter than
// Size, or a value above MaxValue, is rejected with ErrInvalidArgument.
func (f *File) Write(b []byte) (int, error) {
	if f.closed.Load() {
		return 0, efderrors.ErrClosed
	}
	if len(b) < Size {
		return 0, efderrors.ErrInvalidArgument
	}

	if err := f.WriteValue(context.Background(), binary.NativeEndian.Uint64(b)); err != nil {
		return 0, err
	}
	return Size, nil
}

// ReadValue reads the value, honoring the handle's blocking mode. ctx
// interrupts a blocked read.
func (f *File) ReadValue(ctx context.Context) (uint64, error) {
	if f.closed.Load() {
		return 0, efderrors.ErrClosed
	}
	if f.nonblock.Load() {
		return f.efd.TryRead()
	}
	return f.efd.Read(ctx)
}

// WriteValue adds n to the value, honoring the handle's blocking mode. ctx
// interrupts a blocked write.
func (f *File) WriteValue(ctx context.Context, n uint64) error {
	if f.closed.Load() {
		return efderrors.ErrClosed
	}
	if f.nonblock.Load() {
		return f.efd.TryWrite(n)
	}
	return f.efd.Write(ctx, n)
}

// Dup returns a new handle to the same Eventfd. The new handle starts with
// the blocking mode of f and can change it independently.
func (f *File) Dup() (*File, error) {
	for {
		if f.closed.Load() {
			return nil, efderrors.ErrClosed
		}

		// A count of 0 means the last handle was closed concurrently and the
		// Eventfd is being torn down.
		refs := f.refs.Load()
		if refs == 0 {
			return nil, efderrors.ErrClosed
		}
		if f.refs.CompareAndSwap(refs, refs+1) {
			break
		}
	}

	d := &File{
		efd:     f.efd,
		refs:    f.refs,
		cloexec: f.cloexec,
	}
	d.nonblock.Store(f.nonblock.Load())
	return d, nil
}

// Close releases the handle. Closing the last handle tears the Eventfd down:
// blocked callers on other handles return ErrAborted and Close waits for
// them to leave.
func (f *File) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return efderrors.ErrClosed
	}

	if f.refs.Dec() == 0 {
		return f.efd.Close()
	}
	return nil
}

func (f *File) Closed() bool {
	return f.closed.Load()
}

// SetNonblock sets the blocking mode of this handle (FIONBIO).
func (f *File) SetNonblock(v bool) {
	f.nonblock.Store(v)
}

func (f *File) Nonblocking() bool {
	return f.nonblock.Load()
}

func (f *File) CloseOnExec() bool {
	return f.cloexec
}

func (f *File) Semaphore() bool {
	return f.efd.Semaphore()
}

// Nread returns the number of bytes a read would return right now
// (FIONREAD): Size if the value is nonzero, 0 otherwise.
func (f *File) Nread() int {
	if f.efd.Readable() {
		return Size
	}
	return 0
}

// Nwrite always returns 0 (FIONWRITE): nothing is ever queued for writing.
func (f *File) Nwrite() int {
	return 0
}

// Nspace always returns 0 (FIONSPACE). Whether a write fits depends on the
// value being written, so there is no meaningful byte count.
func (f *File) Nspace() int {
	return 0
}

func (f *File) Readable() bool {
	return f.efd.Readable()
}

func (f *File) Writable() bool {
	return f.efd.Writable()
}

// Poll is Eventfd.Poll. It returns ErrClosed on a closed handle.
func (f *File) Poll(ev EventType, h Handler) (bool, error) {
	if f.closed.Load() {
		return false, efderrors.ErrClosed
	}
	return f.efd.Poll(ev, h)
}

// Eventfd returns the object shared by f and its duplicates.
func (f *File) Eventfd() *Eventfd {
	return f.efd
}

// Stat describes an Eventfd the way fstat(2) would.
type Stat struct {
	Mode os.FileMode
	Size int64

	Birth time.Time
	Atime time.Time // last read
	Mtime time.Time // last write
	Ctime time.Time // last status change
}

func (f *File) Stat() (Stat, error) {
	if f.closed.Load() {
		return Stat{}, efderrors.ErrClosed
	}
	return f.efd.Stat(), nil
}

func (e *Eventfd) Stat() Stat {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Stat{
		Mode:  os.ModeNamedPipe | 0o600,
		Birth: e.btime,
		Atime: e.atime,
		Mtime: e.mtime,
		Ctime: e.ctime,
	}
}
