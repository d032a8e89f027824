package eventfd

import (
	"context"
	"encoding/binary"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talostrading/eventfd/efderrors"
	"github.com/talostrading/eventfd/efdopts"
)

func encode(v uint64) []byte {
	b := make([]byte, Size)
	binary.NativeEndian.PutUint64(b, v)
	return b
}

func TestFileReadWrite(t *testing.T) {
	assert := assert.New(t)

	f, err := Open(0)
	require.NoError(t, err)
	defer f.Close()

	n, err := f.Write(encode(5))
	assert.NoError(err)
	assert.Equal(Size, n)

	b := make([]byte, 16)
	n, err = f.Read(b)
	assert.NoError(err)
	assert.Equal(Size, n)
	assert.Equal(uint64(5), binary.NativeEndian.Uint64(b))
}

func TestFileShortBuffer(t *testing.T) {
	assert := assert.New(t)

	f, err := Open(3)
	require.NoError(t, err)
	defer f.Close()

	n, err := f.Read(make([]byte, Size-1))
	assert.ErrorIs(err, efderrors.ErrInvalidArgument)
	assert.Equal(0, n)

	n, err = f.Write(make([]byte, 4))
	assert.ErrorIs(err, efderrors.ErrInvalidArgument)
	assert.Equal(0, n)

	assert.Equal(uint64(3), f.Eventfd().Value())
}

func TestFileWriteTooLarge(t *testing.T) {
	f, err := Open(0)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write(encode(MaxValue + 1))
	assert.ErrorIs(t, err, efderrors.ErrInvalidArgument)
	assert.Equal(t, uint64(0), f.Eventfd().Value())
}

func TestOpenFlags(t *testing.T) {
	assert := assert.New(t)

	f, err := OpenFlags(2, FlagSemaphore|FlagNonblock|FlagCloexec)
	require.NoError(t, err)
	defer f.Close()

	assert.True(f.Semaphore())
	assert.True(f.Nonblocking())
	assert.True(f.CloseOnExec())

	for i := 0; i < 2; i++ {
		v, err := f.ReadValue(context.Background())
		assert.NoError(err)
		assert.Equal(uint64(1), v)
	}
	_, err = f.ReadValue(context.Background())
	assert.ErrorIs(err, efderrors.ErrWouldBlock)

	_, err = OpenFlags(0, 1<<7)
	assert.ErrorIs(err, efderrors.ErrInvalidArgument)

	_, err = OpenFlags(MaxValue+1, 0)
	assert.ErrorIs(err, efderrors.ErrInvalidArgument)
}

func TestFileNonblockingOption(t *testing.T) {
	f, err := Open(0, efdopts.Nonblocking(true))
	require.NoError(t, err)
	defer f.Close()

	assert.True(t, f.Nonblocking())
	_, err = f.Read(make([]byte, Size))
	assert.ErrorIs(t, err, efderrors.ErrWouldBlock)

	f.SetNonblock(false)
	assert.False(t, f.Nonblocking())
}

func TestFileDup(t *testing.T) {
	assert := assert.New(t)

	f, err := Open(0)
	require.NoError(t, err)

	d, err := f.Dup()
	require.NoError(t, err)
	assert.Same(f.Eventfd(), d.Eventfd())

	// Blocking mode is per handle.
	d.SetNonblock(true)
	assert.False(f.Nonblocking())

	require.NoError(t, f.WriteValue(context.Background(), 9))
	v, err := d.ReadValue(context.Background())
	assert.NoError(err)
	assert.Equal(uint64(9), v)

	assert.NoError(f.Close())
	assert.True(f.Closed())
	assert.False(f.Eventfd().Closing())

	_, err = f.Read(make([]byte, Size))
	assert.ErrorIs(err, efderrors.ErrClosed)
	_, err = f.Dup()
	assert.ErrorIs(err, efderrors.ErrClosed)
	assert.ErrorIs(f.Close(), efderrors.ErrClosed)

	// The last handle tears the eventfd down.
	assert.NoError(d.Close())
	assert.True(d.Eventfd().Closed())
}

func TestFileCloseLastHandleAbortsReader(t *testing.T) {
	f, err := Open(0)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := f.Read(make([]byte, Size))
		done <- err
	}()
	waitWaiters(t, f.Eventfd(), 1)

	// Close returns once the reader blocked on this same handle has left.
	require.NoError(t, f.Close())
	assert.Equal(t, int64(0), f.Eventfd().Waiters())
	assert.True(t, f.Eventfd().Closed())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, efderrors.ErrAborted)
	case <-time.After(5 * time.Second):
		t.Fatal("reader left asleep")
	}
}

func TestFileBeginCloseAbortsHandles(t *testing.T) {
	f, err := Open(0)
	require.NoError(t, err)

	d, err := f.Dup()
	require.NoError(t, err)
	require.NoError(t, d.Close())

	done := make(chan error, 1)
	go func() {
		_, err := f.Read(make([]byte, Size))
		done <- err
	}()
	waitWaiters(t, f.Eventfd(), 1)

	// Teardown reaches readers blocked on other handles.
	f.Eventfd().BeginClose()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, efderrors.ErrAborted)
	case <-time.After(5 * time.Second):
		t.Fatal("reader left asleep")
	}
	assert.NoError(t, f.Close())
	assert.True(t, f.Eventfd().Closed())
}

func TestFileDupAfterTeardown(t *testing.T) {
	f, err := Open(0)
	require.NoError(t, err)

	// The count reaches 0 when the last handle is closed concurrently,
	// before f sees its own closed flag.
	f.refs.Dec()

	d, err := f.Dup()
	assert.ErrorIs(t, err, efderrors.ErrClosed)
	assert.Nil(t, d)
	assert.Equal(t, int64(0), f.refs.Load())
}

func TestFileDupCloseRace(t *testing.T) {
	for i := 0; i < 1000; i++ {
		f, err := Open(0)
		require.NoError(t, err)

		closed := make(chan error, 1)
		go func() {
			closed <- f.Close()
		}()

		if d, err := f.Dup(); err == nil {
			// d holds a reference, so the close above cannot tear down.
			assert.False(t, d.Eventfd().Closing())
			require.NoError(t, <-closed)
			assert.False(t, d.Eventfd().Closing())
			require.NoError(t, d.Close())
		} else {
			assert.ErrorIs(t, err, efderrors.ErrClosed)
			require.NoError(t, <-closed)
		}
		assert.True(t, f.Eventfd().Closed())
	}
}

func TestFileNreadNwrite(t *testing.T) {
	assert := assert.New(t)

	f, err := Open(0)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(0, f.Nread())
	assert.False(f.Readable())
	assert.True(f.Writable())

	require.NoError(t, f.WriteValue(context.Background(), 1))
	assert.Equal(Size, f.Nread())
	assert.True(f.Readable())

	assert.Equal(0, f.Nwrite())
	assert.Equal(0, f.Nspace())
}

func TestFileStat(t *testing.T) {
	assert := assert.New(t)

	f, err := Open(0)
	require.NoError(t, err)

	st, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(os.ModeNamedPipe, st.Mode.Type())
	assert.Equal(int64(0), st.Size)
	assert.Equal(st.Birth, st.Atime)
	assert.Equal(st.Birth, st.Mtime)

	require.NoError(t, f.WriteValue(context.Background(), 1))
	st2, err := f.Stat()
	require.NoError(t, err)
	assert.False(st2.Mtime.Before(st.Mtime))
	assert.Equal(st.Atime, st2.Atime)

	_, err = f.ReadValue(context.Background())
	require.NoError(t, err)
	st3, err := f.Stat()
	require.NoError(t, err)
	assert.False(st3.Atime.Before(st2.Atime))

	require.NoError(t, f.Close())
	_, err = f.Stat()
	assert.ErrorIs(err, efderrors.ErrClosed)
}

func TestFilePoll(t *testing.T) {
	assert := assert.New(t)

	f, err := Open(0)
	require.NoError(t, err)

	fired := make(chan error, 1)
	ready, err := f.Poll(ReadEvent, func(err error) { fired <- err })
	assert.NoError(err)
	assert.False(ready)

	require.NoError(t, f.WriteValue(context.Background(), 1))
	select {
	case err := <-fired:
		assert.NoError(err)
	case <-time.After(5 * time.Second):
		t.Fatal("read interest not completed")
	}

	ready, err = f.Poll(ReadEvent, func(error) { t.Error("ready poll registered a handler") })
	assert.NoError(err)
	assert.True(ready)

	ready, err = f.Poll(EventType(42), func(error) {})
	assert.ErrorIs(err, efderrors.ErrInvalidArgument)
	assert.False(ready)

	require.NoError(t, f.Close())
	_, err = f.Poll(ReadEvent, func(error) {})
	assert.ErrorIs(err, efderrors.ErrClosed)
}

// A producer writes to the eventfd and a consumer drains it through a
// non-blocking duplicate, then the producer's handle is closed.
func TestFileProducerConsumer(t *testing.T) {
	assert := assert.New(t)

	producer, err := Open(0)
	require.NoError(t, err)

	consumer, err := producer.Dup()
	require.NoError(t, err)
	consumer.SetNonblock(true)

	var total uint64
	for i := uint64(1); i <= 10; i++ {
		_, err := producer.Write(encode(i))
		require.NoError(t, err)

		if i%3 == 0 {
			b := make([]byte, Size)
			_, err := consumer.Read(b)
			require.NoError(t, err)
			total += binary.NativeEndian.Uint64(b)
		}
	}

	b := make([]byte, Size)
	_, err = consumer.Read(b)
	require.NoError(t, err)
	total += binary.NativeEndian.Uint64(b)
	assert.Equal(uint64(55), total)

	_, err = consumer.Read(b)
	assert.ErrorIs(err, efderrors.ErrWouldBlock)

	require.NoError(t, producer.Close())
	assert.False(consumer.Eventfd().Closing())
	require.NoError(t, consumer.Close())
	assert.True(consumer.Eventfd().Closed())
}
