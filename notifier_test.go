package eventfd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talostrading/eventfd/efderrors"
	"github.com/talostrading/eventfd/efdopts"
)

func TestReadableEdgeOnlyFromZero(t *testing.T) {
	assert := assert.New(t)

	sel := NewSelInfo(inline)
	efd, err := New(0, efdopts.Notifier(sel))
	require.NoError(t, err)

	require.NoError(t, efd.Write(context.Background(), 1))
	require.NoError(t, efd.Write(context.Background(), 1))
	assert.Equal(uint64(1), sel.Notified(ReadEvent))

	_, err = efd.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(uint64(1), sel.Notified(WriteEvent))

	require.NoError(t, efd.Write(context.Background(), 4))
	assert.Equal(uint64(2), sel.Notified(ReadEvent))
}

func TestWritableEdgeEveryRead(t *testing.T) {
	sel := NewSelInfo(inline)
	efd, err := New(3, efdopts.Semaphore(true), efdopts.Notifier(sel))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := efd.Read(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(3), sel.Notified(WriteEvent))
	assert.Equal(t, uint64(0), sel.Notified(ReadEvent))
}

func TestPollRegistersOnce(t *testing.T) {
	assert := assert.New(t)

	sel := NewSelInfo(inline)
	efd, err := New(0, efdopts.Notifier(sel))
	require.NoError(t, err)

	calls := 0
	ready, err := efd.Poll(ReadEvent, func(err error) {
		assert.NoError(err)
		calls++
	})
	require.NoError(t, err)
	assert.False(ready)
	assert.Equal(1, sel.Recorded(ReadEvent))

	require.NoError(t, efd.Write(context.Background(), 1))
	assert.Equal(1, calls)
	assert.Equal(0, sel.Recorded(ReadEvent))

	_, err = efd.Read(context.Background())
	require.NoError(t, err)
	require.NoError(t, efd.Write(context.Background(), 1))
	assert.Equal(1, calls)
}

func TestPollAbortedOnTeardown(t *testing.T) {
	sel := NewSelInfo(inline)
	efd, err := New(MaxValue, efdopts.Notifier(sel))
	require.NoError(t, err)

	var got error
	ready, err := efd.Poll(WriteEvent, func(err error) { got = err })
	require.NoError(t, err)
	assert.False(t, ready)

	require.NoError(t, efd.Close())
	assert.ErrorIs(t, got, efderrors.ErrAborted)

	// Interests registered after teardown are not accepted.
	_, err = efd.Poll(WriteEvent, func(error) {})
	assert.ErrorIs(t, err, efderrors.ErrAborted)
}

func TestChanNotifier(t *testing.T) {
	assert := assert.New(t)

	n := NewChanNotifier()
	efd, err := New(0, efdopts.Notifier(n))
	require.NoError(t, err)
	assert.Same(n, efd.Notifier())

	require.NoError(t, efd.Write(context.Background(), 1))
	require.NoError(t, efd.Write(context.Background(), 1))

	select {
	case <-n.Readable:
	default:
		t.Fatal("readable edge not reported")
	}
	select {
	case <-n.Readable:
		t.Fatal("second write is not an edge")
	default:
	}

	_, err = efd.Read(context.Background())
	require.NoError(t, err)
	select {
	case <-n.Writable:
	default:
		t.Fatal("writable edge not reported")
	}

	fired := make(chan error, 1)
	ready, err := efd.Poll(ReadEvent, func(err error) { fired <- err })
	require.NoError(t, err)
	assert.False(ready)

	require.NoError(t, efd.Close())
	select {
	case <-n.Aborted:
	default:
		t.Fatal("teardown not reported")
	}
	select {
	case err := <-fired:
		assert.ErrorIs(err, efderrors.ErrAborted)
	case <-time.After(5 * time.Second):
		t.Fatal("read interest not aborted")
	}
}

func TestChanNotifierShared(t *testing.T) {
	n := NewChanNotifier()

	a, err := New(0, efdopts.Notifier(n))
	require.NoError(t, err)
	b, err := New(0, efdopts.Notifier(n))
	require.NoError(t, err)

	require.NoError(t, a.Close())
	assert.NotPanics(t, func() {
		require.NoError(t, b.Close())
	})

	select {
	case <-n.Aborted:
	default:
		t.Fatal("teardown not reported")
	}
}
