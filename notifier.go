package eventfd

import (
	"sync"

	"github.com/talostrading/eventfd/internal/selinfo"
)

var (
	_ Notifier = &selinfo.SelInfo{}
	_ Notifier = &ChanNotifier{}
)

// NewSelInfo returns the default readiness registry. Handlers completed by
// it run on goroutines created by dispatch, or on new goroutines if dispatch
// is nil.
func NewSelInfo(dispatch func(func())) *selinfo.SelInfo {
	return selinfo.New(dispatch)
}

// ChanNotifier reports readiness edges on channels. Edges coalesce: a send
// is dropped if the previous edge has not been received yet.
//
// Interests registered through Poll are kept in a SelInfo.
type ChanNotifier struct {
	Readable chan struct{}
	Writable chan struct{}

	// Aborted is closed when the first eventfd reporting to n is torn down.
	Aborted chan struct{}

	sel   *selinfo.SelInfo
	abort sync.Once
}

func NewChanNotifier() *ChanNotifier {
	return &ChanNotifier{
		Readable: make(chan struct{}, 1),
		Writable: make(chan struct{}, 1),
		Aborted:  make(chan struct{}),
		sel:      selinfo.New(selinfo.Go),
	}
}

func (n *ChanNotifier) NotifyReadable() {
	select {
	case n.Readable <- struct{}{}:
	default:
	}
	n.sel.NotifyReadable()
}

func (n *ChanNotifier) NotifyWritable() {
	select {
	case n.Writable <- struct{}{}:
	default:
	}
	n.sel.NotifyWritable()
}

func (n *ChanNotifier) Register(ev EventType, h Handler) {
	n.sel.Record(ev, h)
}

func (n *ChanNotifier) Abort(err error) {
	n.abort.Do(func() { close(n.Aborted) })
	n.sel.Abort(err)
}
