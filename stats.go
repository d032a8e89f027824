package eventfd

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/valyala/bytebufferpool"
	"go.uber.org/atomic"
)

const (
	// Blocked waits are recorded in microseconds, from 1us to 1 minute.
	minWaitUs = 1
	maxWaitUs = int64(time.Minute / time.Microsecond)
)

// Stats counts the operations performed on an Eventfd. All methods are safe
// to call on a nil *Stats, in which case they do nothing.
type Stats struct {
	reads, writes                atomic.Uint64
	wouldBlocks                  atomic.Uint64
	aborts, interrupts           atomic.Uint64
	readableEdges, writableEdges atomic.Uint64

	// lck guards waits.
	lck   sync.Mutex
	waits *hdrhistogram.Histogram
}

func NewStats() *Stats {
	return &Stats{
		waits: hdrhistogram.New(minWaitUs, maxWaitUs, 3),
	}
}

func (s *Stats) read() {
	if s != nil {
		s.reads.Inc()
	}
}

func (s *Stats) write() {
	if s != nil {
		s.writes.Inc()
	}
}

func (s *Stats) wouldBlock() {
	if s != nil {
		s.wouldBlocks.Inc()
	}
}

func (s *Stats) aborted() {
	if s != nil {
		s.aborts.Inc()
	}
}

func (s *Stats) interrupted() {
	if s != nil {
		s.interrupts.Inc()
	}
}

func (s *Stats) readableEdge() {
	if s != nil {
		s.readableEdges.Inc()
	}
}

func (s *Stats) writableEdge() {
	if s != nil {
		s.writableEdges.Inc()
	}
}

func (s *Stats) recordWait(d time.Duration) {
	if s == nil {
		return
	}

	us := d.Microseconds()
	if us < minWaitUs {
		us = minWaitUs
	} else if us > maxWaitUs {
		us = maxWaitUs
	}

	s.lck.Lock()
	_ = s.waits.RecordValue(us)
	s.lck.Unlock()
}

type StatsSnapshot struct {
	Reads         uint64
	Writes        uint64
	WouldBlock    uint64
	Aborted       uint64
	Interrupted   uint64
	ReadableEdges uint64
	WritableEdges uint64

	// Blocked wait latencies, in microseconds.
	Waits      int64
	WaitMin    int64
	WaitMean   float64
	WaitP50    int64
	WaitP99    int64
	WaitMax    int64
	WaitStdDev float64
}

func (s *Stats) Snapshot() StatsSnapshot {
	if s == nil {
		return StatsSnapshot{}
	}

	snap := StatsSnapshot{
		Reads:         s.reads.Load(),
		Writes:        s.writes.Load(),
		WouldBlock:    s.wouldBlocks.Load(),
		Aborted:       s.aborts.Load(),
		Interrupted:   s.interrupts.Load(),
		ReadableEdges: s.readableEdges.Load(),
		WritableEdges: s.writableEdges.Load(),
	}

	s.lck.Lock()
	defer s.lck.Unlock()

	if snap.Waits = s.waits.TotalCount(); snap.Waits > 0 {
		snap.WaitMin = s.waits.Min()
		snap.WaitMean = s.waits.Mean()
		snap.WaitP50 = s.waits.ValueAtQuantile(50)
		snap.WaitP99 = s.waits.ValueAtQuantile(99)
		snap.WaitMax = s.waits.Max()
		snap.WaitStdDev = s.waits.StdDev()
	}

	return snap
}

// Waits returns a copy of the blocked wait latency histogram.
func (s *Stats) Waits() *hdrhistogram.Histogram {
	if s == nil {
		return nil
	}

	s.lck.Lock()
	defer s.lck.Unlock()
	return hdrhistogram.Import(s.waits.Export())
}

// WriteTo writes a one-line-per-field report of the counters.
func (s *Stats) WriteTo(w io.Writer) (int64, error) {
	snap := s.Snapshot()

	b := bytebufferpool.Get()
	defer bytebufferpool.Put(b)

	fmt.Fprintf(b, "reads=%d writes=%d\n", snap.Reads, snap.Writes)
	fmt.Fprintf(b, "would_block=%d aborted=%d interrupted=%d\n",
		snap.WouldBlock, snap.Aborted, snap.Interrupted)
	fmt.Fprintf(b, "readable_edges=%d writable_edges=%d\n",
		snap.ReadableEdges, snap.WritableEdges)
	if snap.Waits > 0 {
		fmt.Fprintf(b,
			"waits=%d min/avg/p50/p99/max/stddev = %d/%.3f/%d/%d/%d/%.3f us\n",
			snap.Waits, snap.WaitMin, snap.WaitMean, snap.WaitP50,
			snap.WaitP99, snap.WaitMax, snap.WaitStdDev)
	} else {
		_, _ = b.WriteString("waits=0\n")
	}

	return b.WriteTo(w)
}
