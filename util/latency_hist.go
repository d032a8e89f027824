package util

import (
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

type LatencyHistOpts struct {
	Name string

	// Every is the number of samples after which a report is written and
	// the histogram is reset. 0 means reports are only written by Flush.
	Every int64

	// MinPct hides buckets holding less than this percentage of samples.
	MinPct float64

	// Max is the largest recordable latency. Longer samples are clamped.
	Max time.Duration

	Writer io.Writer
}

// LatencyHist records latencies in microseconds and periodically writes a
// percentile summary and a bar chart of the distribution.
type LatencyHist struct {
	opts LatencyHistOpts

	hdr      *hdrhistogram.Histogram
	maxUs    int64
	reported int
}

func NewLatencyHist(opts LatencyHistOpts) *LatencyHist {
	if opts.Max <= 0 {
		opts.Max = time.Second
	}
	maxUs := opts.Max.Microseconds()
	return &LatencyHist{
		opts:  opts,
		hdr:   hdrhistogram.New(1, maxUs, 3),
		maxUs: maxUs,
	}
}

func (h *LatencyHist) Record(ds ...time.Duration) {
	for _, d := range ds {
		us := d.Microseconds()
		if us < 1 {
			us = 1
		} else if us > h.maxUs {
			us = h.maxUs
		}
		_ = h.hdr.RecordValue(us)
	}

	if h.opts.Every > 0 && h.hdr.TotalCount() >= h.opts.Every {
		h.Flush()
	}
}

func (h *LatencyHist) Count() int64 {
	return h.hdr.TotalCount()
}

func (h *LatencyHist) Reported() int {
	return h.reported
}

// Flush writes a report of the samples recorded so far and resets the
// histogram. It does nothing if no sample was recorded.
func (h *LatencyHist) Flush() {
	if h.hdr.TotalCount() == 0 {
		return
	}
	h.reported++
	h.report()
	h.hdr.Reset()
}

func (h *LatencyHist) report() {
	w := h.opts.Writer
	if w == nil {
		return
	}

	total := h.hdr.TotalCount()

	fmt.Fprintf(w, "%v latency report=%d name=%s samples=%d\n",
		time.Now().Format("2006-01-02 15:04:05"), h.reported, h.opts.Name, total)
	fmt.Fprintf(w, "min/avg/max/stddev = %d/%.3f/%d/%.3f us\n",
		h.hdr.Min(), h.hdr.Mean(), h.hdr.Max(), h.hdr.StdDev())
	for _, q := range []float64{50, 90, 99, 99.9} {
		fmt.Fprintf(w, "p%g=%d us\n", q, h.hdr.ValueAtQuantile(q))
	}

	var maxCount int64
	for _, bin := range h.hdr.Distribution() {
		if bin.Count > maxCount {
			maxCount = bin.Count
		}
	}

	tw := tabwriter.NewWriter(w, 2, 2, 2, ' ', 0)
	for _, bin := range h.hdr.Distribution() {
		pct := float64(bin.Count) * 100.0 / float64(total)
		if bin.Count == 0 || pct < h.opts.MinPct {
			continue
		}

		bar := int(math.Ceil(float64(bin.Count) * 10 / float64(maxCount)))
		fmt.Fprintf(tw, "%d-%d us\t%.3g%%\t%s\t%d\n",
			bin.From, bin.To, pct, strings.Repeat("|", bar), bin.Count)
	}
	_ = tw.Flush()
}
