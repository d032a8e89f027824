package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	"github.com/felixge/fgprof"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"golang.org/x/sync/errgroup"

	"github.com/talostrading/eventfd"
	"github.com/talostrading/eventfd/efderrors"
	"github.com/talostrading/eventfd/efdopts"
	"github.com/talostrading/eventfd/util"
)

// Exercises an eventfd in one of three modes:
//   - pingpong: two goroutines bounce a value over two eventfds, the round
//     trip latency is reported.
//   - throughput: producers and consumers share one eventfd.
//   - async: a single goroutine drives the reads through an IO loop while
//     another one writes.

// example: go run main.go -mode throughput -producers 4 -consumers 2 -n 1000000 -stats

var (
	mode      = flag.String("mode", "pingpong", "one of pingpong, throughput, async")
	n         = flag.Int("n", 100000, "number of writes per producer")
	producers = flag.Int("producers", 1, "number of writing goroutines in throughput mode")
	consumers = flag.Int("consumers", 1, "number of reading goroutines in throughput mode")
	semaphore = flag.Bool("semaphore", false, "if true, reads take 1 from the value instead of draining it")
	every     = flag.Int64("every", 0, "report latencies every this many samples, 0 reports once at the end")
	withStats = flag.Bool("stats", false, "if true, print the eventfd counters at the end")
	pprofAddr = flag.String("pprof", "", "if set, serve pprof and fgprof on this address")
	verbose   = flag.Bool("v", false, "if true, log at debug level")
)

func main() {
	flag.Parse()

	level := logiface.LevelInformational
	if *verbose {
		level = logiface.LevelDebug
	}
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(os.Stderr)),
		stumpy.L.WithLevel(level),
	).Logger()

	if *pprofAddr != "" {
		http.Handle("/debug/fgprof", fgprof.Handler())
		go func() {
			logger.Info().Str("addr", *pprofAddr).Log("serving pprof")
			if err := http.ListenAndServe(*pprofAddr, nil); err != nil {
				logger.Err().Err(err).Log("pprof server stopped")
			}
		}()
	}

	opts := []efdopts.Option{
		efdopts.Semaphore(*semaphore),
		efdopts.Logger(logger),
		efdopts.Stats(*withStats),
	}

	start := time.Now()

	var (
		efd *eventfd.Eventfd
		err error
	)
	switch *mode {
	case "pingpong":
		efd, err = pingPong(opts)
	case "throughput":
		efd, err = throughput(opts)
	case "async":
		efd, err = async(opts)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		logger.Err().Err(err).Str("mode", *mode).Log("benchmark failed")
		os.Exit(1)
	}

	logger.Info().
		Str("mode", *mode).
		Dur("took", time.Since(start)).
		Log("benchmark done")

	if *withStats {
		efd.Stats().WriteTo(os.Stdout)
	}
}

func newHist(name string) *util.LatencyHist {
	return util.NewLatencyHist(util.LatencyHistOpts{
		Name:   name,
		Every:  *every,
		MinPct: 0.1,
		Max:    time.Second,
		Writer: os.Stdout,
	})
}

func pingPong(opts []efdopts.Option) (*eventfd.Eventfd, error) {
	ping, err := eventfd.New(0, opts...)
	if err != nil {
		return nil, err
	}
	pong, err := eventfd.New(0, opts...)
	if err != nil {
		return nil, err
	}

	hist := newHist("rtt")
	ctx := context.Background()

	var g errgroup.Group
	g.Go(func() error {
		for i := 0; i < *n; i++ {
			if _, err := ping.Read(ctx); err != nil {
				return err
			}
			if err := pong.Write(ctx, 1); err != nil {
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		for i := 0; i < *n; i++ {
			start := time.Now()
			if err := ping.Write(ctx, 1); err != nil {
				return err
			}
			if _, err := pong.Read(ctx); err != nil {
				return err
			}
			hist.Record(time.Since(start))
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	hist.Flush()
	pong.Close()
	return ping, ping.Close()
}

func throughput(opts []efdopts.Option) (*eventfd.Eventfd, error) {
	efd, err := eventfd.New(0, opts...)
	if err != nil {
		return nil, err
	}

	total := uint64(*producers) * uint64(*n)
	read := make([]uint64, *consumers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var readers errgroup.Group
	for i := 0; i < *consumers; i++ {
		i := i
		readers.Go(func() error {
			for {
				v, err := efd.Read(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				read[i] += v
			}
		})
	}

	var writers errgroup.Group
	for i := 0; i < *producers; i++ {
		writers.Go(func() error {
			for j := 0; j < *n; j++ {
				if err := efd.Write(ctx, 1); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := writers.Wait(); err != nil {
		return nil, err
	}

	for efd.Value() != 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := readers.Wait(); err != nil {
		return nil, err
	}

	var sum uint64
	for _, v := range read {
		sum += v
	}
	if sum != total {
		return nil, fmt.Errorf("read %d, wrote %d", sum, total)
	}

	return efd, efd.Close()
}

func async(opts []efdopts.Option) (*eventfd.Eventfd, error) {
	ioc, err := eventfd.NewIO()
	if err != nil {
		return nil, err
	}
	defer ioc.Close()

	f, err := eventfd.Open(0, opts...)
	if err != nil {
		return nil, err
	}

	hist := newHist("async")
	want := uint64(*n)

	var (
		got     uint64
		lastErr error
		asyncRd func()
	)
	asyncRd = func() {
		start := time.Now()
		f.AsyncRead(ioc, func(err error, v uint64) {
			if err != nil {
				lastErr = err
				return
			}
			hist.Record(time.Since(start))
			got += v
			if got < want {
				// Posted rather than called so that reads completing inline
				// do not grow the stack.
				if err := ioc.Post(asyncRd); err != nil {
					lastErr = err
				}
			}
		})
	}
	asyncRd()

	var g errgroup.Group
	g.Go(func() error {
		for i := uint64(0); i < want; i++ {
			if err := f.WriteValue(context.Background(), 1); err != nil {
				return err
			}
		}
		return nil
	})

	for got < want && lastErr == nil {
		if err := ioc.RunOneFor(time.Second); err != nil && !errors.Is(err, efderrors.ErrTimeout) {
			return nil, err
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if lastErr != nil {
		return nil, lastErr
	}

	hist.Flush()
	return f.Eventfd(), f.Close()
}
