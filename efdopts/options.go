package efdopts

import "github.com/joeycumines/logiface"

type optionSemaphore struct {
	v bool
}

func (o *optionSemaphore) Type() OptionType {
	return TypeSemaphore
}

func (o *optionSemaphore) Value() interface{} {
	return o.v
}

// Semaphore selects the read semantics of the eventfd: when true each read
// decrements the value by one instead of draining it.
func Semaphore(v bool) Option {
	return &optionSemaphore{
		v: v,
	}
}

type optionNonblocking struct {
	v bool
}

func (o *optionNonblocking) Type() OptionType {
	return TypeNonblocking
}

func (o *optionNonblocking) Value() interface{} {
	return o.v
}

// Nonblocking sets the initial blocking mode of the handle returned by Open.
func Nonblocking(v bool) Option {
	return &optionNonblocking{
		v: v,
	}
}

type optionNotifier struct {
	v interface{}
}

func (o *optionNotifier) Type() OptionType {
	return TypeNotifier
}

func (o *optionNotifier) Value() interface{} {
	return o.v
}

// Notifier injects the readiness registry. v must implement eventfd.Notifier.
func Notifier(v interface{}) Option {
	return &optionNotifier{
		v: v,
	}
}

type optionLogger struct {
	v *logiface.Logger[logiface.Event]
}

func (o *optionLogger) Type() OptionType {
	return TypeLogger
}

func (o *optionLogger) Value() interface{} {
	return o.v
}

// Logger attaches a structured logger. A nil logger disables logging.
func Logger(v *logiface.Logger[logiface.Event]) Option {
	return &optionLogger{
		v: v,
	}
}

type optionStats struct {
	v bool
}

func (o *optionStats) Type() OptionType {
	return TypeStats
}

func (o *optionStats) Value() interface{} {
	return o.v
}

// Stats enables per-object counters and the blocked-wait latency histogram.
func Stats(v bool) Option {
	return &optionStats{
		v: v,
	}
}
