package efdopts

type OptionType uint8

const (
	TypeSemaphore OptionType = iota
	TypeNonblocking
	TypeNotifier
	TypeLogger
	TypeStats
	MaxOption
)

func (t OptionType) String() string {
	switch t {
	case TypeSemaphore:
		return "semaphore"
	case TypeNonblocking:
		return "nonblocking"
	case TypeNotifier:
		return "notifier"
	case TypeLogger:
		return "logger"
	case TypeStats:
		return "stats"
	default:
		return "option_unknown"
	}
}

type Option interface {
	Type() OptionType
	Value() interface{}
}
