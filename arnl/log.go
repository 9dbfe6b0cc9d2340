package arnl

import (
	"go.viam.com/navbridge/logging"
)

// LogLevel is the verbosity the SDK attaches to each of its log lines.
type LogLevel int

const (
	// Terse is for messages the SDK always prints, usually problems.
	Terse LogLevel = iota
	// Normal is the SDK's default verbosity.
	Normal
	// Verbose is the SDK's debugging output.
	Verbose
)

func (l LogLevel) String() string {
	switch l {
	case Terse:
		return "Terse"
	case Normal:
		return "Normal"
	case Verbose:
		return "Verbose"
	default:
		return "Unknown"
	}
}

// LogHandler receives every line the SDK logs.
type LogHandler func(msg string, level LogLevel)

// ForwardLogs returns a LogHandler that writes SDK output into `logger`. Normal lines are logged
// at info, Terse at warn and Verbose at debug; unknown levels are dropped.
func ForwardLogs(logger logging.Logger) LogHandler {
	return func(msg string, level LogLevel) {
		switch level {
		case Normal:
			logger.Info(msg)
		case Terse:
			logger.Warn(msg)
		case Verbose:
			logger.Debug(msg)
		}
	}
}
