package platform

import "fmt"

// Level is one of the five levels original_source's logging.rs defines
// (Error, Warn, Info, Debug, Trace), preserved here even though spec.md
// names serial/log formatting out of scope as an external collaborator:
// the Non-goal excludes a new transport, not the level discipline itself
// (see DESIGN.md).
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	case LevelTrace:
		return "TRACE"
	default:
		return "?"
	}
}

// ansiColor mirrors logging.rs's level->color table; only used when Color
// is enabled on the Logger.
func (l Level) ansiColor() int {
	switch l {
	case LevelError:
		return 31
	case LevelWarn:
		return 93
	case LevelInfo:
		return 34
	case LevelDebug:
		return 32
	case LevelTrace:
		return 90
	default:
		return 0
	}
}

// Logger formats level-gated lines and writes them through a Console,
// i.e. ultimately through Platform.ConsolePutchar — rvkernel never opens
// a transport of its own.
type Logger struct {
	out   *Console
	max   Level
	Color bool
}

// NewLogger returns a Logger writing through p's console, gated at max
// (messages more verbose than max are dropped). logging.rs defaults to
// Info; callers wanting a different floor pass it explicitly.
func NewLogger(p Platform, max Level) *Logger {
	return &Logger{out: NewConsole(p), max: max}
}

func (lg *Logger) log(level Level, format string, args ...any) {
	if level > lg.max {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if lg.Color {
		fmt.Fprintf(lg.out, "\x1b[%dm[%s] %s\x1b[0m\n", level.ansiColor(), level, msg)
		return
	}
	fmt.Fprintf(lg.out, "[%s] %s\n", level, msg)
}

func (lg *Logger) Error(format string, args ...any) { lg.log(LevelError, format, args...) }
func (lg *Logger) Warn(format string, args ...any)  { lg.log(LevelWarn, format, args...) }
func (lg *Logger) Info(format string, args ...any)  { lg.log(LevelInfo, format, args...) }
func (lg *Logger) Debug(format string, args ...any) { lg.log(LevelDebug, format, args...) }
func (lg *Logger) Trace(format string, args ...any) { lg.log(LevelTrace, format, args...) }
