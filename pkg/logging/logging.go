package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// LogLevel defines the severity of the log entry.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String makes LogLevel satisfy the fmt.Stringer interface.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel maps a level name to a LogLevel. Unknown names map to
// LevelInfo and an error.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Format selects the CLI log encoding.
type Format string

const (
	// FormatText is colored when writing to a terminal, plain otherwise.
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// LogEntry is the structured log entry passed to the TUI.
type LogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	Subsystem string
	Message   string
	Err       error
}

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
	tuiLogChannel chan LogEntry
	tuiLevel      LogLevel
	isTuiMode     bool
	dropped       atomic.Int64
)

const tuiChannelBufferSize = 2048

// InitForTUI initializes the logging system for TUI mode. Entries at or
// above filterLevel are delivered on the returned channel instead of being
// written out.
func InitForTUI(filterLevel LogLevel) <-chan LogEntry {
	mu.Lock()
	defer mu.Unlock()

	isTuiMode = true
	tuiLevel = filterLevel
	tuiLogChannel = make(chan LogEntry, tuiChannelBufferSize)
	defaultLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return tuiLogChannel
}

// InitForCLI initializes the logging system for CLI mode, writing entries
// at or above filterLevel to output.
func InitForCLI(filterLevel LogLevel, output io.Writer, format Format) {
	mu.Lock()
	defer mu.Unlock()

	isTuiMode = false
	defaultLogger = slog.New(newHandler(filterLevel, output, format))
	slog.SetDefault(defaultLogger)
}

func newHandler(level LogLevel, output io.Writer, format Format) slog.Handler {
	if format == FormatJSON {
		return slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level.SlogLevel()})
	}
	if f, ok := output.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return tint.NewHandler(output, &tint.Options{
			Level:      level.SlogLevel(),
			TimeFormat: time.TimeOnly,
		})
	}
	return slog.NewTextHandler(output, &slog.HandlerOptions{Level: level.SlogLevel()})
}

func logInternal(level LogLevel, subsystem string, err error, messageFmt string, args ...interface{}) {
	msg := messageFmt
	if len(args) > 0 {
		msg = fmt.Sprintf(messageFmt, args...)
	}

	mu.RLock()
	defer mu.RUnlock()

	if isTuiMode {
		if level < tuiLevel || tuiLogChannel == nil {
			return
		}
		entry := LogEntry{
			Timestamp: time.Now(),
			Level:     level,
			Subsystem: subsystem,
			Message:   msg,
			Err:       err,
		}
		// The view may have quit; never block the harness on it.
		select {
		case tuiLogChannel <- entry:
		default:
			dropped.Add(1)
		}
		return
	}

	if defaultLogger == nil {
		fmt.Fprintf(os.Stderr, "[LOGGING_ERROR] Logger not initialized. Log: %s [%s] %s\n", time.Now().Format(time.RFC3339), level, msg)
		return
	}

	attrs := []slog.Attr{slog.String("subsystem", subsystem)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	defaultLogger.LogAttrs(context.Background(), level.SlogLevel(), msg, attrs...)
}

// Debug logs a debug message.
func Debug(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelDebug, subsystem, nil, messageFmt, args...)
}

// Info logs an informational message.
func Info(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelInfo, subsystem, nil, messageFmt, args...)
}

// Warn logs a warning message.
func Warn(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelWarn, subsystem, nil, messageFmt, args...)
}

// Error logs an error message.
func Error(subsystem string, err error, messageFmt string, args ...interface{}) {
	logInternal(LevelError, subsystem, err, messageFmt, args...)
}

// Dropped returns how many TUI entries were discarded because the channel
// was full.
func Dropped() int64 {
	return dropped.Load()
}

// CloseTUIChannel closes the TUI log channel and returns to discarding
// output. Should be called on application shutdown.
func CloseTUIChannel() {
	mu.Lock()
	defer mu.Unlock()
	if tuiLogChannel != nil {
		close(tuiLogChannel)
		tuiLogChannel = nil
	}
}
