package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/DeBrosOfficial/collab/pkg/config"
)

// ANSI escapes used by the console encoder.
const (
	Reset = "\033[0m"
	Bold  = "\033[1m"
	Dim   = "\033[2m"

	Red          = "\033[31m"
	Green        = "\033[32m"
	Yellow       = "\033[33m"
	Blue         = "\033[34m"
	Cyan         = "\033[36m"
	White        = "\033[37m"
	Gray         = "\033[90m"
	BrightRed    = "\033[91m"
	BrightGreen  = "\033[92m"
	BrightYellow = "\033[93m"
	BrightPurple = "\033[95m"
	BrightCyan   = "\033[96m"
	BrightWhite  = "\033[97m"
)

// ColoredLogger wraps zap.Logger with colored component prefixes
type ColoredLogger struct {
	*zap.Logger
	enableColors bool
	file         *os.File
}

// Component represents different parts of the system for color coding
type Component string

const (
	ComponentHost      Component = "HOST"
	ComponentClient    Component = "CLIENT"
	ComponentSession   Component = "SESSION"
	ComponentDiscovery Component = "DISCOVERY"
	ComponentLocks     Component = "LOCKS"
	ComponentStore     Component = "STORE"
	ComponentBuild     Component = "BUILD"
	ComponentGeneral   Component = "GENERAL"
)

func getComponentColor(component Component) string {
	switch component {
	case ComponentHost:
		return BrightGreen
	case ComponentClient:
		return Blue
	case ComponentSession:
		return BrightCyan
	case ComponentDiscovery:
		return Cyan
	case ComponentLocks:
		return BrightPurple
	case ComponentStore:
		return BrightYellow
	case ComponentBuild:
		return Green
	case ComponentGeneral:
		return Yellow
	default:
		return White
	}
}

func getLevelColor(level zapcore.Level) string {
	switch level {
	case zapcore.DebugLevel:
		return Gray
	case zapcore.InfoLevel:
		return BrightWhite
	case zapcore.WarnLevel:
		return BrightYellow
	case zapcore.ErrorLevel:
		return BrightRed
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return Red
	default:
		return White
	}
}

var levelLetters = map[zapcore.Level]string{
	zapcore.DebugLevel: "D",
	zapcore.InfoLevel:  "I",
	zapcore.WarnLevel:  "W",
	zapcore.ErrorLevel: "E",
}

// coloredConsoleEncoder builds the compact HH:MM:SS / single-letter level encoder
func coloredConsoleEncoder(enableColors bool) zapcore.Encoder {
	cfg := zap.NewDevelopmentEncoderConfig()

	cfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		ts := t.Format("15:04:05")
		if enableColors {
			ts = Dim + ts + Reset
		}
		enc.AppendString(ts)
	}

	cfg.EncodeLevel = func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		letter, ok := levelLetters[level]
		if !ok {
			letter = "?"
		}
		if enableColors {
			letter = getLevelColor(level) + Bold + letter + Reset
		}
		enc.AppendString(letter)
	}

	cfg.EncodeCaller = func(caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
		file := caller.File
		if idx := strings.LastIndex(file, "/"); idx >= 0 {
			file = file[idx+1:]
		}
		file = strings.TrimSuffix(file, ".go")
		if enableColors {
			file = Dim + file + Reset
		}
		enc.AppendString(file)
	}

	return zapcore.NewConsoleEncoder(cfg)
}

func newLogger(w io.Writer, level zapcore.Level, enableColors bool) *ColoredLogger {
	core := zapcore.NewCore(coloredConsoleEncoder(enableColors), zapcore.AddSync(w), level)
	return &ColoredLogger{
		Logger:       zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)),
		enableColors: enableColors,
	}
}

// NewFromConfig builds the process logger. Console output is colored only
// when it goes to stdout; a TUI session always sets OutputFile.
func NewFromConfig(cfg config.LoggingConfig) (*ColoredLogger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	var w io.Writer = os.Stdout
	var file *os.File
	if cfg.OutputFile != "" {
		f, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", cfg.OutputFile, err)
		}
		w, file = f, f
	}

	var l *ColoredLogger
	if cfg.Format == "json" {
		core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(w), level)
		l = &ColoredLogger{Logger: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))}
	} else {
		l = newLogger(w, level, file == nil)
	}
	l.file = file
	return l, nil
}

// Close flushes buffered entries and closes the log file, if any. The
// logger must not be used afterwards.
func (l *ColoredLogger) Close() error {
	_ = l.Sync()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// NewNopLogger returns a logger that discards everything
func NewNopLogger() *ColoredLogger {
	return &ColoredLogger{Logger: zap.NewNop()}
}

func (l *ColoredLogger) prefix(component Component, msg string) string {
	if l.enableColors {
		return fmt.Sprintf("%s[%s]%s %s", getComponentColor(component), component, Reset, msg)
	}
	return fmt.Sprintf("[%s] %s", component, msg)
}

// Component-specific logging methods
func (l *ColoredLogger) ComponentInfo(component Component, msg string, fields ...zap.Field) {
	l.Info(l.prefix(component, msg), fields...)
}

func (l *ColoredLogger) ComponentWarn(component Component, msg string, fields ...zap.Field) {
	l.Warn(l.prefix(component, msg), fields...)
}

func (l *ColoredLogger) ComponentError(component Component, msg string, fields ...zap.Field) {
	l.Error(l.prefix(component, msg), fields...)
}

func (l *ColoredLogger) ComponentDebug(component Component, msg string, fields ...zap.Field) {
	l.Debug(l.prefix(component, msg), fields...)
}
