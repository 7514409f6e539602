package logger

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the verbosity threshold. Trace sits below zap's debug level.
type Level int8

const (
	TraceLevel Level = iota - 2
	DebugLevel
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
	PanicLevel
)

func (l Level) String() string {
	switch l {
	case TraceLevel:
		return "trace"
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	case FatalLevel:
		return "fatal"
	case PanicLevel:
		return "panic"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case TraceLevel, DebugLevel:
		return zapcore.DebugLevel
	case InfoLevel:
		return zapcore.InfoLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	case FatalLevel:
		return zapcore.FatalLevel
	default:
		return zapcore.PanicLevel
	}
}

var (
	mu    sync.RWMutex
	level = InfoLevel
	atom  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base  *zap.Logger
	sugar *zap.SugaredLogger
)

func init() {
	l, err := build("console", nil)
	if err != nil {
		l = zap.NewNop()
	}
	setLogger(l)
}

// ParseLevel converts a level name into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return TraceLevel, nil
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	case "panic":
		return PanicLevel, nil
	default:
		return InfoLevel, fmt.Errorf("invalid log level %q (want trace, debug, info, warn, error, fatal, panic)", s)
	}
}

// SetLevel changes the active level for every logger built by this package.
func SetLevel(l Level) {
	mu.Lock()
	level = l
	mu.Unlock()
	atom.SetLevel(l.zapLevel())
}

// GetLevel returns the active level.
func GetLevel() Level {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// Init rebuilds the backing logger. format is "console" or "json"; extra
// output paths (files) are written in addition to stderr.
func Init(format string, outputs []string) error {
	l, err := build(format, outputs)
	if err != nil {
		return err
	}
	setLogger(l)
	return nil
}

func build(format string, outputs []string) (*zap.Logger, error) {
	var cfg zap.Config
	if strings.EqualFold(format, "json") {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.Development = false
	}
	cfg.Level = atom
	cfg.DisableStacktrace = true
	cfg.OutputPaths = append([]string{"stderr"}, outputs...)
	return cfg.Build(zap.AddCallerSkip(1))
}

// SetLogger replaces the backing logger. Tests use zap.NewNop().
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	setLogger(l)
}

func setLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l
	sugar = l.Sugar()
}

// L returns the structured logger for callers that log with fields.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.WithOptions(zap.AddCallerSkip(-1))
}

// Sync flushes buffered entries.
func Sync() {
	mu.RLock()
	l := base
	mu.RUnlock()
	_ = l.Sync()
}

func s() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

func Trace(format string, args ...any) {
	if GetLevel() > TraceLevel {
		return
	}
	s().Debugf("[TRACE] "+format, args...)
}

func Debug(format string, args ...any) { s().Debugf(format, args...) }

func Info(format string, args ...any) { s().Infof(format, args...) }

func Warn(format string, args ...any) { s().Warnf(format, args...) }

func Error(format string, args ...any) { s().Errorf(format, args...) }

func Fatal(format string, args ...any) { s().Fatalf(format, args...) }
