// Package logger provides the printf-style leveled logger used across the
// node: chain, mempool, miner, p2p and monitoring all take a *Logger rather
// than logging directly. Grounded on the teacher's pkg/logger/logger.go,
// whose hand-rolled text/JSON formatting and size-based rotation loop are
// replaced here with go.uber.org/zap (already pulled in transitively by
// libp2p's own logging) wrapped behind the same Debug/Info/Warn/Error/Fatal
// surface, so callers across the tree did not need to change.
package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level mirrors zapcore's level model with the names this codebase uses.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case INFO:
		return zapcore.InfoLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	case FATAL:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// Config configures a Logger.
type Config struct {
	Level   Level
	Prefix  string
	Output  io.Writer
	UseJSON bool
	LogFile string
}

// DefaultConfig returns a default logger configuration writing plain text
// to stdout at INFO level.
func DefaultConfig() *Config {
	return &Config{
		Level:   INFO,
		Prefix:  "gochain",
		Output:  os.Stdout,
		UseJSON: false,
	}
}

// Logger is a leveled, named, printf-style logger backed by zap.
type Logger struct {
	sugar  *zap.SugaredLogger
	level  Level
	prefix string
	file   *os.File
}

// NewLogger constructs a Logger from config, defaulting to DefaultConfig
// when config is nil. When config.LogFile is set, output goes to that file
// (created if absent) instead of config.Output.
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}

	var file *os.File
	sink := config.Output
	if sink == nil {
		sink = os.Stdout
	}
	if config.LogFile != "" {
		f, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			file = f
			sink = f
		}
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.RFC3339TimeEncoder

	var encoder zapcore.Encoder
	if config.UseJSON {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(sink), config.Level.zapLevel())
	base := zap.New(core).Named(config.Prefix)

	return &Logger{
		sugar:  base.Sugar(),
		level:  config.Level,
		prefix: config.Prefix,
		file:   file,
	}
}

// Debug logs at DEBUG level, formatting args the way fmt.Sprintf does.
func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }

// Info logs at INFO level.
func (l *Logger) Info(format string, args ...interface{}) { l.sugar.Infof(format, args...) }

// Warn logs at WARN level.
func (l *Logger) Warn(format string, args ...interface{}) { l.sugar.Warnf(format, args...) }

// Error logs at ERROR level.
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// Fatal logs at FATAL level and terminates the process (zap's Fatalf calls
// os.Exit(1) after flushing).
func (l *Logger) Fatal(format string, args ...interface{}) { l.sugar.Fatalf(format, args...) }

// WithFields returns a child logger with fields attached to every
// subsequent entry.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{sugar: l.sugar.With(args...), level: l.level, prefix: l.prefix, file: l.file}
}

// SetLevel is retained for API compatibility with the teacher's logger;
// zap's level is fixed at construction, so this only updates the stored
// level field; it does not change active filtering.
func (l *Logger) SetLevel(level Level) { l.level = level }

// Close flushes buffered log entries and closes any owned log file.
func (l *Logger) Close() error {
	_ = l.sugar.Sync()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
