package logger

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// global is the process-wide logger returned when a context carries none.
	//nolint:gochecknoglobals // The logger is shared by every package of the tool.
	global *zap.SugaredLogger
	// level is the mutable minimum level of the global logger.
	//nolint:gochecknoglobals // Changed by the CLI once flags are parsed.
	level = zap.NewAtomicLevelAt(zap.InfoLevel)
)

func init() { //nolint:gochecknoinits // Packages log before the CLI has configured anything.
	SetLogger(New(level))
}

// New creates a console logger writing to stdout.
// A nil enabler falls back to the shared atomic level.
func New(enabler zapcore.LevelEnabler, options ...zap.Option) *zap.SugaredLogger {
	if enabler == nil {
		enabler = level
	}

	//nolint:exhaustruct // Remaining encoder fields keep their zero values.
	encoder := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey:       "message",
		LevelKey:         "level",
		TimeKey:          "time",
		NameKey:          "logger",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.CapitalColorLevelEncoder,
		EncodeTime:       zapcore.ISO8601TimeEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		ConsoleSeparator: " ",
	})

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), enabler)

	return zap.New(core, options...).Sugar()
}

// ParseLogLevel maps a textual level onto zapcore.Level.
// The second result is false for unknown input, in which case InfoLevel is returned.
func ParseLogLevel(s string) (zapcore.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel, true
	case "info":
		return zapcore.InfoLevel, true
	case "warn", "warning":
		return zapcore.WarnLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	case "fatal":
		return zapcore.FatalLevel, true
	default:
		return zapcore.InfoLevel, false
	}
}

// Level returns the current level of the global logger.
func Level() zapcore.Level {
	return level.Level()
}

// SetLevel changes the level of the global logger.
func SetLevel(l zapcore.Level) {
	level.SetLevel(l)
}

// Logger returns the global logger.
func Logger() *zap.SugaredLogger {
	return global
}

// SetLogger replaces the global logger. It is not safe for concurrent use.
func SetLogger(l *zap.SugaredLogger) {
	global = l
}

// Sync flushes the global logger.
func Sync() {
	_ = global.Sync() //nolint:errcheck // Syncing stdout fails on some terminals.
}

// Debug writes a message at the debug level
// using the logger from the context.
func Debug(ctx context.Context, args ...any) {
	FromContext(ctx).Debug(args...)
}

// DebugKV writes a message and key-value pairs
// at the debug level using the logger from the context.
func DebugKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Debugw(message, kvs...)
}

// Info writes a message at the info level
// using the logger from the context.
func Info(ctx context.Context, args ...any) {
	FromContext(ctx).Info(args...)
}

// Infof writes a formatted message at the info level
// using the logger from the context.
func Infof(ctx context.Context, format string, args ...any) {
	FromContext(ctx).Infof(format, args...)
}

// InfoKV writes a message and key-value pairs
// at the info level using the logger from the context.
func InfoKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Infow(message, kvs...)
}

// Warn writes a message at the warning level
// using the logger from the context.
func Warn(ctx context.Context, args ...any) {
	FromContext(ctx).Warn(args...)
}

// WarnKV writes a message and key-value pairs
// at the warning level using the logger from the context.
func WarnKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Warnw(message, kvs...)
}

// Error writes a message at the error level
// using the logger from the context.
func Error(ctx context.Context, args ...any) {
	FromContext(ctx).Error(args...)
}

// ErrorKV writes a message and key-value pairs
// at the error level using the logger from the context.
func ErrorKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Errorw(message, kvs...)
}
