package log

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var (
	mu     sync.RWMutex
	logger *zap.Logger
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Init builds the process logger. format "json" selects the production
// encoder; anything else gets the colored console encoder.
func Init(lvl, format string) error {
	var cfg zap.Config
	if strings.EqualFold(format, "json") {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	level.SetLevel(parseLevel(Level(strings.ToUpper(lvl))))
	cfg.Level = level

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	mu.Lock()
	logger = l
	mu.Unlock()
	return nil
}

// L returns the underlying zap logger for components that take one
// directly. It never returns nil.
func L() *zap.Logger {
	return current().WithOptions(zap.AddCallerSkip(-1))
}

// Sync flushes buffered entries.
func Sync() {
	_ = current().Sync()
}

func SetLevel(l Level) {
	level.SetLevel(parseLevel(l))
}

func Debug(msg string, kv ...any) {
	current().Debug(msg, fields(kv)...)
}

func Info(msg string, kv ...any) {
	current().Info(msg, fields(kv)...)
}

func Warn(msg string, kv ...any) {
	current().Warn(msg, fields(kv)...)
}

func Error(msg string, err error, kv ...any) {
	current().Error(msg, append([]zap.Field{zap.Error(err)}, fields(kv)...)...)
}

func current() *zap.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = level
		built, err := cfg.Build(zap.AddCallerSkip(1))
		if err != nil {
			built = zap.NewNop()
		}
		logger = built
	}
	return logger
}

func parseLevel(l Level) zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// fields turns key, value, key, value ... into zap fields. Non-string keys
// are skipped; a trailing key without a value is dropped.
func fields(kv []any) []zap.Field {
	out := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, zap.Any(key, kv[i+1]))
	}
	return out
}
