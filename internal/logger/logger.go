package logger

import (
	"os"
	"sync"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures the process logger.
type Options struct {
	Debug bool

	// File enables an additional JSON log rotated by size.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	mu   sync.RWMutex
	log  *zap.Logger
	once sync.Once
)

// Init installs the global logger. Only the first call has an effect.
func Init(opts Options) {
	once.Do(func() {
		set(build(opts))
	})
}

func set(l *zap.Logger) {
	mu.Lock()
	log = l
	mu.Unlock()
}

func build(opts Options) *zap.Logger {
	level := zapcore.InfoLevel
	encoderConfig := zap.NewProductionEncoderConfig()
	if opts.Debug {
		level = zapcore.DebugLevel
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(os.Stderr), level),
	}

	if opts.File != "" {
		rotate := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(rotate),
			level,
		))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zapcore.ErrorLevel))
}

// Get returns the global logger, installing an info-level console logger
// when Init was never called.
func Get() *zap.Logger {
	Init(Options{})
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Replace swaps the global logger and returns a function restoring the
// previous one. Tests use it to capture output.
func Replace(l *zap.Logger) func() {
	Init(Options{})
	mu.Lock()
	prev := log
	log = l
	mu.Unlock()
	return func() { set(prev) }
}

// Sync flushes any buffered log entries
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if log != nil {
		_ = log.Sync()
	}
}
