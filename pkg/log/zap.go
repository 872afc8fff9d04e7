// Package log sets up the process-wide zap logger.
package log

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu sync.Mutex
	l  *ZapLogger
)

// LogOpts configures the logger.
type LogOpts struct {
	// Level is one of debug, info, warn, error.
	Level string
	// JSON switches the stderr encoder from console to JSON.
	JSON bool
}

// GetDefaultLogOpts returns info level console logging.
func GetDefaultLogOpts() *LogOpts {
	return &LogOpts{Level: "info"}
}

// ZapLogger wraps a zap.Logger together with its level.
type ZapLogger struct {
	*zap.Logger
	lvl zap.AtomicLevel
}

// ParseLevel converts a level name into a zap level.
func ParseLevel(lvl string) (zapcore.Level, error) {
	switch lvl {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("log level %q not supported", lvl)
	}
}

// EncoderConfig is the production encoder with ISO8601 timestamps.
func EncoderConfig() zapcore.EncoderConfig {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return encoderCfg
}

// SetupZapLogger builds the process logger. Subsequent calls return the existing one.
func SetupZapLogger(opts *LogOpts) (*ZapLogger, error) {
	mu.Lock()
	defer mu.Unlock()
	if l != nil {
		return l, nil
	}
	if opts == nil {
		opts = GetDefaultLogOpts()
	}

	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	atom := zap.NewAtomicLevelAt(level)

	var enc zapcore.Encoder
	if opts.JSON {
		enc = zapcore.NewJSONEncoder(EncoderConfig())
	} else {
		enc = zapcore.NewConsoleEncoder(EncoderConfig())
	}
	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), atom)
	l = &ZapLogger{
		Logger: zap.New(core, zap.AddCaller()),
		lvl:    atom,
	}
	return l, nil
}

// Logger returns the process logger, or a no-op logger when SetupZapLogger has not run.
func Logger() *ZapLogger {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		return &ZapLogger{Logger: zap.NewNop(), lvl: zap.NewAtomicLevel()}
	}
	return l
}

// SetLevel changes the level at runtime.
func (z *ZapLogger) SetLevel(lvl string) error {
	level, err := ParseLevel(lvl)
	if err != nil {
		return err
	}
	z.lvl.SetLevel(level)
	return nil
}

// Level returns the current level.
func (z *ZapLogger) Level() zapcore.Level { return z.lvl.Level() }

// Named returns a child logger sharing the level.
func (z *ZapLogger) Named(name string) *ZapLogger {
	return &ZapLogger{Logger: z.Logger.Named(name), lvl: z.lvl}
}

// Close flushes buffered entries.
func (z *ZapLogger) Close() {
	_ = z.Logger.Sync()
}
