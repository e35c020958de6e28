// Package logger provides the process-wide structured logger.
package logger

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	once   sync.Once
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	sugar  *zap.SugaredLogger
	mu     sync.RWMutex
	custom *zap.SugaredLogger
)

// Logger returns the shared sugared logger. Log output goes to stderr so that
// report output on stdout stays machine readable.
func Logger() *zap.SugaredLogger {
	mu.RLock()
	l := custom
	mu.RUnlock()
	if l != nil {
		return l
	}

	once.Do(func() {
		sugar = build().Sugar()
	})
	return sugar
}

func build() *zap.Logger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000")

	cfg := zap.Config{
		Level:            level,
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    encCfg,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// SetLevel changes the level of the shared logger. Accepted values are
// debug, info, warn and error.
func SetLevel(lvl string) error {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(lvl)))); err != nil {
		return fmt.Errorf("invalid log level %q: %w", lvl, err)
	}
	level.SetLevel(l)
	return nil
}

// Level returns the current level name.
func Level() string {
	return level.Level().String()
}

// SetLogger replaces the shared logger, mainly for tests. Passing nil restores
// the default logger.
func SetLogger(l *zap.SugaredLogger) {
	mu.Lock()
	defer mu.Unlock()
	custom = l
}

// Sync flushes buffered log entries.
func Sync() {
	_ = Logger().Sync()
}
