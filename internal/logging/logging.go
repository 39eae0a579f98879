// Package logging provides the harness's structured logger.
//
// Every component logs through this package rather than fmt.Println or the
// standard library log package. Before Init is called, L() returns a no-op
// logger so early-boot log calls never nil-panic; Init installs a real
// zap.Logger that writes JSON lines to a file (production mode) or
// plain console-encoded lines (development mode, selected by the config's
// debug field).
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var global atomic.Pointer[zap.Logger]

func init() {
	global.Store(zap.NewNop())
}

// Init opens the log file at path (creating its directory if needed) and
// installs it as the global logger. debug=true selects a human-readable
// development encoder at debug level; debug=false selects JSON at info
// level. Returns the log file path for diagnostics.
func Init(path string, debug bool) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("logging: create dir for %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("logging: open log %s: %w", path, err)
	}

	level := zapcore.InfoLevel
	encCfg := zap.NewProductionEncoderConfig()
	encoder := zapcore.NewJSONEncoder(encCfg)
	if debug {
		level = zapcore.DebugLevel
		encCfg = zap.NewDevelopmentEncoderConfig()
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(encoder, zapcore.AddSync(f), level)
	logger := zap.New(core, zap.AddCaller())

	global.Store(logger)
	return path, nil
}

// L returns the current global logger. Safe to call before Init.
func L() *zap.Logger {
	return global.Load()
}

// Named returns a child logger scoped to a component name, e.g. "ptysup"
// or "gate". Mirrors the teacher's per-component debug.LogKV(component, ...)
// convention, expressed as zap's native logger naming instead.
func Named(component string) *zap.Logger {
	return L().Named(component)
}

// Sync flushes any buffered log entries. Call during shutdown; errors from
// syncing a terminal-backed fd are expected and ignored by callers.
func Sync() error {
	return L().Sync()
}
