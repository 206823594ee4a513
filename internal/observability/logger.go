// Package observability holds the process-wide CLI logger.
//
// Diagnostics go to stderr through CLILogger; stdout is reserved for status
// lines and JSONL records.
package observability

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the logger used by commands. It is a no-op until
// InitCLILogger runs, so packages and tests may log unconditionally.
var CLILogger = zap.NewNop()

var (
	mu    sync.Mutex
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// InitCLILogger replaces CLILogger with a logger writing to stderr.
// jsonOutput selects the JSON encoder; otherwise output is a compact console
// format meant for people.
func InitCLILogger(serviceName string, jsonOutput bool) {
	initLogger(os.Stderr, serviceName, jsonOutput)
}

func initLogger(w io.Writer, serviceName string, jsonOutput bool) {
	mu.Lock()
	defer mu.Unlock()

	var enc zapcore.Encoder
	if jsonOutput {
		cfg := zap.NewProductionEncoderConfig()
		cfg.TimeKey = "ts"
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(cfg)
	} else {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.TimeKey = ""
		cfg.CallerKey = ""
		cfg.NameKey = ""
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(cfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), level)
	logger := zap.New(core)
	if jsonOutput && serviceName != "" {
		logger = logger.With(zap.String("service", serviceName))
	}
	CLILogger = logger
}

// SetLevel changes the minimum level of CLILogger. Accepts zap level names
// (debug, info, warn, error) case-insensitively; "trace" maps to debug.
func SetLevel(name string) error {
	lvl, err := ParseLevel(name)
	if err != nil {
		return err
	}
	level.SetLevel(lvl)
	return nil
}

// Level returns the current minimum level.
func Level() zapcore.Level {
	return level.Level()
}

// ParseLevel converts a level name to a zap level.
func ParseLevel(name string) (zapcore.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "":
		return zapcore.InfoLevel, nil
	case "trace":
		return zapcore.DebugLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	}
	lvl, err := zapcore.ParseLevel(name)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return lvl, nil
}
