// Package logging builds the zap loggers shared by the app and its modules.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kingrea/latticeboot/internal/config"
)

// Config selects the encoding, level and destinations of a Logger.
type Config struct {
	Level  string
	Format string // "json" or "console"
	// File, when set, receives a JSON copy of every entry.
	File   string
	Output io.Writer
}

// FromOptions derives a logging config from the process options. A relative
// log file resolves against the root path.
func FromOptions(opts config.Options) Config {
	file := opts.LogFile
	if file != "" && !filepath.IsAbs(file) {
		file = opts.PathTo(file)
	}
	return Config{Level: opts.LogLevel, Format: opts.LogFormat, File: file}
}

// Logger is a zap logger that may own a log file.
type Logger struct {
	*zap.Logger
	file *os.File
}

// New builds a logger for cfg.
func New(cfg Config) (*Logger, error) {
	level := zapcore.InfoLevel
	if strings.TrimSpace(cfg.Level) != "" {
		parsed, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
		level = parsed
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var encoder zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		encoder = zapcore.NewJSONEncoder(jsonEncoderConfig())
	case "console":
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, fmt.Errorf("logging: unknown format %q", cfg.Format)
	}
	cores := []zapcore.Core{zapcore.NewCore(encoder, zapcore.AddSync(out), level)}

	var file *os.File
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("logging: ensure log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logging: open log file: %w", err)
		}
		file = f
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(jsonEncoderConfig()), zapcore.AddSync(f), level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zapcore.ErrorLevel))
	return &Logger{Logger: logger, file: file}, nil
}

// Printf writes a single info line.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.Logger == nil {
		return
	}
	l.Sugar().Infof(strings.TrimRight(format, "\n"), args...)
}

// Writer returns an io.Writer that logs every complete line through Printf
// with a source field. A trailing partial line is held until its newline.
func (l *Logger) Writer(source string) io.Writer {
	if l == nil || l.Logger == nil {
		return io.Discard
	}
	return &lineWriter{log: &Logger{Logger: l.With(zap.String("source", source))}}
}

type lineWriter struct {
	log *Logger

	mu      sync.Mutex
	pending []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, p...)
	for {
		i := bytes.IndexByte(w.pending, '\n')
		if i < 0 {
			break
		}
		if line := strings.TrimRight(string(w.pending[:i]), "\r"); line != "" {
			w.log.Printf("%s", line)
		}
		w.pending = w.pending[i+1:]
	}
	return len(p), nil
}

// Close flushes buffered entries and releases the log file.
func (l *Logger) Close() error {
	if l == nil || l.Logger == nil {
		return nil
	}
	_ = l.Sync()
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func jsonEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "time"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}
