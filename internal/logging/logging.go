// Package logging builds the process logger from the logging config.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"goodwill_sniper/internal/config"
)

// New returns a logger writing to the console and, when enabled, to a rotated
// file. debug forces the debug level.
func New(cfg config.LoggingConfig, debug bool) (zerolog.Logger, io.Closer) {
	var (
		writers []io.Writer
		closer  io.Closer = nopCloser{}
	)

	if cfg.Console == nil || *cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	if cfg.File {
		path := cfg.FilePath
		if strings.TrimSpace(path) == "" {
			path = filepath.Join("logs", "sniper.log")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err == nil {
			lj := &lumberjack.Logger{
				Filename:   path,
				MaxSize:    orDefault(cfg.MaxSizeMB, 20),
				MaxBackups: orDefault(cfg.MaxBackups, 5),
				MaxAge:     orDefault(cfg.MaxAgeDays, 30),
				Compress:   true,
			}
			writers = append(writers, lj)
			closer = lj
		}
	}

	var w io.Writer
	switch len(writers) {
	case 0:
		w = io.Discard
	case 1:
		w = writers[0]
	default:
		w = zerolog.MultiLevelWriter(writers...)
	}

	level := ParseLevel(cfg.Level)
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), closer
}

// ParseLevel accepts zerolog level names plus "warning" and "critical".
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "critical", "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
