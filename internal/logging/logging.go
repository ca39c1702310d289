// Package logging configures the process-wide charmbracelet logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// fileWriter holds the rotating log file, if any, for Close.
	fileWriter   io.WriteCloser
	fileWriterMu sync.Mutex

	// console and level rebuild the default logger once the file is closed.
	console io.Writer = os.Stderr
	level             = log.InfoLevel
)

type Config struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// File mirrors output into a rotating log file when set.
	File       string
	MaxSizeMB  int
	MaxBackups int
	Compress   bool

	// Output defaults to stderr.
	Output io.Writer
}

// Initialize replaces the default logger. Calling it again closes the
// previous log file.
func Initialize(cfg Config) error {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return err
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	fileWriterMu.Lock()
	defer fileWriterMu.Unlock()

	if fileWriter != nil {
		_ = fileWriter.Close()
		fileWriter = nil
	}
	console = out
	level = lvl

	if cfg.File != "" {
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		maxBackups := cfg.MaxBackups
		if maxBackups <= 0 {
			maxBackups = 3
		}
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			Compress:   cfg.Compress,
		}
		fileWriter = lj
		out = io.MultiWriter(out, lj)
	}

	log.SetDefault(newLogger(out, lvl))
	return nil
}

func newLogger(out io.Writer, lvl log.Level) *log.Logger {
	return log.NewWithOptions(out, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
	})
}

// WithRunID tags every following log line of the default logger.
func WithRunID(id string) {
	log.SetDefault(log.Default().With("run_id", id))
}

// Close releases the log file. Later lines go to the console output only,
// so the file is not reopened behind the caller's back.
func Close() error {
	fileWriterMu.Lock()
	defer fileWriterMu.Unlock()

	if fileWriter == nil {
		return nil
	}
	err := fileWriter.Close()
	fileWriter = nil
	log.SetDefault(newLogger(console, level))
	return err
}

func ParseLevel(raw string) (log.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return log.InfoLevel, nil
	case "debug", "info", "warn", "error":
		return log.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	case "warning":
		return log.WarnLevel, nil
	default:
		return log.InfoLevel, fmt.Errorf("unknown log level %q", raw)
	}
}
