// Package logger is bgo's levelled text-line sink. spec.md §1 treats
// logging as an out-of-scope external collaborator ("a sink that accepts
// levelled text lines"); this package is a minimal log/slog-backed
// implementation of exactly that role — see DESIGN.md for why no
// third-party logging library from the example pack is wired here.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Logger writes levelled, timestamped, optionally tag-prefixed lines to
// stdout, and optionally to a file as well — mirroring the source's Log class
// (tag + optional file, DEBUG/INFO/WARNING/ERROR levels).
type Logger struct {
	slog *slog.Logger
	tag  string
	file *os.File
}

// Option configures a Logger at construction.
type Option func(*config)

type config struct {
	level     slog.Level
	filePath  string
	clearFile bool
	tag       string
}

// Level sets the minimum level written (DEBUG, INFO, WARNING, ERROR).
func Level(levelName string) Option {
	return func(c *config) { c.level = parseLevel(levelName) }
}

// File directs a copy of every log line to the named file in addition to
// stdout.
func File(path string) Option {
	return func(c *config) { c.filePath = path }
}

// Clear truncates the log file (if one is configured) at construction,
// mirroring the source's Log(clear=True) option.
func Clear() Option {
	return func(c *config) { c.clearFile = true }
}

// Tag prefixes every log line with tag (e.g. "Client" or "Server"),
// mirroring the source's per-role tagging.
func Tag(tag string) Option {
	return func(c *config) { c.tag = tag }
}

// New builds a Logger from the given options.
func New(opts ...Option) (*Logger, error) {
	c := config{level: slog.LevelInfo}
	for _, opt := range opts {
		opt(&c)
	}

	var file *os.File
	writers := []io.Writer{os.Stdout}
	if c.filePath != "" {
		flag := os.O_CREATE | os.O_WRONLY | os.O_APPEND
		if c.clearFile {
			flag = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
		}
		f, err := os.OpenFile(c.filePath, flag, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logger: open log file %q: %w", c.filePath, err)
		}
		file = f
		writers = append(writers, f)
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: c.level})
	return &Logger{slog: slog.New(handler), tag: c.tag, file: file}, nil
}

// Close releases the log file, if one was opened.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func (l *Logger) Debug(msg string) { l.slog.Debug(l.format(msg)) }
func (l *Logger) Info(msg string)  { l.slog.Info(l.format(msg)) }
func (l *Logger) Warn(msg string)  { l.slog.Warn(l.format(msg)) }
func (l *Logger) Error(msg string) { l.slog.Error(l.format(msg)) }

func (l *Logger) format(msg string) string {
	if l.tag == "" {
		return msg
	}
	return fmt.Sprintf("%s - %s", l.tag, msg)
}

func parseLevel(name string) slog.Level {
	switch name {
	case "DEBUG":
		return slog.LevelDebug
	case "WARNING", "WARN":
		return slog.LevelWarn
	case "ERROR", "CRITICAL":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
