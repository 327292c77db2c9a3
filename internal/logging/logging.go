// Package logging sets up the process-wide slog logger for hermes.
//
// Output goes to the console and, optionally, to a file rotated by
// lumberjack. Loggers obtained through WithComponent carry a "component"
// attribute and can be silenced per component.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileLogConfig holds configuration for file-based logging with rotation.
type FileLogConfig struct {
	// Path of the log file. Empty disables file logging.
	Path string
	// MaxSizeMB is the size at which the file is rotated.
	MaxSizeMB int
	// MaxBackups is the number of rotated files kept.
	MaxBackups int
	Compress   bool
}

// DefaultFileLogConfig returns the default file log configuration.
func DefaultFileLogConfig() FileLogConfig {
	return FileLogConfig{
		MaxSizeMB:  10,
		MaxBackups: 3,
	}
}

// Config holds logging configuration.
type Config struct {
	// Level is the minimum level for console output. Empty means info.
	Level string
	// FileLevel is the minimum level for file output. Empty means Level.
	FileLevel string
	File      *FileLogConfig
	JSON      bool
	// Components restricts output to the named components. Empty means all.
	Components []string
	// Console is where console logs go. Default: os.Stderr
	Console io.Writer
}

// state is the process-wide logging setup.
type state struct {
	mu      sync.RWMutex
	logger  *slog.Logger
	file    *lumberjack.Logger
	allowed map[string]bool // nil allows every component
}

var std state

// ParseLevel converts a level name to a slog.Level. Names are matched
// without regard to case; "warning" is accepted for "warn".
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
}

// Initialize replaces the global logger. Unknown level names fall back to
// info. A previously opened log file is closed.
func Initialize(cfg Config) error {
	consoleLevel, _ := ParseLevel(cfg.Level)
	fileLevel := consoleLevel
	if cfg.FileLevel != "" {
		fileLevel, _ = ParseLevel(cfg.FileLevel)
	}
	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}

	var allowed map[string]bool
	if len(cfg.Components) > 0 {
		allowed = make(map[string]bool, len(cfg.Components))
		for _, c := range cfg.Components {
			allowed[c] = true
		}
	}

	newHandler := func(w io.Writer, level slog.Level) slog.Handler {
		opts := &slog.HandlerOptions{Level: level}
		if cfg.JSON {
			return slog.NewJSONHandler(w, opts)
		}
		return slog.NewTextHandler(w, opts)
	}

	var file *lumberjack.Logger
	handler := newHandler(console, consoleLevel)
	if cfg.File != nil && cfg.File.Path != "" {
		file = rotatingFile(*cfg.File)
		if fileLevel == consoleLevel {
			handler = newHandler(io.MultiWriter(console, file), consoleLevel)
		} else {
			handler = fanout{handler, newHandler(file, fileLevel)}
		}
	}
	logger := slog.New(handler)

	std.mu.Lock()
	old := std.file
	std.logger, std.file, std.allowed = logger, file, allowed
	std.mu.Unlock()

	slog.SetDefault(logger)
	if old != nil {
		return old.Close()
	}
	return nil
}

func rotatingFile(fc FileLogConfig) *lumberjack.Logger {
	def := DefaultFileLogConfig()
	if fc.MaxSizeMB <= 0 {
		fc.MaxSizeMB = def.MaxSizeMB
	}
	if fc.MaxBackups < 0 {
		fc.MaxBackups = def.MaxBackups
	}
	return &lumberjack.Logger{
		Filename:   fc.Path,
		MaxSize:    fc.MaxSizeMB,
		MaxBackups: fc.MaxBackups,
		Compress:   fc.Compress,
	}
}

// Get returns the global logger, or slog.Default before Initialize.
func Get() *slog.Logger {
	std.mu.RLock()
	defer std.mu.RUnlock()
	if std.logger == nil {
		return slog.Default()
	}
	return std.logger
}

// Close closes the log file, if any.
func Close() error {
	std.mu.Lock()
	f := std.file
	std.file = nil
	std.mu.Unlock()
	if f == nil {
		return nil
	}
	return f.Close()
}

func componentAllowed(component string) bool {
	std.mu.RLock()
	defer std.mu.RUnlock()
	return std.allowed == nil || std.allowed[component]
}
