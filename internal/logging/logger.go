// Package logging provides structured logging with file and console output.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents logging levels
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Entry is a single log entry retained in the in-memory history.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Component string `json:"component"`
	Message   string `json:"message"`
}

// Logger wraps zerolog with file output and a bounded in-memory history.
type Logger struct {
	zlog    zerolog.Logger
	file    *os.File
	logPath string
	mu      sync.RWMutex
	history []Entry
	maxHist int
}

// Config holds logger configuration
type Config struct {
	LogDir     string   // Directory for log files (default: ~/.cortexvoice/logs)
	Level      LogLevel // Minimum log level (default: debug)
	MaxHistory int      // Max entries to keep in memory (default: 500)
	Console    bool     // Also log to console (default: true)
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		LogDir:     filepath.Join(home, ".cortexvoice", "logs"),
		Level:      LevelDebug,
		MaxHistory: 500,
		Console:    true,
	}
}

// New creates a new Logger with file and console output
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logFileName := fmt.Sprintf("cortexvoice_%s.log", time.Now().Format("2006-01-02"))
	logPath := filepath.Join(cfg.LogDir, logFileName)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	var writers []io.Writer
	writers = append(writers, file)

	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		})
	}

	level := zerolog.DebugLevel
	switch cfg.Level {
	case LevelInfo:
		level = zerolog.InfoLevel
	case LevelWarn:
		level = zerolog.WarnLevel
	case LevelError:
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	zlog := zerolog.New(io.MultiWriter(writers...)).With().
		Timestamp().
		Str("app", "cortexvoice").
		Logger()

	logger := &Logger{
		zlog:    zlog,
		file:    file,
		logPath: logPath,
		history: make([]Entry, 0, cfg.MaxHistory),
		maxHist: cfg.MaxHistory,
	}

	logger.zlog.Info().Str("logFile", logPath).Str("level", string(cfg.Level)).Msg("Logger initialized")
	return logger, nil
}

// Record appends an entry to the in-memory history.
func (l *Logger) Record(level, component, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.history = append(l.history, Entry{
		Timestamp: time.Now().Format("15:04:05.000"),
		Level:     level,
		Component: component,
		Message:   msg,
	})
	if len(l.history) > l.maxHist {
		l.history = l.history[len(l.history)-l.maxHist:]
	}
}

// History returns the most recent log entries, newest last.
func (l *Logger) History(limit int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > len(l.history) {
		limit = len(l.history)
	}

	result := make([]Entry, limit)
	copy(result, l.history[len(l.history)-limit:])
	return result
}

// LogPath returns the current log file path
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close closes the log file
func (l *Logger) Close() error {
	l.zlog.Info().Msg("Logger shutting down")
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Component returns a zerolog.Logger with the component field set.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.zlog.With().Str("component", name).Logger()
}

// Zerolog returns the underlying zerolog.Logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}
