// Package logger provides structured logging for bsdb.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with bsdb-specific functionality.
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // pretty-print for development
	Output     io.Writer
	WithCaller bool
}

// New creates a new structured logger.
func New(cfg Config) *Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	zlog := zerolog.New(output).
		With().
		Timestamp().
		Str("service", "bsdb").
		Logger().Level(level)

	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}

	return &Logger{zlog: zlog}
}

// Nop returns a logger that discards everything, for tests that don't care.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// GetZerolog returns the underlying zerolog logger.
func (l *Logger) GetZerolog() *zerolog.Logger {
	return &l.zlog
}

// Info logs an info message.
func (l *Logger) Info(msg string) *zerolog.Event {
	return l.zlog.Info().Str("msg", msg)
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) *zerolog.Event {
	return l.zlog.Debug().Str("msg", msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) *zerolog.Event {
	return l.zlog.Warn().Str("msg", msg)
}

// Error logs an error message.
func (l *Logger) Error(msg string) *zerolog.Event {
	return l.zlog.Error().Str("msg", msg)
}

// CacheLogger returns a logger scoped to the page cache.
func (l *Logger) CacheLogger() *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "pagecache").Logger()}
}

// StoreLogger returns a logger scoped to the record store.
func (l *Logger) StoreLogger() *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "recordstore").Logger()}
}

// TreeLogger returns a logger scoped to the index tree.
func (l *Logger) TreeLogger() *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "btree").Logger()}
}

// LogFlush logs the outcome of a page cache flush.
func (l *Logger) LogFlush(dirtyPages int, bytesWritten int64, duration time.Duration, err error) {
	event := l.zlog.Info().
		Int("dirty_pages", dirtyPages).
		Int64("bytes_written", bytesWritten).
		Dur("duration_ms", duration)

	if err != nil {
		event = l.zlog.Error().
			Int("dirty_pages", dirtyPages).
			Int64("bytes_written", bytesWritten).
			Dur("duration_ms", duration).
			Err(err)
	}

	event.Msg("page cache flush completed")
}

// LogEviction logs an LRU eviction, noting whether the page was dirty.
func (l *Logger) LogEviction(pageNumber uint64, wasDirty bool) {
	l.zlog.Debug().
		Uint64("page_number", pageNumber).
		Bool("was_dirty", wasDirty).
		Msg("evicted page from cache")
}

// LogSplit logs a tree node split.
func (l *Logger) LogSplit(nodeOffset uint64, upKey uint64, newRoot bool) {
	l.zlog.Debug().
		Uint64("node_offset", nodeOffset).
		Uint64("up_key", upKey).
		Bool("new_root", newRoot).
		Msg("tree node split")
}

// LogMerge logs a tree node merge or borrow.
func (l *Logger) LogMerge(nodeOffset uint64, action string) {
	l.zlog.Debug().
		Uint64("node_offset", nodeOffset).
		Str("action", action).
		Msg("tree underflow resolved")
}

// LogIntegrityFailure logs a checksum or structural integrity failure.
func (l *Logger) LogIntegrityFailure(offset uint64, reason string, err error) {
	l.zlog.Error().
		Uint64("offset", offset).
		Str("reason", reason).
		Err(err).
		Msg("integrity failure")
}
