package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	defaultLogger *slog.Logger
	once          sync.Once
)

// Options configures the logger.
type Options struct {
	Debug  bool
	Format string    // "text" (default) or "json"
	Writer io.Writer // defaults to os.Stdout
}

// New builds a logger from opts without touching the global one.
func New(opts Options) *slog.Logger {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{
		Level: level,
		// Add source file information if in debug mode
		AddSource: opts.Debug,
	}

	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(handler)
}

// Init initializes the global logger. Only the first call has an effect.
func Init(opts Options) {
	once.Do(func() {
		defaultLogger = New(opts)
		slog.SetDefault(defaultLogger)
	})
}

func get() *slog.Logger {
	if defaultLogger == nil {
		Init(Options{Debug: os.Getenv("DEBUG") == "true"})
	}
	return defaultLogger
}

// Default returns the global logger.
func Default() *slog.Logger {
	return get()
}

// Debug logs at Debug level.
func Debug(msg string, args ...any) {
	get().Debug(msg, args...)
}

// Info logs at Info level.
func Info(msg string, args ...any) {
	get().Info(msg, args...)
}

// Warn logs at Warn level.
func Warn(msg string, args ...any) {
	get().Warn(msg, args...)
}

// Error logs at Error level.
func Error(msg string, args ...any) {
	get().Error(msg, args...)
}

// With returns a new logger with the given attributes.
func With(args ...any) *slog.Logger {
	return get().With(args...)
}
