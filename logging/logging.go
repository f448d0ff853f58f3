// Package logging sets up the slog logger used by switchres and lets a host
// application receive log messages through per-level callbacks.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options for Setup.
type Options struct {
	// error, info, debug or verbose
	Level string

	// rotating log file, none if empty
	File string

	// defaults to os.Stdout
	Output io.Writer
}

var logFile *lumberjack.Logger

// ParseLevel converts a configuration level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "error":
		return slog.LevelError, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "debug", "verbose":
		return slog.LevelDebug, nil
	}
	return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", s)
}

// Setup builds the logger, makes it the slog default and returns it. Any
// callbacks registered with SetCallbacks receive its messages as well.
func Setup(opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	writers := []io.Writer{out}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
		Close()
		logFile = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     7, // days
		}
		writers = append(writers, logFile)
	}

	text := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: level})
	log := slog.New(&fanout{next: text, level: level})
	slog.SetDefault(log)

	return log, nil
}

// Close closes the log file, if any.
func Close() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// Callback receives a formatted log message.
type Callback func(msg string)

var callbacks struct {
	sync.RWMutex
	err, info, debug Callback
}

// SetCallbacks registers the functions that receive error, info and debug
// messages. A nil callback disables that level.
func SetCallbacks(errorFn, infoFn, debugFn Callback) {
	callbacks.Lock()
	defer callbacks.Unlock()
	callbacks.err, callbacks.info, callbacks.debug = errorFn, infoFn, debugFn
}

func callbackFor(l slog.Level) Callback {
	callbacks.RLock()
	defer callbacks.RUnlock()
	switch {
	case l >= slog.LevelError:
		return callbacks.err
	case l >= slog.LevelInfo:
		return callbacks.info
	}
	return callbacks.debug
}

// fanout passes records to the next handler and to the registered callback
// for the record's level.
type fanout struct {
	next  slog.Handler
	level slog.Level
	attrs []slog.Attr
	group string
}

func (h *fanout) Enabled(ctx context.Context, l slog.Level) bool {
	return l >= h.level
}

func (h *fanout) Handle(ctx context.Context, r slog.Record) error {
	if fn := callbackFor(r.Level); fn != nil {
		fn(h.format(r))
	}
	return h.next.Handle(ctx, r)
}

func (h *fanout) format(r slog.Record) string {
	s := strings.Builder{}
	s.WriteString(r.Message)

	prefix := ""
	if h.group != "" {
		prefix = h.group + "."
	}
	write := func(a slog.Attr) bool {
		s.WriteString(fmt.Sprintf(" %s%s=%v", prefix, a.Key, a.Value.Any()))
		return true
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(write)

	return s.String()
}

func (h *fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.next = h.next.WithAttrs(attrs)
	c.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &c
}

func (h *fanout) WithGroup(name string) slog.Handler {
	c := *h
	c.next = h.next.WithGroup(name)
	if c.group != "" {
		c.group += "." + name
	} else {
		c.group = name
	}
	return &c
}
