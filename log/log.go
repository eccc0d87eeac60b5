package log

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-logfmt/logfmt"
)

// Handler is a [slog.Handler]; re-exported so callers need only import this
// package to wire up [slog.New].
type Handler = slog.Handler

// Level represents a logging severity, parsed from a CLI flag or config
// value rather than slog's own int-based [slog.Level].
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format represents the log output format.
type Format string

const (
	// FormatJSON outputs logs as JSON objects.
	FormatJSON Format = "json"
	// FormatLogfmt outputs logs in logfmt key=value format, encoded with
	// [github.com/go-logfmt/logfmt].
	FormatLogfmt Format = "logfmt"
	// FormatText outputs logs in slog's default human-readable format.
	FormatText Format = "text"
)

var (
	// ErrInvalidArgument indicates an invalid argument was provided.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnknownLogLevel indicates an unrecognized log level string.
	ErrUnknownLogLevel = errors.New("unknown log level")
	// ErrUnknownLogFormat indicates an unrecognized log format string.
	ErrUnknownLogFormat = errors.New("unknown log format")
)

// ParseLevel parses a log level string, case-insensitively, accepting
// "warning" as an alias of "warn".
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(level) {
	case "error":
		return LevelError, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "info":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	}

	return "", ErrUnknownLogLevel
}

// ParseFormat parses a log format string, case-insensitively.
func ParseFormat(format string) (Format, error) {
	f := Format(strings.ToLower(format))
	if slices.Contains([]Format{FormatJSON, FormatLogfmt, FormatText}, f) {
		return f, nil
	}

	return "", ErrUnknownLogFormat
}

// GetAllLevelStrings lists every recognized level string, for flag usage
// text and shell completion.
func GetAllLevelStrings() []string {
	return []string{string(LevelDebug), string(LevelInfo), string(LevelWarn), string(LevelError)}
}

// GetAllFormatStrings lists every recognized format string, for flag usage
// text and shell completion.
func GetAllFormatStrings() []string {
	return []string{string(FormatJSON), string(FormatLogfmt), string(FormatText)}
}

func slogLevel(level Level) slog.Level {
	switch level {
	case LevelError:
		return slog.LevelError
	case LevelWarn:
		return slog.LevelWarn
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	}

	return slog.LevelInfo
}

// NewHandlerFromStrings parses level and format strings and delegates to
// [NewHandler].
func NewHandlerFromStrings(w io.Writer, level, format string) (Handler, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	fmt_, err := ParseFormat(format)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	return NewHandler(w, lvl, fmt_), nil
}

// NewHandler creates a [Handler] writing to w at the given level and format.
func NewHandler(w io.Writer, level Level, format Format) Handler {
	lvl := slogLevel(level)

	switch format {
	case FormatJSON:
		return slog.NewJSONHandler(w, &slog.HandlerOptions{
			AddSource: true,
			Level:     lvl,
		})
	case FormatText:
		return slog.NewTextHandler(w, &slog.HandlerOptions{
			AddSource: true,
			Level:     lvl,
		})
	case FormatLogfmt:
		return newLogfmtHandler(w, lvl)
	}

	return nil
}

// logfmtHandler is a [slog.Handler] that writes records through
// [github.com/go-logfmt/logfmt], the same encoder MacroPower-x's own
// dependency set carries (indirectly, via its TUI logger) but never calls
// directly -- this package is where it gets a real caller.
type logfmtHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func newLogfmtHandler(w io.Writer, level slog.Level) *logfmtHandler {
	return &logfmtHandler{mu: &sync.Mutex{}, w: w, level: level}
}

func (h *logfmtHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *logfmtHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	enc := logfmt.NewEncoder(h.w)

	if !r.Time.IsZero() {
		if err := enc.EncodeKeyval("time", r.Time.Format(time.RFC3339)); err != nil {
			return fmt.Errorf("logfmt encode time: %w", err)
		}
	}

	if err := enc.EncodeKeyval("level", r.Level.String()); err != nil {
		return fmt.Errorf("logfmt encode level: %w", err)
	}

	if err := enc.EncodeKeyval("msg", r.Message); err != nil {
		return fmt.Errorf("logfmt encode msg: %w", err)
	}

	for _, a := range h.attrs {
		if err := h.encodeAttr(enc, a); err != nil {
			return err
		}
	}

	var encErr error

	r.Attrs(func(a slog.Attr) bool {
		if err := h.encodeAttr(enc, a); err != nil {
			encErr = err
			return false
		}

		return true
	})

	if encErr != nil {
		return encErr
	}

	if err := enc.EndRecord(); err != nil {
		return fmt.Errorf("logfmt end record: %w", err)
	}

	return nil
}

func (h *logfmtHandler) encodeAttr(enc *logfmt.Encoder, a slog.Attr) error {
	key := a.Key
	if len(h.groups) > 0 {
		key = strings.Join(h.groups, ".") + "." + key
	}

	if err := enc.EncodeKeyval(key, a.Value.Any()); err != nil {
		return fmt.Errorf("logfmt encode %s: %w", key, err)
	}

	return nil
}

func (h *logfmtHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)

	return &nh
}

func (h *logfmtHandler) WithGroup(name string) slog.Handler {
	nh := *h
	nh.groups = append(append([]string(nil), h.groups...), name)

	return &nh
}
