package asdf

import (
	"fmt"
	"log/slog"
)

// Diagnostic is a single non-fatal or fatal condition surfaced by the
// engine. It always names a stable Kind sentinel from errors.go so callers
// can test with errors.Is, a human-readable Message, and an optional
// pointer into the tree (Path) or the file (Offset).
type Diagnostic struct {
	Kind    error
	Message string
	Path    string
	Offset  int64
}

// NewDiagnostic constructs a Diagnostic with no tree/byte pointer.
func NewDiagnostic(kind error, message string) Diagnostic {
	return Diagnostic{Kind: kind, Message: message, Offset: -1}
}

// WithPath returns a copy of d with Path set.
func (d Diagnostic) WithPath(path string) Diagnostic {
	d.Path = path
	return d
}

// WithOffset returns a copy of d with Offset set.
func (d Diagnostic) WithOffset(offset int64) Diagnostic {
	d.Offset = offset
	return d
}

// Error renders the diagnostic as it would appear wrapped in a Go error.
func (d Diagnostic) Error() string {
	if d.Path != "" {
		return fmt.Sprintf("%v: %s (at %s)", d.Kind, d.Message, d.Path)
	}

	return fmt.Sprintf("%v: %s", d.Kind, d.Message)
}

// Unwrap exposes the Kind sentinel to errors.Is / errors.As.
func (d Diagnostic) Unwrap() error {
	return d.Kind
}

// LogAttrs renders the diagnostic as slog attributes for structured logging.
func (d Diagnostic) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("kind", d.Kind.Error()),
		slog.String("message", d.Message),
	}

	if d.Path != "" {
		attrs = append(attrs, slog.String("path", d.Path))
	}

	if d.Offset >= 0 {
		attrs = append(attrs, slog.Int64("offset", d.Offset))
	}

	return attrs
}

// DiagnosticSink accumulates diagnostics raised during an operation and
// optionally forwards them to a logger. FileFacade embeds one so warnings
// raised deep inside converters/validators surface to the caller without
// threading an error return through every call.
type DiagnosticSink struct {
	logger      *slog.Logger
	diagnostics []Diagnostic
}

// NewDiagnosticSink creates a sink that also logs each diagnostic at
// slog.LevelWarn through logger. A nil logger disables logging.
func NewDiagnosticSink(logger *slog.Logger) *DiagnosticSink {
	return &DiagnosticSink{logger: logger}
}

// Add records d and, if a logger is configured, logs it at warn level.
func (s *DiagnosticSink) Add(d Diagnostic) {
	s.diagnostics = append(s.diagnostics, d)

	if s.logger != nil {
		attrs := d.LogAttrs()
		args := make([]any, 0, len(attrs))
		for _, a := range attrs {
			args = append(args, a)
		}

		s.logger.Warn("asdf diagnostic", args...)
	}
}

// Diagnostics returns all diagnostics recorded so far, oldest first.
func (s *DiagnosticSink) Diagnostics() []Diagnostic {
	return s.diagnostics
}

// HasFatal reports whether any recorded diagnostic matches one of the given
// fatal kinds.
func (s *DiagnosticSink) HasFatal(fatalKinds ...error) bool {
	for _, d := range s.diagnostics {
		for _, k := range fatalKinds {
			if d.Kind == k {
				return true
			}
		}
	}

	return false
}

// Reset clears all recorded diagnostics.
func (s *DiagnosticSink) Reset() {
	s.diagnostics = nil
}
