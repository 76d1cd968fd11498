package logger

import (
	"os"
	"sort"
	"strings"

	cblog "github.com/charmbracelet/log"
)

// Options describes logger configuration supplied at creation time.
type Options struct {
	Level         string
	HumanReadable bool
	Writer        interface {
		Write([]byte) (int, error)
	}
	Layer     string
	Component string
}

// Logger wraps charmbracelet/log, the teacher's own structured-logging
// library, carrying a persistent layer/component prefix the way every
// teacher subsystem (engine, plugins, infrastructure) tagged its own log
// lines. spec.md §5 requires each task worker to construct its own
// fresh logger with step/index fields rather than share the parent's.
type Logger struct {
	base *cblog.Logger
}

// New creates a configured Logger instance based on Options.
func New(opts Options) (*Logger, error) {
	layer := opts.Layer
	if layer == "" {
		layer = "sc"
	}
	component := opts.Component
	if component == "" {
		component = "sc"
	}

	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}

	base := cblog.NewWithOptions(writer, cblog.Options{
		ReportTimestamp: true,
		TimeFormat:      "2006-01-02T15:04:05Z07:00",
	})

	level, err := cblog.ParseLevel(levelOrDefault(opts.Level))
	if err != nil {
		return nil, err
	}
	base.SetLevel(level)

	if !opts.HumanReadable {
		base.SetFormatter(cblog.JSONFormatter)
	}

	base = base.With("layer", layer, "component", component)

	return &Logger{base: base}, nil
}

func levelOrDefault(level string) string {
	if strings.TrimSpace(level) == "" {
		return "info"
	}
	return level
}

// WithFields returns a derived logger that always writes the supplied fields.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	if l == nil || l.base == nil || len(fields) == 0 {
		return l
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	args := make([]interface{}, 0, len(fields)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}

	return &Logger{base: l.base.With(args...)}
}

// Info writes an informational log entry.
func (l *Logger) Info(msg string) {
	if l == nil || l.base == nil {
		return
	}
	l.base.Info(strings.TrimSpace(msg))
}

// Debug writes a debug-level log entry if enabled.
func (l *Logger) Debug(msg string) {
	if l == nil || l.base == nil {
		return
	}
	l.base.Debug(strings.TrimSpace(msg))
}

// Warn writes a warning level log entry.
func (l *Logger) Warn(msg string) {
	if l == nil || l.base == nil {
		return
	}
	l.base.Warn(strings.TrimSpace(msg))
}

// Error writes an error log entry including the supplied error context.
func (l *Logger) Error(err error, msg string) {
	if l == nil || l.base == nil {
		return
	}
	if err != nil {
		l.base.Error(strings.TrimSpace(msg), "error", err)
		return
	}
	l.base.Error(strings.TrimSpace(msg))
}

// ForTask derives a logger carrying step/index fields, used to satisfy
// spec.md §5's "Logger lifecycle": every worker constructs its own fresh
// logger with step,index in its prefix rather than sharing the parent's.
func (l *Logger) ForTask(step, index string) *Logger {
	return l.WithFields(map[string]any{"step": step, "index": index})
}
