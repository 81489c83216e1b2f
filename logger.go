package msgframe

import "log/slog"

// Logger is the interface for structured logging.
// *slog.Logger satisfies it; the example binary adapts zap to it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

func defaultLogger() Logger {
	return slog.Default()
}

// fieldLogger prefixes every entry with a fixed set of key-value pairs.
type fieldLogger struct {
	next   Logger
	fields []any
}

// withFields returns a Logger that adds fields to every entry of l.
func withFields(l Logger, fields ...any) Logger {
	if fl, ok := l.(*fieldLogger); ok {
		return &fieldLogger{next: fl.next, fields: append(append([]any{}, fl.fields...), fields...)}
	}
	return &fieldLogger{next: l, fields: fields}
}

func (l *fieldLogger) args(args []any) []any {
	return append(append(make([]any, 0, len(l.fields)+len(args)), l.fields...), args...)
}

func (l *fieldLogger) Debug(msg string, args ...any) { l.next.Debug(msg, l.args(args)...) }
func (l *fieldLogger) Info(msg string, args ...any)  { l.next.Info(msg, l.args(args)...) }
func (l *fieldLogger) Warn(msg string, args ...any)  { l.next.Warn(msg, l.args(args)...) }
func (l *fieldLogger) Error(msg string, args ...any) { l.next.Error(msg, l.args(args)...) }
