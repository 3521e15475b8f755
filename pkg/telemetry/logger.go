package telemetry

import (
	"context"
	"log/slog"

	"github.com/petrijr/jobseal/pkg/api"
)

// SlogLogger writes api.Logger messages as structured slog records.
type SlogLogger struct {
	Logger *slog.Logger
}

var _ api.Logger = (*SlogLogger)(nil)

// NewSlogLogger wraps logger. If logger is nil, slog.Default() is used.
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{Logger: logger}
}

func (l *SlogLogger) Log(ctx context.Context, msg string, data map[string]any) {
	attrs := make([]any, 0, len(data))
	for k, v := range data {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.Logger.InfoContext(ctx, msg, attrs...)
}

func (l *SlogLogger) Error(ctx context.Context, err error) {
	l.Logger.ErrorContext(ctx, "job_error", slog.Any("error", err))
}
