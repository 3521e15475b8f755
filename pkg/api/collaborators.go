package api

import "context"

// CompleteFunc signals that a dispatched job is done. A nil error marks the
// job as processed.
type CompleteFunc func(err error)

// Handler processes a single dispatched job. It must eventually call
// complete. A returned error is handed to the provider as is.
type Handler func(ctx context.Context, job *Job, complete CompleteFunc) error

// Provider dequeues jobs and dispatches them to a registered handler.
type Provider interface {
	// CreateWorker registers handler and starts dispatching to it.
	CreateWorker(handler Handler) error

	// Shutdown stops accepting new jobs and waits for in-flight jobs to
	// finish or ctx to expire.
	Shutdown(ctx context.Context) error
}

// Logger receives job lifecycle messages.
type Logger interface {
	Log(ctx context.Context, msg string, data map[string]any)
	Error(ctx context.Context, err error)
}

// Tracker receives tracking events. Create must not block for long and
// has no failure channel.
type Tracker interface {
	Create(ctx context.Context, event TrackingEvent)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Log(context.Context, string, map[string]any) {}
func (NopLogger) Error(context.Context, error)                {}

// NopTracker discards every event.
type NopTracker struct{}

func (NopTracker) Create(context.Context, TrackingEvent) {}
