package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/petrijr/jobseal/pkg/api"
	"github.com/petrijr/jobseal/pkg/store"
)

// TrackingEventsPath is the namespace StoreTracker writes to.
const TrackingEventsPath = "_trackingEvents"

// StoreTracker persists tracking events as records. Write failures are
// logged and otherwise ignored.
type StoreTracker struct {
	store   *store.Store
	logger  *slog.Logger
	timeout time.Duration
}

var _ api.Tracker = (*StoreTracker)(nil)

// NewStoreTracker returns a tracker writing to s. If logger is nil,
// slog.Default() is used.
func NewStoreTracker(s *store.Store, logger *slog.Logger) *StoreTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreTracker{store: s, logger: logger, timeout: 5 * time.Second}
}

func (t *StoreTracker) Create(ctx context.Context, event api.TrackingEvent) {
	// The job is already done; its context may be about to end.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.timeout)
	defer cancel()

	if _, err := t.store.CreateRecord(ctx, TrackingEventsPath, event.Document()); err != nil {
		t.logger.WarnContext(ctx, "tracking_event_dropped",
			slog.String("event", event.EventName),
			slog.Any("error", err),
		)
	}
}

// PrometheusTracker exports completion counts and durations per job type.
type PrometheusTracker struct {
	completed *prometheus.CounterVec
	failed    *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

var _ api.Tracker = (*PrometheusTracker)(nil)

// NewPrometheusTracker creates the collectors and registers them with reg.
// A nil reg skips registration.
func NewPrometheusTracker(reg prometheus.Registerer) (*PrometheusTracker, error) {
	t := &PrometheusTracker{
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobseal_jobs_completed_total",
			Help: "Total number of jobs whose processor called complete",
		}, []string{"type"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobseal_jobs_failed_total",
			Help: "Total number of jobs completed with an error",
		}, []string{"type"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jobseal_job_completion_seconds",
			Help:    "Time between dispatching a job to the processor and completion",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"type"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{t.completed, t.failed, t.duration} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return t, nil
}

func (t *PrometheusTracker) Create(_ context.Context, event api.TrackingEvent) {
	t.completed.WithLabelValues(event.JobType).Inc()
	if event.Failed {
		t.failed.WithLabelValues(event.JobType).Inc()
	}
	seconds := float64(event.EventData.JobCompletionTime) / 1000
	t.duration.WithLabelValues(event.JobType).Observe(seconds)
}

// Multi forwards events to every non-nil tracker.
func Multi(trackers ...api.Tracker) api.Tracker {
	filtered := make([]api.Tracker, 0, len(trackers))
	for _, tr := range trackers {
		if tr != nil {
			filtered = append(filtered, tr)
		}
	}
	switch len(filtered) {
	case 0:
		return api.NopTracker{}
	case 1:
		return filtered[0]
	}
	return multiTracker(filtered)
}

type multiTracker []api.Tracker

func (m multiTracker) Create(ctx context.Context, event api.TrackingEvent) {
	for _, tr := range m {
		tr.Create(ctx, event)
	}
}

// LogTracker writes tracking events to a slog.Logger at debug level.
type LogTracker struct {
	Logger *slog.Logger
}

func (t LogTracker) Create(ctx context.Context, event api.TrackingEvent) {
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.DebugContext(ctx, "job_completed",
		slog.String("event", event.EventName),
		slog.Time("happened_at", event.HappenedAt),
		slog.Int64("job_completion_ms", event.EventData.JobCompletionTime),
		slog.Bool("failed", event.Failed),
	)
}
