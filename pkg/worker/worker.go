package worker

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/petrijr/jobseal/pkg/api"
	"github.com/petrijr/jobseal/pkg/sealer"
	"github.com/petrijr/jobseal/pkg/telemetry"
)

// ProcessFunc processes one job. It must call complete exactly once,
// synchronously or later from another goroutine. Further calls are ignored.
// The store-backed provider fails a job that is still uncompleted when its
// lease runs out.
type ProcessFunc func(ctx context.Context, job *api.Job, complete api.CompleteFunc) error

// Manager registers a wrapped processor with a provider and coordinates
// its shutdown.
type Manager struct {
	keypair *sealer.Keypair
	gateway *sealer.Gateway
	logger  api.Logger
	tracker api.Tracker
	now     func() time.Time

	mu       sync.Mutex
	provider api.Provider
}

// Option configures a Manager.
type Option func(*Manager)

// WithKeypair sets the keypair used to open sensitive fragments. Without
// it, encrypted jobs are treated as a decryption failure.
func WithKeypair(kp *sealer.Keypair) Option {
	return func(m *Manager) { m.keypair = kp }
}

// WithGateway sets the gateway used for decryption, and with it the
// failure policy.
func WithGateway(g *sealer.Gateway) Option {
	return func(m *Manager) {
		if g != nil {
			m.gateway = g
		}
	}
}

// WithLogger sets the log collaborator. Default is a telemetry.SlogLogger
// over slog.Default().
func WithLogger(l api.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithTracker sets where completion events go. Default discards them.
func WithTracker(t api.Tracker) Option {
	return func(m *Manager) {
		if t != nil {
			m.tracker = t
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// New returns a Manager with the given options applied.
func New(opts ...Option) *Manager {
	m := &Manager{
		gateway: sealer.NewGateway(nil),
		logger:  telemetry.NewSlogLogger(nil),
		tracker: api.NopTracker{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateWorker wraps process and registers it with provider. A Manager
// drives a single worker.
func (m *Manager) CreateWorker(provider api.Provider, process ProcessFunc) error {
	if provider == nil {
		return api.ErrMissingProvider
	}
	if process == nil {
		return api.ErrMissingProcessor
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.provider != nil {
		return api.ErrWorkerAlreadyRegistered
	}
	if err := provider.CreateWorker(m.wrap(process)); err != nil {
		return err
	}
	m.provider = provider
	return nil
}

// Shutdown delegates to the registered provider's Shutdown.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	provider := m.provider
	m.mu.Unlock()
	if provider == nil {
		return api.ErrWorkerNotRegistered
	}
	return provider.Shutdown(ctx)
}

func (m *Manager) wrap(process ProcessFunc) api.Handler {
	return func(ctx context.Context, job *api.Job, complete api.CompleteFunc) error {
		return m.handle(ctx, process, job, complete)
	}
}

func (m *Manager) handle(ctx context.Context, process ProcessFunc, job *api.Job, complete api.CompleteFunc) error {
	start := m.now()
	m.logger.Log(ctx, "job_received", map[string]any{
		"type": job.Type,
		"data": job.Data,
	})

	var once sync.Once
	done := func(err error) {
		once.Do(func() {
			end := m.now()
			m.tracker.Create(ctx, api.TrackingEvent{
				EventName:  api.CompletedEventName(job.Type),
				HappenedAt: end,
				EventData: api.TrackingEventData{
					JobCompletionTime: end.Sub(start).Milliseconds(),
				},
				JobType: job.Type,
				Failed:  err != nil,
			})
			complete(err)
		})
	}

	if job.Encrypted() {
		if err := m.open(ctx, job); err != nil {
			done(err)
			return nil
		}
	}

	return process(ctx, job, done)
}

// open replaces job.Data with a merged copy holding the sensitive fragment
// and removes the encrypted fields. It returns an error only under the strict policy.
func (m *Manager) open(ctx context.Context, job *api.Job) error {
	out := m.gateway.Decrypt(sealer.Envelope{
		EncryptedData: job.EncryptedData,
		EncryptedKey:  job.EncryptedKey,
	}, m.keypair)
	job.ClearEncrypted()

	if !out.OK() {
		if m.gateway.Policy() == sealer.PolicyStrict {
			return out.Err
		}
		m.logger.Error(ctx, out.Err)
		return nil
	}

	data := make(map[string]any, len(job.Data)+len(out.Data))
	maps.Copy(data, job.Data)
	maps.Copy(data, out.Data)
	job.Data = data
	return nil
}
