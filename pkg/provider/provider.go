// Package provider is a store-backed job provider: it claims job records
// from one queue, dispatches them to the registered handler and deletes
// them once the handler reports completion.
//
// Failed jobs are released for another attempt until MaxAttempts is
// reached, after which they are logged and dropped. Claims are leased, so
// jobs held by a crashed process become claimable again once the lease
// runs out.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/petrijr/jobseal/pkg/api"
	"github.com/petrijr/jobseal/pkg/store"
)

// ErrLeaseExpired completes a job whose handler did not call complete
// before its lease ran out.
var ErrLeaseExpired = errors.New("provider: job not completed before its lease expired")

const (
	defaultLease        = 5 * time.Minute
	defaultPollInterval = 100 * time.Millisecond
	defaultMaxAttempts  = 3
)

// Provider implements api.Provider on top of a store.Store.
type Provider struct {
	store        *store.Store
	queue        api.QueueType
	path         string
	concurrency  int
	lease        time.Duration
	pollInterval time.Duration
	maxAttempts  int
	backoff      Backoff
	logger       *slog.Logger

	mu      sync.Mutex
	handler api.Handler
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

var _ api.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithQueueType selects the queue to consume. Default is api.QueueDefault.
func WithQueueType(q api.QueueType) Option {
	return func(p *Provider) { p.queue = q }
}

// WithConcurrency sets how many jobs run in parallel. Default 1.
func WithConcurrency(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithLease sets how long a claimed job stays invisible to other workers.
func WithLease(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.lease = d
		}
	}
}

// WithPollInterval sets the wait between claim attempts on an empty queue.
func WithPollInterval(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

// WithMaxAttempts sets how often a job is tried before it is dropped.
func WithMaxAttempts(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithBackoff sets how long a failed job waits before it is retried.
// Default is Immediate().
func WithBackoff(b Backoff) Option {
	return func(p *Provider) { p.backoff = b }
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// New returns a Provider consuming from st.
func New(st *store.Store, opts ...Option) (*Provider, error) {
	if st == nil {
		return nil, api.ErrMissingStore
	}
	p := &Provider{
		store:        st,
		concurrency:  1,
		lease:        defaultLease,
		pollInterval: defaultPollInterval,
		maxAttempts:  defaultMaxAttempts,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.queue.Validate(); err != nil {
		return nil, err
	}
	p.path = p.queue.Path()
	return p, nil
}

// CreateWorker registers handler and starts the claim loops.
func (p *Provider) CreateWorker(handler api.Handler) error {
	if handler == nil {
		return api.ErrMissingProcessor
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handler != nil {
		return api.ErrWorkerAlreadyRegistered
	}
	p.handler = handler

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.loop(ctx, i)
	}

	p.logger.Info("worker_started",
		slog.String("queue", p.queue.String()),
		slog.String("path", p.path),
		slog.Int("concurrency", p.concurrency),
	)
	return nil
}

// Shutdown stops claiming new jobs and waits until in-flight jobs have
// completed or ctx ends. It is safe to call more than once.
func (p *Provider) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker_stopped", slog.String("queue", p.queue.String()))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Provider) loop(ctx context.Context, slot int) {
	defer p.wg.Done()

	// Use a reusable timer to avoid allocating one per idle poll.
	tmr := time.NewTimer(0)
	if !tmr.Stop() {
		<-tmr.C
	}
	defer tmr.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		processed, err := p.ProcessOne(ctx)
		if err != nil && ctx.Err() == nil {
			p.logger.Error("process_failed",
				slog.Int("slot", slot),
				slog.Any("error", err),
			)
		}
		if processed {
			continue
		}

		tmr.Reset(p.pollInterval)
		select {
		case <-ctx.Done():
			return
		case <-tmr.C:
		}
	}
}

// ProcessOne claims a single job and runs it to completion. A job that is
// not completed within the lease fails with ErrLeaseExpired.
// Returns (processed, error):
//   - processed == false, err == nil: nothing to claim
//   - processed == true: a job was claimed; err reports bookkeeping
//     failures, not the job's own outcome
func (p *Provider) ProcessOne(ctx context.Context) (bool, error) {
	p.mu.Lock()
	handler := p.handler
	p.mu.Unlock()
	if handler == nil {
		return false, api.ErrWorkerNotRegistered
	}

	rec, err := p.store.ClaimRecord(ctx, p.path, p.lease)
	if errors.Is(err, store.ErrEmpty) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	// In-flight jobs finish even when the claim loop is cancelled.
	runCtx := context.WithoutCancel(ctx)

	job, err := api.JobFromDocument(rec.ID(), rec.Data())
	if err != nil {
		p.logger.Error("job_dropped",
			slog.String("id", rec.ID()),
			slog.Any("error", err),
		)
		return true, rec.Delete(runCtx)
	}

	done := make(chan error, 1)
	var once sync.Once
	complete := func(err error) {
		once.Do(func() { done <- err })
	}

	if err := p.run(runCtx, handler, job, complete); err != nil {
		complete(err)
	}

	// Past the lease another worker may claim the record, so stop waiting.
	expired := time.NewTimer(p.lease)
	defer expired.Stop()
	select {
	case err = <-done:
	case <-expired.C:
		complete(ErrLeaseExpired)
		err = <-done
	}
	return true, p.finish(runCtx, rec, job, err)
}

func (p *Provider) run(ctx context.Context, handler api.Handler, job *api.Job, complete api.CompleteFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
		}
	}()
	return handler(ctx, job, complete)
}

func (p *Provider) finish(ctx context.Context, rec *store.Record, job *api.Job, jobErr error) error {
	if jobErr == nil {
		return rec.Delete(ctx)
	}

	attempts := job.Attempts + 1
	if attempts >= p.maxAttempts {
		p.logger.Error("job_dead",
			slog.String("id", job.ID),
			slog.String("type", job.Type),
			slog.Int("attempts", attempts),
			slog.Any("error", jobErr),
		)
		return rec.Delete(ctx)
	}

	delay := p.backoff.Delay(attempts)
	p.logger.Warn("job_failed",
		slog.String("id", job.ID),
		slog.String("type", job.Type),
		slog.Int("attempts", attempts),
		slog.Duration("retry_in", delay),
		slog.Any("error", jobErr),
	)
	if err := rec.Update(ctx, api.Document{api.FieldAttempts: attempts}); err != nil {
		return err
	}
	return rec.ReleaseAfter(ctx, delay)
}
