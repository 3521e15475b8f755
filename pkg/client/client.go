// Package client submits jobs to a queue.
//
// Usage:
//
//	sub, err := client.New(st, client.WithQueueType(api.QueueFast))
//
//	// Fire and forget.
//	rec, err := sub.AddJob(ctx, "send-email", data, map[string]any{"token": tok})
//
//	// Block until a worker has consumed the job.
//	err = sub.PerformJob(ctx, "render-report", data, nil)
package client

import (
	"context"
	"errors"
	"time"

	"github.com/petrijr/jobseal/internal/sanitize"
	"github.com/petrijr/jobseal/pkg/api"
	"github.com/petrijr/jobseal/pkg/sealer"
	"github.com/petrijr/jobseal/pkg/store"
	"github.com/petrijr/jobseal/pkg/telemetry"
)

// Submitter creates job records in one queue.
type Submitter struct {
	store   *store.Store
	gateway *sealer.Gateway
	queue   api.QueueType
	path    string
	logger  api.Logger

	performTimeout time.Duration
}

// Option configures a Submitter.
type Option func(*Submitter)

// WithQueueType selects the queue. Default is api.QueueDefault.
func WithQueueType(q api.QueueType) Option {
	return func(s *Submitter) { s.queue = q }
}

// WithGateway sets the gateway used for sensitive data. By default a
// gateway reading the public key from the submitter's store is used.
func WithGateway(g *sealer.Gateway) Option {
	return func(s *Submitter) { s.gateway = g }
}

// WithLogger sets where encryption failures are reported.
func WithLogger(l api.Logger) Option {
	return func(s *Submitter) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPerformTimeout bounds how long PerformJob waits for a worker.
// Zero, the default, waits until the caller's context ends.
func WithPerformTimeout(d time.Duration) Option {
	return func(s *Submitter) { s.performTimeout = d }
}

// New returns a Submitter writing to st. An invalid queue type is
// reported here rather than on first use.
func New(st *store.Store, opts ...Option) (*Submitter, error) {
	if st == nil {
		return nil, api.ErrMissingStore
	}
	s := &Submitter{
		store:  st,
		logger: telemetry.NewSlogLogger(nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.queue.Validate(); err != nil {
		return nil, err
	}
	s.path = s.queue.Path()
	if s.gateway == nil {
		s.gateway = sealer.NewGateway(st)
	}
	return s, nil
}

// Queue returns the queue type jobs are submitted to.
func (s *Submitter) Queue() api.QueueType { return s.queue }

// Path returns the storage namespace jobs are created under.
func (s *Submitter) Path() string { return s.path }

// AddJob sanitizes data and sensitive, seals sensitive when it is non-nil
// and creates the job record. The public key is fetched on the first job
// that carries sensitive data.
//
// Under sealer.PolicyContinue a sealing failure is logged and the job is
// created without the sensitive fragment. Storage errors are returned
// unmodified.
func (s *Submitter) AddJob(ctx context.Context, jobType string, data, sensitive map[string]any) (*store.Record, error) {
	if jobType == "" {
		return nil, api.ErrMissingJobType
	}

	job := &api.Job{
		Type: jobType,
		Data: sanitize.Map(data),
	}
	if job.Data == nil {
		job.Data = map[string]any{}
	}

	if sensitive != nil {
		key, err := s.gateway.EnsurePublicKey(ctx)
		if err != nil {
			return nil, err
		}

		sealed := s.gateway.Encrypt(sanitize.Map(sensitive), key)
		if sealed.OK() {
			job.EncryptedData = sealed.Envelope.EncryptedData
			job.EncryptedKey = sealed.Envelope.EncryptedKey
		} else {
			if s.gateway.Policy() == sealer.PolicyStrict {
				return nil, sealed.Err
			}
			s.logger.Error(ctx, sealed.Err)
		}
	}

	return s.store.CreateRecord(ctx, s.path, job.Document())
}

// PerformJob adds the job and blocks until a worker has consumed it, the
// configured perform timeout passes (api.ErrPerformTimeout) or ctx ends.
func (s *Submitter) PerformJob(ctx context.Context, jobType string, data, sensitive map[string]any) error {
	rec, err := s.AddJob(ctx, jobType, data, sensitive)
	if err != nil {
		return err
	}
	return s.Wait(ctx, rec)
}

// Wait blocks until rec is gone from storage, which is how a consumed job
// shows up. It honours the perform timeout like PerformJob.
func (s *Submitter) Wait(ctx context.Context, rec *store.Record) error {
	if s.performTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, s.performTimeout, api.ErrPerformTimeout)
		defer cancel()
	}

	sub, err := rec.Sync(ctx)
	if err != nil {
		return err
	}
	defer sub.Unsync()

	for {
		select {
		case doc, ok := <-sub.Changes():
			if !ok {
				return waitErr(ctx)
			}
			if doc == nil {
				return nil
			}
		case <-ctx.Done():
			return waitErr(ctx)
		}
	}
}

func waitErr(ctx context.Context) error {
	if ctx.Err() == nil {
		return api.ErrSubscriptionEnded
	}
	if cause := context.Cause(ctx); errors.Is(cause, api.ErrPerformTimeout) {
		return cause
	}
	return ctx.Err()
}
