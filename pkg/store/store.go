package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/petrijr/jobseal/pkg/api"
)

const defaultPollInterval = 100 * time.Millisecond

// Store is the record-level view over a Backend that the submitter, the
// key gateway and the provider share.
type Store struct {
	backend      Backend
	pollInterval time.Duration
	logger       *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithPollInterval sets how often records are re-read for Sync on
// backends without native change notification.
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithLogger sets the logger used for background errors.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New wraps b.
func New(b Backend, opts ...Option) *Store {
	s := &Store{
		backend:      b,
		pollInterval: defaultPollInterval,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend { return s.backend }

// CreateRecord stores doc as a new record under path.
func (s *Store) CreateRecord(ctx context.Context, path string, doc api.Document) (*Record, error) {
	id, err := s.backend.Insert(ctx, path, doc)
	if err != nil {
		return nil, err
	}
	return newRecord(s, path, id, doc), nil
}

// FetchRecord loads the well-known record key in namespace name.
func (s *Store) FetchRecord(ctx context.Context, name, key string) (*Record, error) {
	doc, err := s.backend.Get(ctx, name, key)
	if err != nil {
		return nil, err
	}
	return newRecord(s, name, key, doc), nil
}

// PutRecord creates or replaces the well-known record key in namespace name.
func (s *Store) PutRecord(ctx context.Context, name, key string, doc api.Document) (*Record, error) {
	if err := s.backend.Put(ctx, name, key, doc); err != nil {
		return nil, err
	}
	return newRecord(s, name, key, doc), nil
}

// ClaimRecord claims the oldest available record under path.
// It returns ErrEmpty when there is none.
func (s *Store) ClaimRecord(ctx context.Context, path string, lease time.Duration) (*Record, error) {
	id, doc, err := s.backend.Claim(ctx, path, lease)
	if err != nil {
		return nil, err
	}
	return newRecord(s, path, id, doc), nil
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) watch(ctx context.Context, path, id string) (<-chan api.Document, error) {
	if w, ok := s.backend.(Watcher); ok {
		return w.Watch(ctx, path, id)
	}
	return pollWatch(ctx, s.backend, path, id, s.pollInterval, s.logger), nil
}
