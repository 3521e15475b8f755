package store

import (
	"context"
	"errors"
	"time"

	"github.com/petrijr/jobseal/pkg/api"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("store: record not found")

	// ErrEmpty is returned by Claim when no record is claimable.
	ErrEmpty = errors.New("store: nothing to claim")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store: closed")
)

// Backend is the persistence contract each storage technology implements.
// Records are addressed by a path (namespace) and an ID unique within it.
type Backend interface {
	// Insert stores doc under a new ID and returns that ID.
	Insert(ctx context.Context, path string, doc api.Document) (string, error)

	// Get returns the current document or ErrNotFound.
	Get(ctx context.Context, path, id string) (api.Document, error)

	// Put creates or replaces the document. An existing claim is kept.
	Put(ctx context.Context, path, id string, doc api.Document) error

	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, path, id string) error

	// Claim returns the oldest record under path that is not claimed, or
	// whose claim is older than its lease, and claims it for lease.
	// It returns ErrEmpty when nothing is claimable.
	Claim(ctx context.Context, path string, lease time.Duration) (string, api.Document, error)

	// Release drops the claim on a record. With a positive delay the
	// record becomes claimable again only after delay has passed.
	Release(ctx context.Context, path, id string, delay time.Duration) error

	Close() error
}

// Watcher is implemented by backends that push change notifications.
//
// The returned channel receives the current document right after the
// subscription is established and again on every change. When the record
// is deleted (or never existed) a nil document is sent and the channel is
// closed. The channel is also closed when ctx is done.
type Watcher interface {
	Watch(ctx context.Context, path, id string) (<-chan api.Document, error)
}
