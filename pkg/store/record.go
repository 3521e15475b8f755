package store

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/petrijr/jobseal/pkg/api"
)

// Record is a handle to a single stored document. It caches the last
// known data; Refresh re-reads it.
type Record struct {
	store *Store
	path  string
	id    string

	mu   sync.RWMutex
	data api.Document
}

func newRecord(s *Store, path, id string, doc api.Document) *Record {
	return &Record{store: s, path: path, id: id, data: doc}
}

func (r *Record) ID() string   { return r.id }
func (r *Record) Path() string { return r.path }

// Name is the record's full address, path/id.
func (r *Record) Name() string { return r.path + "/" + r.id }

// Data returns a shallow copy of the last known document.
func (r *Record) Data() api.Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.data == nil {
		return nil
	}
	return maps.Clone(r.data)
}

// Refresh re-reads the document from the backend.
func (r *Record) Refresh(ctx context.Context) error {
	doc, err := r.store.backend.Get(ctx, r.path, r.id)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.data = doc
	r.mu.Unlock()
	return nil
}

// Update merges patch into the document and persists it. A nil value in
// patch removes the key.
func (r *Record) Update(ctx context.Context, patch api.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(api.Document, len(r.data)+len(patch))
	maps.Copy(next, r.data)
	for k, v := range patch {
		if v == nil {
			delete(next, k)
			continue
		}
		next[k] = v
	}

	if err := r.store.backend.Put(ctx, r.path, r.id, next); err != nil {
		return err
	}
	r.data = next
	return nil
}

// Delete removes the record.
func (r *Record) Delete(ctx context.Context) error {
	if err := r.store.backend.Delete(ctx, r.path, r.id); err != nil {
		return err
	}
	r.mu.Lock()
	r.data = nil
	r.mu.Unlock()
	return nil
}

// Release drops a claim taken with Store.ClaimRecord.
func (r *Record) Release(ctx context.Context) error {
	return r.store.backend.Release(ctx, r.path, r.id, 0)
}

// ReleaseAfter drops the claim but keeps the record invisible to Claim
// for delay.
func (r *Record) ReleaseAfter(ctx context.Context, delay time.Duration) error {
	return r.store.backend.Release(ctx, r.path, r.id, delay)
}

// Sync subscribes to changes of the record. The first value is the
// current document; a nil value means the record is gone and is always
// the last one delivered.
func (r *Record) Sync(ctx context.Context) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	src, err := r.store.watch(ctx, r.path, r.id)
	if err != nil {
		cancel()
		return nil, err
	}

	sub := &Subscription{
		changes: make(chan api.Document, 1),
		cancel:  cancel,
	}
	go sub.forward(ctx, r, src)
	return sub, nil
}

// Subscription delivers change notifications of one record.
type Subscription struct {
	changes chan api.Document
	cancel  context.CancelFunc
	once    sync.Once
}

// Changes returns the notification channel. It is closed after the
// record is gone or Unsync is called.
func (s *Subscription) Changes() <-chan api.Document { return s.changes }

// Unsync stops the subscription. It is safe to call more than once.
func (s *Subscription) Unsync() {
	s.once.Do(s.cancel)
}

func (s *Subscription) forward(ctx context.Context, r *Record, src <-chan api.Document) {
	defer close(s.changes)
	for {
		select {
		case <-ctx.Done():
			return
		case doc, ok := <-src:
			if !ok {
				return
			}
			r.mu.Lock()
			r.data = doc
			r.mu.Unlock()

			select {
			case s.changes <- doc:
			case <-ctx.Done():
				return
			}
			if doc == nil {
				return
			}
		}
	}
}
