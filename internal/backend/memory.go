package backend

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/jobseal/pkg/api"
	"github.com/petrijr/jobseal/pkg/store"
)

type memKey struct {
	path string
	id   string
}

type memRecord struct {
	seq          uint64
	body         []byte
	claimedUntil time.Time
}

// Memory is a non-durable Backend for tests and single-process setups.
// It is safe for concurrent use and notifies watchers on every change.
type Memory struct {
	mu       sync.Mutex
	seq      uint64
	records  map[memKey]*memRecord
	watchers map[memKey]map[chan struct{}]struct{}
	closed   bool
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		records:  make(map[memKey]*memRecord),
		watchers: make(map[memKey]map[chan struct{}]struct{}),
	}
}

var (
	_ store.Backend = (*Memory)(nil)
	_ store.Watcher = (*Memory)(nil)
)

func (m *Memory) Insert(ctx context.Context, path string, doc api.Document) (string, error) {
	id := uuid.NewString()
	if err := m.put(path, id, doc, true); err != nil {
		return "", err
	}
	return id, nil
}

func (m *Memory) Get(ctx context.Context, path, id string) (api.Document, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, store.ErrClosed
	}
	rec, ok := m.records[memKey{path, id}]
	if !ok {
		m.mu.Unlock()
		return nil, store.ErrNotFound
	}
	body := rec.body
	m.mu.Unlock()

	return store.DecodeDocument(body)
}

func (m *Memory) Put(ctx context.Context, path, id string, doc api.Document) error {
	return m.put(path, id, doc, false)
}

func (m *Memory) put(path, id string, doc api.Document, mustBeNew bool) error {
	body, err := store.EncodeDocument(doc)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return store.ErrClosed
	}

	k := memKey{path, id}
	if rec, ok := m.records[k]; ok && !mustBeNew {
		rec.body = body
	} else {
		m.seq++
		m.records[k] = &memRecord{seq: m.seq, body: body}
	}
	m.notifyLocked(k)
	return nil
}

func (m *Memory) Delete(ctx context.Context, path, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return store.ErrClosed
	}

	k := memKey{path, id}
	if _, ok := m.records[k]; !ok {
		return nil
	}
	delete(m.records, k)
	m.notifyLocked(k)
	return nil
}

func (m *Memory) Claim(ctx context.Context, path string, lease time.Duration) (string, api.Document, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", nil, store.ErrClosed
	}

	now := time.Now()
	var (
		bestID  string
		bestRec *memRecord
	)
	for k, rec := range m.records {
		if k.path != path || rec.claimedUntil.After(now) {
			continue
		}
		if bestRec == nil || rec.seq < bestRec.seq {
			bestID, bestRec = k.id, rec
		}
	}
	if bestRec == nil {
		m.mu.Unlock()
		return "", nil, store.ErrEmpty
	}
	bestRec.claimedUntil = now.Add(lease)
	body := bestRec.body
	m.mu.Unlock()

	doc, err := store.DecodeDocument(body)
	if err != nil {
		return "", nil, err
	}
	return bestID, doc, nil
}

func (m *Memory) Release(ctx context.Context, path, id string, delay time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return store.ErrClosed
	}
	if rec, ok := m.records[memKey{path, id}]; ok {
		rec.claimedUntil = time.Time{}
		if delay > 0 {
			rec.claimedUntil = time.Now().Add(delay)
		}
	}
	return nil
}

// Watch implements store.Watcher.
func (m *Memory) Watch(ctx context.Context, path, id string) (<-chan api.Document, error) {
	k := memKey{path, id}
	notify := make(chan struct{}, 1)
	notify <- struct{}{}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, store.ErrClosed
	}
	if m.watchers[k] == nil {
		m.watchers[k] = make(map[chan struct{}]struct{})
	}
	m.watchers[k][notify] = struct{}{}
	m.mu.Unlock()

	out := make(chan api.Document, 1)
	go func() {
		defer close(out)
		defer m.unwatch(k, notify)

		for {
			select {
			case <-ctx.Done():
				return
			case <-notify:
			}

			doc, err := m.Get(ctx, path, id)
			if errors.Is(err, store.ErrNotFound) {
				send(ctx, out, nil)
				return
			}
			if err != nil {
				return
			}
			if !send(ctx, out, doc) {
				return
			}
		}
	}()
	return out, nil
}

func (m *Memory) unwatch(k memKey, ch chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.watchers[k], ch)
	if len(m.watchers[k]) == 0 {
		delete(m.watchers, k)
	}
}

func (m *Memory) notifyLocked(k memKey) {
	for ch := range m.watchers[k] {
		select {
		case ch <- struct{}{}:
		default:
			// A notification is already pending; the watcher reads the
			// latest state anyway.
		}
	}
}

// Len returns the number of records under path.
func (m *Memory) Len(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.records {
		if k.path == path {
			n++
		}
	}
	return n
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for k := range m.watchers {
		m.notifyLocked(k)
	}
	return nil
}

func send(ctx context.Context, ch chan<- api.Document, doc api.Document) bool {
	select {
	case ch <- doc:
		return true
	case <-ctx.Done():
		return false
	}
}
