package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/jobseal/internal/backend"
	"github.com/petrijr/jobseal/pkg/api"
	"github.com/petrijr/jobseal/pkg/sealer"
	"github.com/petrijr/jobseal/pkg/store"
)

type recordingLogger struct {
	mu     sync.Mutex
	errors []error
}

func (l *recordingLogger) Log(context.Context, string, map[string]any) {}

func (l *recordingLogger) Error(_ context.Context, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, err)
}

type countingFetcher struct {
	store *store.Store
	calls atomic.Int64
}

func (f *countingFetcher) FetchRecord(ctx context.Context, name, key string) (*store.Record, error) {
	f.calls.Add(1)
	return f.store.FetchRecord(ctx, name, key)
}

func newEnv(t *testing.T) (*backend.Memory, *store.Store, *sealer.Keypair) {
	t.Helper()
	mem := backend.NewMemory()
	s := store.New(mem)
	kp, err := sealer.GenerateKeypair()
	require.NoError(t, err)
	require.NoError(t, sealer.PublishPublicKey(context.Background(), s, kp))
	return mem, s, kp
}

func TestNew_ConfigurationErrors(t *testing.T) {
	_, err := New(nil)
	require.ErrorIs(t, err, api.ErrMissingStore)

	_, err = New(store.New(backend.NewMemory()), WithQueueType("slow"))
	require.ErrorIs(t, err, api.ErrInvalidQueueType)
}

func TestAddJob_RoutesByQueueType(t *testing.T) {
	cases := []struct {
		queue api.QueueType
		path  string
	}{
		{"", "_queue/task"},
		{api.QueueDefault, "_queue/task"},
		{api.QueueSession, "_sessionQueue/task"},
		{api.QueueFast, "_fastQueue/task"},
	}

	for _, tc := range cases {
		t.Run(string(tc.queue), func(t *testing.T) {
			mem, s, _ := newEnv(t)
			sub, err := New(s, WithQueueType(tc.queue))
			require.NoError(t, err)
			require.Equal(t, tc.path, sub.Path())

			rec, err := sub.AddJob(context.Background(), "email", map[string]any{"to": "a"}, nil)
			require.NoError(t, err)
			require.Equal(t, tc.path, rec.Path())
			require.Equal(t, 1, mem.Len(tc.path))
		})
	}
}

func TestAddJob_SanitizesData(t *testing.T) {
	_, s, _ := newEnv(t)
	sub, err := New(s)
	require.NoError(t, err)

	rec, err := sub.AddJob(context.Background(), "report", map[string]any{
		"title":   "q3",
		"missing": nil,
		"rows":    []any{"a", nil, "b"},
	}, nil)
	require.NoError(t, err)

	require.NoError(t, rec.Refresh(context.Background()))
	job, err := api.JobFromDocument(rec.ID(), rec.Data())
	require.NoError(t, err)
	require.Equal(t, "report", job.Type)
	require.Equal(t, map[string]any{"title": "q3", "rows": []any{"a", "b"}}, job.Data)
	require.False(t, job.Encrypted())
}

func TestAddJob_EncryptsSensitiveData(t *testing.T) {
	_, s, kp := newEnv(t)
	sub, err := New(s)
	require.NoError(t, err)

	rec, err := sub.AddJob(context.Background(), "charge",
		map[string]any{"amount": "10"},
		map[string]any{"card": "4111", "cvc": nil},
	)
	require.NoError(t, err)

	require.NoError(t, rec.Refresh(context.Background()))
	job, err := api.JobFromDocument(rec.ID(), rec.Data())
	require.NoError(t, err)
	require.True(t, job.Encrypted())
	require.NotContains(t, job.Data, "card")

	opened := sealer.NewGateway(nil).Decrypt(sealer.Envelope{
		EncryptedData: job.EncryptedData,
		EncryptedKey:  job.EncryptedKey,
	}, kp)
	require.True(t, opened.OK())
	require.Equal(t, map[string]any{"card": "4111"}, opened.Data)
}

func TestAddJob_FetchesKeyAtMostOnce(t *testing.T) {
	_, s, _ := newEnv(t)
	f := &countingFetcher{store: s}
	sub, err := New(s, WithGateway(sealer.NewGateway(f)))
	require.NoError(t, err)

	_, err = sub.AddJob(context.Background(), "plain", nil, nil)
	require.NoError(t, err)
	require.Equal(t, int64(0), f.calls.Load(), "jobs without sensitive data never fetch the key")

	for i := 0; i < 10; i++ {
		_, err := sub.AddJob(context.Background(), "secret", nil, map[string]any{"i": i})
		require.NoError(t, err)
	}
	require.Equal(t, int64(1), f.calls.Load())
}

func TestAddJob_KeyFetchErrorPropagates(t *testing.T) {
	mem := backend.NewMemory()
	sub, err := New(store.New(mem))
	require.NoError(t, err)

	_, err = sub.AddJob(context.Background(), "secret", nil, map[string]any{"a": "b"})
	require.ErrorIs(t, err, store.ErrNotFound)
	require.Equal(t, 0, mem.Len("_queue/task"))
}

func TestAddJob_EncryptionFailureContinues(t *testing.T) {
	mem := backend.NewMemory()
	s := store.New(mem)
	_, err := s.PutRecord(context.Background(), sealer.PublicKeyRecordName, sealer.PublicKeyRecordKey,
		api.Document{sealer.PublicKeyField: "not-a-key"})
	require.NoError(t, err)

	logger := &recordingLogger{}
	sub, err := New(s, WithLogger(logger))
	require.NoError(t, err)

	rec, err := sub.AddJob(context.Background(), "secret", map[string]any{"x": "y"}, map[string]any{"a": "b"})
	require.NoError(t, err)

	job, err := api.JobFromDocument(rec.ID(), rec.Data())
	require.NoError(t, err)
	require.False(t, job.Encrypted())
	require.Equal(t, map[string]any{"x": "y"}, job.Data)

	require.Len(t, logger.errors, 1)
	require.ErrorIs(t, logger.errors[0], api.ErrEncryption)
}

func TestAddJob_EncryptionFailureStrict(t *testing.T) {
	mem := backend.NewMemory()
	s := store.New(mem)
	_, err := s.PutRecord(context.Background(), sealer.PublicKeyRecordName, sealer.PublicKeyRecordKey,
		api.Document{sealer.PublicKeyField: "not-a-key"})
	require.NoError(t, err)

	gw := sealer.NewGateway(s, sealer.WithFailurePolicy(sealer.PolicyStrict))
	sub, err := New(s, WithGateway(gw))
	require.NoError(t, err)

	_, err = sub.AddJob(context.Background(), "secret", nil, map[string]any{"a": "b"})
	require.ErrorIs(t, err, api.ErrEncryption)
	require.Equal(t, 0, mem.Len("_queue/task"))
}

func TestAddJob_StorageErrorUnmodified(t *testing.T) {
	mem := backend.NewMemory()
	sub, err := New(store.New(mem))
	require.NoError(t, err)
	require.NoError(t, mem.Close())

	_, err = sub.AddJob(context.Background(), "email", nil, nil)
	require.Equal(t, store.ErrClosed, err)
}

func TestAddJob_RequiresType(t *testing.T) {
	_, s, _ := newEnv(t)
	sub, err := New(s)
	require.NoError(t, err)

	_, err = sub.AddJob(context.Background(), "", nil, nil)
	require.ErrorIs(t, err, api.ErrMissingJobType)

	err = sub.PerformJob(context.Background(), "", nil, nil)
	require.ErrorIs(t, err, api.ErrMissingJobType)
}

func TestPerformJob_ResolvesWhenRecordIsConsumed(t *testing.T) {
	_, s, _ := newEnv(t)
	sub, err := New(s, WithQueueType(api.QueueFast))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	consumed := make(chan string, 1)
	go func() {
		for ctx.Err() == nil {
			rec, err := s.ClaimRecord(ctx, "_fastQueue/task", time.Minute)
			if errors.Is(err, store.ErrEmpty) {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			if err != nil {
				return
			}
			time.Sleep(20 * time.Millisecond)
			consumed <- rec.ID()
			_ = rec.Delete(ctx)
			return
		}
	}()

	require.NoError(t, sub.PerformJob(ctx, "render", map[string]any{"page": "1"}, nil))

	select {
	case <-consumed:
	default:
		t.Fatal("PerformJob returned before the job was consumed")
	}
}

func TestWait_ClosedStoreIsNotCompletion(t *testing.T) {
	mem, s, _ := newEnv(t)
	sub, err := New(s)
	require.NoError(t, err)

	rec, err := sub.AddJob(context.Background(), "orphan", nil, nil)
	require.NoError(t, err)

	waited := make(chan error, 1)
	go func() { waited <- sub.Wait(context.Background(), rec) }()

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, mem.Close())

	select {
	case err := <-waited:
		require.Error(t, err)
		require.True(t, errors.Is(err, api.ErrSubscriptionEnded) || errors.Is(err, store.ErrClosed), err)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after the store was closed")
	}
}

func TestPerformJob_Timeout(t *testing.T) {
	_, s, _ := newEnv(t)
	sub, err := New(s, WithPerformTimeout(30*time.Millisecond))
	require.NoError(t, err)

	err = sub.PerformJob(context.Background(), "never", nil, nil)
	require.ErrorIs(t, err, api.ErrPerformTimeout)
}

func TestPerformJob_ContextCancelled(t *testing.T) {
	_, s, _ := newEnv(t)
	sub, err := New(s)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err = sub.PerformJob(ctx, "never", nil, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
