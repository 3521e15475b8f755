package provider_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/jobseal/internal/backend"
	"github.com/petrijr/jobseal/pkg/api"
	"github.com/petrijr/jobseal/pkg/client"
	"github.com/petrijr/jobseal/pkg/provider"
	"github.com/petrijr/jobseal/pkg/sealer"
	"github.com/petrijr/jobseal/pkg/store"
	"github.com/petrijr/jobseal/pkg/worker"
)

type eventSink struct {
	mu     sync.Mutex
	events []api.TrackingEvent
}

func (s *eventSink) Create(_ context.Context, e api.TrackingEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *eventSink) snapshot() []api.TrackingEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.TrackingEvent(nil), s.events...)
}

func TestPerformJob_EndToEnd(t *testing.T) {
	ctx := context.Background()
	st := store.New(backend.NewMemory())

	kp, err := sealer.GenerateKeypair()
	require.NoError(t, err)
	require.NoError(t, sealer.PublishPublicKey(ctx, st, kp))

	sub, err := client.New(st,
		client.WithQueueType(api.QueueFast),
		client.WithPerformTimeout(5*time.Second),
	)
	require.NoError(t, err)

	prov, err := provider.New(st,
		provider.WithQueueType(api.QueueFast),
		provider.WithPollInterval(5*time.Millisecond),
		provider.WithConcurrency(2),
	)
	require.NoError(t, err)

	sink := &eventSink{}
	mgr := worker.New(worker.WithKeypair(kp), worker.WithTracker(sink))

	var (
		mu   sync.Mutex
		seen []map[string]any
	)
	require.NoError(t, mgr.CreateWorker(prov, func(_ context.Context, job *api.Job, complete api.CompleteFunc) error {
		assert.False(t, job.Encrypted())
		mu.Lock()
		seen = append(seen, job.Data)
		mu.Unlock()
		complete(nil)
		return nil
	}))
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })

	err = sub.PerformJob(ctx, "charge",
		map[string]any{"amount": int64(42), "note": nil},
		map[string]any{"card": "4111"},
	)
	require.NoError(t, err)

	mu.Lock()
	require.Len(t, seen, 1)
	assert.Equal(t, map[string]any{"amount": int64(42), "card": "4111"}, seen[0])
	mu.Unlock()

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	ev := sink.snapshot()[0]
	assert.Equal(t, "charge-job-completed", ev.EventName)
	assert.False(t, ev.Failed)

	require.NoError(t, mgr.Shutdown(ctx))
}

func TestFailedAttempt_KeepsSensitiveDataSealed(t *testing.T) {
	ctx := context.Background()
	mem := backend.NewMemory()
	st := store.New(mem)

	kp, err := sealer.GenerateKeypair()
	require.NoError(t, err)
	require.NoError(t, sealer.PublishPublicKey(ctx, st, kp))

	sub, err := client.New(st)
	require.NoError(t, err)
	rec, err := sub.AddJob(ctx, "charge", map[string]any{"a": int64(1)}, map[string]any{"secret": "hunter2"})
	require.NoError(t, err)

	prov, err := provider.New(st,
		provider.WithPollInterval(5*time.Millisecond),
		provider.WithBackoff(provider.ConstantBackoff(time.Hour)),
	)
	require.NoError(t, err)

	attempted := make(chan map[string]any, 1)
	mgr := worker.New(worker.WithKeypair(kp))
	require.NoError(t, mgr.CreateWorker(prov, func(_ context.Context, job *api.Job, complete api.CompleteFunc) error {
		attempted <- job.Data
		complete(errors.New("boom"))
		return nil
	}))
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })

	select {
	case data := <-attempted:
		assert.Equal(t, "hunter2", data["secret"])
	case <-time.After(2 * time.Second):
		t.Fatal("job was never processed")
	}

	var doc api.Document
	require.Eventually(t, func() bool {
		got, getErr := mem.Get(ctx, sub.Path(), rec.ID())
		if getErr != nil {
			return false
		}
		job, jobErr := api.JobFromDocument(rec.ID(), got)
		if jobErr != nil || job.Attempts != 1 {
			return false
		}
		doc = got
		return true
	}, 2*time.Second, 5*time.Millisecond)

	job, err := api.JobFromDocument(rec.ID(), doc)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": int64(1)}, job.Data)
	assert.NotContains(t, job.Data, "secret")
	assert.True(t, job.Encrypted())

	require.NoError(t, mgr.Shutdown(ctx))
}
