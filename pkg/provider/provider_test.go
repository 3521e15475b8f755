package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/jobseal/internal/backend"
	"github.com/petrijr/jobseal/pkg/api"
	"github.com/petrijr/jobseal/pkg/store"
)

func newProvider(t *testing.T, opts ...Option) (*Provider, *backend.Memory, *store.Store) {
	t.Helper()
	mem := backend.NewMemory()
	st := store.New(mem)
	p, err := New(st, opts...)
	require.NoError(t, err)
	return p, mem, st
}

// use registers h without starting claim loops so tests can drive
// ProcessOne themselves.
func use(p *Provider, h api.Handler) {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
}

func addJob(t *testing.T, st *store.Store, path string, job *api.Job) *store.Record {
	t.Helper()
	rec, err := st.CreateRecord(context.Background(), path, job.Document())
	require.NoError(t, err)
	return rec
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	require.ErrorIs(t, err, api.ErrMissingStore)

	_, err = New(store.New(backend.NewMemory()), WithQueueType("bulk"))
	require.ErrorIs(t, err, api.ErrInvalidQueueType)

	p, err := New(store.New(backend.NewMemory()), WithQueueType(api.QueueSession))
	require.NoError(t, err)
	assert.Equal(t, "_sessionQueue/task", p.path)
}

func TestCreateWorker_Registration(t *testing.T) {
	p, _, _ := newProvider(t)
	require.ErrorIs(t, p.CreateWorker(nil), api.ErrMissingProcessor)

	h := func(_ context.Context, _ *api.Job, complete api.CompleteFunc) error {
		complete(nil)
		return nil
	}
	require.NoError(t, p.CreateWorker(h))
	require.ErrorIs(t, p.CreateWorker(h), api.ErrWorkerAlreadyRegistered)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestProcessOne_NotRegistered(t *testing.T) {
	p, _, _ := newProvider(t)
	_, err := p.ProcessOne(context.Background())
	require.ErrorIs(t, err, api.ErrWorkerNotRegistered)
}

func TestProcessOne_EmptyQueue(t *testing.T) {
	p, _, _ := newProvider(t)
	use(p, func(context.Context, *api.Job, api.CompleteFunc) error { return nil })

	processed, err := p.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestProcessOne_SuccessDeletesRecord(t *testing.T) {
	p, mem, st := newProvider(t)
	addJob(t, st, p.path, &api.Job{Type: "email", Data: map[string]any{"to": "a@b.c"}})

	var seen *api.Job
	use(p, func(_ context.Context, job *api.Job, complete api.CompleteFunc) error {
		seen = job
		complete(nil)
		return nil
	})

	processed, err := p.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)

	require.NotNil(t, seen)
	assert.Equal(t, "email", seen.Type)
	assert.Equal(t, map[string]any{"to": "a@b.c"}, seen.Data)
	assert.Equal(t, 0, mem.Len(p.path))
}

func TestProcessOne_AsyncCompletion(t *testing.T) {
	p, mem, st := newProvider(t)
	addJob(t, st, p.path, &api.Job{Type: "later"})

	use(p, func(_ context.Context, _ *api.Job, complete api.CompleteFunc) error {
		go func() {
			time.Sleep(20 * time.Millisecond)
			complete(nil)
		}()
		return nil
	})

	processed, err := p.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, 0, mem.Len(p.path))
}

func TestProcessOne_FailureReleasesWithAttempts(t *testing.T) {
	p, mem, st := newProvider(t, WithMaxAttempts(2))
	rec := addJob(t, st, p.path, &api.Job{Type: "flaky"})

	use(p, func(_ context.Context, _ *api.Job, complete api.CompleteFunc) error {
		complete(errors.New("try again"))
		return nil
	})

	processed, err := p.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)

	require.NoError(t, rec.Refresh(context.Background()))
	job, err := api.JobFromDocument(rec.ID(), rec.Data())
	require.NoError(t, err)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, 1, mem.Len(p.path))

	// Released, so the next claim gets it again; the second failure is final.
	processed, err = p.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, 0, mem.Len(p.path))
}

func TestProcessOne_UncompletedJobFailsAtLease(t *testing.T) {
	p, mem, st := newProvider(t, WithLease(40*time.Millisecond), WithMaxAttempts(2))
	rec := addJob(t, st, p.path, &api.Job{Type: "forgetful"})

	use(p, func(context.Context, *api.Job, api.CompleteFunc) error {
		return nil
	})

	start := time.Now()
	processed, err := p.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	require.NoError(t, rec.Refresh(context.Background()))
	job, err := api.JobFromDocument(rec.ID(), rec.Data())
	require.NoError(t, err)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, 1, mem.Len(p.path))
}

func TestProcessOne_HandlerErrorCompletes(t *testing.T) {
	p, mem, st := newProvider(t, WithMaxAttempts(1))
	addJob(t, st, p.path, &api.Job{Type: "broken"})

	use(p, func(context.Context, *api.Job, api.CompleteFunc) error {
		return errors.New("never completes")
	})

	processed, err := p.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, 0, mem.Len(p.path))
}

func TestProcessOne_PanicCompletes(t *testing.T) {
	p, _, st := newProvider(t)
	rec := addJob(t, st, p.path, &api.Job{Type: "panics"})

	use(p, func(context.Context, *api.Job, api.CompleteFunc) error {
		panic("kaboom")
	})

	processed, err := p.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)

	require.NoError(t, rec.Refresh(context.Background()))
	job, err := api.JobFromDocument(rec.ID(), rec.Data())
	require.NoError(t, err)
	assert.Equal(t, 1, job.Attempts)
}

func TestProcessOne_CompleteWinsOverReturnedError(t *testing.T) {
	p, mem, st := newProvider(t)
	addJob(t, st, p.path, &api.Job{Type: "mixed"})

	use(p, func(_ context.Context, _ *api.Job, complete api.CompleteFunc) error {
		complete(nil)
		return errors.New("ignored")
	})

	_, err := p.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, mem.Len(p.path))
}

func TestProcessOne_DropsUndecodableRecords(t *testing.T) {
	p, mem, st := newProvider(t)
	_, err := st.CreateRecord(context.Background(), p.path, api.Document{"data": "no type"})
	require.NoError(t, err)

	called := false
	use(p, func(context.Context, *api.Job, api.CompleteFunc) error {
		called = true
		return nil
	})

	processed, err := p.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	assert.False(t, called)
	assert.Equal(t, 0, mem.Len(p.path))
}

func TestProcessOne_OnlyOwnQueue(t *testing.T) {
	p, mem, st := newProvider(t, WithQueueType(api.QueueFast))
	addJob(t, st, api.QueueDefault.Path(), &api.Job{Type: "elsewhere"})

	use(p, func(context.Context, *api.Job, api.CompleteFunc) error { return nil })

	processed, err := p.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
	assert.Equal(t, 1, mem.Len(api.QueueDefault.Path()))
}

func TestShutdown_WaitsForInFlightJob(t *testing.T) {
	p, mem, st := newProvider(t, WithPollInterval(5*time.Millisecond))
	addJob(t, st, p.path, &api.Job{Type: "slow"})

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, p.CreateWorker(func(_ context.Context, _ *api.Job, complete api.CompleteFunc) error {
		close(started)
		<-release
		complete(nil)
		return nil
	}))

	<-started
	errCh := make(chan error, 1)
	go func() { errCh <- p.Shutdown(context.Background()) }()

	select {
	case <-errCh:
		t.Fatal("shutdown returned while a job was in flight")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-errCh)
	assert.Equal(t, 0, mem.Len(p.path))

	// Idempotent.
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestShutdown_ContextExpires(t *testing.T) {
	p, _, st := newProvider(t, WithPollInterval(5*time.Millisecond))
	addJob(t, st, p.path, &api.Job{Type: "stuck"})

	started := make(chan struct{})
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	require.NoError(t, p.CreateWorker(func(_ context.Context, _ *api.Job, complete api.CompleteFunc) error {
		close(started)
		<-release
		complete(nil)
		return nil
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, p.Shutdown(ctx), context.DeadlineExceeded)
}

func TestShutdown_BeforeCreateWorker(t *testing.T) {
	p, _, _ := newProvider(t)
	require.NoError(t, p.Shutdown(context.Background()))
}
