package backend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/jobseal/internal/backend/backendtest"
	"github.com/petrijr/jobseal/pkg/api"
	"github.com/petrijr/jobseal/pkg/store"
)

func TestMemory_Conformance(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) store.Backend {
		return NewMemory()
	})
}

func TestMemory_Len(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.Insert(ctx, "_queue/task", api.Document{"type": "a"})
	require.NoError(t, err)
	_, err = m.Insert(ctx, "_fastQueue/task", api.Document{"type": "b"})
	require.NoError(t, err)

	require.Equal(t, 1, m.Len("_queue/task"))
	require.Equal(t, 1, m.Len("_fastQueue/task"))
	require.Equal(t, 0, m.Len("_sessionQueue/task"))
}

func TestMemory_ClosedBackendEndsWatch(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, err := m.Insert(ctx, "p", api.Document{"type": "a"})
	require.NoError(t, err)

	ch, err := m.Watch(ctx, "p", id)
	require.NoError(t, err)
	require.NotNil(t, <-ch)

	require.NoError(t, m.Close())

	_, ok := <-ch
	require.False(t, ok, "closing the backend must end the stream without a deletion")

	_, err = m.Insert(ctx, "p", api.Document{"type": "b"})
	require.ErrorIs(t, err, store.ErrClosed)
}
