// Package backendtest is a conformance suite every store.Backend must pass.
package backendtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/jobseal/pkg/api"
	"github.com/petrijr/jobseal/pkg/store"
)

// Factory returns a fresh, empty backend.
type Factory func(t *testing.T) store.Backend

// Run executes the conformance suite against backends produced by newBackend.
func Run(t *testing.T, newBackend Factory) {
	t.Run("InsertGetRoundTrip", func(t *testing.T) { testInsertGet(t, newBackend(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newBackend(t)) })
	t.Run("PutUpserts", func(t *testing.T) { testPutUpserts(t, newBackend(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newBackend(t)) })
	t.Run("ClaimFIFO", func(t *testing.T) { testClaimFIFO(t, newBackend(t)) })
	t.Run("ClaimRelease", func(t *testing.T) { testClaimRelease(t, newBackend(t)) })
	t.Run("ReleaseDelay", func(t *testing.T) { testReleaseDelay(t, newBackend(t)) })
	t.Run("ClaimLeaseExpiry", func(t *testing.T) { testClaimLeaseExpiry(t, newBackend(t)) })
	t.Run("PutKeepsClaim", func(t *testing.T) { testPutKeepsClaim(t, newBackend(t)) })
	t.Run("PathsIsolated", func(t *testing.T) { testPathsIsolated(t, newBackend(t)) })
	t.Run("SyncSeesUpdatesAndDeletion", func(t *testing.T) { testSync(t, newBackend(t)) })
	t.Run("SyncMissingRecord", func(t *testing.T) { testSyncMissing(t, newBackend(t)) })
}

const path = "_queue/task"

func testInsertGet(t *testing.T, b store.Backend) {
	ctx := context.Background()
	doc := api.Document{
		"type": "email",
		"data": map[string]any{
			"to":    "someone@example.com",
			"count": 3,
			"tags":  []any{"a", "b"},
		},
		"encryptedData": []byte{1, 2, 3},
	}

	id, err := b.Insert(ctx, path, doc)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := b.Get(ctx, path, id)
	require.NoError(t, err)
	require.Equal(t, api.Document{
		"type": "email",
		"data": map[string]any{
			"to":    "someone@example.com",
			"count": int64(3),
			"tags":  []any{"a", "b"},
		},
		"encryptedData": []byte{1, 2, 3},
	}, got)
}

func testGetMissing(t *testing.T, b store.Backend) {
	_, err := b.Get(context.Background(), path, "nope")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testPutUpserts(t *testing.T, b store.Backend) {
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "Public Key", "BACKGROUND_PUBLIC_KEY", api.Document{"value": "k1"}))
	got, err := b.Get(ctx, "Public Key", "BACKGROUND_PUBLIC_KEY")
	require.NoError(t, err)
	require.Equal(t, "k1", got["value"])

	require.NoError(t, b.Put(ctx, "Public Key", "BACKGROUND_PUBLIC_KEY", api.Document{"value": "k2"}))
	got, err = b.Get(ctx, "Public Key", "BACKGROUND_PUBLIC_KEY")
	require.NoError(t, err)
	require.Equal(t, "k2", got["value"])
}

func testDelete(t *testing.T, b store.Backend) {
	ctx := context.Background()
	id, err := b.Insert(ctx, path, api.Document{"type": "x"})
	require.NoError(t, err)

	require.NoError(t, b.Delete(ctx, path, id))
	_, err = b.Get(ctx, path, id)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, b.Delete(ctx, path, id), "deleting twice must not fail")

	_, _, err = b.Claim(ctx, path, time.Minute)
	require.ErrorIs(t, err, store.ErrEmpty, "deleted records are not claimable")
}

func testClaimFIFO(t *testing.T, b store.Backend) {
	ctx := context.Background()

	var ids []string
	for _, typ := range []string{"first", "second", "third"} {
		id, err := b.Insert(ctx, path, api.Document{"type": typ})
		require.NoError(t, err)
		ids = append(ids, id)
		// Keep insertion timestamps distinct for time-ordered backends.
		time.Sleep(2 * time.Millisecond)
	}

	for i, want := range []string{"first", "second", "third"} {
		id, doc, err := b.Claim(ctx, path, time.Minute)
		require.NoError(t, err)
		require.Equal(t, ids[i], id)
		require.Equal(t, want, doc["type"])
	}

	_, _, err := b.Claim(ctx, path, time.Minute)
	require.ErrorIs(t, err, store.ErrEmpty)
}

func testClaimRelease(t *testing.T, b store.Backend) {
	ctx := context.Background()
	id, err := b.Insert(ctx, path, api.Document{"type": "x"})
	require.NoError(t, err)

	claimed, _, err := b.Claim(ctx, path, time.Minute)
	require.NoError(t, err)
	require.Equal(t, id, claimed)

	_, _, err = b.Claim(ctx, path, time.Minute)
	require.ErrorIs(t, err, store.ErrEmpty)

	require.NoError(t, b.Release(ctx, path, id, 0))

	again, _, err := b.Claim(ctx, path, time.Minute)
	require.NoError(t, err)
	require.Equal(t, id, again)
}

func testReleaseDelay(t *testing.T, b store.Backend) {
	ctx := context.Background()
	id, err := b.Insert(ctx, path, api.Document{"type": "x"})
	require.NoError(t, err)

	_, _, err = b.Claim(ctx, path, time.Minute)
	require.NoError(t, err)
	require.NoError(t, b.Release(ctx, path, id, 50*time.Millisecond))

	_, _, err = b.Claim(ctx, path, time.Minute)
	require.ErrorIs(t, err, store.ErrEmpty)

	time.Sleep(80 * time.Millisecond)

	again, _, err := b.Claim(ctx, path, time.Minute)
	require.NoError(t, err)
	require.Equal(t, id, again)
}

func testClaimLeaseExpiry(t *testing.T, b store.Backend) {
	ctx := context.Background()
	id, err := b.Insert(ctx, path, api.Document{"type": "x"})
	require.NoError(t, err)

	_, _, err = b.Claim(ctx, path, 5*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	again, _, err := b.Claim(ctx, path, time.Minute)
	require.NoError(t, err)
	require.Equal(t, id, again)
}

func testPutKeepsClaim(t *testing.T, b store.Backend) {
	ctx := context.Background()
	id, err := b.Insert(ctx, path, api.Document{"type": "x"})
	require.NoError(t, err)

	_, _, err = b.Claim(ctx, path, time.Minute)
	require.NoError(t, err)

	require.NoError(t, b.Put(ctx, path, id, api.Document{"type": "x", "attempts": 1}))

	_, _, err = b.Claim(ctx, path, time.Minute)
	require.ErrorIs(t, err, store.ErrEmpty)

	got, err := b.Get(ctx, path, id)
	require.NoError(t, err)
	require.Equal(t, int64(1), got["attempts"])
}

func testPathsIsolated(t *testing.T, b store.Backend) {
	ctx := context.Background()
	_, err := b.Insert(ctx, "_fastQueue/task", api.Document{"type": "fast"})
	require.NoError(t, err)

	_, _, err = b.Claim(ctx, "_sessionQueue/task", time.Minute)
	require.ErrorIs(t, err, store.ErrEmpty)

	_, doc, err := b.Claim(ctx, "_fastQueue/task", time.Minute)
	require.NoError(t, err)
	require.Equal(t, "fast", doc["type"])
}

func testSync(t *testing.T, b store.Backend) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s := store.New(b, store.WithPollInterval(10*time.Millisecond))
	rec, err := s.CreateRecord(ctx, path, api.Document{"type": "x", "step": "one"})
	require.NoError(t, err)

	sub, err := rec.Sync(ctx)
	require.NoError(t, err)
	defer sub.Unsync()

	first := next(t, sub)
	require.Equal(t, "one", first["step"])

	require.NoError(t, rec.Update(ctx, api.Document{"step": "two"}))
	for {
		doc := next(t, sub)
		require.NotNil(t, doc)
		if doc["step"] == "two" {
			break
		}
	}

	require.NoError(t, rec.Delete(ctx))
	for {
		doc, ok := <-sub.Changes()
		require.True(t, ok, "expected a nil snapshot before the channel closes")
		if doc == nil {
			break
		}
	}

	_, ok := <-sub.Changes()
	require.False(t, ok, "channel must be closed after the deletion snapshot")
}

func testSyncMissing(t *testing.T, b store.Backend) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s := store.New(b, store.WithPollInterval(10*time.Millisecond))
	rec, err := s.CreateRecord(ctx, path, api.Document{"type": "x"})
	require.NoError(t, err)
	require.NoError(t, rec.Delete(ctx))

	sub, err := rec.Sync(ctx)
	require.NoError(t, err)
	defer sub.Unsync()

	require.Nil(t, next(t, sub))
}

func next(t *testing.T, sub *store.Subscription) api.Document {
	t.Helper()
	select {
	case doc, ok := <-sub.Changes():
		require.True(t, ok, "subscription closed unexpectedly")
		return doc
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a change notification")
		return nil
	}
}
