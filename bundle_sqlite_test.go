package jobseal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/jobseal/pkg/api"
	"github.com/petrijr/jobseal/pkg/config"
)

// TestSQLiteBundle_DurableAcrossRestart submits a job with sensitive data,
// closes the store and lets a worker on a reopened store consume it.
func TestSQLiteBundle_DurableAcrossRestart(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	kp, err := GenerateKeypair()
	require.NoError(t, err)

	cfg, err := config.FromMap(map[string]string{
		"JOBSEAL_STORE":                "sqlite",
		"JOBSEAL_SQLITE_PATH":          filepath.Join(t.TempDir(), "jobseal.db"),
		"JOBSEAL_QUEUE_TYPE":           "session",
		"JOBSEAL_PRIVATE_KEY":          kp.PrivateKeyString(),
		"JOBSEAL_WORKER_POLL_INTERVAL": "10ms",
		"JOBSEAL_STORE_POLL_INTERVAL":  "10ms",
		"JOBSEAL_SHUTDOWN_TIMEOUT":     "2s",
	})
	require.NoError(t, err)

	// --- Phase 1: publish the key and submit, no worker running.

	b1, err := NewBundle(ctx, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, PublishPublicKey(ctx, b1.Store, kp))

	rec, err := b1.Submitter.AddJob(ctx, "rotate-token",
		map[string]any{"user": "u-1"},
		map[string]any{"token": "s3cr3t"},
	)
	require.NoError(t, err)
	require.Equal(t, "_sessionQueue/task", rec.Path())

	stored := rec.Data()
	require.Contains(t, stored, api.FieldEncryptedData)
	require.NotContains(t, stored[api.FieldData], "token")
	require.NoError(t, b1.Close())

	// --- Phase 2: simulate a restart and run the worker.

	b2, err := NewBundle(ctx, cfg, nil)
	require.NoError(t, err)
	defer func() { _ = b2.Close() }()

	seen := make(chan map[string]any, 1)
	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- b2.Run(runCtx, func(_ context.Context, job *api.Job, complete api.CompleteFunc) error {
			seen <- job.Data
			complete(nil)
			return nil
		})
	}()

	select {
	case data := <-seen:
		require.Equal(t, map[string]any{"user": "u-1", "token": "s3cr3t"}, data)
	case <-ctx.Done():
		t.Fatal("job was not processed after restart")
	}

	// The consumed record disappears from storage.
	require.Eventually(t, func() bool {
		_, err := b2.Store.FetchRecord(ctx, rec.Path(), rec.ID())
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)

	stop()
	require.NoError(t, <-done)
}
