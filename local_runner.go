package jobseal

import (
	"context"
	"log/slog"

	"github.com/petrijr/jobseal/pkg/api"
	"github.com/petrijr/jobseal/pkg/config"
)

// NewLocalBundle returns a Bundle over an in-memory store with a freshly
// generated keypair already published, so that sensitive data works out
// of the box.
//
// This is intended for local development, tests, and simple single-process
// deployments.
func NewLocalBundle(ctx context.Context, logger *slog.Logger, trackers ...api.Tracker) (*Bundle, error) {
	cfg, err := config.FromMap(map[string]string{
		config.Prefix + "STORE": config.DriverMemory,
	})
	if err != nil {
		return nil, err
	}

	kp, err := GenerateKeypair()
	if err != nil {
		return nil, err
	}
	cfg.PrivateKey = kp.PrivateKeyString()

	if logger == nil {
		logger = slog.Default()
	}
	st := NewMemoryStore()
	if err := PublishPublicKey(ctx, st, kp); err != nil {
		return nil, err
	}
	return newBundle(cfg, logger, st, st.Close, trackers)
}
