package jobseal

import (
	"context"
	"log/slog"
	"os"

	"github.com/petrijr/jobseal/pkg/api"
	"github.com/petrijr/jobseal/pkg/client"
	"github.com/petrijr/jobseal/pkg/config"
	"github.com/petrijr/jobseal/pkg/provider"
	"github.com/petrijr/jobseal/pkg/sealer"
	"github.com/petrijr/jobseal/pkg/telemetry"
	"github.com/petrijr/jobseal/pkg/worker"
)

// Bundle wires a Store, a Submitter and a worker Manager with its
// store-backed Provider, all configured from one config.Config.
//
// Typical usage:
//
//	cfg, _ := config.Load()
//	b, err := jobseal.NewBundle(ctx, cfg, logger)
//	defer b.Close()
//
//	// producer side
//	_, err = b.Submitter.AddJob(ctx, "send-email", data, sensitive)
//
//	// consumer side
//	err = b.Run(ctx, processEmail)
type Bundle struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     *Store
	Gateway   *Gateway
	Keypair   *Keypair
	Submitter *Submitter
	Provider  *provider.Provider
	Manager   *Manager

	close func() error
}

// NewBundle opens the configured store and builds the components on top
// of it. Completion events go to trackers; with none given they are
// persisted in the store.
func NewBundle(ctx context.Context, cfg *config.Config, logger *slog.Logger, trackers ...api.Tracker) (*Bundle, error) {
	if logger == nil {
		logger = cfg.NewLogger(os.Stderr)
	}

	st, closeStore, err := OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	b, err := newBundle(cfg, logger, st, closeStore, trackers)
	if err != nil {
		_ = closeStore()
		return nil, err
	}
	return b, nil
}

func newBundle(cfg *config.Config, logger *slog.Logger, st *Store, closeStore func() error, trackers []api.Tracker) (*Bundle, error) {
	kp, err := cfg.Keypair()
	if err != nil {
		return nil, err
	}

	if len(trackers) == 0 {
		trackers = []api.Tracker{
			telemetry.NewStoreTracker(st, logger),
			telemetry.LogTracker{Logger: logger},
		}
	}
	apiLogger := telemetry.NewSlogLogger(logger)
	gw := sealer.NewGateway(st, sealer.WithFailurePolicy(cfg.Policy()))

	sub, err := client.New(st,
		client.WithQueueType(cfg.Queue()),
		client.WithGateway(gw),
		client.WithLogger(apiLogger),
		client.WithPerformTimeout(cfg.PerformTimeout),
	)
	if err != nil {
		return nil, err
	}

	prov, err := provider.New(st,
		provider.WithQueueType(cfg.Queue()),
		provider.WithConcurrency(cfg.Worker.Concurrency),
		provider.WithLease(cfg.Worker.Lease),
		provider.WithPollInterval(cfg.Worker.PollInterval),
		provider.WithMaxAttempts(cfg.Worker.MaxAttempts),
		provider.WithBackoff(provider.ExponentialBackoff(cfg.Worker.Backoff, 2, cfg.Worker.BackoffMax)),
		provider.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	mgr := worker.New(
		worker.WithKeypair(kp),
		worker.WithGateway(gw),
		worker.WithLogger(apiLogger),
		worker.WithTracker(telemetry.Multi(trackers...)),
	)

	return &Bundle{
		Config:    cfg,
		Logger:    logger,
		Store:     st,
		Gateway:   gw,
		Keypair:   kp,
		Submitter: sub,
		Provider:  prov,
		Manager:   mgr,
		close:     closeStore,
	}, nil
}

// Run registers process as the bundle's worker, blocks until ctx ends and
// then shuts the worker down, waiting up to the configured shutdown
// timeout for in-flight jobs.
func (b *Bundle) Run(ctx context.Context, process Process) error {
	if err := b.Manager.CreateWorker(b.Provider, process); err != nil {
		return err
	}
	<-ctx.Done()

	b.Logger.Info("worker_shutting_down", slog.Duration("timeout", b.Config.ShutdownTimeout))
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.Config.ShutdownTimeout)
	defer cancel()
	return b.Manager.Shutdown(sctx)
}

// Close releases the store connection.
func (b *Bundle) Close() error {
	if b.close == nil {
		return nil
	}
	err := b.close()
	b.close = nil
	return err
}
