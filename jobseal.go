package jobseal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	_ "modernc.org/sqlite"

	"github.com/petrijr/jobseal/internal/backend"
	"github.com/petrijr/jobseal/pkg/api"
	"github.com/petrijr/jobseal/pkg/client"
	"github.com/petrijr/jobseal/pkg/config"
	"github.com/petrijr/jobseal/pkg/sealer"
	"github.com/petrijr/jobseal/pkg/store"
	"github.com/petrijr/jobseal/pkg/worker"
)

// Re-export key types so users don't need to dig into pkg/.

type (
	Job           = api.Job
	Document      = api.Document
	QueueType     = api.QueueType
	TrackingEvent = api.TrackingEvent
	CompleteFunc  = api.CompleteFunc
	Logger        = api.Logger
	Tracker       = api.Tracker
	Provider      = api.Provider

	Store     = store.Store
	Record    = store.Record
	Submitter = client.Submitter
	Manager   = worker.Manager
	Process   = worker.ProcessFunc

	Keypair       = sealer.Keypair
	Gateway       = sealer.Gateway
	FailurePolicy = sealer.FailurePolicy
)

// Re-export queue types and failure policies for convenience.

const (
	QueueDefault = api.QueueDefault
	QueueSession = api.QueueSession
	QueueFast    = api.QueueFast

	PolicyContinue = sealer.PolicyContinue
	PolicyStrict   = sealer.PolicyStrict
)

// Re-export common helpers.

var (
	GenerateKeypair  = sealer.GenerateKeypair
	ParsePrivateKey  = sealer.ParsePrivateKey
	PublishPublicKey = sealer.PublishPublicKey
	NewGateway       = sealer.NewGateway
)

// Store constructors
// These wrap the internal/backend package so external callers
// never need to import internal packages.

// NewMemoryStore returns a Store kept entirely in process memory.
func NewMemoryStore(opts ...store.Option) *Store {
	return store.New(backend.NewMemory(), opts...)
}

// NewSQLiteStore returns a Store persisting records in a SQLite database.
func NewSQLiteStore(db *sql.DB, opts ...store.Option) (*Store, error) {
	b, err := backend.NewSQLite(db)
	if err != nil {
		return nil, err
	}
	return store.New(b, opts...), nil
}

// NewPostgresStore returns a Store persisting records in PostgreSQL.
func NewPostgresStore(db *sql.DB, opts ...store.Option) (*Store, error) {
	b, err := backend.NewPostgres(db)
	if err != nil {
		return nil, err
	}
	return store.New(b, opts...), nil
}

// NewRedisStore returns a Store persisting records in Redis. Keys are
// prefixed with prefix ("jobseal:" when empty).
func NewRedisStore(client *redis.Client, prefix string, opts ...store.Option) *Store {
	return store.New(backend.NewRedis(client, prefix, nil), opts...)
}

// NewMongoStore returns a Store persisting records in one MongoDB
// collection and makes sure its indexes exist.
func NewMongoStore(ctx context.Context, client *mongo.Client, dbName, collName string, opts ...store.Option) (*Store, error) {
	b := backend.NewMongo(client, dbName, collName)
	if err := b.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	return store.New(b, opts...), nil
}

// OpenStore connects to the backend selected by cfg. The returned close
// function releases the connection.
func OpenStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*Store, func() error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []store.Option{
		store.WithPollInterval(cfg.PollInterval),
		store.WithLogger(logger),
	}

	switch cfg.Driver {
	case config.DriverMemory:
		st := NewMemoryStore(opts...)
		return st, st.Close, nil

	case config.DriverSQLite:
		return openSQL(ctx, "sqlite", cfg.SQLitePath, func(db *sql.DB) (*Store, error) {
			return NewSQLiteStore(db, opts...)
		})

	case config.DriverPostgres:
		return openSQL(ctx, "pgx", cfg.PostgresDSN, func(db *sql.DB) (*Store, error) {
			return NewPostgresStore(db, opts...)
		})

	case config.DriverRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		st := store.New(backend.NewRedis(rdb, cfg.Redis.Prefix, logger), opts...)
		return st, func() error {
			return errors.Join(st.Close(), rdb.Close())
		}, nil

	case config.DriverMongo:
		mc, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return nil, nil, fmt.Errorf("mongo connect: %w", err)
		}
		st, err := NewMongoStore(ctx, mc, cfg.Mongo.Database, cfg.Mongo.Collection, opts...)
		if err != nil {
			_ = mc.Disconnect(context.WithoutCancel(ctx))
			return nil, nil, err
		}
		return st, func() error {
			return errors.Join(st.Close(), mc.Disconnect(context.Background()))
		}, nil

	default:
		return nil, nil, fmt.Errorf("%w: unknown store %q", config.ErrInvalidConfig, cfg.Driver)
	}
}

func openSQL(ctx context.Context, driver, dsn string, build func(*sql.DB) (*Store, error)) (*Store, func() error, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("%s ping: %w", driver, err)
	}
	st, err := build(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return st, func() error {
		return errors.Join(st.Close(), db.Close())
	}, nil
}
