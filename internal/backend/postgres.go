package backend

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/jobseal/pkg/api"
	"github.com/petrijr/jobseal/pkg/store"
)

// Postgres is a Backend on top of PostgreSQL through database/sql (use the
// pgx stdlib driver, "pgx").
//
// Schema (created automatically if missing):
//
//	CREATE TABLE jobseal_records (
//	    seq           BIGSERIAL,
//	    path          TEXT NOT NULL,
//	    id            TEXT NOT NULL,
//	    body          BYTEA NOT NULL,
//	    claimed_until TIMESTAMPTZ,
//	    PRIMARY KEY (path, id)
//	);
//
// Claims use SELECT ... FOR UPDATE SKIP LOCKED so several workers can
// poll the same path concurrently.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates the required schema if needed and returns the backend.
func NewPostgres(db *sql.DB) (*Postgres, error) {
	p := &Postgres{db: db}
	if err := p.initSchema(); err != nil {
		return nil, err
	}
	return p, nil
}

var _ store.Backend = (*Postgres)(nil)

func (p *Postgres) initSchema() error {
	_, err := p.db.Exec(`
		CREATE TABLE IF NOT EXISTS jobseal_records (
			seq           BIGSERIAL,
			path          TEXT NOT NULL,
			id            TEXT NOT NULL,
			body          BYTEA NOT NULL,
			claimed_until TIMESTAMPTZ,
			PRIMARY KEY (path, id)
		)
	`)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(`
		CREATE INDEX IF NOT EXISTS jobseal_records_claim
			ON jobseal_records (path, seq);
	`)
	return err
}

func (p *Postgres) Insert(ctx context.Context, path string, doc api.Document) (string, error) {
	body, err := store.EncodeDocument(doc)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO jobseal_records (path, id, body)
		VALUES ($1, $2, $3)`, path, id, body)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) Get(ctx context.Context, path, id string) (api.Document, error) {
	var body []byte
	err := p.db.QueryRowContext(ctx, `
		SELECT body FROM jobseal_records WHERE path = $1 AND id = $2`, path, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return store.DecodeDocument(body)
}

func (p *Postgres) Put(ctx context.Context, path, id string, doc api.Document) error {
	body, err := store.EncodeDocument(doc)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO jobseal_records (path, id, body)
		VALUES ($1, $2, $3)
		ON CONFLICT (path, id) DO UPDATE SET body = EXCLUDED.body`, path, id, body)
	return err
}

func (p *Postgres) Delete(ctx context.Context, path, id string) error {
	_, err := p.db.ExecContext(ctx, `
		DELETE FROM jobseal_records WHERE path = $1 AND id = $2`, path, id)
	return err
}

func (p *Postgres) Claim(ctx context.Context, path string, lease time.Duration) (string, api.Document, error) {
	now := time.Now().UTC()

	var (
		id   string
		body []byte
	)
	err := p.db.QueryRowContext(ctx, `
		UPDATE jobseal_records
		SET claimed_until = $1
		WHERE (path, id) = (
			SELECT path, id FROM jobseal_records
			WHERE path = $2 AND (claimed_until IS NULL OR claimed_until <= $3)
			ORDER BY seq
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, body`, now.Add(lease), path, now).Scan(&id, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, store.ErrEmpty
	}
	if err != nil {
		return "", nil, err
	}

	doc, err := store.DecodeDocument(body)
	if err != nil {
		return "", nil, err
	}
	return id, doc, nil
}

func (p *Postgres) Release(ctx context.Context, path, id string, delay time.Duration) error {
	var until sql.NullTime
	if delay > 0 {
		until = sql.NullTime{Time: time.Now().UTC().Add(delay), Valid: true}
	}
	_, err := p.db.ExecContext(ctx, `
		UPDATE jobseal_records SET claimed_until = $1 WHERE path = $2 AND id = $3`, until, path, id)
	return err
}

// Close is a no-op; the caller owns db.
func (p *Postgres) Close() error { return nil }
