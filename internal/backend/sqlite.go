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

// SQLite is a durable Backend on top of a SQLite database opened with the
// "sqlite" driver (modernc.org/sqlite).
//
// Schema (created automatically if missing):
//
//	CREATE TABLE jobseal_records (
//	    seq           INTEGER PRIMARY KEY AUTOINCREMENT,
//	    path          TEXT NOT NULL,
//	    id            TEXT NOT NULL,
//	    body          BLOB NOT NULL,     -- msgpack document
//	    claimed_until INTEGER NOT NULL,  -- unix nanos, 0 when unclaimed
//	    UNIQUE (path, id)
//	);
//
// The connection pool is limited to a single connection: SQLite serialises
// writers anyway and ":memory:" databases are per-connection.
type SQLite struct {
	db *sql.DB
}

// NewSQLite initializes the schema in db and returns the backend.
func NewSQLite(db *sql.DB) (*SQLite, error) {
	db.SetMaxOpenConns(1)
	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

var _ store.Backend = (*SQLite)(nil)

func (s *SQLite) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS jobseal_records (
			seq           INTEGER PRIMARY KEY AUTOINCREMENT,
			path          TEXT NOT NULL,
			id            TEXT NOT NULL,
			body          BLOB NOT NULL,
			claimed_until INTEGER NOT NULL DEFAULT 0,
			UNIQUE (path, id)
		)
	`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		CREATE INDEX IF NOT EXISTS jobseal_records_claim
			ON jobseal_records (path, claimed_until, seq);
	`)
	return err
}

func (s *SQLite) Insert(ctx context.Context, path string, doc api.Document) (string, error) {
	body, err := store.EncodeDocument(doc)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobseal_records (path, id, body, claimed_until)
		VALUES (?, ?, ?, 0)`, path, id, body)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *SQLite) Get(ctx context.Context, path, id string) (api.Document, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT body FROM jobseal_records WHERE path = ? AND id = ?`, path, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return store.DecodeDocument(body)
}

func (s *SQLite) Put(ctx context.Context, path, id string, doc api.Document) error {
	body, err := store.EncodeDocument(doc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobseal_records (path, id, body, claimed_until)
		VALUES (?, ?, ?, 0)
		ON CONFLICT (path, id) DO UPDATE SET body = excluded.body`, path, id, body)
	return err
}

func (s *SQLite) Delete(ctx context.Context, path, id string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM jobseal_records WHERE path = ? AND id = ?`, path, id)
	return err
}

func (s *SQLite) Claim(ctx context.Context, path string, lease time.Duration) (string, api.Document, error) {
	now := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		id   string
		body []byte
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, body FROM jobseal_records
		WHERE path = ? AND claimed_until <= ?
		ORDER BY seq
		LIMIT 1`, path, now.UnixNano()).Scan(&id, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, store.ErrEmpty
	}
	if err != nil {
		return "", nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE jobseal_records SET claimed_until = ?
		WHERE path = ? AND id = ?`, now.Add(lease).UnixNano(), path, id); err != nil {
		return "", nil, err
	}
	if err := tx.Commit(); err != nil {
		return "", nil, err
	}

	doc, err := store.DecodeDocument(body)
	if err != nil {
		return "", nil, err
	}
	return id, doc, nil
}

func (s *SQLite) Release(ctx context.Context, path, id string, delay time.Duration) error {
	var until int64
	if delay > 0 {
		until = time.Now().Add(delay).UnixNano()
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobseal_records SET claimed_until = ? WHERE path = ? AND id = ?`, until, path, id)
	return err
}

// Close is a no-op; the caller owns db.
func (s *SQLite) Close() error { return nil }
