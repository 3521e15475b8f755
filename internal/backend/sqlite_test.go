package backend

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/petrijr/jobseal/internal/backend/backendtest"
	"github.com/petrijr/jobseal/pkg/store"
)

func newTestSQLite(t *testing.T, dsn string) *SQLite {
	t.Helper()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	s, err := NewSQLite(db)
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	return s
}

func TestSQLite_Conformance(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) store.Backend {
		return newTestSQLite(t, ":memory:")
	})
}

func TestSQLite_SchemaIsIdempotent(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "jobseal.db")

	first := newTestSQLite(t, dsn)
	require.NoError(t, first.initSchema())

	second := newTestSQLite(t, dsn)
	require.NotNil(t, second)
}
