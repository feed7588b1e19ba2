// Package dbtest opens a migrated Postgres database for repository integration tests.
package dbtest

import (
	"database/sql"
	"os"
	"testing"

	"didlink/internal/db"
	"didlink/internal/db/migrate"
)

// Open returns a migrated database from DATABASE_URL and truncates the given tables.
// The test is skipped when DATABASE_URL is not set.
func Open(t *testing.T, tables ...string) *sql.DB {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	if err := migrate.Run(dsn, "up"); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	for _, table := range tables {
		if _, err := conn.Exec("TRUNCATE " + table + " CASCADE"); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
	return conn
}
