// Package dbtest provisions throwaway Postgres databases for tests. Each
// Open call creates a randomly named database on the server pointed at by
// DATABASE_TEST_DSN and drops it again on Close. Tests that need a real
// database are skipped when the variable is not set.
package dbtest

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	migrate "github.com/rubenv/sql-migrate"

	"github.com/paymenthub/payment-engine-backend/db/migrations"
)

const envTestDSN = "DATABASE_TEST_DSN"

// Matches db.MigrationsTableName. Duplicated here so the db package tests can
// import dbtest without an import cycle.
const migrationsTableName = "payment_engine_migrations"

// DB is a throwaway database scoped to a single test.
type DB struct {
	DSN string

	dbName  string
	baseDSN string
	t       *testing.T
	closed  bool
}

// OpenWithoutMigrations creates a new randomly named database and returns a
// handle to it, without applying any migrations.
func OpenWithoutMigrations(t *testing.T) *DB {
	baseDSN := os.Getenv(envTestDSN)
	if baseDSN == "" {
		t.Skipf("skipping test that needs Postgres: %s is not set", envTestDSN)
	}

	dbName := randomDBName(t)

	conn, err := sqlx.Open("postgres", baseDSN)
	if err != nil {
		t.Fatalf("connecting to %s: %v", envTestDSN, err)
	}
	defer conn.Close()

	if _, err = conn.Exec("CREATE DATABASE " + pq.QuoteIdentifier(dbName)); err != nil {
		t.Fatalf("creating database %s: %v", dbName, err)
	}

	return &DB{
		DSN:     dsnForDB(t, baseDSN, dbName),
		dbName:  dbName,
		baseDSN: baseDSN,
		t:       t,
	}
}

// Open creates a new database and applies every embedded migration to it.
func Open(t *testing.T) *DB {
	db := OpenWithoutMigrations(t)

	conn := db.Open()
	defer conn.Close()

	ms := migrate.MigrationSet{TableName: migrationsTableName}
	m := migrate.HttpFileSystemMigrationSource{FileSystem: http.FS(migrations.FS)}
	if _, err := ms.ExecMax(conn.DB, "postgres", m, migrate.Up, 0); err != nil {
		t.Fatal(err)
	}

	return db
}

// Open returns a new connection to the test database. The caller is
// responsible for closing it.
func (db *DB) Open() *sqlx.DB {
	conn, err := sqlx.Open("postgres", db.DSN)
	if err != nil {
		db.t.Fatalf("opening connection to test database %s: %v", db.dbName, err)
	}
	return conn
}

// Close drops the test database. Safe to call more than once.
func (db *DB) Close() {
	if db.closed {
		return
	}
	db.closed = true

	conn, err := sqlx.Open("postgres", db.baseDSN)
	if err != nil {
		db.t.Fatalf("connecting to drop test database %s: %v", db.dbName, err)
	}
	defer conn.Close()

	// Lingering connections block DROP DATABASE.
	_, err = conn.Exec(fmt.Sprintf("SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = %s AND pid <> pg_backend_pid()", pq.QuoteLiteral(db.dbName)))
	if err != nil {
		db.t.Logf("terminating connections to test database %s: %v", db.dbName, err)
	}

	if _, err = conn.Exec("DROP DATABASE IF EXISTS " + pq.QuoteIdentifier(db.dbName)); err != nil {
		db.t.Fatalf("dropping test database %s: %v", db.dbName, err)
	}
}

func randomDBName(t *testing.T) string {
	raw := make([]byte, 6)
	if _, err := rand.Read(raw); err != nil {
		t.Fatalf("generating random database name: %v", err)
	}
	return "test_" + hex.EncodeToString(raw)
}

func dsnForDB(t *testing.T, baseDSN, dbName string) string {
	u, err := url.Parse(baseDSN)
	if err != nil {
		t.Fatalf("parsing %s: %v", envTestDSN, err)
	}
	u.Path = "/" + dbName
	return u.String()
}
