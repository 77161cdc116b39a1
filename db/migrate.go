// Package db owns the schema migrations for the payment engine database.
// The connection pool and SQL execution helpers live in internal/db.
package db

import (
	"context"
	"fmt"
	"net/http"

	migrate "github.com/rubenv/sql-migrate"

	"github.com/paymenthub/payment-engine-backend/db/migrations"
	"github.com/paymenthub/payment-engine-backend/internal/db"
)

// MigrationsTableName tracks applied migrations in the target database.
const MigrationsTableName = "payment_engine_migrations"

// Migrate applies up to count migrations in the given direction against dbURL.
// count == 0 applies all pending migrations.
func Migrate(dbURL string, dir migrate.MigrationDirection, count int) (int, error) {
	dbConnectionPool, err := db.OpenDBConnectionPool(dbURL)
	if err != nil {
		return 0, fmt.Errorf("connecting to the database: %w", err)
	}
	defer dbConnectionPool.Close()

	ms := migrate.MigrationSet{
		TableName: MigrationsTableName,
	}

	m := migrate.HttpFileSystemMigrationSource{FileSystem: http.FS(migrations.FS)}
	ctx := context.Background()
	sqlDB, err := dbConnectionPool.SqlDB(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetching sql.DB: %w", err)
	}
	return ms.ExecMax(sqlDB, dbConnectionPool.DriverName(), m, dir, count)
}
