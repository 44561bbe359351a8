package courierauth

import (
	"context"
	"database/sql"

	"github.com/MrEthical07/courierauth/internal/sqlstore"
)

// Dialect selects the SQL schema and placeholder style.
type Dialect = sqlstore.Dialect

const (
	DialectPostgres = sqlstore.DialectPostgres
	DialectSQLite   = sqlstore.DialectSQLite
)

// OpenDB opens and pings a database for dialect. SQLite handles are limited
// to one connection.
func OpenDB(ctx context.Context, dialect Dialect, dsn string) (*sql.DB, error) {
	return sqlstore.Open(ctx, dialect, dsn)
}

// Migrate creates the courierauth tables and indexes that do not exist yet.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	store, err := sqlstore.New(db, dialect)
	if err != nil {
		return err
	}
	return store.EnsureSchema(ctx)
}
