// Package sqlstore implements the courierauth records on a relational
// database. The same SQL runs on PostgreSQL (pgx stdlib driver) and SQLite
// (mattn/go-sqlite3); only the schema file and placeholder style differ.
//
// Every timestamp column holds unix milliseconds. Counter increments and OTP
// consumption are single statements, so the database's row locking is the
// only coordination needed between concurrent requests.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/MrEthical07/courierauth/internal/stores"
)

// Dialect selects schema and placeholder style.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

//go:embed schema_postgres.sql schema_sqlite.sql
var schemaFS embed.FS

// DriverName returns the database/sql driver registered for d.
func (d Dialect) DriverName() (string, error) {
	switch d {
	case DialectPostgres:
		return "pgx", nil
	case DialectSQLite:
		return "sqlite3", nil
	default:
		return "", fmt.Errorf("unsupported sql dialect %q", d)
	}
}

// Open opens a database handle for dialect and verifies connectivity.
func Open(ctx context.Context, dialect Dialect, dsn string) (*sql.DB, error) {
	driver, err := dialect.DriverName()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// One writer keeps SQLite from returning SQLITE_BUSY under concurrent requests.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to %s: %w", dialect, err)
	}
	return db, nil
}

// Store holds the shared handle. Use the accessor methods to reach the
// individual record stores.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// New wraps db. It does not create tables; call EnsureSchema for that.
func New(db *sql.DB, dialect Dialect) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: nil db")
	}
	if _, err := dialect.DriverName(); err != nil {
		return nil, err
	}
	return &Store{db: db, dialect: dialect, now: time.Now}, nil
}

// EnsureSchema creates missing tables and indexes. It is idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	raw, err := schemaFS.ReadFile("schema_" + string(s.dialect) + ".sql")
	if err != nil {
		return err
	}
	for _, stmt := range strings.Split(string(raw), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: applying schema: %v", stores.ErrUnavailable, err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", stores.ErrUnavailable, err)
	}
	return nil
}

// Sweep deletes expired or consumed codes, elapsed counters and revocations
// of tokens that have expired.
func (s *Store) Sweep(ctx context.Context) (stores.SweepReport, error) {
	now := s.now().UnixMilli()
	var report stores.SweepReport

	steps := []struct {
		query string
		args  []any
		dst   *int64
	}{
		{`DELETE FROM ca_otp_codes WHERE expires_at <= ? OR consumed_at IS NOT NULL`, []any{now}, &report.OTPs},
		{`DELETE FROM ca_rate_counters WHERE window_start + window_ms <= ?`, []any{now}, &report.Counters},
		{`DELETE FROM ca_revoked_tokens WHERE expires_at <= ?`, []any{now}, &report.Revocations},
	}
	for _, step := range steps {
		res, err := s.db.ExecContext(ctx, s.rebind(step.query), step.args...)
		if err != nil {
			return report, fmt.Errorf("%w: %v", stores.ErrUnavailable, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return report, fmt.Errorf("%w: %v", stores.ErrUnavailable, err)
		}
		*step.dst = n
	}
	return report, nil
}

func (s *Store) OTPs() *OTPStore               { return &OTPStore{s} }
func (s *Store) Counters() *CounterStore       { return &CounterStore{s} }
func (s *Store) Revocations() *RevocationStore { return &RevocationStore{s} }
func (s *Store) Devices() *DeviceStore         { return &DeviceStore{s} }
func (s *Store) Accounts() *AccountStore       { return &AccountStore{s} }

// rebind rewrites ? placeholders as $n for postgres.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", stores.ErrUnavailable, err)
}
