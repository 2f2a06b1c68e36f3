// Package store persists normalized records in SQLite or PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("store: not found")

// dialect holds the differences between the supported databases.
type dialect struct {
	name        string
	driver      string
	numbered    bool // $1-style placeholders instead of ?
	floatType   string
	booleanType string
}

var (
	sqliteDialect   = dialect{name: "sqlite", driver: "sqlite", floatType: "REAL", booleanType: "INTEGER"}
	postgresDialect = dialect{name: "postgres", driver: "postgres", numbered: true, floatType: "DOUBLE PRECISION", booleanType: "BOOLEAN"}
)

// rebind rewrites ? placeholders for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Store is a record store backed by database/sql.
type Store struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to the database named by url and applies the schema.
//
// Accepted forms: sqlite://path, file:path, :memory:, postgres://... and
// postgresql://...
func Open(ctx context.Context, url string) (*Store, error) {
	d, dsn, err := parseURL(url)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.name, err)
	}
	if d == sqliteDialect {
		// SQLite allows a single writer; :memory: databases also live per connection.
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, dialect: d}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.name, err)
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", d.name, err)
	}
	return s, nil
}

func parseURL(url string) (dialect, string, error) {
	switch {
	case url == "":
		return dialect{}, "", errors.New("store: database url is required")
	case url == ":memory:":
		return sqliteDialect, url, nil
	case strings.HasPrefix(url, "sqlite://"):
		path := strings.TrimPrefix(url, "sqlite://")
		if path == "" {
			return dialect{}, "", fmt.Errorf("store: missing path in %q", url)
		}
		return sqliteDialect, path, nil
	case strings.HasPrefix(url, "file:"):
		return sqliteDialect, url, nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return postgresDialect, url, nil
	default:
		return dialect{}, "", fmt.Errorf("store: unsupported database url scheme in %q", url)
	}
}

// Dialect names the backing database ("sqlite" or "postgres").
func (s *Store) Dialect() string { return s.dialect.name }

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS series (
			series_id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			observation_start TEXT NOT NULL,
			observation_end TEXT NOT NULL,
			frequency TEXT NOT NULL,
			frequency_short TEXT NOT NULL,
			units TEXT NOT NULL,
			units_short TEXT NOT NULL,
			seasonal_adjustment TEXT NOT NULL,
			seasonal_adjustment_short TEXT NOT NULL,
			last_updated TEXT NOT NULL,
			popularity INTEGER NOT NULL,
			notes TEXT NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS observations (
			series_id TEXT NOT NULL,
			date TEXT NOT NULL,
			value %s,
			pull_date TEXT NOT NULL,
			PRIMARY KEY (series_id, date, pull_date)
		)`, s.dialect.floatType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS releases (
			release_id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			press_release %s NOT NULL,
			link TEXT NOT NULL
		)`, s.dialect.booleanType),
		`CREATE TABLE IF NOT EXISTS release_dates (
			release_id INTEGER NOT NULL,
			release_date TEXT NOT NULL,
			PRIMARY KEY (release_id, release_date)
		)`,
		`CREATE TABLE IF NOT EXISTS series_releases (
			series_id TEXT NOT NULL,
			release_id INTEGER NOT NULL,
			release_name TEXT NOT NULL,
			PRIMARY KEY (series_id, release_id)
		)`,
	}

	for _, statement := range statements {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return err
		}
	}
	return nil
}

// batch is one statement run once per argument row.
type batch struct {
	query string
	rows  [][]any
}

// execTx runs every batch inside one transaction.
func (s *Store) execTx(ctx context.Context, batches ...batch) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, b := range batches {
		if err = execRows(ctx, tx, s.dialect.rebind(b.query), b.rows); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func execRows(ctx context.Context, tx *sql.Tx, query string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, args := range rows {
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return err
		}
	}
	return nil
}
