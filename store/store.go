// Package store keeps the attendance log in SQL. SQLite serves a single
// station; PostgreSQL is shared by several stations, with the unique
// (student_id, date) index as the final guard against double marking.
package store

import (
	"context"
	"database/sql"
	"embed"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/abihf/rollcall/attendance"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Log is an attendance.Log backed by a SQL database.
type Log struct {
	db      DBTX
	dialect Dialect
	closer  func() error
}

var _ attendance.Log = (*Log)(nil)

// New wraps an already migrated connection.
func New(db DBTX, dialect Dialect) *Log {
	return &Log{db: db, dialect: dialect, closer: func() error { return nil }}
}

// Open connects to dsn and applies pending migrations. postgres:// and
// postgresql:// URLs use pgx; sqlite://path or a bare path use SQLite.
func Open(ctx context.Context, dsn string) (*Log, error) {
	driver, source, dialect, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, errors.Wrap(err, "Can not open attendance database")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "Can not connect to attendance database")
	}
	if err := Migrate(ctx, db, dialect); err != nil {
		db.Close()
		return nil, err
	}
	l := New(db, dialect)
	l.closer = db.Close
	return l, nil
}

func (l *Log) Close() error { return l.closer() }

func (l *Log) Dialect() Dialect { return l.dialect }

func parseDSN(dsn string) (driver, source string, dialect Dialect, err error) {
	switch {
	case dsn == "":
		return "", "", "", errors.New("empty attendance dsn")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "pgx", dsn, Postgres, nil
	}

	path := strings.TrimPrefix(dsn, "sqlite://")
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", "", "", errors.Wrap(err, "Can not create database directory")
		}
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return "sqlite", "file:" + path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", SQLite, nil
}

// goose keeps its dialect and filesystem in package state.
var migrateMu sync.Mutex

func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	gooseDialect := "sqlite3"
	if dialect == Postgres {
		gooseDialect = "pgx"
	}
	if err := goose.SetDialect(gooseDialect); err != nil {
		return errors.Wrap(err, "Can not set migration dialect")
	}
	if err := goose.UpContext(ctx, db, "migrations/"+string(dialect)); err != nil {
		return errors.Wrap(err, "Can not migrate attendance database")
	}
	return nil
}

func (l *Log) Insert(ctx context.Context, identity, date, clock string) error {
	_, err := l.db.ExecContext(ctx, l.rebind(
		`INSERT INTO attendance (student_id, date, time) VALUES (?, ?, ?)`),
		identity, date, clock)
	if isUniqueViolation(err) {
		return errors.Wrapf(attendance.ErrAlreadyRecorded, "%s on %s", identity, date)
	}
	return errors.Wrap(err, "Can not insert attendance")
}

func (l *Log) CountForIdentityOnDate(ctx context.Context, identity, date string) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, l.rebind(
		`SELECT COUNT(*) FROM attendance WHERE student_id = ? AND date = ?`),
		identity, date).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "Can not count attendance")
	}
	return n, nil
}

func (l *Log) AllForIdentity(ctx context.Context, identity string) ([]attendance.Event, error) {
	return l.events(ctx,
		`SELECT student_id, date, time FROM attendance WHERE student_id = ? ORDER BY date, time`,
		identity)
}

// OnDate lists every event of one day ordered by time.
func (l *Log) OnDate(ctx context.Context, date string) ([]attendance.Event, error) {
	return l.events(ctx,
		`SELECT student_id, date, time FROM attendance WHERE date = ? ORDER BY time, student_id`,
		date)
}

func (l *Log) CountsByMonth(ctx context.Context) (map[string]int, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT substr(date, 1, 7) AS month, COUNT(*) FROM attendance GROUP BY month`)
	if err != nil {
		return nil, errors.Wrap(err, "Can not query monthly attendance")
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var month string
		var n int
		if err := rows.Scan(&month, &n); err != nil {
			return nil, errors.Wrap(err, "Can not read monthly attendance")
		}
		counts[month] = n
	}
	return counts, errors.Wrap(rows.Err(), "Can not read monthly attendance")
}

func (l *Log) events(ctx context.Context, query string, args ...any) ([]attendance.Event, error) {
	rows, err := l.db.QueryContext(ctx, l.rebind(query), args...)
	if err != nil {
		return nil, errors.Wrap(err, "Can not query attendance")
	}
	defer rows.Close()

	var out []attendance.Event
	for rows.Next() {
		var e attendance.Event
		if err := rows.Scan(&e.Identity, &e.Date, &e.Time); err != nil {
			return nil, errors.Wrap(err, "Can not read attendance")
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "Can not read attendance")
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (l *Log) rebind(query string) string {
	if l.dialect != Postgres {
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

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
