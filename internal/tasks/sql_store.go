package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Dialect holds the per-driver bits of SQLStore. Both supported drivers use
// '?' placeholders, so only the schema differs.
type Dialect struct {
	Name   string
	Driver string
	Schema string
}

var (
	SQLite = Dialect{
		Name:   "sqlite",
		Driver: "sqlite",
		Schema: `
CREATE TABLE IF NOT EXISTS tasks (
	pos INTEGER PRIMARY KEY,
	description TEXT NOT NULL,
	completed INTEGER NOT NULL DEFAULT 0
);`,
	}

	MySQL = Dialect{
		Name:   "mysql",
		Driver: "mysql",
		Schema: `
CREATE TABLE IF NOT EXISTS tasks (
	pos INT UNSIGNED NOT NULL PRIMARY KEY,
	description LONGTEXT NOT NULL,
	completed BOOLEAN NOT NULL DEFAULT FALSE
)`,
	}
)

// SQLStore keeps the ledger in a "tasks" table keyed by position.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect

	// serialises appends so two writers never compute the same MAX(pos)
	mu sync.Mutex
}

func NewSQLStore(db *sql.DB, d Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: d}
}

// OpenSQLite opens a SQLite database. A single connection is used so that
// ":memory:" databases survive between calls.
func OpenSQLite(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open(SQLite.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite pragmas: %w", err)
	}
	return NewSQLStore(db, SQLite), nil
}

// OpenMySQL connects with CLIENT_FOUND_ROWS so that completing an already
// completed task still reports one affected row.
func OpenMySQL(ctx context.Context, dsn string) (*SQLStore, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ClientFoundRows = true

	conn, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db := sql.OpenDB(conn)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return NewSQLStore(db, MySQL), nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) Dialect() string { return s.dialect.Name }

// ApplyMigrations ensures schema exists
func (s *SQLStore) ApplyMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.Schema); err != nil {
		return fmt.Errorf("migrate %s: %w", s.dialect.Name, err)
	}
	return nil
}

func (s *SQLStore) Create(ctx context.Context, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (pos, description, completed)
		SELECT COALESCE(MAX(pos) + 1, 0), ?, 0
		FROM tasks
	`, description)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *SQLStore) Complete(ctx context.Context, index uint16) error {
	_, err := s.MarkComplete(ctx, index)
	return err
}

// MarkComplete touches zero rows for an unknown position, which is not an error.
func (s *SQLStore) MarkComplete(ctx context.Context, index uint16) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET completed = 1 WHERE pos = ?
	`, index)
	if err != nil {
		return false, fmt.Errorf("complete task %d: %w", index, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete task %d: %w", index, err)
	}
	return n > 0, nil
}

func (s *SQLStore) List(ctx context.Context) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT description, completed
		FROM tasks
		ORDER BY pos ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	out := make([]Task, 0)
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.Description, &t.Completed); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Helper to build DSN like: file:/absolute/path?_pragma=busy_timeout(5000)
func SQLiteFileDSN(path string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return "file:" + filepath.ToSlash(abs) + "?_pragma=busy_timeout(5000)", nil
}
