package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/taskboard/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Each pooled connection to :memory: would see its own empty database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SchemaVersion returns the highest applied migration.
func (s *SQLiteStore) SchemaVersion() (int, error) {
	var v int
	if err := s.db.Get(&v, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		currentVersion, err = s.SchemaVersion()
		if err != nil {
			return err
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// SaveSnapshot replaces the cached tasks for key, preserving order.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, key string, tasks []model.Task) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM snapshots WHERE key = ?", key); err != nil {
		return fmt.Errorf("clearing snapshot %s: %w", key, err)
	}

	const query = `
		INSERT INTO snapshots (key, position, task_id, data, fetched_at)
		VALUES (?, ?, ?, ?, ?)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing snapshot statement: %w", err)
	}
	defer stmt.Close()

	fetchedAt := s.now().UTC()
	for i, t := range tasks {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("marshaling task %s: %w", t.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, key, i, t.ID, string(data), fetchedAt); err != nil {
			return fmt.Errorf("inserting task %s: %w", t.ID, err)
		}
	}

	return tx.Commit()
}

type snapshotRow struct {
	TaskID    string    `db:"task_id"`
	Data      string    `db:"data"`
	FetchedAt time.Time `db:"fetched_at"`
}

// LoadSnapshot returns the cached tasks for key in their saved order.
// An empty saved snapshot is returned as ErrNoSnapshot, like a missing one.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context, key string) (*Snapshot, error) {
	var rows []snapshotRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT task_id, data, fetched_at FROM snapshots WHERE key = ? ORDER BY position", key)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot %s: %w", key, err)
	}
	if len(rows) == 0 {
		return nil, ErrNoSnapshot
	}

	snap := &Snapshot{Key: key, Tasks: make([]model.Task, 0, len(rows)), FetchedAt: rows[0].FetchedAt}
	for _, r := range rows {
		var t model.Task
		if err := json.Unmarshal([]byte(r.Data), &t); err != nil {
			return nil, fmt.Errorf("unmarshaling cached task %s: %w", r.TaskID, err)
		}
		snap.Tasks = append(snap.Tasks, t)
	}
	return snap, nil
}

// SaveUsers replaces the cached user directory.
func (s *SQLiteStore) SaveUsers(ctx context.Context, users []model.User) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM users"); err != nil {
		return fmt.Errorf("clearing users: %w", err)
	}

	fetchedAt := s.now().UTC()
	for _, u := range users {
		_, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO users (id, name, email, fetched_at) VALUES (?, ?, ?, ?)",
			u.ID, u.Name, u.Email, fetchedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting user %s: %w", u.ID, err)
		}
	}

	return tx.Commit()
}

// GetUsers returns the cached user directory ordered by name.
func (s *SQLiteStore) GetUsers(ctx context.Context) ([]model.User, error) {
	users := []model.User{}
	err := s.db.SelectContext(ctx, &users, "SELECT id, name, email FROM users ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("getting users: %w", err)
	}
	return users, nil
}

// Clear removes every cached row.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"snapshots", "users"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	return tx.Commit()
}
