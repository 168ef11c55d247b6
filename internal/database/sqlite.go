package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"storysync/internal/database/migrations"
	"storysync/internal/story"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements story.Store on SQLite. The connection is opened
// lazily by the first operation and shared by every later one.
type SQLiteStore struct {
	path   string
	logger story.Logger
	clock  story.Clock

	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteStore creates a store for path without opening it.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteStore(path string, logger story.Logger, clock story.Clock) *SQLiteStore {
	if logger == nil {
		logger = story.NewNopLogger()
	}
	if clock == nil {
		clock = story.RealClock{}
	}
	return &SQLiteStore{path: path, logger: logger, clock: clock}
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// The pool is limited to a single connection: ":memory:" databases are
// per-connection, and the store serializes access through SQLite anyway.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Open opens the database and brings its schema up to date. Concurrent
// callers wait for the first one and share its connection. A failed open
// is not cached, so a later call tries again.
func (s *SQLiteStore) Open(ctx context.Context) error {
	_, err := s.conn(ctx)
	return err
}

func (s *SQLiteStore) conn(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", story.ErrStorageUnavailable, err)
	}

	db, err := OpenConnection(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", story.ErrStorageUnavailable, err)
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", story.ErrStorageUnavailable, err)
	}

	s.logger.Debug("store opened", "path", s.path)
	s.db = db
	return db, nil
}

// Story tables

func checkTable(table story.Table) error {
	switch table {
	case story.TableStories, story.TableSavedStories:
		return nil
	default:
		return fmt.Errorf("unknown table %q", table)
	}
}

func (s *SQLiteStore) PutStory(ctx context.Context, table story.Table, st *story.Story) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if st == nil || st.ID == "" {
		return fmt.Errorf("%w: story without id", story.ErrStorageWrite)
	}
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("%w: encoding story %s: %w", story.ErrStorageWrite, st.ID, err)
	}

	query := `INSERT INTO ` + string(table) + ` (id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`
	if _, err := db.ExecContext(ctx, query, st.ID, string(data), s.now()); err != nil {
		return fmt.Errorf("%w: putting story %s: %w", story.ErrStorageWrite, st.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetAllStories(ctx context.Context, table story.Table) ([]*story.Story, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT data FROM `+string(table))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", table, err)
	}
	defer rows.Close()

	stories := []*story.Story{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", table, err)
		}
		st, err := decodeStory(data)
		if err != nil {
			s.logger.Warn("skipping unreadable story", "table", string(table), "error", err)
			continue
		}
		stories = append(stories, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing %s: %w", table, err)
	}
	return stories, nil
}

func (s *SQLiteStore) GetStory(ctx context.Context, table story.Table, id string) (*story.Story, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var data string
	err = db.QueryRowContext(ctx, `SELECT data FROM `+string(table)+` WHERE id = ?`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("getting story %s: %w", id, err)
	}
	return decodeStory(data)
}

func (s *SQLiteStore) DeleteStory(ctx context.Context, table story.Table, id string) error {
	if err := checkTable(table); err != nil {
		return err
	}
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM `+string(table)+` WHERE id = ?`, id); err != nil {
		return fmt.Errorf("%w: deleting story %s: %w", story.ErrStorageWrite, id, err)
	}
	return nil
}

func decodeStory(data string) (*story.Story, error) {
	var st story.Story
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("decoding story: %w", err)
	}
	return &st, nil
}

// Pending write queue

const pendingColumns = `seq, id, description, photo_name, photo_type, photo_data, lat, lon, enqueued_at`

func (s *SQLiteStore) PutPending(ctx context.Context, p *story.PendingStory) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("%w: queue entry without id", story.ErrStorageWrite)
	}
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	var seq int64
	err = db.QueryRowContext(ctx, `
		INSERT INTO story_queue (id, description, photo_name, photo_type, photo_data, lat, lon, enqueued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			description = excluded.description,
			photo_name = excluded.photo_name,
			photo_type = excluded.photo_type,
			photo_data = excluded.photo_data,
			lat = excluded.lat,
			lon = excluded.lon,
			enqueued_at = excluded.enqueued_at
		RETURNING seq`,
		p.ID, p.Description, p.PhotoName, p.PhotoType, p.PhotoData,
		nullFloat(p.Lat), nullFloat(p.Lon), p.EnqueuedAt.UTC().Format(time.RFC3339Nano),
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("%w: queueing %s: %w", story.ErrStorageWrite, p.ID, err)
	}
	p.Seq = seq
	return nil
}

func (s *SQLiteStore) GetPendingStories(ctx context.Context) ([]*story.PendingStory, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT `+pendingColumns+` FROM story_queue ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("listing queue: %w", err)
	}
	defer rows.Close()

	pending := []*story.PendingStory{}
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		pending = append(pending, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing queue: %w", err)
	}
	return pending, nil
}

func (s *SQLiteStore) GetPendingStory(ctx context.Context, id string) (*story.PendingStory, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx, `SELECT `+pendingColumns+` FROM story_queue WHERE id = ?`, id)
	p, err := scanPending(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return p, nil
}

func (s *SQLiteStore) DeletePending(ctx context.Context, id string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM story_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("%w: deleting queue entry %s: %w", story.ErrStorageWrite, id, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPending(row scanner) (*story.PendingStory, error) {
	var (
		p          story.PendingStory
		lat, lon   sql.NullFloat64
		enqueuedAt string
	)
	err := row.Scan(&p.Seq, &p.ID, &p.Description, &p.PhotoName, &p.PhotoType, &p.PhotoData, &lat, &lon, &enqueuedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning queue entry: %w", err)
	}
	if lat.Valid {
		p.Lat = &lat.Float64
	}
	if lon.Valid {
		p.Lon = &lon.Float64
	}
	if t, err := time.Parse(time.RFC3339Nano, enqueuedAt); err == nil {
		p.EnqueuedAt = t
	}
	return &p, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// Auth slot

func (s *SQLiteStore) PutAuth(ctx context.Context, key, value string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT INTO auth (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("%w: putting auth %s: %w", story.ErrStorageWrite, key, err)
	}
	return nil
}

func (s *SQLiteStore) GetAuth(ctx context.Context, key string) (string, bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return "", false, err
	}

	var value string
	err = db.QueryRowContext(ctx, `SELECT value FROM auth WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("getting auth %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) DeleteAuth(ctx context.Context, key string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM auth WHERE key = ?`, key); err != nil {
		return fmt.Errorf("%w: deleting auth %s: %w", story.ErrStorageWrite, key, err)
	}
	return nil
}

func (s *SQLiteStore) now() string {
	return s.clock.Now().UTC().Format(time.RFC3339Nano)
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteStore) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteStore) CheckMigrations(ctx context.Context) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return migrations.CheckDBMigrationStatus(db)
}

// Close closes the database connection. The store can be opened again.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Compile-time check that SQLiteStore implements story.Store
var _ story.Store = (*SQLiteStore)(nil)
