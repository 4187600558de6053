package status

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/psantana5/wfrunner/pkg/models"
)

// StoreConfig selects the SQL backend for the status channel
type StoreConfig struct {
	Type string // "sqlite" or "postgres"
	DSN  string // file path for sqlite, connection string for postgres

	MaxOpenConns int
	MaxIdleConns int
}

// SQLStore records status events in the workflow_status_events table and
// reads them back as run history
type SQLStore struct {
	db      *sql.DB
	dialect string
	mu      sync.Mutex
}

// NewSQLStore opens the configured backend and creates the schema
func NewSQLStore(cfg StoreConfig) (*SQLStore, error) {
	switch cfg.Type {
	case "sqlite", "sqlite3", "":
		return NewSQLiteStore(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgresStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}

// NewSQLiteStore opens a SQLite database file
func NewSQLiteStore(dbPath string) (*SQLStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite database path is required")
	}

	// WAL with a busy timeout so `wfrunner events` can read while a run writes
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer for SQLite to avoid lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := &SQLStore{db: db, dialect: "sqlite3"}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// NewPostgresStore opens a PostgreSQL database
func NewPostgresStore(cfg StoreConfig) (*SQLStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(4)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(2)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLStore{db: db, dialect: "postgres"}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workflow_status_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id TEXT NOT NULL UNIQUE,
		workflow_uuid TEXT NOT NULL,
		status INTEGER NOT NULL,
		state TEXT NOT NULL,
		logs TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_status_events_run ON workflow_status_events(workflow_uuid, seq);
	`
	if s.dialect == "postgres" {
		schema = `
	CREATE TABLE IF NOT EXISTS workflow_status_events (
		seq BIGSERIAL PRIMARY KEY,
		event_id VARCHAR(36) NOT NULL UNIQUE,
		workflow_uuid VARCHAR(255) NOT NULL,
		status INTEGER NOT NULL,
		state VARCHAR(16) NOT NULL,
		logs TEXT,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_status_events_run ON workflow_status_events(workflow_uuid, seq);
	`
	}

	_, err := s.db.Exec(schema)
	return err
}

// Publish inserts the event. One attempt, no retry.
func (s *SQLStore) Publish(ctx context.Context, event models.StatusEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO workflow_status_events (event_id, workflow_uuid, status, state, logs, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), event.ID, event.RunID, event.Code, string(event.State), event.Logs, event.Timestamp.UTC())
	if err != nil {
		return &PublishError{Channel: s.dialect, RunID: event.RunID, State: event.State, Err: err}
	}
	return nil
}

// History returns the events recorded for runID in insertion order
func (s *SQLStore) History(ctx context.Context, runID string) ([]models.StatusEvent, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT event_id, workflow_uuid, status, state, logs, created_at
		FROM workflow_status_events
		WHERE workflow_uuid = ?
		ORDER BY seq ASC
	`), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query status history: %w", err)
	}
	defer rows.Close()

	var events []models.StatusEvent
	for rows.Next() {
		var event models.StatusEvent
		var state string
		var logs sql.NullString
		if err := rows.Scan(&event.ID, &event.RunID, &event.Code, &state, &logs, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan status event: %w", err)
		}
		event.State = models.RunState(state)
		event.Logs = logs.String
		events = append(events, event)
	}
	return events, rows.Err()
}

// HealthCheck verifies the database is reachable
func (s *SQLStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind converts ? placeholders to $n for postgres
func (s *SQLStore) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
