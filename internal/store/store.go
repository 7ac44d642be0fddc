package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Manager owns the SQLite connection behind both the session store and the
// file store. All writes funnel through a single goroutine: SQLite allows one
// writer at a time, and serializing writes at this level is what makes each
// store operation atomic with respect to the others.
type Manager struct {
	db           *sql.DB
	writeChannel chan writeOperation
	writeTimeout time.Duration
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
	log          zerolog.Logger
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// Config holds store settings.
type Config struct {
	Path            string
	MaxConnections  int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	WriteTimeout    time.Duration
}

// DefaultConfig returns settings sized for classroom-scale concurrent access.
func DefaultConfig() *Config {
	return &Config{
		Path:            "./data/devcms.db",
		MaxConnections:  10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		WriteTimeout:    30 * time.Second,
	}
}

// NewManager opens the database, applies the schema and starts the write
// loop. WAL mode keeps concurrent reads from blocking on the writer.
func NewManager(cfg *Config, log zerolog.Logger) (*Manager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}

	m := &Manager{
		db:           db,
		writeChannel: make(chan writeOperation, 100),
		writeTimeout: writeTimeout,
		shutdown:     make(chan struct{}),
		log:          log.With().Str("component", "store").Logger(),
	}

	m.wg.Add(1)
	go m.writeLoop()

	return m, nil
}

// writeLoop processes all write operations in a single goroutine. A failed
// write is retried exactly once after a short backoff; persistent failures
// surface to the caller.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				m.log.Warn().Err(err).Msg("write failed, retrying")
				time.Sleep(time.Second)
				err = op.operation(m.db)
				if err != nil {
					m.log.Error().Err(err).Msg("write failed after retry")
				}
			}
			op.result <- err

		case <-m.shutdown:
			m.log.Debug().Msg("write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion.
func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(m.writeTimeout):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("store is shutting down")
	}
}

// HealthCheck validates connectivity and basic read access.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := m.db.QueryContext(ctx, "SELECT COUNT(*) FROM sessions LIMIT 1"); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}

	return nil
}

// Close flushes pending writes and shuts the manager down.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	return m.db.Close()
}

func applySchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id       TEXT PRIMARY KEY,
		organisation     TEXT NOT NULL DEFAULT 'default',
		facilitator      TEXT NOT NULL,
		join_token       TEXT UNIQUE,
		session_password TEXT,
		status           TEXT NOT NULL DEFAULT 'pending',
		archived         INTEGER NOT NULL DEFAULT 0,
		archived_at      DATETIME,
		students         TEXT NOT NULL DEFAULT '[]',
		assets           TEXT NOT NULL DEFAULT '[]',
		slides           TEXT NOT NULL DEFAULT '[]',
		current_state    TEXT NOT NULL DEFAULT '[]',
		state_history    TEXT NOT NULL DEFAULT '[]',
		text_content     TEXT NOT NULL DEFAULT '',
		created_at       DATETIME NOT NULL,
		updated_at       DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_facilitator ON sessions(facilitator);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);

	CREATE TABLE IF NOT EXISTS files (
		id            TEXT PRIMARY KEY,
		original_name TEXT NOT NULL DEFAULT '',
		filename      TEXT NOT NULL DEFAULT '',
		mimetype      TEXT NOT NULL DEFAULT '',
		size          INTEGER NOT NULL DEFAULT 0,
		url           TEXT UNIQUE,
		hash          TEXT UNIQUE,
		uploaded_by   TEXT NOT NULL DEFAULT '',
		uploaded_at   DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_files_url ON files(url);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("schema exec failed: %w", err)
	}
	return nil
}
