package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jhughescu/dev-cms/pkg/interfaces"
	"github.com/jhughescu/dev-cms/pkg/types"
)

// SessionStore implements interfaces.SessionStore over the shared Manager.
// Array-valued fields (students, assets, slides, currentState, stateHistory)
// are stored as JSON columns so each document update stays a single row
// write, mirroring the document-store semantics the sync engine expects.
type SessionStore struct {
	m *Manager
}

// NewSessionStore returns the session store backed by m.
func NewSessionStore(m *Manager) *SessionStore {
	return &SessionStore{m: m}
}

const sessionColumns = `session_id, organisation, facilitator, join_token, session_password,
	status, archived, archived_at, students, assets, slides, current_state,
	state_history, text_content, created_at, updated_at`

// CreateSession persists a new session document.
func (s *SessionStore) CreateSession(ctx context.Context, session *types.Session) error {
	return s.m.executeWrite(func(db *sql.DB) error {
		students, assets, slides, state, history, err := marshalArrays(session)
		if err != nil {
			return err
		}

		query := `
			INSERT INTO sessions (` + sessionColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err = db.ExecContext(ctx, query,
			session.SessionID,
			session.Organisation,
			session.Facilitator,
			nullable(session.JoinToken),
			nullable(session.SessionPassword),
			session.Status,
			session.Archived,
			session.ArchivedAt,
			students, assets, slides, state, history,
			session.TextContent,
			session.CreatedAt,
			session.UpdatedAt,
		)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				return interfaces.ErrDuplicateSession
			}
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return nil
	})
}

// GetSession retrieves a session by its human-chosen id.
func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	row := s.m.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, sessionID)
	return scanSession(row)
}

// FindByStudentSocket locates the session whose roster holds socketID using
// the JSON1 extension, since disconnects identify only the socket.
func (s *SessionStore) FindByStudentSocket(ctx context.Context, socketID string) (*types.Session, error) {
	row := s.m.db.QueryRowContext(ctx, `
		SELECT `+qualified(sessionColumns)+`
		FROM sessions, json_each(sessions.students)
		WHERE json_extract(json_each.value, '$.socketId') = ?
		LIMIT 1
	`, socketID)
	return scanSession(row)
}

// UpdateStudents replaces the roster array in one write.
func (s *SessionStore) UpdateStudents(ctx context.Context, sessionID string, students []types.Student) error {
	return s.m.executeWrite(func(db *sql.DB) error {
		data, err := json.Marshal(students)
		if err != nil {
			return fmt.Errorf("failed to marshal students: %w", err)
		}
		return execOnSession(ctx, db,
			`UPDATE sessions SET students = ?, updated_at = ? WHERE session_id = ?`,
			string(data), time.Now(), sessionID)
	})
}

// UpdateSlides replaces the slide deck array in one write.
func (s *SessionStore) UpdateSlides(ctx context.Context, sessionID string, slides []types.Slide) error {
	return s.m.executeWrite(func(db *sql.DB) error {
		data, err := json.Marshal(slides)
		if err != nil {
			return fmt.Errorf("failed to marshal slides: %w", err)
		}
		return execOnSession(ctx, db,
			`UPDATE sessions SET slides = ?, updated_at = ? WHERE session_id = ?`,
			string(data), time.Now(), sessionID)
	})
}

// ApplyBroadcast appends rawAssets to the audit log, overwrites currentState
// with state and appends exactly one history snapshot — all in one
// transaction, so a concurrent broadcast can never interleave between the
// state write and its snapshot.
func (s *SessionStore) ApplyBroadcast(ctx context.Context, sessionID string, rawAssets []types.Asset, state []string) (*types.Session, error) {
	if state == nil {
		state = []string{}
	}

	err := s.m.executeWrite(func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var assetsJSON, historyJSON string
		row := tx.QueryRowContext(ctx,
			`SELECT assets, state_history FROM sessions WHERE session_id = ?`, sessionID)
		if err := row.Scan(&assetsJSON, &historyJSON); err != nil {
			if err == sql.ErrNoRows {
				return interfaces.ErrSessionNotFound
			}
			return fmt.Errorf("failed to read session arrays: %w", err)
		}

		var assets []types.Asset
		if err := json.Unmarshal([]byte(assetsJSON), &assets); err != nil {
			return fmt.Errorf("failed to unmarshal assets: %w", err)
		}
		var history []types.StateSnapshot
		if err := json.Unmarshal([]byte(historyJSON), &history); err != nil {
			return fmt.Errorf("failed to unmarshal state history: %w", err)
		}

		now := time.Now()
		assets = append(assets, rawAssets...)
		snapshot := types.StateSnapshot{State: append([]string{}, state...), Timestamp: now}
		history = append(history, snapshot)

		newAssets, err := json.Marshal(assets)
		if err != nil {
			return fmt.Errorf("failed to marshal assets: %w", err)
		}
		newState, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("failed to marshal current state: %w", err)
		}
		newHistory, err := json.Marshal(history)
		if err != nil {
			return fmt.Errorf("failed to marshal state history: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE sessions
			SET assets = ?, current_state = ?, state_history = ?, updated_at = ?
			WHERE session_id = ?
		`, string(newAssets), string(newState), string(newHistory), now, sessionID)
		if err != nil {
			return fmt.Errorf("failed to apply broadcast: %w", err)
		}

		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}

	return s.GetSession(ctx, sessionID)
}

// SetStatus moves the session between lifecycle states, keeping the legacy
// archived boolean and archivedAt in sync with the status field.
func (s *SessionStore) SetStatus(ctx context.Context, sessionID string, status string) error {
	if !types.IsValidStatus(status) {
		return types.ErrInvalidStatus
	}

	return s.m.executeWrite(func(db *sql.DB) error {
		now := time.Now()
		if status == types.StatusArchived {
			return execOnSession(ctx, db, `
				UPDATE sessions
				SET status = ?, archived = 1, archived_at = ?, updated_at = ?
				WHERE session_id = ?
			`, status, now, now, sessionID)
		}
		return execOnSession(ctx, db, `
			UPDATE sessions
			SET status = ?, archived = 0, archived_at = NULL, updated_at = ?
			WHERE session_id = ?
		`, status, now, sessionID)
	})
}

// ArchiveForFacilitator archives every non-archived session owned by
// facilitator, returning how many changed.
func (s *SessionStore) ArchiveForFacilitator(ctx context.Context, facilitator string) (int, error) {
	var count int64
	err := s.m.executeWrite(func(db *sql.DB) error {
		now := time.Now()
		res, err := db.ExecContext(ctx, `
			UPDATE sessions
			SET status = ?, archived = 1, archived_at = ?, updated_at = ?
			WHERE facilitator = ? AND archived = 0
		`, types.StatusArchived, now, now, facilitator)
		if err != nil {
			return fmt.Errorf("failed to archive sessions: %w", err)
		}
		count, err = res.RowsAffected()
		return err
	})
	return int(count), err
}

// SetTextContent replaces the shared free-text field.
func (s *SessionStore) SetTextContent(ctx context.Context, sessionID string, text string) error {
	return s.m.executeWrite(func(db *sql.DB) error {
		return execOnSession(ctx, db,
			`UPDATE sessions SET text_content = ?, updated_at = ? WHERE session_id = ?`,
			text, time.Now(), sessionID)
	})
}

// DeleteSession removes the session document outright.
func (s *SessionStore) DeleteSession(ctx context.Context, sessionID string) error {
	return s.m.executeWrite(func(db *sql.DB) error {
		return execOnSession(ctx, db,
			`DELETE FROM sessions WHERE session_id = ?`, sessionID)
	})
}

// ListSessions returns all sessions, newest first.
func (s *SessionStore) ListSessions(ctx context.Context) ([]*types.Session, error) {
	rows, err := s.m.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*types.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}
	return sessions, nil
}

// HealthCheck delegates to the shared manager.
func (s *SessionStore) HealthCheck(ctx context.Context) error {
	return s.m.HealthCheck(ctx)
}

// Close delegates to the shared manager.
func (s *SessionStore) Close() error {
	return s.m.Close()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (*types.Session, error) {
	var session types.Session
	var joinToken, sessionPassword sql.NullString
	var archivedAt sql.NullTime
	var students, assets, slides, state, history string

	err := row.Scan(
		&session.SessionID,
		&session.Organisation,
		&session.Facilitator,
		&joinToken,
		&sessionPassword,
		&session.Status,
		&session.Archived,
		&archivedAt,
		&students,
		&assets,
		&slides,
		&state,
		&history,
		&session.TextContent,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	if joinToken.Valid {
		session.JoinToken = joinToken.String
	}
	if sessionPassword.Valid {
		session.SessionPassword = sessionPassword.String
	}
	if archivedAt.Valid {
		session.ArchivedAt = &archivedAt.Time
	}

	for _, pair := range []struct {
		raw string
		dst interface{}
	}{
		{students, &session.Students},
		{assets, &session.Assets},
		{slides, &session.Slides},
		{state, &session.CurrentState},
		{history, &session.StateHistory},
	} {
		if err := json.Unmarshal([]byte(pair.raw), pair.dst); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session arrays: %w", err)
		}
	}

	return &session, nil
}

func marshalArrays(session *types.Session) (students, assets, slides, state, history string, err error) {
	parts := make([]string, 5)
	for i, v := range []interface{}{
		session.Students, session.Assets, session.Slides,
		session.CurrentState, session.StateHistory,
	} {
		data, merr := json.Marshal(v)
		if merr != nil {
			err = fmt.Errorf("failed to marshal session arrays: %w", merr)
			return
		}
		parts[i] = string(data)
	}
	return parts[0], parts[1], parts[2], parts[3], parts[4], nil
}

func execOnSession(ctx context.Context, db *sql.DB, query string, args ...interface{}) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("session update failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return interfaces.ErrSessionNotFound
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// qualified prefixes each column with the sessions table name for queries
// that join against json_each.
func qualified(columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = "sessions." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
