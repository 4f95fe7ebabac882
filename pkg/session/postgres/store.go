// Package postgres provides PostgreSQL storage for interview sessions.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/txn2/mcp-interviewer/pkg/interview"
	"github.com/txn2/mcp-interviewer/pkg/session"
)

// Store implements session.Store using PostgreSQL. The full session is kept
// in a JSONB record; the scalar columns mirror it for queries and carry the
// version used for compare-and-swap saves.
type Store struct {
	db     *sql.DB
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a new PostgreSQL session store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const selectSession = `
	SELECT id, state, current_question_id, attempt_count, version, record,
	       created_at, last_active_at, expires_at
	FROM sessions
`

// Create persists a new session.
func (s *Store) Create(ctx context.Context, sess *session.Session) error {
	record, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	query := `
		INSERT INTO sessions (id, state, current_question_id, attempt_count, version, record,
		                      created_at, last_active_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.db.ExecContext(ctx, query,
		sess.ID, string(sess.State), sess.CurrentQuestionID, sess.AttemptCount, sess.Version, record,
		sess.CreatedAt, sess.LastActiveAt, sess.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID. Returns nil, nil if not found or expired.
func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	row := s.db.QueryRowContext(ctx, selectSession+` WHERE id = $1 AND expires_at > NOW()`, id)

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Save replaces a session if the stored version matches sess.Version.
// A session that was deleted or expired is never recreated.
func (s *Store) Save(ctx context.Context, sess *session.Session) error {
	next := sess.Clone()
	next.Version++
	record, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	query := `
		UPDATE sessions
		SET state = $3, current_question_id = $4, attempt_count = $5, version = version + 1,
		    record = $6, last_active_at = $7, expires_at = $8
		WHERE id = $1 AND version = $2 AND expires_at > NOW()
	`
	res, err := s.db.ExecContext(ctx, query,
		sess.ID, sess.Version, string(sess.State), sess.CurrentQuestionID, sess.AttemptCount, record,
		sess.LastActiveAt, sess.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking session update: %w", err)
	}
	if n == 0 {
		return s.saveMiss(ctx, sess.ID)
	}

	sess.Version = next.Version
	return nil
}

// saveMiss reports why a save matched no rows.
func (s *Store) saveMiss(ctx context.Context, id string) error {
	var version int64
	err := s.db.QueryRowContext(ctx,
		`SELECT version FROM sessions WHERE id = $1 AND expires_at > NOW()`, id,
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return session.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking session version: %w", err)
	}
	return session.ErrConflict
}

// Delete removes a session.
func (s *Store) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM sessions WHERE id = $1`
	_, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// Cleanup removes expired sessions.
func (s *Store) Cleanup(ctx context.Context) error {
	query := `DELETE FROM sessions WHERE expires_at <= NOW()`
	_, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("cleaning up sessions: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging session store: %w", err)
	}
	return nil
}

// StartCleanupRoutine starts a background goroutine that periodically removes
// expired sessions. The goroutine is stopped when Close is called.
func (s *Store) StartCleanupRoutine(interval time.Duration) {
	s.cancel, s.done = session.StartCleanup(interval, s.Cleanup)
}

// Close stops the cleanup goroutine and waits for it to exit.
// It is safe to call Close even if StartCleanupRoutine was never called.
func (s *Store) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel = nil
	}
	return nil
}

// scanSession decodes the record and lets the scalar columns win over any
// drift inside it.
func scanSession(row *sql.Row) (*session.Session, error) {
	var (
		sess                     session.Session
		id, state, current       string
		record                   []byte
		attempts                 int
		version                  int64
		created, active, expires time.Time
	)

	err := row.Scan(&id, &state, &current, &attempts, &version, &record, &created, &active, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	if len(record) > 0 {
		if err := json.Unmarshal(record, &sess); err != nil {
			return nil, fmt.Errorf("decoding session record %s: %w", id, err)
		}
	}

	sess.ID = id
	sess.State = interview.State(state)
	sess.CurrentQuestionID = current
	sess.AttemptCount = attempts
	sess.Version = version
	sess.CreatedAt = created
	sess.LastActiveAt = active
	sess.ExpiresAt = expires
	return &sess, nil
}

// Verify interface compliance.
var _ session.Store = (*Store)(nil)
