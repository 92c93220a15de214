package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/lukekeith/makeready/internal/domain/entities"
	"github.com/lukekeith/makeready/internal/domain/repositories"
	"github.com/lukekeith/makeready/internal/pkg/metrics"
)

// SessionRepository implements the SessionRepository interface for PostgreSQL
type SessionRepository struct {
	db  *sqlx.DB
	log *slog.Logger
}

// NewSessionRepository creates a new PostgreSQL session repository
func NewSessionRepository(db *sqlx.DB) repositories.SessionRepository {
	return &SessionRepository{
		db:  db,
		log: slog.Default().With(slog.String("repo", "session")),
	}
}

// Create creates a new session
func (r *SessionRepository) Create(ctx context.Context, session *entities.Session) error {
	start := time.Now()
	var err error
	defer func() {
		metrics.RecordDBOperation("session", "create", time.Since(start), 1, err)
	}()

	r.log.Debug("creating session",
		slog.String("user_id", session.UserID),
		slog.Time("expires_at", session.ExpiresAt))

	query := `INSERT INTO sessions (id, user_id, created_at, expires_at)
		VALUES (:id, :user_id, :created_at, :expires_at)`

	_, err = r.db.NamedExecContext(ctx, query, session)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	metrics.SessionsActive.Inc()
	return nil
}

// GetByID retrieves a session by its ID
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*entities.Session, error) {
	start := time.Now()
	var err error
	var rowCount int64
	defer func() {
		metrics.RecordDBOperation("session", "get_by_id", time.Since(start), rowCount, err)
	}()

	var session entities.Session
	query := `
		SELECT id, user_id, created_at, expires_at
		FROM sessions
		WHERE id = $1`

	err = r.db.GetContext(ctx, &session, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			err = repositories.ErrSessionNotFound
			return nil, err
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	rowCount = 1
	return &session, nil
}

// UpdateExpiry moves a session's expiry
func (r *SessionRepository) UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	start := time.Now()
	var err error
	var rowsAffected int64
	defer func() {
		metrics.RecordDBOperation("session", "update_expiry", time.Since(start), rowsAffected, err)
	}()

	query := `UPDATE sessions SET expires_at = $1 WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, expiresAt, id)
	if err != nil {
		return fmt.Errorf("failed to update session expiry: %w", err)
	}

	rowsAffected, err = result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		err = repositories.ErrSessionNotFound
		return err
	}

	return nil
}

// Delete removes a session. Idempotent by design.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	start := time.Now()
	var err error
	var rowsAffected int64
	defer func() {
		metrics.RecordDBOperation("session", "delete", time.Since(start), rowsAffected, err)
	}()

	query := `DELETE FROM sessions WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	rowsAffected, _ = result.RowsAffected()
	if rowsAffected > 0 {
		metrics.SessionsActive.Dec()
	}
	return nil
}

// DeleteExpired removes sessions whose expiry has passed
func (r *SessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	start := time.Now()
	var err error
	var rowsAffected int64
	defer func() {
		metrics.RecordDBOperation("session", "delete_expired", time.Since(start), rowsAffected, err)
	}()

	query := `DELETE FROM sessions WHERE expires_at < $1`

	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	rowsAffected, _ = result.RowsAffected()
	if rowsAffected > 0 {
		r.log.Debug("removed expired sessions", slog.Int64("count", rowsAffected))
		metrics.SessionsActive.Sub(float64(rowsAffected))
	}
	return rowsAffected, nil
}
