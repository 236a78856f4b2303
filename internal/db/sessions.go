package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionRepository handles session database operations on PostgreSQL.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// Put inserts a session, replacing any existing row with the same id.
func (r *SessionRepository) Put(ctx context.Context, session *Session) error {
	query := `
		INSERT INTO sessions (session_id, access_token, refresh_token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at
	`
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	_, err := r.pool.Exec(ctx, query,
		session.ID,
		session.AccessToken,
		session.RefreshToken,
		toMillis(session.ExpiresAt),
		toMillis(session.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID.
func (r *SessionRepository) Get(ctx context.Context, id string) (*Session, error) {
	query := `
		SELECT session_id, access_token, refresh_token, expires_at, created_at
		FROM sessions
		WHERE session_id = $1
	`
	var (
		session   Session
		expiresAt int64
		createdAt int64
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&session.ID,
		&session.AccessToken,
		&session.RefreshToken,
		&expiresAt,
		&createdAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	session.ExpiresAt = fromMillis(expiresAt)
	session.CreatedAt = fromMillis(createdAt)
	return &session, nil
}

// Delete removes a session by ID.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM sessions WHERE session_id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// UpdateToken updates the OAuth tokens for a session.
func (r *SessionRepository) UpdateToken(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error {
	query := `
		UPDATE sessions
		SET access_token = $2, refresh_token = $3, expires_at = $4
		WHERE session_id = $1
	`
	result, err := r.pool.Exec(ctx, query, id, accessToken, refreshToken, toMillis(expiresAt))
	if err != nil {
		return fmt.Errorf("updating session token: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all sessions.
func (r *SessionRepository) List(ctx context.Context) ([]Session, error) {
	query := `SELECT session_id, access_token, refresh_token, expires_at, created_at FROM sessions`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			s         Session
			expiresAt int64
			createdAt int64
		)
		if err := rows.Scan(&s.ID, &s.AccessToken, &s.RefreshToken, &expiresAt, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		s.ExpiresAt = fromMillis(expiresAt)
		s.CreatedAt = fromMillis(createdAt)
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}
