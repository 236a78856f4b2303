package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite wraps an embedded SQLite database.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the SQLite database at path and
// applies the schema. The path can be ":memory:" for an in-memory database.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection keeps ":memory:" databases coherent and
	// serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Sessions returns a SQLiteSessionRepository.
func (s *SQLite) Sessions() *SQLiteSessionRepository {
	return &SQLiteSessionRepository{db: s.db}
}

// SQLiteSessionRepository handles session operations on SQLite.
type SQLiteSessionRepository struct {
	db *sql.DB
}

// Put inserts a session, replacing any existing row with the same id.
func (r *SQLiteSessionRepository) Put(ctx context.Context, session *Session) error {
	query := `
		INSERT OR REPLACE INTO sessions (session_id, access_token, refresh_token, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, query,
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
func (r *SQLiteSessionRepository) Get(ctx context.Context, id string) (*Session, error) {
	query := `
		SELECT session_id, access_token, refresh_token, expires_at, created_at
		FROM sessions
		WHERE session_id = ?
	`
	var (
		session   Session
		expiresAt int64
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&session.ID,
		&session.AccessToken,
		&session.RefreshToken,
		&expiresAt,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
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
func (r *SQLiteSessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// UpdateToken updates the OAuth tokens for a session.
func (r *SQLiteSessionRepository) UpdateToken(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error {
	query := `
		UPDATE sessions
		SET access_token = ?, refresh_token = ?, expires_at = ?
		WHERE session_id = ?
	`
	result, err := r.db.ExecContext(ctx, query, accessToken, refreshToken, toMillis(expiresAt), id)
	if err != nil {
		return fmt.Errorf("updating session token: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating session token: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all sessions.
func (r *SQLiteSessionRepository) List(ctx context.Context) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT session_id, access_token, refresh_token, expires_at, created_at FROM sessions`)
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
