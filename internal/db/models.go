package db

import (
	"context"
	"time"
)

// Session binds an opaque session id to a Spotify access/refresh token pair.
type Session struct {
	ID           string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// SessionStore persists sessions keyed by session id.
// Implementations must keep exactly one row per id.
type SessionStore interface {
	// Get returns ErrNotFound when no session exists for id.
	Get(ctx context.Context, id string) (*Session, error)
	// Put inserts the session or replaces the existing row.
	Put(ctx context.Context, session *Session) error
	// UpdateToken overwrites the tokens and expiry of an existing session.
	UpdateToken(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error
	// Delete removes the session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error
	// List returns every stored session.
	List(ctx context.Context) ([]Session, error)
}

// toMillis and fromMillis convert between time.Time and the epoch
// milliseconds stored in the sessions table.
func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
