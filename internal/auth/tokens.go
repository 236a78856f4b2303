package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/justestif/go-spotify-dashboard/internal/db"
	"github.com/justestif/go-spotify-dashboard/internal/logging"
	"github.com/justestif/go-spotify-dashboard/internal/spotify"
)

const (
	// RefreshMargin is how close to expiry EnsureFresh starts refreshing.
	RefreshMargin = 60 * time.Second

	// RenewLead is how long before expiry the background renewal fires.
	RenewLead = 5 * time.Minute

	// refreshTimeout bounds a token exchange shared by several callers.
	refreshTimeout = 15 * time.Second
)

// Refresher exchanges refresh tokens. *Authenticator implements it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// TokenManager keeps session tokens fresh.
//
// EnsureFresh refreshes on demand; a per-session timer renews tokens
// silently RenewLead before they expire.
type TokenManager struct {
	store     db.SessionStore
	refresher Refresher
	scheduler *Scheduler
	logger    *log.Logger
	now       func() time.Time
	group     singleflight.Group
}

// Option configures a TokenManager.
type Option func(*TokenManager)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(m *TokenManager) {
		m.logger = l
	}
}

// WithClock overrides time.Now (used in tests).
func WithClock(now func() time.Time) Option {
	return func(m *TokenManager) {
		m.now = now
	}
}

// NewTokenManager creates a TokenManager. Call Close to stop renewal timers.
func NewTokenManager(store db.SessionStore, refresher Refresher, opts ...Option) *TokenManager {
	m := &TokenManager{
		store:     store,
		refresher: refresher,
		logger:    logging.Discard(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.scheduler = newScheduler(m.renew, m.logger.With("component", "renewal"), m.now)
	return m
}

// Scheduler returns the background renewal scheduler.
func (m *TokenManager) Scheduler() *Scheduler {
	return m.scheduler
}

// CreateSession persists a new session for token and schedules its renewal.
func (m *TokenManager) CreateSession(ctx context.Context, token *oauth2.Token) (*db.Session, error) {
	id, err := GenerateSessionID()
	if err != nil {
		return nil, fmt.Errorf("generating session id: %w", err)
	}

	session := &db.Session{
		ID:           id,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
		CreatedAt:    m.now(),
	}
	if err := m.store.Put(ctx, session); err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}

	m.scheduler.Schedule(session.ID, session.ExpiresAt)
	return session, nil
}

// Session returns the stored session without refreshing it.
func (m *TokenManager) Session(ctx context.Context, id string) (*db.Session, error) {
	return m.store.Get(ctx, id)
}

// EnsureFresh returns the session, refreshing its access token first when
// it expires within RefreshMargin. A missing session or a rejected refresh
// is reported as spotify.ErrUnauthorized wrapping the cause. Store errors
// and cancellation of ctx are not.
func (m *TokenManager) EnsureFresh(ctx context.Context, id string) (*db.Session, error) {
	session, err := m.store.Get(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: loading session: %w", spotify.ErrUnauthorized, err)
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	if m.now().Before(session.ExpiresAt.Add(-RefreshMargin)) {
		return session, nil
	}

	refreshed, err := m.refresh(ctx, session)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("refreshing session: %w", err)
		}
		return nil, fmt.Errorf("%w: %w", spotify.ErrUnauthorized, err)
	}

	m.scheduler.Schedule(refreshed.ID, refreshed.ExpiresAt)
	return refreshed, nil
}

// Invalidate deletes the session and cancels its renewal timer.
func (m *TokenManager) Invalidate(ctx context.Context, id string) error {
	m.scheduler.Cancel(id)
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// Restore rebuilds renewal timers for every stored session that has more
// than RenewLead left before expiry. Returns the number scheduled.
func (m *TokenManager) Restore(ctx context.Context) (int, error) {
	sessions, err := m.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing sessions: %w", err)
	}

	scheduled := 0
	for _, s := range sessions {
		if s.ExpiresAt.Sub(m.now()) > RenewLead {
			m.scheduler.Schedule(s.ID, s.ExpiresAt)
			scheduled++
		}
	}
	return scheduled, nil
}

// Close stops all renewal timers.
func (m *TokenManager) Close() {
	m.scheduler.Stop()
}

// renew is the scheduler callback: refresh unconditionally.
func (m *TokenManager) renew(ctx context.Context, id string) (*db.Session, error) {
	session, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.refresh(ctx, session)
}

// refresh exchanges the session's refresh token and persists the result.
// Concurrent refreshes of one session share a single token exchange, which
// runs detached from the caller's cancellation so one caller going away
// does not fail the others.
func (m *TokenManager) refresh(ctx context.Context, session *db.Session) (*db.Session, error) {
	ch := m.group.DoChan(session.ID, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		token, err := m.refresher.Refresh(ctx, session.RefreshToken)
		if err != nil {
			return nil, err
		}

		updated := *session
		updated.AccessToken = token.AccessToken
		if token.RefreshToken != "" {
			updated.RefreshToken = token.RefreshToken
		}
		updated.ExpiresAt = token.Expiry

		err = m.store.UpdateToken(ctx, updated.ID, updated.AccessToken, updated.RefreshToken, updated.ExpiresAt)
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("session deleted during refresh: %w", err)
		}
		if err != nil {
			return nil, fmt.Errorf("persisting refreshed token: %w", err)
		}

		m.logger.Debug("refreshed access token", "session", shortID(updated.ID), "expires", updated.ExpiresAt)
		return &updated, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*db.Session), nil
	}
}

// shortID truncates a session id for log output.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
