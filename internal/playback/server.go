package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/justestif/go-spotify-dashboard/internal/db"
	"github.com/justestif/go-spotify-dashboard/internal/logging"
	"github.com/justestif/go-spotify-dashboard/internal/spotify"
)

// Event names sent to clients.
const (
	EventPlaybackUpdate = "playback-update"
	EventError          = "error"
)

// Default cadences.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultEmitInterval = 1 * time.Second
)

var (
	// ErrNoSession is returned by Start when no session id was supplied.
	ErrNoSession = errors.New("no session provided")

	// ErrInvalidSession is returned by Start when the session is unknown.
	ErrInvalidSession = errors.New("invalid session")
)

// ErrorEvent is the payload of an EventError message.
type ErrorEvent struct {
	Message     string `json:"message"`
	NeedsReauth bool   `json:"needsReauth,omitempty"`
}

// Emitter delivers events to one client. Implementations must be safe for
// concurrent use.
type Emitter interface {
	Emit(event string, data any) error
}

// Tokens resolves sessions to usable access tokens. *auth.TokenManager implements it.
type Tokens interface {
	Session(ctx context.Context, id string) (*db.Session, error)
	EnsureFresh(ctx context.Context, id string) (*db.Session, error)
}

// Fetcher reads the current playback of one user.
type Fetcher interface {
	CurrentlyPlaying(ctx context.Context) (*spotify.NowPlaying, error)
}

// FetcherFactory builds a Fetcher authenticated with an access token.
type FetcherFactory func(accessToken string) Fetcher

// SyncServer runs one listener per client connection.
type SyncServer struct {
	tokens       Tokens
	fetcher      FetcherFactory
	cache        *SnapshotCache
	pollInterval time.Duration
	emitInterval time.Duration
	logger       *log.Logger
	now          func() time.Time

	mu        sync.Mutex
	listeners map[string]*listener
	closed    bool
}

// Option configures a SyncServer.
type Option func(*SyncServer)

// WithPollInterval sets how often listeners poll Spotify.
func WithPollInterval(d time.Duration) Option {
	return func(s *SyncServer) {
		s.pollInterval = d
	}
}

// WithEmitInterval sets how often listeners emit an interpolated snapshot.
func WithEmitInterval(d time.Duration) Option {
	return func(s *SyncServer) {
		s.emitInterval = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *SyncServer) {
		s.logger = l
	}
}

// WithClock overrides time.Now (used in tests).
func WithClock(now func() time.Time) Option {
	return func(s *SyncServer) {
		s.now = now
	}
}

// WithCache shares an existing snapshot cache.
func WithCache(c *SnapshotCache) Option {
	return func(s *SyncServer) {
		s.cache = c
	}
}

// NewSyncServer creates a SyncServer. Call Close to stop every listener.
func NewSyncServer(tokens Tokens, fetcher FetcherFactory, opts ...Option) *SyncServer {
	s := &SyncServer{
		tokens:       tokens,
		fetcher:      fetcher,
		cache:        NewSnapshotCache(),
		pollInterval: DefaultPollInterval,
		emitInterval: DefaultEmitInterval,
		logger:       logging.Discard(),
		now:          time.Now,
		listeners:    make(map[string]*listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cache returns the shared snapshot cache.
func (s *SyncServer) Cache() *SnapshotCache {
	return s.cache
}

// Start begins syncing sessionID to the connection connID, replacing any
// listener the connection already has.
//
// A cached snapshot for the session is emitted immediately; otherwise the
// first poll runs before Start returns. The listener stops when ctx is
// cancelled, Stop is called, or Spotify rejects the session.
func (s *SyncServer) Start(ctx context.Context, connID, sessionID string, em Emitter) error {
	if sessionID == "" {
		return ErrNoSession
	}
	if _, err := s.tokens.Session(ctx, sessionID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrInvalidSession
		}
		return fmt.Errorf("loading session: %w", err)
	}

	s.Stop(connID)

	lctx, cancel := context.WithCancel(ctx)
	l := &listener{
		server:    s,
		connID:    connID,
		sessionID: sessionID,
		emitter:   em,
		cancel:    cancel,
		logger:    s.logger.With("conn", connID),
	}

	if _, ok := s.cache.Get(sessionID); !ok {
		if !l.poll(lctx) {
			cancel()
			return nil
		}
	}
	l.emit()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return nil
	}
	if prev, ok := s.listeners[connID]; ok {
		prev.stop()
	}
	s.listeners[connID] = l
	l.wg.Add(2)
	s.mu.Unlock()

	go l.pollLoop(lctx)
	go l.emitLoop(lctx)

	s.logger.Debug("playback sync started", "conn", connID, "listeners", s.Active())
	return nil
}

// Stop cancels the connection's listener and waits for it to finish.
// Safe to call for connections that never started.
func (s *SyncServer) Stop(connID string) {
	s.mu.Lock()
	l, ok := s.listeners[connID]
	if ok {
		delete(s.listeners, connID)
	}
	s.mu.Unlock()

	if ok {
		l.stop()
		l.wg.Wait()
		s.logger.Debug("playback sync stopped", "conn", connID)
	}
}

// Active returns the number of running listeners.
func (s *SyncServer) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// Close stops every listener. Start is a no-op afterwards.
func (s *SyncServer) Close() {
	s.mu.Lock()
	s.closed = true
	listeners := s.listeners
	s.listeners = make(map[string]*listener)
	s.mu.Unlock()

	for _, l := range listeners {
		l.stop()
		l.wg.Wait()
	}
}

// detach removes l if it is still the connection's listener.
func (s *SyncServer) detach(l *listener) {
	s.mu.Lock()
	if s.listeners[l.connID] == l {
		delete(s.listeners, l.connID)
	}
	s.mu.Unlock()
	l.stop()
}
