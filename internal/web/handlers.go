package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/justestif/go-spotify-dashboard/internal/auth"
	"github.com/justestif/go-spotify-dashboard/internal/db"
	"github.com/justestif/go-spotify-dashboard/internal/lyrics"
	"github.com/justestif/go-spotify-dashboard/internal/playback"
	"github.com/justestif/go-spotify-dashboard/internal/spotify"
)

// DashboardFetcher loads the dashboard for one user.
type DashboardFetcher interface {
	Dashboard(ctx context.Context) (*spotify.Dashboard, error)
}

// ClientFactory builds a Spotify client for an access token.
type ClientFactory func(accessToken string) DashboardFetcher

// LyricsResolver resolves lyrics for a song. *lyrics.Service implements it.
type LyricsResolver interface {
	Resolve(ctx context.Context, song, artist string) (*lyrics.Result, error)
}

// HandlersConfig holds the dependencies of Handlers.
type HandlersConfig struct {
	Auth        *auth.Authenticator
	Tokens      *auth.TokenManager
	Sync        *playback.SyncServer
	Lyrics      LyricsResolver
	NewClient   ClientFactory
	FrontendURI string
	Logger      *log.Logger
}

// Handlers contains HTTP handlers for the backend.
type Handlers struct {
	auth      *auth.Authenticator
	tokens    *auth.TokenManager
	sync      *playback.SyncServer
	lyrics    LyricsResolver
	newClient ClientFactory
	frontend  string
	logger    *log.Logger
	started   time.Time
	now       func() time.Time

	upgrader websocket.Upgrader
	sockets  *socketRegistry
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(cfg HandlersConfig) *Handlers {
	return &Handlers{
		auth:      cfg.Auth,
		tokens:    cfg.Tokens,
		sync:      cfg.Sync,
		lyrics:    cfg.Lyrics,
		newClient: cfg.NewClient,
		frontend:  cfg.FrontendURI,
		logger:    cfg.Logger,
		started:   time.Now(),
		now:       time.Now,
		upgrader:  newUpgrader(cfg.FrontendURI),
		sockets:   newSocketRegistry(),
	}
}

type errorResponse struct {
	Error       string `json:"error"`
	NeedsReauth bool   `json:"needsReauth,omitempty"`
}

type statusResponse struct {
	Status    string            `json:"status"`
	Uptime    string            `json:"uptime"`
	Endpoints map[string]string `json:"endpoints"`
	Websocket string            `json:"websocket"`
}

// Status reports that the server is up (GET /).
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status: "running",
		Uptime: formatUptime(h.now().Sub(h.started)),
		Endpoints: map[string]string{
			"login":    "/login",
			"callback": "/callback",
			"data":     "/api/data",
			"lyrics":   "/api/lyrics",
			"socket":   "/ws",
		},
		Websocket: "enabled",
	})
}

// Login initiates the Spotify OAuth flow (GET /login).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	// Generate state for CSRF protection
	state, err := auth.GenerateState()
	if err != nil {
		http.Error(w, "Failed to generate state", http.StatusInternalServerError)
		return
	}

	// Store state in cookie for validation on callback
	setStateCookie(w, r, state)

	// Redirect to Spotify auth
	http.Redirect(w, r, h.auth.AuthURL(state), http.StatusTemporaryRedirect)
}

// Callback handles the OAuth callback from Spotify (GET /callback) and
// redirects to the frontend with either a session or an error code.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// Check for error from Spotify
	if errMsg := q.Get("error"); errMsg != "" {
		h.redirectFrontend(w, r, "error", errMsg)
		return
	}

	code := q.Get("code")
	if code == "" {
		h.redirectFrontend(w, r, "error", "no_code")
		return
	}

	// Verify state
	if !validState(r) {
		h.redirectFrontend(w, r, "error", "state_mismatch")
		return
	}
	clearStateCookie(w)

	// Exchange code for token
	token, err := h.auth.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("token exchange failed", "err", err)
		h.redirectFrontend(w, r, "error", "token_exchange_failed")
		return
	}

	// Create session and schedule its renewal
	session, err := h.tokens.CreateSession(r.Context(), token)
	if err != nil {
		h.logger.Error("creating session failed", "err", err)
		h.redirectFrontend(w, r, "error", "token_exchange_failed")
		return
	}

	h.logger.Info("session created", "expires", session.ExpiresAt.Format(time.RFC3339))
	h.redirectFrontend(w, r, "session", session.ID)
}

// Data returns the aggregated dashboard for the caller's session (GET /api/data).
func (h *Handlers) Data(w http.ResponseWriter, r *http.Request) {
	id := sessionFromRequest(r)
	if id == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "No session"})
		return
	}

	if _, err := h.tokens.Session(r.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Invalid session"})
			return
		}
		h.logger.Error("loading session failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Request failed"})
		return
	}

	session, err := h.tokens.EnsureFresh(r.Context(), id)
	if err != nil {
		if spotify.Classify(err) == spotify.ClassUnauthorized {
			h.expireSession(w, r, id, err)
			return
		}
		h.logger.Error("refreshing session failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Request failed"})
		return
	}

	dashboard, err := h.newClient(session.AccessToken).Dashboard(r.Context())
	if err != nil {
		if spotify.Classify(err) == spotify.ClassUnauthorized {
			h.expireSession(w, r, id, err)
			return
		}
		h.logger.Error("api error", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Request failed"})
		return
	}

	writeJSON(w, http.StatusOK, dashboard)
}

// expireSession deletes a session Spotify no longer accepts and tells the
// client to log in again.
func (h *Handlers) expireSession(w http.ResponseWriter, r *http.Request, id string, cause error) {
	h.logger.Warn("session expired", "err", cause)
	if err := h.tokens.Invalidate(r.Context(), id); err != nil {
		h.logger.Error("deleting session failed", "err", err)
	}
	writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Session expired", NeedsReauth: true})
}

// Lyrics resolves lyrics for a song (GET /api/lyrics?songname=&artist=).
func (h *Handlers) Lyrics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	result, err := h.lyrics.Resolve(r.Context(), q.Get("songname"), q.Get("artist"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, lyrics.ErrSongRequired):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Song name is required"})
	case errors.Is(err, lyrics.ErrNoSongsFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "No songs found"})
	case errors.Is(err, lyrics.ErrNoMatch):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "No matching song found"})
	default:
		h.logger.Error("fetching lyrics failed", "song", q.Get("songname"), "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to fetch lyrics"})
	}
}

// redirectFrontend redirects to the frontend with a single query parameter.
func (h *Handlers) redirectFrontend(w http.ResponseWriter, r *http.Request, key, value string) {
	target := h.frontend + "?" + url.Values{key: {value}}.Encode()
	http.Redirect(w, r, target, http.StatusFound)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// formatUptime renders d as "Xh Ym Zs".
func formatUptime(d time.Duration) string {
	d = d.Truncate(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}
