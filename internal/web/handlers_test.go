package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/justestif/go-spotify-dashboard/internal/auth"
	"github.com/justestif/go-spotify-dashboard/internal/db"
	"github.com/justestif/go-spotify-dashboard/internal/lyrics"
	"github.com/justestif/go-spotify-dashboard/internal/playback"
	"github.com/justestif/go-spotify-dashboard/internal/spotify"
)

const frontend = "http://localhost:5173"

// mockLyrics implements LyricsResolver for testing.
type mockLyrics struct {
	result *lyrics.Result
	err    error
	song   string
	artist string
}

func (m *mockLyrics) Resolve(_ context.Context, song, artist string) (*lyrics.Result, error) {
	m.song, m.artist = song, artist
	return m.result, m.err
}

type testEnv struct {
	server *Server
	store  *db.MemoryStore
	tokens *auth.TokenManager
	sync   *playback.SyncServer
	lyrics *mockLyrics
}

// spotifyAPI serves the Spotify endpoints used by the dashboard and the
// playback poller.
func spotifyAPI(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer valid-token":
		case "Bearer broken-token":
			w.WriteHeader(http.StatusInternalServerError)
			return
		default:
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/me":
			fmt.Fprint(w, `{"id":"user-1","display_name":"Listener"}`)
		case "/me/player/currently-playing":
			fmt.Fprint(w, `{"is_playing":true,"progress_ms":1000,"item":{"name":"Say It","duration_ms":200000,"uri":"spotify:track:1","artists":[{"name":"Tory Lanez"}],"album":{"name":"I Told You","images":[{"url":"https://i.scdn.co/image/1"}]}}}`)
		case "/me/top/tracks":
			fmt.Fprint(w, `{"items":[{"name":"Top Song"}],"total":1}`)
		case "/me/top/artists":
			fmt.Fprint(w, `{"items":[{"name":"Top Artist"}],"total":1}`)
		case "/me/player/recently-played":
			fmt.Fprint(w, `{"items":[]}`)
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

// tokenEndpoint issues tokens for any code except "bad".
func tokenEndpoint(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	w.Header().Set("Content-Type", "application/json")
	if r.PostForm.Get("code") == "bad" || r.PostForm.Get("refresh_token") == "revoked" {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant"}`)
		return
	}
	fmt.Fprint(w, `{"access_token":"valid-token","refresh_token":"refresh-1","token_type":"Bearer","expires_in":3600}`)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	api := httptest.NewServer(spotifyAPI(t))
	t.Cleanup(api.Close)
	accounts := httptest.NewServer(http.HandlerFunc(tokenEndpoint))
	t.Cleanup(accounts.Close)

	authenticator, err := auth.New(auth.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "http://localhost:3000/callback",
		TokenURL:     accounts.URL,
	})
	if err != nil {
		t.Fatalf("auth.New() error = %v", err)
	}

	store := db.NewMemoryStore()
	tokens := auth.NewTokenManager(store, authenticator)
	t.Cleanup(tokens.Close)

	newAPI := func(token string) *spotify.Client {
		return spotify.NewForToken(token, spotify.WithBaseURL(api.URL+"/"))
	}
	syncServer := playback.NewSyncServer(tokens,
		func(token string) playback.Fetcher { return newAPI(token) },
		playback.WithPollInterval(time.Hour),
		playback.WithEmitInterval(time.Hour),
	)
	t.Cleanup(syncServer.Close)

	resolver := &mockLyrics{}
	server, err := NewServer(ServerConfig{
		FrontendURI: frontend,
		Auth:        authenticator,
		Tokens:      tokens,
		Sync:        syncServer,
		Lyrics:      resolver,
		NewClient:   func(token string) DashboardFetcher { return newAPI(token) },
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	return &testEnv{server: server, store: store, tokens: tokens, sync: syncServer, lyrics: resolver}
}

func (e *testEnv) putSession(t *testing.T, id, accessToken string, expiresAt time.Time) {
	t.Helper()
	err := e.store.Put(context.Background(), &db.Session{
		ID:           id,
		AccessToken:  accessToken,
		RefreshToken: "refresh-1",
		ExpiresAt:    expiresAt,
	})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	return body
}

func TestNewServer_MissingDependency(t *testing.T) {
	if _, err := NewServer(ServerConfig{}); err == nil {
		t.Error("NewServer() error = nil, want error")
	}
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body statusResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Status != "running" {
		t.Errorf("Status = %q, want running", body.Status)
	}
	if !regexp.MustCompile(`^\d+h \d+m \d+s$`).MatchString(body.Uptime) {
		t.Errorf("Uptime = %q", body.Uptime)
	}
	if body.Endpoints["lyrics"] != "/api/lyrics" {
		t.Errorf("Endpoints = %v", body.Endpoints)
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0h 0m 0s"},
		{1500 * time.Millisecond, "0h 0m 1s"},
		{61 * time.Second, "0h 1m 1s"},
		{26*time.Hour + 3*time.Minute + 9*time.Second, "26h 3m 9s"},
	}
	for _, tt := range tests {
		if got := formatUptime(tt.d); got != tt.want {
			t.Errorf("formatUptime(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/login", nil))

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307", rec.Code)
	}

	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parsing Location: %v", err)
	}
	if loc.Host != "accounts.spotify.com" {
		t.Errorf("Location host = %q", loc.Host)
	}

	var stateCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == stateCookieName {
			stateCookie = c
		}
	}
	if stateCookie == nil {
		t.Fatal("state cookie not set")
	}
	if got := loc.Query().Get("state"); got != stateCookie.Value || len(got) != 32 {
		t.Errorf("state = %q, cookie = %q", got, stateCookie.Value)
	}
}

func TestCallback(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		cookie    string
		wantKey   string
		wantValue string
	}{
		{"spotify error", "error=access_denied", "s", "error", "access_denied"},
		{"missing code", "state=s", "s", "error", "no_code"},
		{"state mismatch", "code=abc&state=other", "s", "error", "state_mismatch"},
		{"missing state cookie", "code=abc&state=s", "", "error", "state_mismatch"},
		{"exchange failed", "code=bad&state=s", "s", "error", "token_exchange_failed"},
		{"success", "code=good&state=s", "s", "session", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			req := httptest.NewRequest(http.MethodGet, "/callback?"+tt.query, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: stateCookieName, Value: tt.cookie})
			}
			rec := env.do(req)

			if rec.Code != http.StatusFound {
				t.Fatalf("status = %d, want 302", rec.Code)
			}
			loc, err := url.Parse(rec.Header().Get("Location"))
			if err != nil {
				t.Fatalf("parsing Location: %v", err)
			}
			if !strings.HasPrefix(loc.String(), frontend+"?") {
				t.Errorf("Location = %q, want frontend", loc)
			}

			got := loc.Query().Get(tt.wantKey)
			if tt.wantValue != "" && got != tt.wantValue {
				t.Errorf("%s = %q, want %q", tt.wantKey, got, tt.wantValue)
			}

			if tt.wantKey == "session" {
				session, err := env.store.Get(context.Background(), got)
				if err != nil {
					t.Fatalf("session %q not stored: %v", got, err)
				}
				if session.AccessToken != "valid-token" || session.RefreshToken != "refresh-1" {
					t.Errorf("session = %+v", session)
				}
				if !env.tokens.Scheduler().Scheduled(got) {
					t.Error("renewal not scheduled")
				}
			}
		})
	}
}

func TestData(t *testing.T) {
	tests := []struct {
		name        string
		session     string // via Authorization header
		query       string
		accessToken string
		expiresIn   time.Duration
		wantStatus  int
		wantError   string
		wantReauth  bool
		wantDeleted bool
	}{
		{name: "no session", wantStatus: http.StatusUnauthorized, wantError: "No session"},
		{name: "invalid session", session: "unknown", wantStatus: http.StatusUnauthorized, wantError: "Invalid session"},
		{
			name: "upstream rejects token", session: "s1", accessToken: "stale-token", expiresIn: time.Hour,
			wantStatus: http.StatusUnauthorized, wantError: "Session expired", wantReauth: true, wantDeleted: true,
		},
		{
			name: "upstream failure", session: "s1", accessToken: "broken-token", expiresIn: time.Hour,
			wantStatus: http.StatusInternalServerError, wantError: "Request failed",
		},
		{name: "bearer header", session: "s1", accessToken: "valid-token", expiresIn: time.Hour, wantStatus: http.StatusOK},
		{name: "query parameter", query: "s1", accessToken: "valid-token", expiresIn: time.Hour, wantStatus: http.StatusOK},
		{
			name: "refreshed before use", session: "s1", accessToken: "stale-token", expiresIn: 30 * time.Second,
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.accessToken != "" {
				env.putSession(t, "s1", tt.accessToken, time.Now().Add(tt.expiresIn))
			}

			target := "/api/data"
			if tt.query != "" {
				target += "?session=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.session != "" {
				req.Header.Set("Authorization", "Bearer "+tt.session)
			}
			rec := env.do(req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body %s", rec.Code, tt.wantStatus, rec.Body)
			}

			if tt.wantStatus == http.StatusOK {
				var body map[string]json.RawMessage
				if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
					t.Fatalf("decoding body: %v", err)
				}
				for _, key := range []string{"user", "currentTrack", "topTracks", "topArtists", "recentlyPlayed"} {
					if _, ok := body[key]; !ok {
						t.Errorf("response missing %q", key)
					}
				}
				return
			}

			body := decodeError(t, rec)
			if body.Error != tt.wantError || body.NeedsReauth != tt.wantReauth {
				t.Errorf("body = %+v, want error %q needsReauth %v", body, tt.wantError, tt.wantReauth)
			}

			_, err := env.store.Get(context.Background(), "s1")
			if deleted := errors.Is(err, db.ErrNotFound); tt.accessToken != "" && deleted != tt.wantDeleted {
				t.Errorf("session deleted = %v, want %v", deleted, tt.wantDeleted)
			}
		})
	}
}

func TestData_RefreshFailureExpiresSession(t *testing.T) {
	env := newTestEnv(t)
	err := env.store.Put(context.Background(), &db.Session{
		ID:           "s1",
		AccessToken:  "valid-token",
		RefreshToken: "revoked",
		ExpiresAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	req.Header.Set("Authorization", "Bearer s1")
	rec := env.do(req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if body := decodeError(t, rec); body.Error != "Session expired" || !body.NeedsReauth {
		t.Errorf("body = %+v", body)
	}
	if _, err := env.store.Get(context.Background(), "s1"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("session not deleted: %v", err)
	}
}

func TestLyrics(t *testing.T) {
	result := &lyrics.Result{Title: "Say It", Artist: "Kiana Ledé", Image: "img", Lyrics: "Say it"}

	tests := []struct {
		name       string
		result     *lyrics.Result
		err        error
		wantStatus int
		wantError  string
	}{
		{"success", result, nil, http.StatusOK, ""},
		{"missing song", nil, lyrics.ErrSongRequired, http.StatusBadRequest, "Song name is required"},
		{"no songs", nil, lyrics.ErrNoSongsFound, http.StatusNotFound, "No songs found"},
		{"no match", nil, lyrics.ErrNoMatch, http.StatusNotFound, "No matching song found"},
		{"fetch failed", nil, fmt.Errorf("%w: timeout", lyrics.ErrFetchFailed), http.StatusInternalServerError, "Failed to fetch lyrics"},
		{"unexpected", nil, errors.New("boom"), http.StatusInternalServerError, "Failed to fetch lyrics"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.lyrics.result, env.lyrics.err = tt.result, tt.err

			rec := env.do(httptest.NewRequest(http.MethodGet, "/api/lyrics?songname=Say+It&artist=Kiana+Lede", nil))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if env.lyrics.song != "Say It" || env.lyrics.artist != "Kiana Lede" {
				t.Errorf("resolver got (%q, %q)", env.lyrics.song, env.lyrics.artist)
			}

			if tt.wantError != "" {
				if body := decodeError(t, rec); body.Error != tt.wantError {
					t.Errorf("error = %q, want %q", body.Error, tt.wantError)
				}
				return
			}

			var got lyrics.Result
			if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
				t.Fatalf("decoding body: %v", err)
			}
			if got != *result {
				t.Errorf("body = %+v, want %+v", got, *result)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/data", nil)
	req.Header.Set("Origin", frontend)
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rec := env.do(req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != frontend {
		t.Errorf("Allow-Origin = %q, want %q", got, frontend)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Allow-Credentials = %q, want true", got)
	}
}

func TestSessionFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{"bearer", "Bearer abc", "", "abc"},
		{"query", "", "session=xyz", "xyz"},
		{"bearer wins", "Bearer abc", "session=xyz", "abc"},
		{"non-bearer header", "Basic abc", "session=xyz", "xyz"},
		{"none", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/data?"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if got := sessionFromRequest(req); got != tt.want {
				t.Errorf("sessionFromRequest() = %q, want %q", got, tt.want)
			}
		})
	}
}
