package web

import (
	"net/http"
	"strings"
)

const (
	stateCookieName = "oauth_state"
	stateCookieTTL  = 300 // seconds
)

// sessionFromRequest returns the session id carried by the request, taken
// from an "Authorization: Bearer" header or the "session" query parameter.
func sessionFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if id, ok := strings.CutPrefix(h, "Bearer "); ok && strings.TrimSpace(id) != "" {
			return strings.TrimSpace(id)
		}
	}
	return r.URL.Query().Get("session")
}

// setStateCookie stores the OAuth state for validation on callback.
func setStateCookie(w http.ResponseWriter, r *http.Request, state string) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   stateCookieTTL,
	})
}

// clearStateCookie removes the OAuth state cookie.
func clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// validState reports whether the callback's state matches the cookie set at login.
func validState(r *http.Request) bool {
	c, err := r.Cookie(stateCookieName)
	if err != nil || c.Value == "" {
		return false
	}
	return r.URL.Query().Get("state") == c.Value
}
