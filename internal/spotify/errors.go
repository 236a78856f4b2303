package spotify

import (
	"errors"
	"io"
	"net/http"

	"github.com/zmb3/spotify/v2"
)

// Sentinel errors.
var (
	// ErrUnauthorized is returned when Spotify rejects the access token.
	ErrUnauthorized = errors.New("spotify: unauthorized")

	// ErrRateLimited is returned when Spotify answers 429 Too Many Requests.
	ErrRateLimited = errors.New("spotify: rate limited")
)

// ErrorClass classifies an upstream failure.
type ErrorClass int

const (
	// ClassTransient covers network failures, 5xx and anything unrecognized.
	ClassTransient ErrorClass = iota
	// ClassUnauthorized means the session must re-authenticate.
	ClassUnauthorized
	// ClassRateLimited means the caller should keep serving cached data.
	ClassRateLimited
)

func (c ErrorClass) String() string {
	switch c {
	case ClassUnauthorized:
		return "unauthorized"
	case ClassRateLimited:
		return "rate-limited"
	default:
		return "transient"
	}
}

// Classify maps an error returned by this package onto an ErrorClass.
func Classify(err error) ErrorClass {
	if errors.Is(err, ErrUnauthorized) {
		return ClassUnauthorized
	}
	if errors.Is(err, ErrRateLimited) {
		return ClassRateLimited
	}

	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusUnauthorized:
			return ClassUnauthorized
		case http.StatusTooManyRequests:
			return ClassRateLimited
		}
	}
	return ClassTransient
}

// statusTransport converts 401 and 429 responses into sentinel errors
// before the Spotify client tries to decode them.
type statusTransport struct {
	base http.RoundTripper
}

func (t statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		discard(resp)
		return nil, ErrUnauthorized
	case http.StatusTooManyRequests:
		discard(resp)
		return nil, ErrRateLimited
	}
	return resp, nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
