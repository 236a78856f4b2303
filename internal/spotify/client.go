// Package spotify provides a wrapper around the Spotify Web API.
package spotify

import (
	"net/http"
	"time"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
)

const requestTimeout = 10 * time.Second

// Client wraps the Spotify API client with convenience methods.
type Client struct {
	api *spotify.Client
}

// New creates a new Spotify client wrapper.
// The underlying client should already be authenticated.
func New(api *spotify.Client) *Client {
	return &Client{api: api}
}

// Option configures a client built by NewForToken.
type Option func(*clientOptions)

type clientOptions struct {
	baseURL   string
	transport http.RoundTripper
}

// WithBaseURL points the client at a different API root (used in tests).
// The URL must end with a slash.
func WithBaseURL(url string) Option {
	return func(o *clientOptions) {
		o.baseURL = url
	}
}

// WithTransport sets the transport used beneath auth and status classification.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *clientOptions) {
		o.transport = rt
	}
}

// NewForToken creates a client that authenticates every request with the
// given access token. Responses with status 401 and 429 surface as
// ErrUnauthorized and ErrRateLimited.
func NewForToken(accessToken string, opts ...Option) *Client {
	o := clientOptions{transport: http.DefaultTransport}
	for _, opt := range opts {
		opt(&o)
	}

	httpClient := &http.Client{
		Timeout: requestTimeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{
				AccessToken: accessToken,
				TokenType:   "Bearer",
			}),
			Base: statusTransport{base: o.transport},
		},
	}

	var spotifyOpts []spotify.ClientOption
	if o.baseURL != "" {
		spotifyOpts = append(spotifyOpts, spotify.WithBaseURL(o.baseURL))
	}

	return New(spotify.New(httpClient, spotifyOpts...))
}
