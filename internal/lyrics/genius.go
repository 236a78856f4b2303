package lyrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const (
	geniusBaseURL = "https://api.genius.com/"
	userAgent     = "spotify-dashboard/1.0"
)

// Sentinel errors.
var (
	// ErrRateLimited is returned when Genius keeps answering 429 after retries.
	ErrRateLimited = errors.New("genius: rate limit exceeded")

	// ErrInvalidToken is returned when Genius rejects the access token.
	ErrInvalidToken = errors.New("genius: invalid access token")
)

// GeniusClient searches the Genius API.
type GeniusClient struct {
	token       string
	httpClient  *http.Client
	baseURL     string
	limiter     *rate.Limiter
	retryDelays []time.Duration
}

// GeniusOption configures a GeniusClient.
type GeniusOption func(*GeniusClient)

// WithBaseURL points the client at a different API root (used in tests).
func WithBaseURL(u string) GeniusOption {
	return func(c *GeniusClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) GeniusOption {
	return func(c *GeniusClient) {
		c.httpClient = hc
	}
}

// WithRateLimit caps outbound search requests.
func WithRateLimit(every time.Duration, burst int) GeniusOption {
	return func(c *GeniusClient) {
		c.limiter = rate.NewLimiter(rate.Every(every), burst)
	}
}

// WithRetryDelays sets the waits between retries after a 429.
func WithRetryDelays(delays ...time.Duration) GeniusOption {
	return func(c *GeniusClient) {
		c.retryDelays = delays
	}
}

// NewGeniusClient creates a Genius API client authenticated with token.
// Searches are limited to 5 per second with a burst of 4, one per fan-out query.
func NewGeniusClient(token string, opts ...GeniusOption) *GeniusClient {
	c := &GeniusClient{
		token: token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL:     geniusBaseURL,
		limiter:     rate.NewLimiter(rate.Every(200*time.Millisecond), 4),
		retryDelays: []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search returns the song hits for q in the order Genius ranks them.
// Returns an empty slice (not nil) when nothing matches.
func (c *GeniusClient) Search(ctx context.Context, q string) ([]Candidate, error) {
	reqURL := c.baseURL + "search?" + url.Values{"q": {q}}.Encode()

	body, err := c.doRequest(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", q, err)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}

	candidates := make([]Candidate, 0, len(resp.Response.Hits))
	for _, hit := range resp.Response.Hits {
		candidates = append(candidates, Candidate{
			Title:  hit.Result.Title,
			Artist: hit.Result.PrimaryArtist.Name,
			Image:  hit.Result.SongArtImageURL,
			URL:    hit.Result.URL,
		})
	}
	return candidates, nil
}

// doRequest performs a GET with retry on rate limit.
func (c *GeniusClient) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= len(c.retryDelays); attempt++ {
		// Wait before retry (skip on first attempt)
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelays[attempt-1]):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, err := c.doSingleRequest(ctx, reqURL)
		if err == nil {
			return body, nil
		}

		if errors.Is(err, ErrRateLimited) {
			lastErr = err
			continue
		}

		// Non-retryable error
		return nil, err
	}

	return nil, lastErr
}

// doSingleRequest performs a single HTTP request.
func (c *GeniusClient) doSingleRequest(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case http.StatusUnauthorized:
		return nil, ErrInvalidToken
	}

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Meta.Message != "" {
		return nil, fmt.Errorf("API error %d: %s", apiErr.Meta.Status, apiErr.Meta.Message)
	}
	return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
}

// searchResponse is the JSON response for /search.
type searchResponse struct {
	Response struct {
		Hits []struct {
			Type   string `json:"type"`
			Result struct {
				Title           string `json:"title"`
				URL             string `json:"url"`
				SongArtImageURL string `json:"song_art_image_url"`
				PrimaryArtist   struct {
					Name string `json:"name"`
				} `json:"primary_artist"`
			} `json:"result"`
		} `json:"hits"`
	} `json:"response"`
}

// apiError represents a Genius API error response.
type apiError struct {
	Meta struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"meta"`
}
