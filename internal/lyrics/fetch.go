package lyrics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PageFetcher downloads a lyrics page.
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (io.ReadCloser, error)
}

// HTTPFetcher fetches pages over HTTP.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a fetcher. A nil client gets a 15 second timeout.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPFetcher{client: client}
}

// Fetch returns the page body. The caller must close it.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching page: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetching page: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}
