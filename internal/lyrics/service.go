package lyrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/justestif/go-spotify-dashboard/internal/logging"
)

// resolveTimeout bounds one shared lookup: searches, page fetch and extraction.
const resolveTimeout = 30 * time.Second

// Service resolves lyrics and caches the results.
type Service struct {
	searcher  Searcher
	fetcher   PageFetcher
	extractor Extractor
	cache     *Cache
	logger    *log.Logger
	group     singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithCache shares an existing cache.
func WithCache(c *Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithExtractor replaces the HTML extractor.
func WithExtractor(e Extractor) Option {
	return func(s *Service) {
		s.extractor = e
	}
}

// NewService creates a lyrics service.
func NewService(searcher Searcher, fetcher PageFetcher, opts ...Option) *Service {
	s := &Service{
		searcher:  searcher,
		fetcher:   fetcher,
		extractor: NewHTMLExtractor(),
		cache:     NewCache(),
		logger:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cache returns the result cache.
func (s *Service) Cache() *Cache {
	return s.cache
}

// Resolve finds lyrics for a song and optional artist.
//
// Errors wrap one of ErrSongRequired, ErrNoSongsFound, ErrNoMatch or
// ErrFetchFailed. Concurrent requests for the same key share one lookup.
func (s *Service) Resolve(ctx context.Context, song, artist string) (*Result, error) {
	if strings.TrimSpace(song) == "" {
		return nil, ErrSongRequired
	}

	key := CacheKey(song, artist)
	if r, ok := s.cache.Get(key); ok {
		s.logger.Debug("serving lyrics from cache", "key", key)
		return r, nil
	}

	// The shared lookup outlives any single requester.
	ch := s.group.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resolveTimeout)
		defer cancel()

		r, err := s.resolve(ctx, song, artist)
		if err != nil {
			return nil, err
		}
		s.cache.Set(key, r)
		s.logger.Info("cached lyrics", "key", key, "title", r.Title, "artist", r.Artist)
		return r, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Result), nil
	}
}

func (s *Service) resolve(ctx context.Context, song, artist string) (*Result, error) {
	q := Normalize(song, artist)

	candidates, err := FanOut(ctx, s.searcher, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	if len(candidates) == 0 {
		return nil, ErrNoSongsFound
	}

	best, score, ok := BestCandidate(candidates, q)
	if !ok {
		return nil, ErrNoMatch
	}
	s.logger.Debug("selected candidate",
		"song", q.Song, "artist", q.Artist,
		"title", best.Title, "by", best.Artist, "score", score, "candidates", len(candidates))

	page, err := s.fetcher.Fetch(ctx, best.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer page.Close()

	text, err := s.extractor.Extract(page)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	return &Result{
		Title:  best.Title,
		Artist: best.Artist,
		Image:  best.Image,
		Lyrics: text,
	}, nil
}
