package lyrics

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Searcher runs one text search. *GeniusClient implements it.
type Searcher interface {
	Search(ctx context.Context, q string) ([]Candidate, error)
}

// SearchQueries returns the search strings issued for q, in merge order:
// the artist alone, "artist song", "song artist", then the song alone.
func SearchQueries(q Query) []string {
	var queries []string
	if q.Artist != "" {
		queries = append(queries, q.Artist, q.Artist+" "+q.Song, q.Song+" "+q.Artist)
	}
	queries = append(queries, q.Song)

	seen := make(map[string]bool, len(queries))
	out := queries[:0]
	for _, s := range queries {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// FanOut runs every search for q concurrently and merges the hits,
// de-duplicated by URL, in query order. When all searches come back empty
// and an artist is known, "song by artist" is tried as a last resort.
//
// Failed searches are skipped; an error is returned only when every
// search failed.
func FanOut(ctx context.Context, s Searcher, q Query) ([]Candidate, error) {
	queries := SearchQueries(q)
	results := make([][]Candidate, len(queries))
	errs := make([]error, len(queries))

	var g errgroup.Group
	for i, query := range queries {
		g.Go(func() error {
			results[i], errs[i] = s.Search(ctx, query)
			return nil
		})
	}
	_ = g.Wait()

	candidates := merge(results...)
	if len(candidates) == 0 && q.Artist != "" {
		fallback, err := s.Search(ctx, q.Song+" by "+q.Artist)
		errs = append(errs, err)
		candidates = merge(fallback)
	}

	if len(candidates) == 0 {
		failed := 0
		for _, err := range errs {
			if err != nil {
				failed++
			}
		}
		if failed == len(errs) {
			return nil, errors.Join(errs...)
		}
	}
	return candidates, nil
}

func merge(lists ...[]Candidate) []Candidate {
	seen := make(map[string]bool)
	var out []Candidate
	for _, list := range lists {
		for _, c := range list {
			if seen[c.URL] {
				continue
			}
			seen[c.URL] = true
			out = append(out, c)
		}
	}
	return out
}
