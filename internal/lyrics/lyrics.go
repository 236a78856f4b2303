// Package lyrics resolves a free-text track title to lyrics scraped from
// Genius: normalize the query, fan out searches, score the candidates,
// extract the winning page, and cache the result.
package lyrics

import "errors"

// Failure modes surfaced by Service.Resolve.
var (
	// ErrSongRequired is returned when no song name was given.
	ErrSongRequired = errors.New("song name is required")

	// ErrNoSongsFound is returned when every search came back empty.
	ErrNoSongsFound = errors.New("no songs found")

	// ErrNoMatch is returned when no candidate could be selected.
	ErrNoMatch = errors.New("no matching song found")

	// ErrFetchFailed is returned when searching or extracting failed.
	ErrFetchFailed = errors.New("failed to fetch lyrics")
)

// Candidate is one search hit considered during disambiguation.
type Candidate struct {
	Title  string
	Artist string
	Image  string
	URL    string
}

// Result is a resolved song with its lyrics.
type Result struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Image  string `json:"image"`
	Lyrics string `json:"lyrics"`
}
