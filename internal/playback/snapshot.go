// Package playback keeps connected clients in step with what a session is
// playing. Each listener polls Spotify on a slow cadence and emits an
// interpolated position on a fast one, sharing one cached snapshot per
// session.
package playback

import (
	"sync"
	"time"

	"github.com/justestif/go-spotify-dashboard/internal/spotify"
)

// Snapshot is the last known playback state of a session.
type Snapshot struct {
	IsPlaying bool       `json:"isPlaying"`
	Progress  *int64     `json:"progress,omitempty"`
	Duration  *int64     `json:"duration,omitempty"`
	Track     *TrackInfo `json:"track,omitempty"`
	Timestamp int64      `json:"timestamp,omitempty"` // epoch milliseconds
	Estimated bool       `json:"estimated,omitempty"`
}

// TrackInfo describes the playing item.
type TrackInfo struct {
	Name    string `json:"name"`
	Artists string `json:"artists"`
	Album   string `json:"album"`
	Image   string `json:"image"`
	URI     string `json:"uri"`
}

// newSnapshot builds a snapshot from a currently-playing response captured at now.
func newSnapshot(np *spotify.NowPlaying, now time.Time) Snapshot {
	if np == nil || np.Track == nil {
		return Snapshot{IsPlaying: false}
	}

	progress := np.ProgressMs
	duration := np.Track.DurationMs
	return Snapshot{
		IsPlaying: np.IsPlaying,
		Progress:  &progress,
		Duration:  &duration,
		Track: &TrackInfo{
			Name:    np.Track.Name,
			Artists: np.Track.Artists,
			Album:   np.Track.Album,
			Image:   np.Track.ImageURL,
			URI:     np.Track.URI,
		},
		Timestamp: now.UnixMilli(),
	}
}

// Interpolate projects a snapshot forward to now.
//
// A playing snapshot with known progress gets progress advanced by the time
// elapsed since capture, clamped to [0, duration], and is marked estimated.
// Anything else is returned unchanged.
func Interpolate(s Snapshot, now time.Time) Snapshot {
	if !s.IsPlaying || s.Progress == nil {
		return s
	}

	nowMs := now.UnixMilli()
	estimated := *s.Progress + (nowMs - s.Timestamp)
	if s.Duration != nil && estimated > *s.Duration {
		estimated = *s.Duration
	}
	if estimated < 0 {
		estimated = 0
	}

	out := s
	out.Progress = &estimated
	out.Timestamp = nowMs
	out.Estimated = true
	return out
}

// SnapshotCache holds at most one snapshot per session.
// Writes are last-writer-wins.
type SnapshotCache struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
}

// NewSnapshotCache creates an empty cache.
func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{snapshots: make(map[string]Snapshot)}
}

// Get returns the cached snapshot for a session.
func (c *SnapshotCache) Get(sessionID string) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.snapshots[sessionID]
	return s, ok
}

// Set replaces the session's snapshot.
func (c *SnapshotCache) Set(sessionID string, s Snapshot) {
	c.mu.Lock()
	c.snapshots[sessionID] = s
	c.mu.Unlock()
}

// Delete drops the session's snapshot.
func (c *SnapshotCache) Delete(sessionID string) {
	c.mu.Lock()
	delete(c.snapshots, sessionID)
	c.mu.Unlock()
}

// Len returns the number of cached sessions.
func (c *SnapshotCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.snapshots)
}
