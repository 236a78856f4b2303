package spotify

import "github.com/zmb3/spotify/v2"

// Track describes the item currently playing.
type Track struct {
	Name       string
	Artists    string // Comma-separated artist names
	Album      string
	ImageURL   string
	URI        string
	DurationMs int64
}

// NowPlaying is the state reported by the currently-playing endpoint.
// Track is nil when nothing is playing (204 No Content).
type NowPlaying struct {
	IsPlaying  bool
	ProgressMs int64
	Track      *Track
}

// Dashboard aggregates the data shown on the user's dashboard.
// Fields carry the Spotify API objects unchanged.
type Dashboard struct {
	User           *spotify.PrivateUser         `json:"user"`
	CurrentTrack   any                          `json:"currentTrack"`
	TopTracks      *spotify.FullTrackPage       `json:"topTracks"`
	TopArtists     *spotify.FullArtistPage      `json:"topArtists"`
	RecentlyPlayed []spotify.RecentlyPlayedItem `json:"recentlyPlayed"`
}

// notPlaying is returned as the current track when the lookup fails or
// nothing is playing.
type notPlaying struct {
	IsPlaying bool `json:"isPlaying"`
}
