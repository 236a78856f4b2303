package spotify

import (
	"context"
	"fmt"
	"strings"

	"github.com/zmb3/spotify/v2"
)

// CurrentlyPlaying fetches the user's current playback.
// A 204 response yields a NowPlaying with IsPlaying false and no track.
func (c *Client) CurrentlyPlaying(ctx context.Context) (*NowPlaying, error) {
	current, err := c.api.PlayerCurrentlyPlaying(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching currently playing: %w", err)
	}
	return convertCurrentlyPlaying(current), nil
}

// convertCurrentlyPlaying converts the Spotify response to NowPlaying.
func convertCurrentlyPlaying(current *spotify.CurrentlyPlaying) *NowPlaying {
	if current == nil || current.Item == nil {
		return &NowPlaying{IsPlaying: false}
	}

	item := current.Item

	// Join artist names
	artists := make([]string, len(item.Artists))
	for i, a := range item.Artists {
		artists[i] = a.Name
	}

	var image string
	if len(item.Album.Images) > 0 {
		image = item.Album.Images[0].URL
	}

	return &NowPlaying{
		IsPlaying:  current.Playing,
		ProgressMs: int64(current.Progress),
		Track: &Track{
			Name:       item.Name,
			Artists:    strings.Join(artists, ", "),
			Album:      item.Album.Name,
			ImageURL:   image,
			URI:        string(item.URI),
			DurationMs: int64(item.Duration),
		},
	}
}
