package spotify

import (
	"context"
	"fmt"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/sync/errgroup"
)

const dashboardLimit = 10

// Dashboard fetches the user profile, current playback, short-term top
// tracks and artists, and recent plays concurrently.
// A failed current-playback lookup degrades to {isPlaying:false}; any other
// failure fails the whole call.
func (c *Client) Dashboard(ctx context.Context) (*Dashboard, error) {
	var d Dashboard
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		user, err := c.api.CurrentUser(ctx)
		if err != nil {
			return fmt.Errorf("getting current user: %w", err)
		}
		d.User = user
		return nil
	})

	g.Go(func() error {
		current, err := c.api.PlayerCurrentlyPlaying(ctx)
		if err != nil || current == nil || current.Item == nil {
			d.CurrentTrack = notPlaying{IsPlaying: false}
			return nil
		}
		d.CurrentTrack = current
		return nil
	})

	g.Go(func() error {
		tracks, err := c.api.CurrentUsersTopTracks(ctx,
			spotify.Timerange(spotify.ShortTermRange),
			spotify.Limit(dashboardLimit),
		)
		if err != nil {
			return fmt.Errorf("getting top tracks: %w", err)
		}
		d.TopTracks = tracks
		return nil
	})

	g.Go(func() error {
		artists, err := c.api.CurrentUsersTopArtists(ctx,
			spotify.Timerange(spotify.ShortTermRange),
			spotify.Limit(dashboardLimit),
		)
		if err != nil {
			return fmt.Errorf("getting top artists: %w", err)
		}
		d.TopArtists = artists
		return nil
	})

	g.Go(func() error {
		recent, err := c.api.PlayerRecentlyPlayedOpt(ctx, &spotify.RecentlyPlayedOptions{Limit: dashboardLimit})
		if err != nil {
			return fmt.Errorf("getting recently played: %w", err)
		}
		d.RecentlyPlayed = recent
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &d, nil
}
