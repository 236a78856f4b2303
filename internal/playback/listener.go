package playback

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/justestif/go-spotify-dashboard/internal/spotify"
)

// listener drives one connection: a poll loop that refreshes the session's
// cached snapshot and an emit loop that projects it to the client.
type listener struct {
	server    *SyncServer
	connID    string
	sessionID string
	emitter   Emitter
	logger    *log.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (l *listener) stop() {
	l.cancel()
}

func (l *listener) pollLoop(ctx context.Context) {
	defer l.wg.Done()
	defer l.server.detach(l)

	ticker := time.NewTicker(l.server.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !l.poll(ctx) {
				return
			}
		}
	}
}

func (l *listener) emitLoop(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.server.emitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.emit()
		}
	}
}

// poll fetches current playback and updates the cache.
// It returns false when the listener must stop.
func (l *listener) poll(ctx context.Context) bool {
	session, err := l.server.tokens.EnsureFresh(ctx, l.sessionID)
	if err == nil {
		var np *spotify.NowPlaying
		np, err = l.server.fetcher(session.AccessToken).CurrentlyPlaying(ctx)
		if err == nil {
			l.server.cache.Set(l.sessionID, newSnapshot(np, l.server.now()))
			return true
		}
	}

	if ctx.Err() != nil {
		return false
	}

	switch spotify.Classify(err) {
	case spotify.ClassUnauthorized:
		l.logger.Warn("session rejected, stopping playback sync", "err", err)
		l.server.cache.Delete(l.sessionID)
		l.send(EventError, ErrorEvent{Message: "Session expired", NeedsReauth: true})
		return false
	case spotify.ClassRateLimited:
		l.logger.Warn("rate limited, using cached data")
	default:
		l.logger.Error("playback update failed", "err", err)
	}
	return true
}

// emit sends the session's snapshot, projected to now.
func (l *listener) emit() {
	snapshot, ok := l.server.cache.Get(l.sessionID)
	if !ok {
		return
	}
	l.send(EventPlaybackUpdate, Interpolate(snapshot, l.server.now()))
}

func (l *listener) send(event string, data any) {
	if err := l.emitter.Emit(event, data); err != nil {
		l.logger.Debug("emit failed", "event", event, "err", err)
	}
}
