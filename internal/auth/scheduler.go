package auth

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/justestif/go-spotify-dashboard/internal/db"
)

// renewFunc refreshes a session and returns its new state.
type renewFunc func(ctx context.Context, id string) (*db.Session, error)

// Scheduler is a registry of one-shot renewal timers keyed by session id.
// Each timer fires RenewLead before expiry, renews the session, and
// re-arms itself from the new expiry. A failed renewal drops the entry.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[string]*renewal
	stopped bool

	renew  renewFunc
	lead   time.Duration
	logger *log.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

type renewal struct {
	timer *time.Timer
}

func newScheduler(renew renewFunc, logger *log.Logger, now func() time.Time) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		timers: make(map[string]*renewal),
		renew:  renew,
		lead:   RenewLead,
		logger: logger,
		now:    now,
		ctx:    ctx,
		cancel: cancel,
	}
}

// minRenewInterval bounds how soon a renewed session renews again, so a
// token issued with a very short lifetime cannot spin the timer.
const minRenewInterval = 30 * time.Second

// Schedule arms (or re-arms) the renewal timer for a session. Sessions
// already inside the renewal window renew immediately.
func (s *Scheduler) Schedule(id string, expiresAt time.Time) {
	s.arm(id, max(expiresAt.Sub(s.now())-s.lead, 0))
}

func (s *Scheduler) arm(id string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if prev, ok := s.timers[id]; ok {
		prev.timer.Stop()
	}

	entry := &renewal{}
	entry.timer = time.AfterFunc(delay, func() { s.fire(id, entry) })
	s.timers[id] = entry

	s.logger.Debug("scheduled renewal", "session", shortID(id), "in", delay.Round(time.Second))
}

// fire runs a renewal. Entries replaced or cancelled since arming are ignored.
func (s *Scheduler) fire(id string, entry *renewal) {
	s.mu.Lock()
	current := s.timers[id] == entry && !s.stopped
	s.mu.Unlock()
	if !current {
		return
	}

	session, err := s.renew(s.ctx, id)
	if err != nil {
		s.logger.Error("silent refresh failed", "session", shortID(id), "err", err)
		s.mu.Lock()
		if s.timers[id] == entry {
			delete(s.timers, id)
		}
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	current = s.timers[id] == entry
	s.mu.Unlock()
	if current {
		s.arm(id, max(session.ExpiresAt.Sub(s.now())-s.lead, minRenewInterval))
	}
}

// Cancel removes the timer for a session. Unknown ids are ignored.
func (s *Scheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.timers[id]; ok {
		entry.timer.Stop()
		delete(s.timers, id)
	}
}

// Pending reports how many sessions have an armed renewal timer.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Scheduled reports whether the session has an armed renewal timer.
func (s *Scheduler) Scheduled(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[id]
	return ok
}

// Stop cancels every timer and in-flight renewal. Schedule is a no-op afterwards.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	s.cancel()
	for id, entry := range s.timers {
		entry.timer.Stop()
		delete(s.timers, id)
	}
}
