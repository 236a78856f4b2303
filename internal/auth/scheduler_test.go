package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/justestif/go-spotify-dashboard/internal/db"
)

func TestScheduler_RenewsAndReschedules(t *testing.T) {
	store := db.NewMemoryStore()
	refresher := &mockRefresher{token: &oauth2.Token{
		AccessToken: "renewed",
		Expiry:      time.Now().Add(time.Hour),
	}}
	m := NewTokenManager(store, refresher)
	defer m.Close()

	// Inside the renewal window, so the timer fires immediately.
	putSession(t, store, "s1", time.Now().Add(time.Minute))
	m.Scheduler().Schedule("s1", time.Now().Add(time.Minute))

	eventually(t, func() bool { return refresher.callCount.Load() == 1 })
	eventually(t, func() bool {
		s, err := store.Get(context.Background(), "s1")
		return err == nil && s.AccessToken == "renewed"
	})

	// Re-armed for the new expiry, which is far away.
	eventually(t, func() bool { return m.Scheduler().Scheduled("s1") })
	time.Sleep(20 * time.Millisecond)
	if n := refresher.callCount.Load(); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}
}

func TestScheduler_FailureGoesDormant(t *testing.T) {
	store := db.NewMemoryStore()
	refresher := &mockRefresher{err: errors.New("revoked")}
	m := NewTokenManager(store, refresher)
	defer m.Close()

	putSession(t, store, "s1", time.Now())
	m.Scheduler().Schedule("s1", time.Now())

	eventually(t, func() bool { return refresher.callCount.Load() == 1 })
	eventually(t, func() bool { return !m.Scheduler().Scheduled("s1") })

	// The session itself is kept; the next live request surfaces the failure.
	if _, err := store.Get(context.Background(), "s1"); err != nil {
		t.Errorf("Get() error = %v, want session kept", err)
	}
}

func TestScheduler_MissingSessionStops(t *testing.T) {
	refresher := &mockRefresher{token: &oauth2.Token{AccessToken: "x"}}
	m := NewTokenManager(db.NewMemoryStore(), refresher)
	defer m.Close()

	m.Scheduler().Schedule("ghost", time.Now())

	eventually(t, func() bool { return !m.Scheduler().Scheduled("ghost") })
	if n := refresher.callCount.Load(); n != 0 {
		t.Errorf("refresh calls = %d, want 0", n)
	}
}

func TestScheduler_CancelAndStop(t *testing.T) {
	refresher := &mockRefresher{token: &oauth2.Token{AccessToken: "x"}}
	m := NewTokenManager(db.NewMemoryStore(), refresher)

	s := m.Scheduler()
	s.Schedule("a", time.Now().Add(time.Hour))
	s.Schedule("b", time.Now().Add(time.Hour))
	s.Schedule("a", time.Now().Add(2*time.Hour)) // re-arm replaces

	if s.Pending() != 2 {
		t.Fatalf("Pending() = %d, want 2", s.Pending())
	}

	s.Cancel("a")
	s.Cancel("a") // idempotent
	s.Cancel("unknown")
	if s.Pending() != 1 {
		t.Errorf("Pending() after Cancel = %d, want 1", s.Pending())
	}

	m.Close()
	if s.Pending() != 0 {
		t.Errorf("Pending() after Stop = %d, want 0", s.Pending())
	}

	s.Schedule("c", time.Now())
	if s.Pending() != 0 {
		t.Error("Schedule after Stop should be a no-op")
	}
	if n := refresher.callCount.Load(); n != 0 {
		t.Errorf("refresh calls = %d, want 0", n)
	}
}
