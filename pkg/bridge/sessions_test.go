package bridge

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestSessionStore() (*sessionStore, *time.Time) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	s := newSessionStore()
	s.now = func() time.Time { return now }
	return s, &now
}

func TestSessionStoreRoundtrip(t *testing.T) {
	s, _ := newTestSessionStore()

	assert.Empty(t, s.Get("a"))
	s.Set("a", "sess-1")
	assert.Equal(t, "sess-1", s.Get("a"))
	assert.Empty(t, s.Get("b"))
}

func TestSessionStoreIdleExpiry(t *testing.T) {
	s, now := newTestSessionStore()

	s.Set("a", "sess-1")
	*now = now.Add(SessionIdleTimeout + time.Second)
	assert.Empty(t, s.Get("a"), "idle session must expire")
	assert.Empty(t, s.Get("a"), "expired entry stays gone")
}

func TestSessionStoreReadRefreshesActivity(t *testing.T) {
	s, now := newTestSessionStore()

	s.Set("a", "sess-1")
	*now = now.Add(SessionIdleTimeout - time.Minute)
	assert.Equal(t, "sess-1", s.Get("a"))

	// The read above refreshed the clock, so another near-timeout wait
	// still finds the session alive.
	*now = now.Add(SessionIdleTimeout - time.Minute)
	assert.Equal(t, "sess-1", s.Get("a"))
}

func TestSessionStoreCapEvictsOldest(t *testing.T) {
	s, now := newTestSessionStore()
	s.cap = 3

	s.Set("a", "sess-a")
	*now = now.Add(time.Second)
	s.Set("b", "sess-b")
	*now = now.Add(time.Second)
	s.Set("c", "sess-c")
	*now = now.Add(time.Second)
	s.Set("d", "sess-d")

	assert.Empty(t, s.Get("a"), "oldest entry evicted at cap")
	assert.Equal(t, "sess-b", s.Get("b"))
	assert.Equal(t, "sess-d", s.Get("d"))
}

func TestSessionStoreOverwriteDoesNotEvict(t *testing.T) {
	s, _ := newTestSessionStore()
	s.cap = 2

	s.Set("a", "sess-a")
	s.Set("b", "sess-b")
	s.Set("a", "sess-a2")

	assert.Equal(t, "sess-a2", s.Get("a"))
	assert.Equal(t, "sess-b", s.Get("b"))
}

func TestSessionStoreClear(t *testing.T) {
	s, _ := newTestSessionStore()

	for i := 0; i < 5; i++ {
		s.Set(fmt.Sprintf("sender-%d", i), "sess")
	}
	s.Clear()
	assert.Empty(t, s.Get("sender-0"))
}
