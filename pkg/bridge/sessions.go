package bridge

import (
	"sync"
	"time"
)

const (
	// SessionIdleTimeout is how long a sender's task-engine session stays
	// resumable without activity. Expiry is lazy, checked on read.
	SessionIdleTimeout = 10 * time.Minute
	// maxSessions bounds the map under pathological sender churn; the
	// oldest-idle entry is evicted when the cap is hit.
	maxSessions = 1000
)

type senderSession struct {
	id           string
	lastActivity time.Time
}

// sessionStore maps senders to task-engine session ids for multi-turn
// continuity.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]senderSession
	idle     time.Duration
	cap      int
	now      func() time.Time
}

func newSessionStore() *sessionStore {
	return &sessionStore{
		sessions: make(map[string]senderSession),
		idle:     SessionIdleTimeout,
		cap:      maxSessions,
		now:      time.Now,
	}
}

// Get returns the sender's session id, or "" when none exists or the
// entry idled out. A live read refreshes the activity timestamp.
func (s *sessionStore) Get(senderID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[senderID]
	if !ok {
		return ""
	}
	if s.now().Sub(sess.lastActivity) > s.idle {
		delete(s.sessions, senderID)
		return ""
	}
	sess.lastActivity = s.now()
	s.sessions[senderID] = sess
	return sess.id
}

func (s *sessionStore) Set(senderID, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[senderID]; !exists && len(s.sessions) >= s.cap {
		s.evictOldest()
	}
	s.sessions[senderID] = senderSession{id: sessionID, lastActivity: s.now()}
}

func (s *sessionStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]senderSession)
}

// evictOldest drops the entry with the stalest activity. Called with the
// lock held.
func (s *sessionStore) evictOldest() {
	var oldestID string
	var oldest time.Time
	for id, sess := range s.sessions {
		if oldestID == "" || sess.lastActivity.Before(oldest) {
			oldestID = id
			oldest = sess.lastActivity
		}
	}
	if oldestID != "" {
		delete(s.sessions, oldestID)
	}
}
