package bridge

import (
	"sync"
	"time"
)

const (
	// RateLimitWindow is the sliding window for both limiters.
	RateLimitWindow = 60 * time.Second
	// MaxPerSenderPerWindow caps one sender's accepted messages per window.
	MaxPerSenderPerWindow = 10
	// MaxGlobalPerWindow caps all accepted messages per window, so a flood
	// across spoofed senders still gets dropped.
	MaxGlobalPerWindow = 30
	// maxTrackedSenders caps the per-sender map; senders whose timestamps
	// all fell out of the window are evicted opportunistically.
	maxTrackedSenders = 100
)

// RateLimiter implements the two sliding windows of the gating pipeline.
// Checks prune lazily and never record; Record is called once, after the
// message has passed every counting-relevant gate, so rejected messages
// are not double-counted.
type RateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	sender  int
	global  int
	tracked int

	senders     map[string][]time.Time
	globalTimes []time.Time

	now func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		window:  RateLimitWindow,
		sender:  MaxPerSenderPerWindow,
		global:  MaxGlobalPerWindow,
		tracked: maxTrackedSenders,
		senders: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// AllowGlobal reports whether the global window has room.
func (r *RateLimiter) AllowGlobal() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.globalTimes = prune(r.globalTimes, r.now().Add(-r.window))
	return len(r.globalTimes) < r.global
}

// AllowSender reports whether senderID's window has room.
func (r *RateLimiter) AllowSender(senderID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	times := prune(r.senders[senderID], r.now().Add(-r.window))
	if len(times) == 0 {
		delete(r.senders, senderID)
	} else {
		r.senders[senderID] = times
	}
	return len(times) < r.sender
}

// Record counts one accepted message against both windows.
func (r *RateLimiter) Record(senderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)

	r.globalTimes = append(prune(r.globalTimes, cutoff), now)
	r.senders[senderID] = append(prune(r.senders[senderID], cutoff), now)

	if len(r.senders) > r.tracked {
		r.evictIdle(cutoff)
	}
}

// Reset drops all tracked state.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders = make(map[string][]time.Time)
	r.globalTimes = nil
}

// evictIdle removes senders with no timestamps inside the window. Called
// with the lock held.
func (r *RateLimiter) evictIdle(cutoff time.Time) {
	for id, times := range r.senders {
		if pruned := prune(times, cutoff); len(pruned) == 0 {
			delete(r.senders, id)
		}
	}
}

// prune drops timestamps strictly older than cutoff; a record exactly
// one window old still counts.
func prune(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	return times[i:]
}
