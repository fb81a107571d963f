package signal

import (
	"sync"
	"time"

	"github.com/dkeye/Text/internal/core"
)

// TypingRateLimiter throttles typing frames per session with a sliding
// window. Typing is the one inbound frame a client can spam for free;
// over-limit frames are dropped silently, the connection is untouched.
type TypingRateLimiter struct {
	mu       sync.Mutex
	history  map[core.SessionID][]time.Time
	limit    int
	interval time.Duration
}

func NewTypingRateLimiter(limit int, interval time.Duration) *TypingRateLimiter {
	return &TypingRateLimiter{
		history:  make(map[core.SessionID][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *TypingRateLimiter) Allow(sid core.SessionID) bool {
	if rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[sid]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[sid] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[sid] = fresh
	return true
}

// Forget drops a disconnected session's window so the map cannot grow
// unbounded.
func (rl *TypingRateLimiter) Forget(sid core.SessionID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, sid)
}
