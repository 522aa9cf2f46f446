package session

import (
	"sync"
	"time"
)

// cleanupInterval controls how often AuthRateLimiter scans for and
// removes addresses with no recent attempts.
const cleanupInterval = 5 * time.Minute

// AuthRateLimiter bounds how many handshake auth attempts one remote
// address may make per sliding window, generalizing the teacher's
// per-UID IPC rate limiter (ipc/ratelimit.go) from local UIDs to remote
// addresses guarding ServerHandshake against ticket/password brute force.
type AuthRateLimiter struct {
	maxAttempts int
	window      time.Duration

	mu          sync.Mutex
	attempts    map[string][]time.Time
	lastCleanup time.Time
}

func NewAuthRateLimiter(maxAttempts int, window time.Duration) *AuthRateLimiter {
	return &AuthRateLimiter{
		maxAttempts: maxAttempts,
		window:      window,
		attempts:    make(map[string][]time.Time),
		lastCleanup: time.Now(),
	}
}

// Allow reports whether addr may attempt authentication now, recording
// the attempt if so.
func (r *AuthRateLimiter) Allow(addr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-r.window)

	if now.Sub(r.lastCleanup) > cleanupInterval {
		for a, times := range r.attempts {
			allExpired := true
			for _, t := range times {
				if t.After(cutoff) {
					allExpired = false
					break
				}
			}
			if allExpired {
				delete(r.attempts, a)
			}
		}
		r.lastCleanup = now
	}

	existing := r.attempts[addr]
	pruned := make([]time.Time, 0, len(existing))
	for _, t := range existing {
		if t.After(cutoff) {
			pruned = append(pruned, t)
		}
	}

	if len(pruned) >= r.maxAttempts {
		r.attempts[addr] = pruned
		return false
	}

	r.attempts[addr] = append(pruned, now)
	return true
}

// Reset clears all rate-limit state.
func (r *AuthRateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = make(map[string][]time.Time)
}
