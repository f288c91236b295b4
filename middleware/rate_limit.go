package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// failureWindow counts failed logins from one IP
type failureWindow struct {
	failures    int
	startedAt   time.Time
	lockedUntil time.Time
}

// RateLimiter locks an IP out after too many failed logins within a window
type RateLimiter struct {
	mu          sync.Mutex
	windows     map[string]*failureWindow
	maxAttempts int
	window      time.Duration
	lockFor     time.Duration
}

// NewRateLimiter allows maxAttempts failures per window, then locks the IP
// for lockFor.
func NewRateLimiter(maxAttempts int, window, lockFor time.Duration) *RateLimiter {
	return &RateLimiter{
		windows:     make(map[string]*failureWindow),
		maxAttempts: maxAttempts,
		window:      window,
		lockFor:     lockFor,
	}
}

// StartCleanup periodically drops finished windows until ctx is done
func (rl *RateLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for ip := range rl.windows {
				rl.live(ip, now)
			}
			rl.mu.Unlock()
		}
	}
}

// live returns the IP's current window, dropping it once both the window
// and any lock are over. Caller holds mu.
func (rl *RateLimiter) live(ip string, now time.Time) *failureWindow {
	w, ok := rl.windows[ip]
	if !ok {
		return nil
	}
	if now.Before(w.lockedUntil) || (w.lockedUntil.IsZero() && now.Sub(w.startedAt) <= rl.window) {
		return w
	}
	delete(rl.windows, ip)
	return nil
}

// Check reports whether ip may attempt a login, how many attempts remain,
// and how long a lockout still lasts.
func (rl *RateLimiter) Check(ip string) (bool, int, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w := rl.live(ip, now)
	switch {
	case w == nil:
		return true, rl.maxAttempts, 0
	case now.Before(w.lockedUntil):
		return false, 0, w.lockedUntil.Sub(now)
	default:
		return true, rl.maxAttempts - w.failures, 0
	}
}

// RecordAttempt counts a failure, or forgets the IP on success
func (rl *RateLimiter) RecordAttempt(ip string, success bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if success {
		delete(rl.windows, ip)
		return
	}

	now := time.Now()
	w := rl.live(ip, now)
	if w == nil {
		w = &failureWindow{startedAt: now}
		rl.windows[ip] = w
	}
	w.failures++
	if w.failures >= rl.maxAttempts && w.lockedUntil.IsZero() {
		w.lockedUntil = now.Add(rl.lockFor)
	}
}

// GetRemainingAttempts returns remaining attempts for an IP
func (rl *RateLimiter) GetRemainingAttempts(ip string) int {
	_, remaining, _ := rl.Check(ip)
	return remaining
}

// LoginRateLimitMiddleware rejects login attempts from locked-out IPs
func LoginRateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, remaining, wait := rl.Check(c.ClientIP())
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if allowed {
			c.Next()
			return
		}

		retryAfter := int(wait.Round(time.Second).Seconds())
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":       "too_many_requests",
			"message":     "Too many failed login attempts. Try again in " + wait.Round(time.Second).String() + ".",
			"retry_after": retryAfter,
		})
	}
}
