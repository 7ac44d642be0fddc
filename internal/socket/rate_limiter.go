package socket

import (
	"sync"
	"time"
)

// RateLimiter applies a per-socket sliding window so one abusive connection
// cannot flood a room. The window resets every minute.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	clients map[string]*clientWindow
}

type clientWindow struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates a limiter allowing limit events per minute per
// socket.
func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		clients: make(map[string]*clientWindow),
	}
}

// Allow reports whether the socket may send another event.
func (rl *RateLimiter) Allow(socketID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	w, exists := rl.clients[socketID]
	if !exists {
		rl.clients[socketID] = &clientWindow{count: 1, windowStart: now}
		return true
	}

	if now.Sub(w.windowStart) >= time.Minute {
		w.count = 1
		w.windowStart = now
		return true
	}

	if w.count >= rl.limit {
		return false
	}

	w.count++
	return true
}

// Forget drops tracking state for a disconnected socket.
func (rl *RateLimiter) Forget(socketID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, socketID)
}
