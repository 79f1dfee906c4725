package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_BurstThenDeny(t *testing.T) {
	stop := make(chan struct{})
	defer close(stop)
	rl := NewRateLimiter(0.01, 3, stop)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("user-1"), "request %d", i)
	}
	assert.False(t, rl.Allow("user-1"))
	assert.True(t, rl.Allow("user-2"), "buckets are per key")
}

func TestRateLimiter_CleanupDropsIdleVisitors(t *testing.T) {
	stop := make(chan struct{})
	defer close(stop)
	rl := NewRateLimiter(1, 1, stop)

	rl.Allow("idle")
	rl.mu.Lock()
	rl.visitors["idle"].lastSeen = time.Now().Add(-time.Hour)
	rl.mu.Unlock()
	rl.Allow("active")

	rl.cleanup(time.Minute)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.visitors, "idle")
	assert.Contains(t, rl.visitors, "active")
}
