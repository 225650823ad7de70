package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLimiter(rps float64, burst int, now *time.Time) *IPLimiter {
	l := NewIPLimiter(rps, burst)
	l.now = func() time.Time { return *now }
	return l
}

func TestAllowConsumesBurstThenDenies(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newTestLimiter(1, 3, &now)

	for i := 0; i < 3; i++ {
		ok, _ := l.Allow("203.0.113.1")
		assert.True(t, ok, "request %d should pass", i)
	}
	ok, retry := l.Allow("203.0.113.1")
	assert.False(t, ok)
	assert.Equal(t, time.Second, retry)

	// other keys have their own bucket
	ok, _ = l.Allow("203.0.113.2")
	assert.True(t, ok)
}

func TestAllowRefillsOverTime(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newTestLimiter(1, 1, &now)

	ok, _ := l.Allow("ip")
	assert.True(t, ok)
	ok, _ = l.Allow("ip")
	assert.False(t, ok)

	now = now.Add(1100 * time.Millisecond)
	ok, _ = l.Allow("ip")
	assert.True(t, ok)
}

func TestSweepDropsIdleVisitors(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newTestLimiter(1, 1, &now)

	l.Allow("old")
	now = now.Add(DefaultVisitorTTL + time.Second)
	l.Allow("fresh")

	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())
}
