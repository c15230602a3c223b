package ratelimit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"

	"github.com/vactrail/backend/internal/ratelimit"
)

func TestIPThrottle_AllowsUpToBurstThenRejects(t *testing.T) {
	th := ratelimit.NewIPThrottle(rate.Limit(1), 3)
	defer th.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, th.Allow("203.0.113.7"), "request %d should be within burst", i)
	}
	assert.False(t, th.Allow("203.0.113.7"), "request past burst should be rejected")
}

func TestIPThrottle_TracksIPsIndependently(t *testing.T) {
	th := ratelimit.NewIPThrottle(rate.Limit(1), 1)
	defer th.Stop()

	assert.True(t, th.Allow("203.0.113.7"))
	assert.False(t, th.Allow("203.0.113.7"))
	assert.True(t, th.Allow("203.0.113.8"))
}
