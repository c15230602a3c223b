package ratelimit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vactrail/backend/internal/ratelimit"
)

func TestDefaultLimits_MatchesCategoryTable(t *testing.T) {
	limits := ratelimit.DefaultLimits()

	cases := []struct {
		category ratelimit.Category
		max      int64
		window   time.Duration
	}{
		{ratelimit.CategoryLogin, 5, 60 * time.Second},
		{ratelimit.CategoryPasswordResetRequest, 3, time.Hour},
		{ratelimit.CategoryPasswordResetConfirm, 10, time.Hour},
		{ratelimit.CategoryRefresh, 30, 60 * time.Second},
		{ratelimit.CategoryVacationWrite, 60, time.Hour},
		{ratelimit.CategoryVacationRead, 200, time.Hour},
		{ratelimit.CategoryExport, 10, 24 * time.Hour},
		{ratelimit.CategoryAPIDefault, 1000, time.Hour},
	}

	for _, tc := range cases {
		l, ok := limits[tc.category]
		assert.True(t, ok, "missing category %s", tc.category)
		assert.Equal(t, tc.max, l.Max, "category %s max", tc.category)
		assert.Equal(t, tc.window, l.Window, "category %s window", tc.category)
	}
}
