// Package ratelimit implements RateGate: sliding-window request counters
// and the account lockout latch described in spec.md §4.3. Counters live in
// Redis so limits hold across every API process, not just the one that
// happens to handle a given request.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vactrail/backend/internal/apperr"
)

// Category names one of the eight rate-limited operation classes. Each
// carries its own limit and window per spec.md §4.3.
type Category string

const (
	CategoryLogin                Category = "login"
	CategoryPasswordResetRequest Category = "password-reset-request"
	CategoryPasswordResetConfirm Category = "password-reset-confirm"
	CategoryRefresh              Category = "refresh"
	CategoryVacationWrite        Category = "vacation-write"
	CategoryVacationRead         Category = "vacation-read"
	CategoryExport               Category = "export"
	CategoryAPIDefault           Category = "api-default"
)

// Limit pairs a category with its cap and sliding window.
type Limit struct {
	Max    int64
	Window time.Duration
}

// DefaultLimits returns the category table from spec.md §4.3.
func DefaultLimits() map[Category]Limit {
	return map[Category]Limit{
		CategoryLogin:                {Max: 5, Window: 60 * time.Second},
		CategoryPasswordResetRequest: {Max: 3, Window: time.Hour},
		CategoryPasswordResetConfirm: {Max: 10, Window: time.Hour},
		CategoryRefresh:              {Max: 30, Window: 60 * time.Second},
		CategoryVacationWrite:        {Max: 60, Window: time.Hour},
		CategoryVacationRead:         {Max: 200, Window: time.Hour},
		CategoryExport:               {Max: 10, Window: 24 * time.Hour},
		CategoryAPIDefault:           {Max: 1000, Window: time.Hour},
	}
}

const (
	loginLockoutMaxFailures = 5
	loginLockoutWindow      = 15 * time.Minute
	loginLockoutDuration    = 15 * time.Minute
)

// Result is the outcome of a check_and_record call.
type Result struct {
	Allowed           bool
	RetryAfterSeconds int
	Remaining         int64
}

// Gate is RateGate: sliding-window counters plus the login lockout latch,
// both backed by Redis so they're atomic across every API process.
type Gate struct {
	rdb    *redis.Client
	limits map[Category]Limit
}

// NewGate builds a Gate. Pass nil for limits to use DefaultLimits.
func NewGate(rdb *redis.Client, limits map[Category]Limit) *Gate {
	if limits == nil {
		limits = DefaultLimits()
	}
	return &Gate{rdb: rdb, limits: limits}
}

// slidingWindowScript evicts entries older than the window, adds the
// current attempt, and returns the post-add count — all atomically, so
// concurrent callers racing on the same key never both pass the cap.
//
// KEYS[1] = counter key
// ARGV[1] = now (unix nanos, used as both score and member for uniqueness)
// ARGV[2] = window in nanos
// ARGV[3] = max allowed
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local count = redis.call("ZCARD", key)

if count >= max then
	return count
end

redis.call("ZADD", key, now, now .. "-" .. math.random(1000000000))
redis.call("PEXPIRE", key, math.ceil(window / 1000000))
return count + 1
`)

// tallyScript records an occurrence unconditionally (no cap) and returns
// the count within the window, used for the login lockout tally where
// every failure must be counted even past the threshold.
var tallyScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
redis.call("ZADD", key, now, now .. "-" .. math.random(1000000000))
redis.call("PEXPIRE", key, math.ceil(window / 1000000))
return redis.call("ZCARD", key)
`)

func counterKey(category Category, key string) string {
	return fmt.Sprintf("ratelimit:%s:%s", category, key)
}

// CheckAndRecord atomically records one attempt for (category, key) and
// reports whether it was within the limit.
func (g *Gate) CheckAndRecord(ctx context.Context, category Category, key string) (Result, error) {
	limit, ok := g.limits[category]
	if !ok {
		return Result{}, apperr.New(apperr.KindInternal, fmt.Sprintf("ratelimit: unknown category %q", category))
	}

	now := time.Now().UnixNano()
	count, err := slidingWindowScript.Run(ctx, g.rdb, []string{counterKey(category, key)},
		now, limit.Window.Nanoseconds(), limit.Max).Int64()
	if err != nil {
		return Result{}, apperr.Wrap(apperr.KindInternal, "ratelimit: evaluating sliding window", err)
	}

	if count > limit.Max {
		return Result{
			Allowed:           false,
			RetryAfterSeconds: int(limit.Window.Seconds()),
			Remaining:         0,
		}, nil
	}

	return Result{
		Allowed:           true,
		RetryAfterSeconds: 0,
		Remaining:         limit.Max - count,
	}, nil
}

func lockoutKey(email string) string {
	return "lockout:" + email
}

func lockoutFailureKey(email string) string {
	return "lockout:failures:" + email
}

// RecordFailedLogin tallies a failed credential check for email and sets
// the lockout latch once five failures land within fifteen minutes.
func (g *Gate) RecordFailedLogin(ctx context.Context, email string) error {
	now := time.Now().UnixNano()
	key := lockoutFailureKey(email)

	count, err := tallyScript.Run(ctx, g.rdb, []string{key},
		now, loginLockoutWindow.Nanoseconds()).Int64()
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "ratelimit: recording failed login", err)
	}

	if count >= loginLockoutMaxFailures {
		if err := g.rdb.Set(ctx, lockoutKey(email), "1", loginLockoutDuration).Err(); err != nil {
			return apperr.Wrap(apperr.KindInternal, "ratelimit: setting lockout latch", err)
		}
	}
	return nil
}

// IsLocked reports whether the account lockout latch is currently set.
func (g *Gate) IsLocked(ctx context.Context, email string) (bool, error) {
	n, err := g.rdb.Exists(ctx, lockoutKey(email)).Result()
	if err != nil {
		return false, apperr.Wrap(apperr.KindInternal, "ratelimit: checking lockout latch", err)
	}
	return n > 0, nil
}

// ClearLockout clears the latch and failure tally early, on a successful
// out-of-band password reset.
func (g *Gate) ClearLockout(ctx context.Context, email string) error {
	if err := g.rdb.Del(ctx, lockoutKey(email), lockoutFailureKey(email)).Err(); err != nil {
		return apperr.Wrap(apperr.KindInternal, "ratelimit: clearing lockout latch", err)
	}
	return nil
}
