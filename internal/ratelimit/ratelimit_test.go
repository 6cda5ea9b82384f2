package ratelimit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	internalsettings "github.com/qwmc/qwmc-web/internal/settings"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterFixedWindow(t *testing.T) {
	limiter := NewMemoryLimiter()
	ctx := context.Background()
	start := time.Unix(1_800_000_000, 0).UTC()

	for i := 0; i < 2; i++ {
		res, err := limiter.Allow(ctx, "login:1.2.3.4", 2, time.Minute, start)
		require.NoError(t, err)
		require.True(t, res.Allowed, "attempt %d should pass", i+1)
	}
	res, err := limiter.Allow(ctx, "login:1.2.3.4", 2, time.Minute, start.Add(10*time.Second))
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)

	other, err := limiter.Allow(ctx, "login:5.6.7.8", 2, time.Minute, start)
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys must be counted independently")

	next, err := limiter.Allow(ctx, "login:1.2.3.4", 2, time.Minute, start.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, next.Allowed, "a new window resets the counter")
}

func TestRedisLimiterCountsPerWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := NewRedisLimiter(client, "test:rl")
	ctx := context.Background()
	now := time.Unix(1_800_000_000, 0).UTC()

	first, err := limiter.Allow(ctx, "login:9.9.9.9", 2, time.Minute, now)
	require.NoError(t, err)
	assert.True(t, first.Allowed)
	assert.Equal(t, 1, first.Remaining)

	_, err = limiter.Allow(ctx, "login:9.9.9.9", 2, time.Minute, now)
	require.NoError(t, err)
	third, err := limiter.Allow(ctx, "login:9.9.9.9", 2, time.Minute, now)
	require.NoError(t, err)
	assert.False(t, third.Allowed)

	index, _ := windowBounds(now, time.Minute)
	key := limiter.buildKey("login:9.9.9.9", index)
	assert.True(t, mr.Exists(key))
	assert.Greater(t, mr.TTL(key), time.Duration(0))
}

func TestManagerUsesRedisWhenEnabled(t *testing.T) {
	mr := miniredis.RunT(t)
	provider := func() SettingsConfig {
		return SettingsConfig{Limit: 1, Window: time.Minute, RedisEnabled: true, RedisAddr: mr.Addr(), RedisPrefix: "qwmc:test"}
	}
	now := time.Unix(1_800_000_000, 0).UTC()
	manager := NewManager(provider, func() time.Time { return now }, nil)
	ctx := context.Background()

	res, err := manager.Allow(ctx, "login:1.1.1.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	res, err = manager.Allow(ctx, "login:1.1.1.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.NotEmpty(t, mr.Keys(), "expected counters to live in redis")
}

func TestManagerFallsBackToMemoryWhenRedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	provider := func() SettingsConfig {
		return SettingsConfig{Limit: 1, Window: time.Minute, RedisEnabled: true, RedisAddr: addr}
	}
	now := time.Unix(1_800_000_000, 0).UTC()
	manager := NewManager(provider, func() time.Time { return now }, nil)
	ctx := context.Background()

	res, err := manager.Allow(ctx, "login:2.2.2.2")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.True(t, manager.cooldown.active(now), "redis failure should start a cooldown")

	res, err = manager.Allow(ctx, "login:2.2.2.2")
	require.NoError(t, err)
	assert.False(t, res.Allowed, "memory limiter should still enforce the limit")
}

func TestManagerZeroLimitDisablesThrottling(t *testing.T) {
	manager := NewManager(func() SettingsConfig { return SettingsConfig{Limit: 0, Window: time.Minute} }, nil, nil)
	for i := 0; i < 50; i++ {
		res, err := manager.Allow(context.Background(), "login:3.3.3.3")
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}
}

func TestLoadSettingsConfigFromSnapshot(t *testing.T) {
	internalsettings.StoreDBConfig(time.Now().UTC(), map[string]json.RawMessage{
		internalsettings.LoginRateLimitKey:         json.RawMessage(`"5"`),
		internalsettings.LoginRateWindowSecondsKey: json.RawMessage(`30`),
		internalsettings.RateLimitRedisEnabledKey:  json.RawMessage(`true`),
		internalsettings.RateLimitRedisAddrKey:     json.RawMessage(`" localhost:6379 "`),
		internalsettings.RateLimitRedisPrefixKey:   json.RawMessage(`""`),
	})
	t.Cleanup(func() { internalsettings.StoreDBConfig(time.Time{}, nil) })

	cfg := LoadSettingsConfig()
	assert.Equal(t, 5, cfg.Limit)
	assert.Equal(t, 30*time.Second, cfg.Window)
	assert.True(t, cfg.RedisEnabled)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, internalsettings.DefaultRateLimitRedisPrefix, cfg.RedisPrefix)
}

func TestLoginKey(t *testing.T) {
	assert.Equal(t, "login:10.0.0.1", LoginKey(" 10.0.0.1 "))
	assert.Equal(t, "", LoginKey(""))
}

func TestManagerReconnectsWhenTargetChanges(t *testing.T) {
	first := miniredis.RunT(t)
	second := miniredis.RunT(t)
	addr := first.Addr()
	provider := func() SettingsConfig {
		return SettingsConfig{Limit: 5, Window: time.Minute, RedisEnabled: true, RedisAddr: addr, RedisPrefix: "qwmc:test"}
	}
	manager := NewManager(provider, nil, nil)
	ctx := context.Background()

	_, err := manager.Allow(ctx, "login:4.4.4.4")
	require.NoError(t, err)
	assert.NotEmpty(t, first.Keys())

	addr = second.Addr()
	_, err = manager.Allow(ctx, "login:4.4.4.4")
	require.NoError(t, err)
	assert.NotEmpty(t, second.Keys(), "counters should move to the new target")

	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())
}
