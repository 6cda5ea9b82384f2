package ratelimit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Redis backend tuning.
const (
	// redisCooldown is how long the manager stays on memory after a Redis failure.
	redisCooldown = 30 * time.Second
	// redisPingTimeout bounds the health check done when (re)connecting.
	redisPingTimeout = 2 * time.Second
)

// SettingsProvider supplies the latest settings snapshot.
type SettingsProvider func() SettingsConfig

// RedisClientFactory constructs a Redis client for the given options.
type RedisClientFactory func(options *redis.Options) *redis.Client

// redisTarget identifies one Redis connection so settings edits can be detected.
type redisTarget struct {
	addr     string
	password string
	db       int
	prefix   string
}

func targetFromSettings(cfg SettingsConfig) (redisTarget, error) {
	target := redisTarget{
		addr:     strings.TrimSpace(cfg.RedisAddr),
		password: strings.TrimSpace(cfg.RedisPassword),
		db:       max(cfg.RedisDB, 0),
		prefix:   strings.TrimSpace(cfg.RedisPrefix),
	}
	if target.addr == "" {
		return redisTarget{}, errors.New("login rate limit redis: missing address")
	}
	return target, nil
}

// cooldown suppresses Redis use for a while after it fails.
type cooldown struct {
	mu    sync.Mutex
	until time.Time
}

func (c *cooldown) active(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.until.IsZero() && now.Before(c.until)
}

// trip starts a cooldown and reports whether one was not already running.
func (c *cooldown) trip(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.until.IsZero() && now.Before(c.until) {
		return false
	}
	c.until = now.Add(redisCooldown)
	return true
}

// Manager enforces the login limit from the settings snapshot. It counts in
// Redis when enabled and reachable and in process memory otherwise.
type Manager struct {
	provider  SettingsProvider
	nowFn     func() time.Time
	newClient RedisClientFactory
	memory    Limiter
	cooldown  cooldown

	mu      sync.Mutex // guards redis and target
	redis   *RedisLimiter
	target  redisTarget
	current *redis.Client
}

// NewManager constructs a Manager. Nil arguments select the settings snapshot,
// the wall clock and redis.NewClient.
func NewManager(provider SettingsProvider, nowFn func() time.Time, newClient RedisClientFactory) *Manager {
	if provider == nil {
		provider = LoadSettingsConfig
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if newClient == nil {
		newClient = redis.NewClient
	}
	return &Manager{
		provider:  provider,
		nowFn:     nowFn,
		newClient: newClient,
		memory:    NewMemoryLimiter(),
	}
}

// Allow counts one attempt for key. A zero limit disables throttling.
func (m *Manager) Allow(ctx context.Context, key string) (Result, error) {
	if m == nil || key == "" {
		return Result{Allowed: true}, nil
	}
	cfg := m.provider()
	if cfg.Limit <= 0 {
		return Result{Allowed: true}, nil
	}
	now := m.nowFn()

	if cfg.RedisEnabled && !m.cooldown.active(now) {
		result, errRedis := m.allowRedis(ctx, key, cfg, now)
		if errRedis == nil {
			return result, nil
		}
		if m.cooldown.trip(now) {
			log.WithError(errRedis).Warn("login rate limit: redis unavailable, counting in memory")
		}
	}
	return m.memory.Allow(ctx, key, cfg.Limit, cfg.Window, now)
}

// Close releases the Redis client, if one is open.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	errClose := m.current.Close()
	m.current, m.redis = nil, nil
	return errClose
}

func (m *Manager) allowRedis(ctx context.Context, key string, cfg SettingsConfig, now time.Time) (Result, error) {
	limiter, errConnect := m.redisFor(ctx, cfg)
	if errConnect != nil {
		return Result{}, errConnect
	}
	return limiter.Allow(ctx, key, cfg.Limit, cfg.Window, now)
}

// redisFor returns a limiter for the configured target, reconnecting when the
// settings point somewhere new.
func (m *Manager) redisFor(ctx context.Context, cfg SettingsConfig) (*RedisLimiter, error) {
	target, errTarget := targetFromSettings(cfg)
	if errTarget != nil {
		return nil, errTarget
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redis != nil && m.target == target {
		return m.redis, nil
	}
	if m.current != nil {
		_ = m.current.Close()
		m.current, m.redis = nil, nil
	}

	client := m.newClient(&redis.Options{Addr: target.addr, Password: target.password, DB: target.db})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if errPing := client.Ping(pingCtx).Err(); errPing != nil {
		_ = client.Close()
		return nil, errPing
	}
	m.current = client
	m.redis = NewRedisLimiter(client, target.prefix)
	m.target = target
	return m.redis, nil
}
