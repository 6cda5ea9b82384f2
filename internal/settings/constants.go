package settings

// DB config keys and defaults for settings.
const (
	// SiteNameKey is the DB config key for the public site name.
	SiteNameKey = "SITE_NAME"
	// DefaultSiteName is the fallback site name.
	DefaultSiteName = "QWMC"
	// LoginRateLimitKey controls allowed login attempts per client per window.
	LoginRateLimitKey = "LOGIN_RATE_LIMIT"
	// LoginRateWindowSecondsKey controls the login throttling window length.
	LoginRateWindowSecondsKey = "LOGIN_RATE_WINDOW_SECONDS"
	// RateLimitRedisEnabledKey toggles Redis-backed rate limiting.
	RateLimitRedisEnabledKey = "RATE_LIMIT_REDIS_ENABLED"
	// RateLimitRedisAddrKey defines the Redis address for rate limiting.
	RateLimitRedisAddrKey = "RATE_LIMIT_REDIS_ADDR"
	// RateLimitRedisPasswordKey defines the Redis password for rate limiting.
	RateLimitRedisPasswordKey = "RATE_LIMIT_REDIS_PASSWORD"
	// RateLimitRedisDBKey defines the Redis DB index for rate limiting.
	RateLimitRedisDBKey = "RATE_LIMIT_REDIS_DB"
	// RateLimitRedisPrefixKey defines the Redis key prefix for rate limiting.
	RateLimitRedisPrefixKey = "RATE_LIMIT_REDIS_PREFIX"
	// DefaultLoginRateLimit is the fallback attempts per window (0 means unlimited).
	DefaultLoginRateLimit = 10
	// DefaultLoginRateWindowSeconds is the fallback window length.
	DefaultLoginRateWindowSeconds = 60
	// DefaultRateLimitRedisPrefix is the fallback Redis key prefix.
	DefaultRateLimitRedisPrefix = "qwmc:rl"
)
