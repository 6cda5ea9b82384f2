package ratelimit

import (
	"strings"
	"time"

	internalsettings "github.com/qwmc/qwmc-web/internal/settings"
)

// SettingsConfig captures login throttling settings stored in DB config.
type SettingsConfig struct {
	Limit         int
	Window        time.Duration
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// LoadSettingsConfig loads the current rate limit settings snapshot.
func LoadSettingsConfig() SettingsConfig {
	cfg := SettingsConfig{
		Limit:       internalsettings.DefaultLoginRateLimit,
		Window:      time.Duration(internalsettings.DefaultLoginRateWindowSeconds) * time.Second,
		RedisPrefix: internalsettings.DefaultRateLimitRedisPrefix,
	}

	if raw, ok := internalsettings.DBConfigValue(internalsettings.LoginRateLimitKey); ok {
		if limit, okParse := internalsettings.ParseNonNegativeInt(raw); okParse {
			cfg.Limit = limit
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.LoginRateWindowSecondsKey); ok {
		if seconds, okParse := internalsettings.ParsePositiveInt(raw); okParse {
			cfg.Window = time.Duration(seconds) * time.Second
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.RateLimitRedisEnabledKey); ok {
		if enabled, okParse := internalsettings.ParseBool(raw); okParse {
			cfg.RedisEnabled = enabled
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.RateLimitRedisAddrKey); ok {
		if addr, okParse := internalsettings.ParseString(raw); okParse {
			cfg.RedisAddr = addr
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.RateLimitRedisPasswordKey); ok {
		if password, okParse := internalsettings.ParseString(raw); okParse {
			cfg.RedisPassword = password
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.RateLimitRedisDBKey); ok {
		if db, okParse := internalsettings.ParseNonNegativeInt(raw); okParse {
			cfg.RedisDB = db
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.RateLimitRedisPrefixKey); ok {
		if prefix, okParse := internalsettings.ParseString(raw); okParse {
			cfg.RedisPrefix = prefix
		}
	}
	cfg.RedisAddr = strings.TrimSpace(cfg.RedisAddr)
	cfg.RedisPassword = strings.TrimSpace(cfg.RedisPassword)
	cfg.RedisPrefix = strings.TrimSpace(cfg.RedisPrefix)
	if cfg.RedisPrefix == "" {
		cfg.RedisPrefix = internalsettings.DefaultRateLimitRedisPrefix
	}
	if cfg.Window < time.Second {
		cfg.Window = time.Duration(internalsettings.DefaultLoginRateWindowSeconds) * time.Second
	}
	return cfg
}
