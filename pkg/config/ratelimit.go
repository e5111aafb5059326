package config

import "time"

// RateLimitConfig contains refresh endpoint rate limiting settings,
// keyed by client IP
type RateLimitConfig struct {
	Window      string `env:"RATELIMIT_WINDOW" env-default:"15m"`
	MaxRequests int    `env:"RATELIMIT_MAX_REQUESTS" env-default:"30"`

	// RedisAddr enables the shared Redis counter store. Leave empty for a
	// single-node in-memory window.
	RedisAddr     string `env:"RATELIMIT_REDIS_ADDR" env-default:""`
	RedisPassword string `env:"RATELIMIT_REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"RATELIMIT_REDIS_DB" env-default:"0"`
}

// ParseWindow parses the rate-limit window duration
func (r RateLimitConfig) ParseWindow() (time.Duration, error) {
	return ParseDuration(r.Window)
}
