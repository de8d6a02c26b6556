package authapi

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries the HTTP-facing auth knobs.
type Config struct {
	// MaxBodyBytes caps request bodies on auth endpoints.
	MaxBodyBytes int64

	// Login throttling: sustained attempts per minute and burst, applied per
	// login identifier.
	LoginRatePerMinute int
	LoginBurst         int

	// LoginThrottleIdle controls how long an idle identifier entry survives
	// before pruning.
	LoginThrottleIdle time.Duration
}

// DefaultConfig returns safe auth API defaults.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:       64 << 10, // 64 KiB
		LoginRatePerMinute: 10,
		LoginBurst:         5,
		LoginThrottleIdle:  15 * time.Minute,
	}
}

// LoadConfigFromEnv reads overrides from RIPPLE_AUTH_* variables, keeping
// defaults for anything unset or unparsable.
func LoadConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.MaxBodyBytes = envInt64("RIPPLE_AUTH_MAX_BODY_BYTES", cfg.MaxBodyBytes)
	cfg.LoginRatePerMinute = envInt("RIPPLE_AUTH_LOGIN_RATE_PER_MINUTE", cfg.LoginRatePerMinute)
	cfg.LoginBurst = envInt("RIPPLE_AUTH_LOGIN_BURST", cfg.LoginBurst)
	cfg.LoginThrottleIdle = envDuration("RIPPLE_AUTH_LOGIN_THROTTLE_IDLE", cfg.LoginThrottleIdle)
	return cfg
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
