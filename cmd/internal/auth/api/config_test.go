package authapi

import (
	"testing"
	"time"
)

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("RIPPLE_AUTH_MAX_BODY_BYTES", "1024")
	t.Setenv("RIPPLE_AUTH_LOGIN_RATE_PER_MINUTE", "3")
	t.Setenv("RIPPLE_AUTH_LOGIN_BURST", "2")
	t.Setenv("RIPPLE_AUTH_LOGIN_THROTTLE_IDLE", "5m")

	cfg := LoadConfigFromEnv()
	if cfg.MaxBodyBytes != 1024 {
		t.Fatalf("MaxBodyBytes = %d, want 1024", cfg.MaxBodyBytes)
	}
	if cfg.LoginRatePerMinute != 3 {
		t.Fatalf("LoginRatePerMinute = %d, want 3", cfg.LoginRatePerMinute)
	}
	if cfg.LoginBurst != 2 {
		t.Fatalf("LoginBurst = %d, want 2", cfg.LoginBurst)
	}
	if cfg.LoginThrottleIdle != 5*time.Minute {
		t.Fatalf("LoginThrottleIdle = %v, want 5m", cfg.LoginThrottleIdle)
	}
}

func TestLoadConfigFromEnv_KeepsDefaultsOnBadValues(t *testing.T) {
	t.Setenv("RIPPLE_AUTH_LOGIN_THROTTLE_IDLE", "soon")
	t.Setenv("RIPPLE_AUTH_LOGIN_BURST", "-1")

	def := DefaultConfig()
	cfg := LoadConfigFromEnv()
	if cfg.LoginThrottleIdle != def.LoginThrottleIdle {
		t.Fatalf("LoginThrottleIdle = %v, want default %v", cfg.LoginThrottleIdle, def.LoginThrottleIdle)
	}
	if cfg.LoginBurst != def.LoginBurst {
		t.Fatalf("LoginBurst = %d, want default %d", cfg.LoginBurst, def.LoginBurst)
	}
}
