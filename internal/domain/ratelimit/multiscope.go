package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// ScopeConfig configures one (minute, hour) pair of buckets for a scope.
type ScopeConfig struct {
	RequestsPerMinute int
	RequestsPerHour   int
}

func (c ScopeConfig) minuteConfig() RateLimitConfig {
	return RateLimitConfig{Rate: c.RequestsPerMinute, Burst: c.RequestsPerMinute, Period: time.Minute}
}

func (c ScopeConfig) hourConfig() RateLimitConfig {
	return RateLimitConfig{Rate: c.RequestsPerHour, Burst: c.RequestsPerHour, Period: time.Hour}
}

// MultiScopeConfig holds the three scopes spec §4.7 defines.
type MultiScopeConfig struct {
	Enabled   bool
	Global    ScopeConfig
	PerClient ScopeConfig
	// PerMethod maps a method name to its scope config. Methods absent
	// from this map are not subject to per-method limiting.
	PerMethod map[string]ScopeConfig
}

// MultiScopeLimiter consults six ordered buckets per check: global/minute,
// global/hour, client/minute, client/hour, method/minute, method/hour. Any
// bucket returning exhausted short-circuits to Throttled; buckets that
// already succeeded are not rolled back.
type MultiScopeLimiter struct {
	engine RateLimiter
	cfg    MultiScopeConfig
}

// NewMultiScopeLimiter constructs a MultiScopeLimiter backed by engine.
func NewMultiScopeLimiter(engine RateLimiter, cfg MultiScopeConfig) *MultiScopeLimiter {
	return &MultiScopeLimiter{engine: engine, cfg: cfg}
}

// Check consults every applicable bucket for connectionID and (optionally)
// method, in the fixed order spec §4.7 requires.
func (m *MultiScopeLimiter) Check(ctx context.Context, connectionID, method string) (Decision, error) {
	if !m.cfg.Enabled {
		return Ok, nil
	}

	checks := []struct {
		key string
		cfg RateLimitConfig
	}{
		{"global:minute", m.cfg.Global.minuteConfig()},
		{"global:hour", m.cfg.Global.hourConfig()},
		{fmt.Sprintf("client:%s:minute", connectionID), m.cfg.PerClient.minuteConfig()},
		{fmt.Sprintf("client:%s:hour", connectionID), m.cfg.PerClient.hourConfig()},
	}

	if method != "" {
		if methodCfg, ok := m.cfg.PerMethod[method]; ok {
			checks = append(checks,
				struct {
					key string
					cfg RateLimitConfig
				}{fmt.Sprintf("method:%s:%s:minute", connectionID, method), methodCfg.minuteConfig()},
				struct {
					key string
					cfg RateLimitConfig
				}{fmt.Sprintf("method:%s:%s:hour", connectionID, method), methodCfg.hourConfig()},
			)
		}
	}

	for _, c := range checks {
		if c.cfg.Rate <= 0 {
			// A scope with no configured rate is not enforced.
			continue
		}
		result, err := m.engine.Allow(ctx, c.key, c.cfg)
		if err != nil {
			return Throttled, err
		}
		if !result.Allowed {
			return Throttled, nil
		}
	}

	return Ok, nil
}
