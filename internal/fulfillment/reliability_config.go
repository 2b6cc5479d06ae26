package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ReliabilityConfig controls the command gateway's reliability wrapping.
type ReliabilityConfig struct {
	CommandTimeout      time.Duration
	RetryMaxAttempts    int
	RetryBaseDelay      time.Duration
	RetryMaxDelay       time.Duration
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration
	RateLimitInterval   time.Duration
	RateLimitBurst      int
}

// LoadReliabilityConfig reads gateway reliability settings from env.
func LoadReliabilityConfig() (ReliabilityConfig, error) {
	cfg := ReliabilityConfig{}
	var err error

	if cfg.CommandTimeout, err = parseRequiredDuration("SAGA_COMMAND_TIMEOUT"); err != nil {
		return cfg, err
	}
	if cfg.RetryMaxAttempts, err = parseRequiredInt("SAGA_RETRY_MAX_ATTEMPTS"); err != nil {
		return cfg, err
	}
	if cfg.RetryBaseDelay, err = parseRequiredDuration("SAGA_RETRY_BASE_DELAY"); err != nil {
		return cfg, err
	}
	if cfg.RetryMaxDelay, err = parseRequiredDuration("SAGA_RETRY_MAX_DELAY"); err != nil {
		return cfg, err
	}
	if cfg.BreakerMaxFailures, err = parseRequiredInt("SAGA_BREAKER_MAX_FAILURES"); err != nil {
		return cfg, err
	}
	if cfg.BreakerResetTimeout, err = parseRequiredDuration("SAGA_BREAKER_RESET_TIMEOUT"); err != nil {
		return cfg, err
	}
	if cfg.RateLimitInterval, err = parseRequiredDuration("SAGA_RATE_LIMIT_INTERVAL"); err != nil {
		return cfg, err
	}
	if cfg.RateLimitBurst, err = parseRequiredInt("SAGA_RATE_LIMIT_BURST"); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// BuildGateway wraps the base gateway per the config. onWait, if non-nil,
// observes rate-limiter wait time.
func (cfg ReliabilityConfig) BuildGateway(base CommandGateway, onWait func(time.Duration)) *ReliableCommandGateway {
	var limiter *RateLimiter
	if cfg.RateLimitInterval > 0 && cfg.RateLimitBurst > 0 {
		limiter = NewRateLimiter(cfg.RateLimitInterval, cfg.RateLimitBurst, onWait)
	}
	breaker := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  cfg.BreakerMaxFailures,
		ResetTimeout: cfg.BreakerResetTimeout,
	})
	retry := RetryPolicy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		// A timed-out attempt is retried; the per-attempt deadline is
		// the gateway's own, and Do stops on parent cancellation.
		ShouldRetry: func(err error) bool {
			return !errors.Is(err, ErrCircuitOpen) && !errors.Is(err, context.Canceled)
		},
	}
	return NewReliableCommandGateway(base, cfg.CommandTimeout, limiter, breaker, retry)
}

func parseRequiredDuration(name string) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return 0, errors.New(name + " must be >= 0")
	}
	return val, nil
}

func parseRequiredInt(name string) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return 0, errors.New(name + " must be >= 0")
	}
	return val, nil
}
