package notifier

import (
	"hookgate/internal/config"
	"hookgate/internal/constants"
	"hookgate/pkg/circuitbreaker"
	"hookgate/pkg/retry"
)

// OptionsFromConfig maps the notifier section onto Options. The breaker is attached when enabled.
func OptionsFromConfig(cfg config.NotifierConfig, cb config.CircuitBreakerConfig) Options {
	opts := Options{
		Workers:     cfg.Workers,
		QueueSize:   cfg.QueueSize,
		MaxAttempts: cfg.MaxAttempts,
		Backoff: retry.Backoff{
			Base:       cfg.BaseDelay,
			Max:        cfg.MaxDelay,
			Multiplier: cfg.Multiplier,
			Jitter:     cfg.Jitter,
		},
		RatePerSecond:  cfg.RatePerSecond,
		Burst:          cfg.Burst,
		AttemptTimeout: cfg.AttemptTimeout,
		DrainTimeout:   cfg.DrainTimeout,
	}

	if cb.Enabled {
		breaker := circuitbreaker.DefaultConfig(constants.ServiceName + "-notifier-" + cfg.Channel)
		if cb.MaxRequests > 0 {
			breaker.MaxRequests = cb.MaxRequests
		}
		if cb.Interval > 0 {
			breaker.Interval = cb.Interval
		}
		if cb.Timeout > 0 {
			breaker.Timeout = cb.Timeout
		}
		if cb.FailureRatio > 0 {
			minRequests := cb.MinRequests
			if minRequests == 0 {
				minRequests = 5
			}
			breaker.ReadyToTrip = circuitbreaker.FailureRatioTrip(minRequests, cb.FailureRatio)
		}
		opts.Breaker = &breaker
	}

	return opts
}
