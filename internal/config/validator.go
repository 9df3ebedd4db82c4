package config

import (
	"errors"
	"fmt"
	"strings"

	"hookgate/internal/constants"
	"hookgate/pkg/cel"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidateStatic checks a fully defaulted config. All violations are joined into one error.
func ValidateStatic(cfg *Config) error {
	var errs []error

	if err := validateServer(cfg.Server); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, validateWebhook(cfg.Webhook)...)
	errs = append(errs, validatePolicy("rate_limit.default", cfg.RateLimit.Default)...)
	if err := validateReplay(cfg.Replay); err != nil {
		errs = append(errs, err)
	}
	if err := validateStore(cfg.Store); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, validateNotifier(cfg.Notifier, cfg)...)
	if err := validateCircuitBreaker(cfg.CircuitBreaker); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeout <= 0 {
		return &ValidationError{Field: "server.read_timeout", Message: "read timeout must be positive"}
	}

	if cfg.WriteTimeout <= 0 {
		return &ValidationError{Field: "server.write_timeout", Message: "write timeout must be positive"}
	}

	return nil
}

func validateWebhook(cfg WebhookConfig) []error {
	var errs []error

	if strings.TrimSpace(cfg.Secret) == "" {
		errs = append(errs, &ValidationError{
			Field:   "webhook.secret",
			Message: "shared secret is required (set WEBHOOK_SECRET)",
		})
	}

	switch cfg.SignatureEncoding {
	case constants.EncodingHex, constants.EncodingBase64:
	default:
		errs = append(errs, &ValidationError{
			Field:   "webhook.signature_encoding",
			Message: fmt.Sprintf("unknown encoding: %s (supported: hex, base64)", cfg.SignatureEncoding),
		})
	}

	if cfg.TimestampTolerance < 0 {
		errs = append(errs, &ValidationError{Field: "webhook.timestamp_tolerance", Message: "must be non-negative"})
	}

	if cfg.MaxBodyBytes <= 0 {
		errs = append(errs, &ValidationError{Field: "webhook.max_body_bytes", Message: "must be positive"})
	}

	if len(cfg.Routes) == 0 {
		errs = append(errs, &ValidationError{Field: "webhook.routes", Message: "at least one route is required"})
	}

	for name, route := range cfg.Routes {
		field := "webhook.routes." + name
		if route.RateLimit.Limit < 0 || route.RateLimit.Window < 0 {
			errs = append(errs, &ValidationError{Field: field + ".rate_limit", Message: "limit and window must be non-negative"})
		}
		if route.AcceptIf != "" {
			if err := cel.ValidateFilterExpression(route.AcceptIf); err != nil {
				errs = append(errs, &ValidationError{Field: field + ".accept_if", Message: err.Error()})
			}
		}
	}

	return errs
}

func validatePolicy(field string, p PolicyConfig) []error {
	var errs []error
	if p.Limit <= 0 {
		errs = append(errs, &ValidationError{Field: field + ".limit", Message: "limit must be positive"})
	}
	if p.Window <= 0 {
		errs = append(errs, &ValidationError{Field: field + ".window", Message: "window must be positive"})
	}
	return errs
}

func validateReplay(cfg ReplayConfig) error {
	if cfg.TTL <= 0 {
		return &ValidationError{Field: "replay.ttl", Message: "ttl must be positive"}
	}

	switch cfg.HashAlgorithm {
	case "sha256", "sha1", "md5":
	default:
		return &ValidationError{
			Field:   "replay.hash_algorithm",
			Message: fmt.Sprintf("unknown hash algorithm: %s (supported: sha256, sha1, md5)", cfg.HashAlgorithm),
		}
	}

	return nil
}

func validateStore(cfg StoreConfig) error {
	if cfg.OperationTimeout <= 0 {
		return &ValidationError{Field: "store.operation_timeout", Message: "must be positive"}
	}
	if cfg.RecheckInitial <= 0 || cfg.RecheckMax < cfg.RecheckInitial {
		return &ValidationError{Field: "store.recheck_max", Message: "recheck_max must be >= recheck_initial > 0"}
	}
	if cfg.SweepInterval <= 0 {
		return &ValidationError{Field: "store.sweep_interval", Message: "must be positive"}
	}
	return nil
}

func validateNotifier(cfg NotifierConfig, root *Config) []error {
	var errs []error

	switch cfg.Channel {
	case constants.ChannelLog:
	case constants.ChannelTelegram:
		if cfg.Telegram.BotToken == "" {
			errs = append(errs, &ValidationError{
				Field:   "notifier.telegram.bot_token",
				Message: "bot token is required for the telegram channel",
			})
		}
	case constants.ChannelKafka:
		if len(root.Broker.Kafka.Brokers) == 0 {
			errs = append(errs, &ValidationError{
				Field:   "broker.kafka.brokers",
				Message: "at least one Kafka broker is required for the kafka channel",
			})
		}
		for i, broker := range root.Broker.Kafka.Brokers {
			if broker == "" {
				errs = append(errs, &ValidationError{
					Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
					Message: "broker address cannot be empty",
				})
			}
		}
	default:
		errs = append(errs, &ValidationError{
			Field:   "notifier.channel",
			Message: fmt.Sprintf("unknown channel: %s (supported: telegram, kafka, log)", cfg.Channel),
		})
	}

	if cfg.Workers < 1 {
		errs = append(errs, &ValidationError{Field: "notifier.workers", Message: "at least one worker is required"})
	}
	if cfg.QueueSize < 1 {
		errs = append(errs, &ValidationError{Field: "notifier.queue_size", Message: "queue size must be positive"})
	}
	if cfg.MaxAttempts < 1 {
		errs = append(errs, &ValidationError{Field: "notifier.max_attempts", Message: "max attempts must be positive"})
	}
	if cfg.BaseDelay <= 0 || cfg.MaxDelay < cfg.BaseDelay {
		errs = append(errs, &ValidationError{Field: "notifier.max_delay", Message: "max_delay must be >= base_delay > 0"})
	}
	if cfg.Multiplier < 1 {
		errs = append(errs, &ValidationError{Field: "notifier.multiplier", Message: "multiplier must be >= 1"})
	}
	if cfg.Jitter < 0 || cfg.Jitter >= 1 {
		errs = append(errs, &ValidationError{Field: "notifier.jitter", Message: "jitter must be in [0, 1)"})
	}
	if cfg.RatePerSecond <= 0 {
		errs = append(errs, &ValidationError{Field: "notifier.rate_per_second", Message: "must be positive"})
	}
	if cfg.DeadLetter.Mongo && !root.Database.MongoEnabled() {
		errs = append(errs, &ValidationError{
			Field:   "notifier.dead_letter.mongo",
			Message: "database.mongodb.uri is required for the mongo dead letter sink",
		})
	}

	return errs
}

func validateCircuitBreaker(cfg CircuitBreakerConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.FailureRatio <= 0 || cfg.FailureRatio > 1 {
		return &ValidationError{Field: "circuit_breaker.failure_ratio", Message: "must be in (0, 1]"}
	}
	return nil
}
