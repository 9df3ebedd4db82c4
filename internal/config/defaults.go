package config

import (
	"time"

	"hookgate/internal/constants"
)

// ApplyDefaults fills every unset optional field. Secrets and routes are never defaulted.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	w := &cfg.Webhook
	if w.SignatureHeader == "" {
		w.SignatureHeader = constants.DefaultSignatureHeader
	}
	if w.SignatureEncoding == "" {
		w.SignatureEncoding = constants.EncodingHex
	}
	if w.EventIDHeader == "" {
		w.EventIDHeader = constants.DefaultEventIDHeader
	}
	if w.TimestampHeader == "" {
		w.TimestampHeader = constants.DefaultTimestampHeader
	}
	if w.MaxBodyBytes == 0 {
		w.MaxBodyBytes = constants.DefaultMaxBodyBytes
	}

	if cfg.Replay.TTL == 0 {
		cfg.Replay.TTL = constants.DefaultReplayTTL
	}
	if cfg.Replay.HashAlgorithm == "" {
		cfg.Replay.HashAlgorithm = "sha256"
	}

	if cfg.RateLimit.Default.Limit == 0 {
		cfg.RateLimit.Default.Limit = constants.DefaultRateLimit
	}
	if cfg.RateLimit.Default.Window == 0 {
		cfg.RateLimit.Default.Window = constants.DefaultRateLimitWindow
	}

	s := &cfg.Store
	if s.OperationTimeout == 0 {
		s.OperationTimeout = constants.DefaultStoreOperationTimeout
	}
	if s.RecheckInitial == 0 {
		s.RecheckInitial = constants.DefaultStoreRecheckInitial
	}
	if s.RecheckMax == 0 {
		s.RecheckMax = constants.DefaultStoreRecheckMax
	}
	if s.SweepInterval == 0 {
		s.SweepInterval = constants.DefaultMemorySweepInterval
	}

	if cfg.Database.Redis.Host != "" && cfg.Database.Redis.Port == 0 {
		cfg.Database.Redis.Port = 6379
	}
	if cfg.Database.MongoDB.Database == "" {
		cfg.Database.MongoDB.Database = constants.DefaultMongoDBName
	}

	if cfg.Processor.Timeout == 0 {
		cfg.Processor.Timeout = constants.DefaultHTTPTimeout
	}

	n := &cfg.Notifier
	if n.Channel == "" {
		n.Channel = constants.ChannelLog
	}
	if n.Workers == 0 {
		n.Workers = constants.DefaultNotifierWorkers
	}
	if n.QueueSize == 0 {
		n.QueueSize = constants.DefaultNotifierQueueSize
	}
	if n.MaxAttempts == 0 {
		n.MaxAttempts = constants.DefaultNotifierMaxAttempts
	}
	if n.BaseDelay == 0 {
		n.BaseDelay = constants.DefaultNotifierBaseDelay
	}
	if n.MaxDelay == 0 {
		n.MaxDelay = constants.DefaultNotifierMaxDelay
	}
	if n.Multiplier == 0 {
		n.Multiplier = constants.DefaultNotifierMultiplier
	}
	if n.RatePerSecond == 0 {
		n.RatePerSecond = constants.DefaultNotifierRatePerSecond
	}
	if n.Burst == 0 {
		n.Burst = 1
	}
	if n.AttemptTimeout == 0 {
		n.AttemptTimeout = constants.DefaultNotifierAttemptTimeout
	}
	if n.DrainTimeout == 0 {
		n.DrainTimeout = constants.DefaultNotifierDrainTimeout
	}
	if n.Telegram.APIURL == "" {
		n.Telegram.APIURL = constants.DefaultTelegramAPIURL
	}
	if n.Kafka.Topic == "" {
		n.Kafka.Topic = constants.DefaultKafkaTopic
	}
	if n.DeadLetter.Collection == "" {
		n.DeadLetter.Collection = constants.DefaultDeadLetterColl
	}

	cb := &cfg.CircuitBreaker
	if cb.MaxRequests == 0 {
		cb.MaxRequests = 3
	}
	if cb.Interval == 0 {
		cb.Interval = time.Minute
	}
	if cb.Timeout == 0 {
		cb.Timeout = 30 * time.Second
	}
	if cb.FailureRatio == 0 {
		cb.FailureRatio = 0.5
	}
	if cb.MinRequests == 0 {
		cb.MinRequests = 5
	}

	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = constants.ServiceName
	}
}
