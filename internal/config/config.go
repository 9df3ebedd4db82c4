package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Webhook        WebhookConfig        `mapstructure:"webhook"`
	Replay         ReplayConfig         `mapstructure:"replay"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	Store          StoreConfig          `mapstructure:"store"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Broker         BrokerConfig         `mapstructure:"broker"`
	Processor      ProcessorConfig      `mapstructure:"processor"`
	Notifier       NotifierConfig       `mapstructure:"notifier"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	TrustedProxies []string      `mapstructure:"trusted_proxies"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type WebhookConfig struct {
	// Secret is the shared HMAC key. Required.
	Secret             string                 `mapstructure:"secret"`
	SignatureHeader    string                 `mapstructure:"signature_header"`
	SignatureEncoding  string                 `mapstructure:"signature_encoding"`
	EventIDHeader      string                 `mapstructure:"event_id_header"`
	TimestampHeader    string                 `mapstructure:"timestamp_header"`
	TimestampTolerance time.Duration          `mapstructure:"timestamp_tolerance"`
	MaxBodyBytes       int64                  `mapstructure:"max_body_bytes"`
	Routes             map[string]RouteConfig `mapstructure:"routes"`

	// SignedTimestamp puts the timestamp header into the MAC input ("<timestamp>.<body>").
	// Without it the tolerance check does not stop a captured body replayed with a new timestamp.
	SignedTimestamp bool `mapstructure:"signed_timestamp"`
}

type RouteConfig struct {
	RateLimit    PolicyConfig            `mapstructure:"rate_limit"`
	AcceptIf     string                  `mapstructure:"accept_if"`
	Notification RouteNotificationConfig `mapstructure:"notification"`
}

type RouteNotificationConfig struct {
	Disabled  bool   `mapstructure:"disabled"`
	Template  string `mapstructure:"template"`
	Recipient string `mapstructure:"recipient"`

	// RecipientField is a dotted payload path, e.g. "metadata.chat_id", tried before Recipient.
	RecipientField string `mapstructure:"recipient_field"`
}

type PolicyConfig struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

type ReplayConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	HashAlgorithm string        `mapstructure:"hash_algorithm"`

	// ReleaseOnTransientFailure deletes the replay record when processing fails transiently.
	// When false, the provider's retry of that event is answered "duplicate" until TTL expires,
	// so the event is never processed.
	ReleaseOnTransientFailure bool `mapstructure:"release_on_transient_failure"`
}

type RateLimitConfig struct {
	Default         PolicyConfig `mapstructure:"default"`
	ClientKeyHeader string       `mapstructure:"client_key_header"`
}

type StoreConfig struct {
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	RecheckInitial   time.Duration `mapstructure:"recheck_initial"`
	RecheckMax       time.Duration `mapstructure:"recheck_max"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
}

type DatabaseConfig struct {
	Redis   RedisConfig   `mapstructure:"redis"`
	MongoDB MongoDBConfig `mapstructure:"mongodb"`
}

// RedisConfig with an empty Host runs the gateway on the in-memory backend only.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type BrokerConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

type ProcessorConfig struct {
	// URL of the order service. Empty accepts every event locally.
	URL     string            `mapstructure:"url"`
	Timeout time.Duration     `mapstructure:"timeout"`
	Headers map[string]string `mapstructure:"headers"`
}

type NotifierConfig struct {
	Channel          string           `mapstructure:"channel"`
	Workers          int              `mapstructure:"workers"`
	QueueSize        int              `mapstructure:"queue_size"`
	MaxAttempts      int              `mapstructure:"max_attempts"`
	BaseDelay        time.Duration    `mapstructure:"base_delay"`
	MaxDelay         time.Duration    `mapstructure:"max_delay"`
	Multiplier       float64          `mapstructure:"multiplier"`
	Jitter           float64          `mapstructure:"jitter"`
	RatePerSecond    float64          `mapstructure:"rate_per_second"`
	Burst            int              `mapstructure:"burst"`
	AttemptTimeout   time.Duration    `mapstructure:"attempt_timeout"`
	DrainTimeout     time.Duration    `mapstructure:"drain_timeout"`
	DefaultRecipient string           `mapstructure:"default_recipient"`
	Telegram         TelegramConfig   `mapstructure:"telegram"`
	Kafka            NotifierKafka    `mapstructure:"kafka"`
	DeadLetter       DeadLetterConfig `mapstructure:"dead_letter"`
}

type TelegramConfig struct {
	APIURL   string `mapstructure:"api_url"`
	BotToken string `mapstructure:"bot_token"`
}

type NotifierKafka struct {
	Topic string `mapstructure:"topic"`
}

type DeadLetterConfig struct {
	Mongo      bool   `mapstructure:"mongo"`
	Collection string `mapstructure:"collection"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

// Policy returns the effective rate limit policy for route.
func (c *Config) Policy(route string) PolicyConfig {
	p := c.RateLimit.Default
	if r, ok := c.Webhook.Routes[route]; ok {
		if r.RateLimit.Limit > 0 {
			p.Limit = r.RateLimit.Limit
		}
		if r.RateLimit.Window > 0 {
			p.Window = r.RateLimit.Window
		}
	}
	return p
}

func (c DatabaseConfig) RedisEnabled() bool {
	return c.Redis.Host != ""
}

func (c DatabaseConfig) MongoEnabled() bool {
	return c.MongoDB.URI != ""
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
