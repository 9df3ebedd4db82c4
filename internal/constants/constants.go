package constants

import "time"

const (
	ServiceName = "hookgate"
)

const (
	KeyPrefixReplay    = "replay:"
	KeyPrefixRateLimit = "ratelimit:"
)

const (
	DefaultReplayTTL          = 24 * time.Hour
	DefaultTimestampTolerance = 5 * time.Minute
	DefaultMaxBodyBytes       = 1 << 20
)

const (
	DefaultStoreOperationTimeout = 250 * time.Millisecond
	DefaultStoreRecheckInitial   = 1 * time.Second
	DefaultStoreRecheckMax       = 30 * time.Second
	DefaultMemorySweepInterval   = 30 * time.Second
	HealthCheckTimeout           = 5 * time.Second
)

const (
	DefaultRateLimit       = 60
	DefaultRateLimitWindow = time.Minute
)

const (
	DefaultNotifierWorkers        = 4
	DefaultNotifierQueueSize      = 256
	DefaultNotifierMaxAttempts    = 5
	DefaultNotifierBaseDelay      = 1 * time.Second
	DefaultNotifierMaxDelay       = 1 * time.Minute
	DefaultNotifierMultiplier     = 2.0
	DefaultNotifierJitter         = 0.2
	DefaultNotifierRatePerSecond  = 25
	DefaultNotifierAttemptTimeout = 10 * time.Second
	DefaultNotifierDrainTimeout   = 5 * time.Second
)

const (
	DefaultHTTPTimeout     = 10 * time.Second
	DefaultTelegramAPIURL  = "https://api.telegram.org"
	DefaultDeadLetterColl  = "notification_dead_letters"
	DefaultMongoDBName     = "hookgate"
	DefaultKafkaTopic      = "payment_notifications"
	KafkaBatchTimeout      = 10 * time.Millisecond
	KafkaWriteTimeout      = 10 * time.Second
	ShutdownTimeout        = 10 * time.Second
	DefaultSignatureHeader = "X-Signature"
	DefaultEventIDHeader   = "X-Event-Id"
	DefaultTimestampHeader = "X-Timestamp"
	RequestIDHeader        = "X-Request-ID"
)

const (
	ChannelTelegram = "telegram"
	ChannelKafka    = "kafka"
	ChannelLog      = "log"
)

const (
	EncodingHex    = "hex"
	EncodingBase64 = "base64"
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)
