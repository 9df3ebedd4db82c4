package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hookgate/internal/constants"
)

const minimalYAML = `
webhook:
  secret: s3cr3t
  routes:
    payment:
      accept_if: 'payload.status == "succeeded"'
      rate_limit:
        limit: 10
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func validConfig() *Config {
	cfg := &Config{
		Webhook: WebhookConfig{
			Secret: "s3cr3t",
			Routes: map[string]RouteConfig{"payment": {}},
		},
	}
	ApplyDefaults(cfg)
	cfg.Notifier.Jitter = constants.DefaultNotifierJitter
	return cfg
}

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, constants.EncodingHex, cfg.Webhook.SignatureEncoding)
	assert.Equal(t, constants.DefaultSignatureHeader, cfg.Webhook.SignatureHeader)
	assert.Equal(t, constants.DefaultTimestampTolerance, cfg.Webhook.TimestampTolerance)
	assert.Equal(t, constants.DefaultReplayTTL, cfg.Replay.TTL)
	assert.Equal(t, "sha256", cfg.Replay.HashAlgorithm)
	assert.Equal(t, constants.ChannelLog, cfg.Notifier.Channel)
	assert.Equal(t, constants.DefaultNotifierJitter, cfg.Notifier.Jitter)
	assert.False(t, cfg.Database.RedisEnabled())
	assert.False(t, cfg.Database.MongoEnabled())
}

func TestLoadConfig_ReplayAndTimestampSafetyFlags(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalYAML))
	require.NoError(t, err)
	assert.False(t, cfg.Webhook.SignedTimestamp)
	assert.False(t, cfg.Replay.ReleaseOnTransientFailure)

	cfg, err = LoadConfig(writeConfig(t, minimalYAML+`
  signed_timestamp: true
replay:
  release_on_transient_failure: true
`))
	require.NoError(t, err)
	assert.True(t, cfg.Webhook.SignedTimestamp)
	assert.True(t, cfg.Replay.ReleaseOnTransientFailure)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("WEBHOOK_SECRET", "from-env")
	t.Setenv("NOTIFIER_CHANNEL", "kafka")
	t.Setenv("BROKER_KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")

	cfg, err := LoadConfig(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Webhook.Secret)
	assert.Equal(t, constants.ChannelKafka, cfg.Notifier.Channel)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Broker.Kafka.Brokers)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadConfig_RejectsMissingSecret(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `
webhook:
  routes:
    payment: {}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook.secret")
}

func TestPolicy_RouteOverridesDefault(t *testing.T) {
	cfg := validConfig()
	cfg.Webhook.Routes["payment"] = RouteConfig{RateLimit: PolicyConfig{Limit: 5}}

	p := cfg.Policy("payment")
	assert.Equal(t, 5, p.Limit)
	assert.Equal(t, constants.DefaultRateLimitWindow, p.Window)

	assert.Equal(t, cfg.RateLimit.Default, cfg.Policy("unknown"))
}

func TestValidateStatic(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "bad encoding",
			mutate:  func(c *Config) { c.Webhook.SignatureEncoding = "base32" },
			wantErr: "webhook.signature_encoding",
		},
		{
			name: "bad accept_if",
			mutate: func(c *Config) {
				c.Webhook.Routes["payment"] = RouteConfig{AcceptIf: "payload.status =="}
			},
			wantErr: "webhook.routes.payment.accept_if",
		},
		{
			name:    "no routes",
			mutate:  func(c *Config) { c.Webhook.Routes = nil },
			wantErr: "webhook.routes",
		},
		{
			name:    "unknown hash",
			mutate:  func(c *Config) { c.Replay.HashAlgorithm = "crc32" },
			wantErr: "replay.hash_algorithm",
		},
		{
			name:    "telegram without token",
			mutate:  func(c *Config) { c.Notifier.Channel = constants.ChannelTelegram },
			wantErr: "notifier.telegram.bot_token",
		},
		{
			name:    "kafka without brokers",
			mutate:  func(c *Config) { c.Notifier.Channel = constants.ChannelKafka },
			wantErr: "broker.kafka.brokers",
		},
		{
			name:    "mongo dead letters without uri",
			mutate:  func(c *Config) { c.Notifier.DeadLetter.Mongo = true },
			wantErr: "notifier.dead_letter.mongo",
		},
		{
			name:    "jitter out of range",
			mutate:  func(c *Config) { c.Notifier.Jitter = 1 },
			wantErr: "notifier.jitter",
		},
		{
			name:    "recheck max below initial",
			mutate:  func(c *Config) { c.Store.RecheckMax = time.Millisecond },
			wantErr: "store.recheck_max",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := ValidateStatic(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateStatic_JoinsAllViolations(t *testing.T) {
	cfg := validConfig()
	cfg.Webhook.Secret = ""
	cfg.Replay.TTL = -time.Second

	err := ValidateStatic(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook.secret")
	assert.Contains(t, err.Error(), "replay.ttl")
}
