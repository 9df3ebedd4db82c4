package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"hookgate/internal/config"
	"hookgate/internal/constants"
	"hookgate/internal/logger"
	"hookgate/pkg/metrics"
	"hookgate/pkg/tracing"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaProducer struct {
	writer messageWriter
	logger logger.Logger
}

func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           constants.KafkaBatchTimeout,
		WriteTimeout:           constants.KafkaWriteTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		Async:                  false,
	}
	return &KafkaProducer{writer: w, logger: log}
}

func (p *KafkaProducer) Publish(ctx context.Context, topic string, msg Message) error {
	headers := tracing.InjectTraceContext(ctx, []kafka.Header{})

	ts := msg.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	start := time.Now()
	err := p.writer.WriteMessages(ctx,
		kafka.Message{
			Topic:   topic,
			Key:     []byte(msg.Key),
			Value:   msg.Value,
			Headers: headers,
			Time:    ts,
		},
	)
	metrics.ObserveKafkaWriteDuration(constants.ServiceName, topic, time.Since(start))
	if err != nil {
		p.logger.WarnwCtx(ctx, "Kafka write failed",
			"topic", topic,
			"key", msg.Key,
			"error", err,
		)
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	metrics.IncKafkaMessagesWritten(constants.ServiceName, topic)
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
