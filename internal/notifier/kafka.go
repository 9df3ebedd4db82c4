package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"hookgate/internal/broker"
	"hookgate/internal/constants"
	"hookgate/pkg/models"
	"hookgate/pkg/retry"
)

// KafkaChannel forwards tasks to downstream consumers as JSON keyed by event id.
type KafkaChannel struct {
	producer broker.Producer
	topic    string
}

func NewKafkaChannel(producer broker.Producer, topic string) *KafkaChannel {
	if topic == "" {
		topic = constants.DefaultKafkaTopic
	}
	return &KafkaChannel{producer: producer, topic: topic}
}

func (c *KafkaChannel) Name() string { return constants.ChannelKafka }

type kafkaNotification struct {
	TaskID    string                 `json:"task_id"`
	EventID   string                 `json:"event_id"`
	Route     string                 `json:"route"`
	Recipient string                 `json:"recipient,omitempty"`
	Template  string                 `json:"template,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Attempt   int                    `json:"attempt"`
}

func (c *KafkaChannel) Deliver(ctx context.Context, task models.NotificationTask) error {
	value, err := json.Marshal(kafkaNotification{
		TaskID:    task.ID,
		EventID:   task.EventID,
		Route:     task.Route,
		Recipient: task.Recipient,
		Template:  task.Template,
		Message:   task.Message,
		Data:      task.Data,
		Attempt:   task.Attempts,
	})
	if err != nil {
		return retry.NewFatalError(fmt.Errorf("kafka: marshal notification: %w", err))
	}

	key := task.EventID
	if key == "" {
		key = task.ID
	}
	err = c.producer.Publish(ctx, c.topic, broker.Message{Key: key, Value: value, Time: task.CreatedAt})
	if err != nil && rejectedByBroker(err) {
		return retry.NewFatalError(err)
	}
	return err
}

// rejectedByBroker reports errors that resending the same message cannot fix: an oversize
// message, or a broker error code kafka-go does not mark temporary.
func rejectedByBroker(err error) bool {
	var tooLarge kafka.MessageTooLargeError
	if errors.As(err, &tooLarge) {
		return true
	}

	var writeErrs kafka.WriteErrors
	if errors.As(err, &writeErrs) {
		rejected := false
		for _, e := range writeErrs {
			if e == nil {
				continue
			}
			if !rejectedByBroker(e) {
				return false
			}
			rejected = true
		}
		return rejected
	}

	var code kafka.Error
	if errors.As(err, &code) {
		return !code.Temporary()
	}
	return false
}
