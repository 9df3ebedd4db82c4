package broker

import (
	"context"
	"time"
)

type Message struct {
	Key   string
	Value []byte
	Time  time.Time
}

type Producer interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Close() error
}
