package notifier

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"hookgate/internal/logger"
	"hookgate/pkg/metrics"
	"hookgate/pkg/models"
	"hookgate/pkg/retry"
)

// Sink receives tasks that reached the abandoned state.
type Sink interface {
	Report(ctx context.Context, task models.NotificationTask, reason string) error
}

type LogSink struct {
	logger logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{logger: log}
}

func (s *LogSink) Report(ctx context.Context, task models.NotificationTask, reason string) error {
	s.logger.ErrorwCtx(ctx, "Abandoned notification",
		"task_id", task.ID,
		"event_id", task.EventID,
		"route", task.Route,
		"recipient", task.Recipient,
		"attempts", task.Attempts,
		"reason", reason,
		"last_error", task.LastError,
	)
	metrics.DeadLettersTotal.WithLabelValues("log", "ok").Inc()
	return nil
}

// MultiSink reports to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Report(ctx context.Context, task models.NotificationTask, reason string) error {
	var errs []error
	for _, s := range m {
		if err := s.Report(ctx, task, reason); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type deadLetter struct {
	models.NotificationTask `bson:",inline"`
	Reason                  string    `bson:"reason"`
	AbandonedAt             time.Time `bson:"abandoned_at"`
}

type insertCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// MongoSink stores abandoned tasks in a collection so they can be inspected and replayed by hand.
type MongoSink struct {
	collection insertCollection
	policy     retry.Policy
}

func NewMongoSink(db *mongo.Database, collection string) *MongoSink {
	return &MongoSink{
		collection: db.Collection(collection),
		policy:     retry.DefaultPolicy(),
	}
}

func (s *MongoSink) Report(ctx context.Context, task models.NotificationTask, reason string) error {
	doc := deadLetter{
		NotificationTask: task,
		Reason:           reason,
		AbandonedAt:      time.Now().UTC(),
	}

	err := retry.Retry(ctx, s.policy, func() error {
		_, err := s.collection.InsertOne(ctx, doc)
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return err
	})
	if err != nil {
		metrics.DeadLettersTotal.WithLabelValues("mongodb", "error").Inc()
		return err
	}
	metrics.DeadLettersTotal.WithLabelValues("mongodb", "ok").Inc()
	return nil
}
