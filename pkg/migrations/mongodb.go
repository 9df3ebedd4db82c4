package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureDeadLetterCollection creates the indexes used to look up abandoned notifications.
// The collection itself is created on first insert.
func EnsureDeadLetterCollection(ctx context.Context, db *mongo.Database, name string) error {
	collection := db.Collection(name)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "task_id", Value: 1}},
			Options: options.Index().SetName("idx_dead_letters_task_id").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "event_id", Value: 1}},
			Options: options.Index().SetName("idx_dead_letters_event_id"),
		},
		{
			Keys:    bson.D{{Key: "route", Value: 1}, {Key: "abandoned_at", Value: -1}},
			Options: options.Index().SetName("idx_dead_letters_route_abandoned_at"),
		},
		{
			Keys:    bson.D{{Key: "reason", Value: 1}},
			Options: options.Index().SetName("idx_dead_letters_reason"),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	return nil
}
