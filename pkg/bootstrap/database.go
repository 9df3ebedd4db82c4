package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"hookgate/internal/config"
	"hookgate/internal/logger"
)

type DatabaseConnector struct {
	Config *config.Config
	Logger logger.Logger
}

func NewDatabaseConnector(cfg *config.Config, log logger.Logger) *DatabaseConnector {
	return &DatabaseConnector{
		Config: cfg,
		Logger: log,
	}
}

// InitRedis returns nil when Redis is not configured. An unreachable Redis is not fatal:
// the client is returned and the fallback store starts on the durable path, degrading on
// first failure.
func (dc *DatabaseConnector) InitRedis(ctx context.Context) *redis.Client {
	cfg := dc.Config.Database.Redis
	if !dc.Config.Database.RedisEnabled() {
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  dc.Config.Store.OperationTimeout * 4,
		ReadTimeout:  dc.Config.Store.OperationTimeout,
		WriteTimeout: dc.Config.Store.OperationTimeout,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		dc.Logger.Warnw("Redis unreachable at startup, continuing with in-memory fallback",
			"addr", rdb.Options().Addr,
			"error", err,
		)
		return rdb
	}

	dc.Logger.Infow("Redis connected successfully", "addr", rdb.Options().Addr)
	return rdb
}

func (dc *DatabaseConnector) InitMongoDB(ctx context.Context) (*mongo.Client, error) {
	if !dc.Config.Database.MongoEnabled() {
		return nil, nil // MongoDB is optional
	}

	mongoOpts := options.Client().ApplyURI(dc.Config.Database.MongoDB.URI)
	mongoClient, err := mongo.Connect(ctx, mongoOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := mongoClient.Ping(ctx, nil); err != nil {
		mongoClient.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	dc.Logger.Infow("MongoDB connected successfully", "database", dc.Config.Database.MongoDB.Database)
	return mongoClient, nil
}

// ShutdownDatabases disconnects MongoDB. The Redis client is owned and closed by the store.
func (dc *DatabaseConnector) ShutdownDatabases(ctx context.Context, mongo *mongo.Client) []error {
	var errs []error

	if mongo != nil {
		if err := mongo.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongodb disconnect error: %w", err))
		}
	}

	return errs
}
