// Package replay rejects webhook events that were already accepted within a TTL.
package replay

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"hookgate/internal/constants"
	"hookgate/internal/logger"
	"hookgate/pkg/metrics"
	"hookgate/pkg/tracing"
)

// Store is the subset of the key-value layer the guard needs. SetNX must be atomic.
type Store interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

type Result int

const (
	Fresh Result = iota
	Duplicate
)

func (r Result) String() string {
	if r == Duplicate {
		return "duplicate"
	}
	return "fresh"
}

type Guard struct {
	store  Store
	ttl    time.Duration
	now    func() time.Time
	logger logger.Logger
}

func NewGuard(store Store, ttl time.Duration, log logger.Logger) *Guard {
	return &Guard{store: store, ttl: ttl, now: time.Now, logger: log}
}

// CheckAndRecord atomically records eventID. Exactly one concurrent caller for the same id
// sees Fresh; every other caller within the TTL sees Duplicate.
func (g *Guard) CheckAndRecord(ctx context.Context, eventID string) (Result, error) {
	ctx, span := tracing.GetTracer("replay-guard").Start(ctx, "replay.check_and_record")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return Fresh, err
	}

	firstSeen := strconv.FormatInt(g.now().Unix(), 10)
	ok, err := g.store.SetNX(ctx, key(eventID), firstSeen, g.ttl)
	if err != nil {
		metrics.ReplayChecksTotal.WithLabelValues("error").Inc()
		return Fresh, fmt.Errorf("replay check for event %s failed: %w", eventID, err)
	}

	result := Fresh
	if !ok {
		result = Duplicate
	}
	span.SetAttributes(attribute.String("replay.result", result.String()))
	metrics.ReplayChecksTotal.WithLabelValues(result.String()).Inc()
	return result, nil
}

// Release forgets eventID so a redelivery is processed again.
func (g *Guard) Release(ctx context.Context, eventID string) error {
	if err := g.store.Delete(ctx, key(eventID)); err != nil {
		return fmt.Errorf("replay release for event %s failed: %w", eventID, err)
	}
	metrics.ReplayChecksTotal.WithLabelValues("released").Inc()
	g.logger.InfowCtx(ctx, "Replay record released", "event_id", eventID)
	return nil
}

func key(eventID string) string {
	return constants.KeyPrefixReplay + eventID
}
