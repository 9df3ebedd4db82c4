package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLogFields(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithEventID(ctx, "evt-1")
	ctx = WithRoute(ctx, "payment")

	assert.Equal(t, []interface{}{"request_id", "req-1", "event_id", "evt-1", "route", "payment"}, GetLogFields(ctx))
	assert.Equal(t, "evt-1", GetEventID(ctx))
	assert.Empty(t, GetTraceID(ctx))
}

func TestGetLogFieldsEmptyContext(t *testing.T) {
	assert.Empty(t, GetLogFields(context.Background()))
}
