package cel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hookgate/pkg/models"
)

func TestNewEvaluator(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)
	assert.NotNil(t, eval)
}

func TestValidateFilterExpression(t *testing.T) {
	tests := []struct {
		name      string
		expr      string
		wantError bool
	}{
		{name: "equality", expr: `payload.status == "succeeded"`},
		{name: "route variable", expr: `route == "payment"`},
		{name: "has macro", expr: `has(payload.metadata.order_id)`},
		{name: "invalid syntax", expr: `invalid syntax here!!!`, wantError: true},
		{name: "undefined variable", expr: `undefinedVar == "test"`, wantError: true},
		{name: "non bool", expr: `payload.status`, wantError: true},
		{name: "string literal", expr: `"text"`, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilterExpression(tt.expr)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestExamplesCompile(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	for name, expr := range FilterExpressionExamples {
		t.Run(name, func(t *testing.T) {
			_, err := eval.NewFilter(expr)
			assert.NoError(t, err)
		})
	}
}

func TestFilterMatch(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	filter, err := eval.NewFilter(`payload.status == "succeeded" && has(payload.metadata.order_id)`)
	require.NoError(t, err)

	event := func(payload map[string]interface{}) models.WebhookEvent {
		return models.WebhookEvent{EventID: "e1", Route: "payment", ReceivedAt: time.Now(), Payload: payload}
	}

	tests := []struct {
		name    string
		payload map[string]interface{}
		want    bool
		wantErr bool
	}{
		{
			name:    "succeeded with order",
			payload: map[string]interface{}{"status": "succeeded", "metadata": map[string]interface{}{"order_id": "o-1"}},
			want:    true,
		},
		{
			name:    "pending",
			payload: map[string]interface{}{"status": "pending", "metadata": map[string]interface{}{"order_id": "o-1"}},
			want:    false,
		},
		{
			name:    "missing status",
			payload: map[string]interface{}{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := filter.Match(context.Background(), event(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
