package tracing

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"hookgate/internal/config"
)

func TestInitDisabled(t *testing.T) {
	tp, err := Init(config.TracingConfig{Enabled: false}, "hookgate")
	require.NoError(t, err)

	assert.NotNil(t, tp.Tracer("test"))
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		cfg  config.SamplerConfig
		want string
	}{
		{config.SamplerConfig{Type: "always_on"}, "AlwaysOnSampler"},
		{config.SamplerConfig{Type: "always_off"}, "AlwaysOffSampler"},
		{config.SamplerConfig{Type: "traceidratio", Param: 0.5}, "TraceIDRatioBased{0.5}"},
		{config.SamplerConfig{Type: "parentbased_traceidratio", Param: 0.5}, "ParentBased{root:TraceIDRatioBased{0.5}"},
		{config.SamplerConfig{}, "ParentBased{root:AlwaysOnSampler"},
	}
	for _, tt := range tests {
		t.Run(tt.cfg.Type, func(t *testing.T) {
			assert.Contains(t, newSampler(tt.cfg).Description(), tt.want)
		})
	}
}

func TestResolveServiceName(t *testing.T) {
	assert.Equal(t, "explicit", resolveServiceName(config.TracingConfig{ServiceName: "cfg"}, "explicit"))
	assert.Equal(t, "cfg", resolveServiceName(config.TracingConfig{ServiceName: "cfg"}, ""))
	assert.Equal(t, "hookgate", resolveServiceName(config.TracingConfig{}, ""))
}

func TestInjectHTTP(t *testing.T) {
	_, err := Init(config.TracingConfig{}, "")
	require.NoError(t, err)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	header := http.Header{}
	InjectHTTP(ctx, header)
	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", header.Get("traceparent"))
}
