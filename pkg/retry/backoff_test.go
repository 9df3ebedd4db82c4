package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelayWithoutJitterIsNonDecreasing(t *testing.T) {
	b := Backoff{Base: 100 * time.Millisecond, Max: time.Second, Multiplier: 2}

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}

	prev := time.Duration(0)
	for i, w := range want {
		d := b.Delay(i + 1)
		assert.Equal(t, w, d, "attempt %d", i+1)
		assert.GreaterOrEqual(t, d, prev)
		prev = d
	}
}

func TestBackoffJitterStaysInBounds(t *testing.T) {
	tests := []struct {
		name string
		rnd  float64
		want time.Duration
	}{
		{"lowest", 0, 80 * time.Millisecond},
		{"middle", 0.5, 100 * time.Millisecond},
		{"highest", 0.999999, 120 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Backoff{Base: 100 * time.Millisecond, Max: time.Second, Multiplier: 2, Jitter: 0.2, Rand: func() float64 { return tt.rnd }}
			assert.InDelta(t, float64(tt.want), float64(b.Delay(1)), float64(time.Microsecond))
		})
	}
}

func TestBackoffJitterNeverExceedsMax(t *testing.T) {
	b := Backoff{Base: time.Second, Max: time.Second, Multiplier: 2, Jitter: 0.5, Rand: func() float64 { return 0.99 }}
	assert.Equal(t, time.Second, b.Delay(3))
}

func TestBackoffClampsAttempt(t *testing.T) {
	b := Backoff{Base: 10 * time.Millisecond, Max: time.Second, Multiplier: 2}
	assert.Equal(t, 10*time.Millisecond, b.Delay(0))
}
