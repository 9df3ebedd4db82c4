package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasherEventID(t *testing.T) {
	h := NewHasher("sha256")

	byID := h.EventID("payment", "evt_1", []byte(`{"a":1}`))
	assert.Len(t, byID, 64)
	assert.Equal(t, byID, h.EventID("payment", "evt_1", []byte(`{"a":2}`)), "provider id wins over body")
	assert.NotEqual(t, byID, h.EventID("refund", "evt_1", nil), "ids are scoped per route")

	byBody := h.EventID("payment", "", []byte(`{"a":1}`))
	assert.Equal(t, byBody, h.EventID("payment", "", []byte(`{"a":1}`)))
	assert.NotEqual(t, byBody, h.EventID("payment", "", []byte(`{"a":2}`)))
	assert.NotEqual(t, byBody, byID)
}

func TestHasherAlgorithms(t *testing.T) {
	tests := []struct {
		algorithm string
		length    int
	}{
		{"sha256", 64},
		{"sha1", 40},
		{"md5", 32},
		{"", 64},
	}

	for _, tt := range tests {
		t.Run(tt.algorithm, func(t *testing.T) {
			assert.Len(t, NewHasher(tt.algorithm).EventID("r", "id", nil), tt.length)
		})
	}
}
