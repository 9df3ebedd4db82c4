package models

import "time"

// WebhookEvent is one inbound webhook after parsing. It is never mutated once built.
type WebhookEvent struct {
	EventID    string                 `json:"event_id"`
	ProviderID string                 `json:"provider_id,omitempty"`
	Route      string                 `json:"route"`
	ReceivedAt time.Time              `json:"received_at"`
	Payload    map[string]interface{} `json:"payload"`

	RawBody   []byte `json:"-"`
	Signature string `json:"-"`
}

// Nested walks a path of object keys, e.g. Nested("metadata", "order_id").
func (e WebhookEvent) Nested(path ...string) (interface{}, bool) {
	var cur interface{} = e.Payload
	for _, key := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
