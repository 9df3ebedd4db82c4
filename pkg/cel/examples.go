package cel

// FilterExpressionExamples lists accept_if expressions for common payment provider payloads.
var FilterExpressionExamples = map[string]string{
	"payment_succeeded": `payload.status == "succeeded"`,
	"has_order":         `has(payload.metadata) && has(payload.metadata.order_id)`,
	"succeeded_order":   `payload.status == "succeeded" && has(payload.metadata.order_id)`,
	"event_type_in":     `payload.event in ["payment.succeeded", "refund.succeeded"]`,
	"amount_range":      `double(payload.amount) >= 1.0 && double(payload.amount) <= 100000.0`,
	"route_scoped":      `route == "payment" && payload.status != "canceled"`,
}
