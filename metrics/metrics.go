// Package metrics defines the recorder surface for gateway telemetry, with
// Prometheus and no-op implementations.
package metrics

import "time"

// Recorder receives payment pipeline events.
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// Event counter names recorded by the gateway.
const (
	EventPaymentRequired  = "payment_required"
	EventValidationFailed = "validation_failed"
	EventSettlementFailed = "settlement_failed"
	EventPaymentSettled   = "payment_settled"
)
