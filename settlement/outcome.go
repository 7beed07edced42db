// Package settlement delegates payment settlement to the external
// facilitator and classifies whatever comes back — success, an upstream
// error body, or a transport failure — into the payment-failure taxonomy.
package settlement

import "time"

// TransportSignal names a transport-level failure of the facilitator call.
type TransportSignal string

const (
	// TransportNone means the call produced an HTTP response.
	TransportNone TransportSignal = ""

	// TransportTimeout covers deadline expiry and cancelled calls.
	TransportTimeout TransportSignal = "timeout"

	TransportConnectionRefused TransportSignal = "connection_refused"
	TransportConnectionReset   TransportSignal = "connection_reset"
	TransportDNSFailure        TransportSignal = "dns_failure"

	// TransportOther covers transport failures with no more specific signal.
	TransportOther TransportSignal = "other"
)

// Outcome is the raw result of one settlement delegation. It exists only for
// the duration of classification; the classifier turns it into either a
// settlement receipt or a taxonomy error.
type Outcome struct {
	// Success is true when the facilitator settled the payment.
	Success bool

	// StatusCode is the facilitator's HTTP status. Zero when the call failed
	// at the transport level.
	StatusCode int

	// Code is the facilitator's machine-readable error code, if any.
	Code string

	// Message is the facilitator's human-readable error, if any.
	Message string

	// RetryAfter is an upstream-provided delay (e.g. a Retry-After header on
	// a 429). Zero when the facilitator supplied none.
	RetryAfter time.Duration

	// Transport is set when the call never produced an HTTP response.
	Transport TransportSignal

	// Settlement data on success.
	Transaction string
	Network     string
	Payer       string
}
