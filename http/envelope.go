// Package http adapts the gateway to net/http handlers and exposes the wire
// shape for taxonomy errors. The Gin and Chi adapters in the subpackages
// reuse the same envelope so every transport reports failures identically.
package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	arcade "github.com/quarterslot/arcade-x402"
)

// ErrorBody is the inner object of the error envelope.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`

	// Timestamp is RFC 3339 in UTC.
	Timestamp string `json:"timestamp"`

	CanRetry bool `json:"canRetry"`

	// RetryAfterMs is present only when the error is retryable and carries
	// a backoff hint.
	RetryAfterMs int64 `json:"retryAfterMs,omitempty"`
}

// ErrorEnvelope is the JSON body written for every taxonomy error.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// NewErrorEnvelope builds the wire form of a taxonomy error.
func NewErrorEnvelope(terr *arcade.TaxonomyError) ErrorEnvelope {
	ts := terr.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	body := ErrorBody{
		Code:      string(terr.Kind),
		Message:   terr.Message,
		Details:   terr.Details,
		Timestamp: ts.UTC().Format(time.RFC3339),
		CanRetry:  terr.Retryable(),
	}
	if terr.Retryable() && terr.RetryAfter > 0 {
		body.RetryAfterMs = terr.RetryAfter.Milliseconds()
	}
	return ErrorEnvelope{Error: body}
}

// WriteError renders a taxonomy error as JSON with its mapped HTTP status.
// A retryable error with a backoff hint also gets a Retry-After header,
// rounded up to whole seconds.
func WriteError(w http.ResponseWriter, terr *arcade.TaxonomyError) {
	w.Header().Set("Content-Type", "application/json")
	if terr.Retryable() && terr.RetryAfter > 0 {
		secs := int64((terr.RetryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	w.WriteHeader(terr.HTTPStatus())
	_ = json.NewEncoder(w).Encode(NewErrorEnvelope(terr))
}

// WriteRequirements renders the x402-native 402 body: protocol version, a
// human-readable reason, and the payment options the server accepts. For
// callers that want the protocol's own advertisement shape instead of the
// taxonomy envelope.
func WriteRequirements(w http.ResponseWriter, message string, accepts ...arcade.PaymentRequirement) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	_ = json.NewEncoder(w).Encode(arcade.RequirementsResponse{
		X402Version: arcade.ProtocolVersion,
		Error:       message,
		Accepts:     accepts,
	})
}
