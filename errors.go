package arcade

import (
	"fmt"
	"net/http"
	"time"
)

// Kind identifies one member of the closed payment-failure taxonomy.
// Every failure the gateway can surface is one of these values; there is no
// open-ended error path to the HTTP boundary.
type Kind string

// Validation-phase kinds. These are produced before any facilitator call and
// describe an authorization that can never succeed as submitted. The client
// must obtain a fresh, corrected authorization.
const (
	// KindMissingHeader indicates no payment header was supplied at all.
	KindMissingHeader Kind = "missing_payment_header"

	// KindMalformedHeader indicates the payment header could not be decoded
	// (bad base64 or bad JSON envelope).
	KindMalformedHeader Kind = "malformed_payment_header"

	// KindUnsupportedVersion indicates a protocol version other than the
	// single supported one.
	KindUnsupportedVersion Kind = "unsupported_version"

	// KindUnsupportedScheme indicates a payment scheme other than "exact".
	KindUnsupportedScheme Kind = "unsupported_scheme"

	// KindNetworkMismatch indicates the authorization targets a network other
	// than the one this gateway is configured for.
	KindNetworkMismatch Kind = "network_mismatch"

	// KindMalformedField indicates one or more payload fields are missing,
	// mistyped, or fail their format rules.
	KindMalformedField Kind = "malformed_field"

	// KindAmountMismatch indicates the authorized value differs from the
	// price of the resource.
	KindAmountMismatch Kind = "amount_mismatch"

	// KindRecipientMismatch indicates the authorization pays someone other
	// than the configured recipient.
	KindRecipientMismatch Kind = "recipient_mismatch"

	// KindNotYetValid indicates now < validAfter.
	KindNotYetValid Kind = "authorization_not_yet_valid"

	// KindExpired indicates now >= validBefore.
	KindExpired Kind = "authorization_expired"
)

// Settlement-phase kinds. These classify the result of delegating settlement
// to the facilitator. The first five are facts about the authorization that
// retrying cannot change; the rest are upstream or transport conditions.
const (
	KindInvalidSignature  Kind = "invalid_signature"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindNonceUsed         Kind = "nonce_already_used"
	KindUnsupportedToken  Kind = "unsupported_token"
	KindUnsupportedChain  Kind = "unsupported_chain"
	KindFacilitatorError  Kind = "facilitator_error"
	KindNetworkError      Kind = "network_error"
	KindTimeout           Kind = "timeout"

	// KindInternal is the last-resort fallback for failures that escaped
	// classification. It must never be a normal output.
	KindInternal Kind = "internal_error"
)

type kindInfo struct {
	status    int
	message   string
	retryable bool
}

// kindTable is the single source of truth for HTTP status, default message,
// and default retryability per kind. The settlement classifier and the error
// envelope both consult it; nothing else hardcodes a status code.
var kindTable = map[Kind]kindInfo{
	KindMissingHeader:      {http.StatusPaymentRequired, "payment required: no payment header supplied", false},
	KindMalformedHeader:    {http.StatusBadRequest, "payment header could not be decoded", false},
	KindUnsupportedVersion: {http.StatusBadRequest, "unsupported protocol version", false},
	KindUnsupportedScheme:  {http.StatusBadRequest, "unsupported payment scheme", false},
	KindNetworkMismatch:    {http.StatusBadRequest, "authorization network does not match this resource", false},
	KindMalformedField:     {http.StatusBadRequest, "authorization payload is malformed", false},
	KindAmountMismatch:     {http.StatusBadRequest, "authorized amount does not match the required amount", false},
	KindRecipientMismatch:  {http.StatusBadRequest, "authorization recipient does not match the required recipient", false},
	KindNotYetValid:        {http.StatusBadRequest, "authorization is not yet valid", false},
	KindExpired:            {http.StatusBadRequest, "authorization has expired", false},

	KindInvalidSignature:  {http.StatusBadRequest, "payment authorization signature is invalid", false},
	KindInsufficientFunds: {http.StatusBadRequest, "payer has insufficient funds", false},
	KindNonceUsed:         {http.StatusBadRequest, "authorization nonce has already been used", false},
	KindUnsupportedToken:  {http.StatusBadRequest, "token is not supported by the facilitator", false},
	KindUnsupportedChain:  {http.StatusBadRequest, "chain is not supported by the facilitator", false},
	KindFacilitatorError:  {http.StatusBadGateway, "facilitator failed to settle the payment", true},
	KindNetworkError:      {http.StatusBadGateway, "network error while contacting the facilitator", true},
	KindTimeout:           {http.StatusGatewayTimeout, "settlement timed out", true},

	KindInternal: {http.StatusInternalServerError, "internal error", false},
}

// Valid reports whether k is a member of the taxonomy.
func (k Kind) Valid() bool {
	_, ok := kindTable[k]
	return ok
}

// ValidationPhase reports whether k is produced before any facilitator call.
func (k Kind) ValidationPhase() bool {
	switch k {
	case KindMissingHeader, KindMalformedHeader, KindUnsupportedVersion,
		KindUnsupportedScheme, KindNetworkMismatch, KindMalformedField,
		KindAmountMismatch, KindRecipientMismatch, KindNotYetValid, KindExpired:
		return true
	}
	return false
}

// TaxonomyError is the canonical failure value produced by the gateway.
// It is immutable once constructed and carries everything the HTTP boundary
// needs to render a response: kind, status, message, structured details, and
// retry guidance.
type TaxonomyError struct {
	Kind       Kind
	Message    string
	Details    map[string]any
	RetryAfter time.Duration
	Timestamp  time.Time

	retryable *bool
	cause     error
}

// ErrorOption configures a TaxonomyError at construction time.
type ErrorOption func(*TaxonomyError)

// WithMessage overrides the kind's default message.
func WithMessage(format string, args ...any) ErrorOption {
	return func(e *TaxonomyError) {
		if len(args) == 0 {
			e.Message = format
			return
		}
		e.Message = fmt.Sprintf(format, args...)
	}
}

// WithDetail adds a single key to the structured details map.
func WithDetail(key string, value any) ErrorOption {
	return func(e *TaxonomyError) {
		if e.Details == nil {
			e.Details = make(map[string]any)
		}
		e.Details[key] = value
	}
}

// WithDetails merges the given map into the structured details.
func WithDetails(details map[string]any) ErrorOption {
	return func(e *TaxonomyError) {
		if e.Details == nil {
			e.Details = make(map[string]any, len(details))
		}
		for k, v := range details {
			e.Details[k] = v
		}
	}
}

// WithRetryAfter attaches a suggested backoff before the caller retries.
// Only meaningful on retryable errors.
func WithRetryAfter(d time.Duration) ErrorOption {
	return func(e *TaxonomyError) { e.RetryAfter = d }
}

// WithRetryable overrides the kind's default retryability. The classifier
// uses this for facilitator errors surfaced with a 4xx status, which keep the
// facilitator_error kind but can never succeed on retry.
func WithRetryable(retryable bool) ErrorOption {
	return func(e *TaxonomyError) { e.retryable = &retryable }
}

// WithCause records the underlying error. The cause is reachable through
// errors.Unwrap but is never serialized to the wire.
func WithCause(err error) ErrorOption {
	return func(e *TaxonomyError) { e.cause = err }
}

// NewError constructs a TaxonomyError of the given kind. Unknown kinds are
// coerced to KindInternal so a bad call site cannot escape the taxonomy.
func NewError(kind Kind, opts ...ErrorOption) *TaxonomyError {
	if !kind.Valid() {
		kind = KindInternal
	}
	e := &TaxonomyError{
		Kind:      kind,
		Message:   kindTable[kind].message,
		Timestamp: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Error implements the error interface.
func (e *TaxonomyError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Unwrap returns the underlying cause, if any.
func (e *TaxonomyError) Unwrap() error {
	return e.cause
}

// HTTPStatus returns the HTTP status code associated with the error's kind.
func (e *TaxonomyError) HTTPStatus() int {
	return kindTable[e.Kind].status
}

// Retryable reports whether reissuing the same request unchanged could
// plausibly succeed later. Defaults come from the kind table unless the
// classifier overrode them.
func (e *TaxonomyError) Retryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	return kindTable[e.Kind].retryable
}

// Coerce converts an arbitrary error into a TaxonomyError. TaxonomyErrors
// pass through unchanged; anything else becomes the internal fallback kind.
// Coerce(nil) returns nil.
func Coerce(err error) *TaxonomyError {
	if err == nil {
		return nil
	}
	if te, ok := err.(*TaxonomyError); ok {
		return te
	}
	return NewError(KindInternal, WithCause(err))
}
