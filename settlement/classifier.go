package settlement

import (
	"net/http"
	"strings"
	"time"

	arcade "github.com/quarterslot/arcade-x402"
)

// Suggested backoffs per failure mode. Timeouts and resets usually clear on
// the next attempt; refused connections and DNS failures mean the facilitator
// is down or unreachable and deserve a longer pause.
const (
	backoffTimeout     = 1 * time.Second
	backoffConnReset   = 1 * time.Second
	backoffConnRefused = 5 * time.Second
	backoffDNS         = 5 * time.Second
	backoffRateLimited = 10 * time.Second
	backoffUnavailable = 5 * time.Second
)

// upstreamCodeKinds maps facilitator error codes (lowercased) to taxonomy
// kinds. Every kind reachable through this table is a fact about the
// authorization that retrying cannot change, so all of them are
// non-retryable by the kind table. Codes outside the table fall through to
// the generic facilitator_error kind.
var upstreamCodeKinds = map[string]arcade.Kind{
	"invalid_signature":    arcade.KindInvalidSignature,
	"invalid_sig":          arcade.KindInvalidSignature,
	"insufficient_funds":   arcade.KindInsufficientFunds,
	"insufficient_balance": arcade.KindInsufficientFunds,
	"nonce_used":           arcade.KindNonceUsed,
	"nonce_already_used":   arcade.KindNonceUsed,
	"duplicate_nonce":      arcade.KindNonceUsed,
	"unsupported_token":    arcade.KindUnsupportedToken,
	"unsupported_asset":    arcade.KindUnsupportedToken,
	"unsupported_chain":    arcade.KindUnsupportedChain,
	"unsupported_network":  arcade.KindUnsupportedChain,
}

// Classifier maps a settlement outcome to the taxonomy. It performs no I/O
// and always returns a taxonomy value for a failed outcome: missing or
// malformed upstream information never makes it panic or error out.
type Classifier struct {
	// DefaultBackoff is the suggested delay attached to generic facilitator
	// errors with no more specific guidance. Zero falls back to
	// arcade.DefaultFacilitatorBackoff.
	DefaultBackoff time.Duration
}

// Classify turns a settlement outcome into a taxonomy error, or nil for a
// settled payment.
func (c Classifier) Classify(o Outcome) *arcade.TaxonomyError {
	if o.Success {
		return nil
	}

	if o.Transport != TransportNone {
		return c.classifyTransport(o)
	}

	switch {
	case o.StatusCode == http.StatusTooManyRequests:
		retryAfter := o.RetryAfter
		if retryAfter <= 0 {
			retryAfter = backoffRateLimited
		}
		return arcade.NewError(arcade.KindFacilitatorError,
			arcade.WithMessage("facilitator rate limited the request"),
			arcade.WithDetail("reason", "rate_limited"),
			arcade.WithDetail("statusCode", o.StatusCode),
			arcade.WithRetryAfter(retryAfter))

	case o.StatusCode == http.StatusServiceUnavailable:
		return arcade.NewError(arcade.KindFacilitatorError,
			arcade.WithMessage("facilitator is unavailable"),
			arcade.WithDetail("reason", "unavailable"),
			arcade.WithDetail("statusCode", o.StatusCode),
			arcade.WithRetryAfter(backoffUnavailable))

	case o.StatusCode >= 500:
		reason := "internal"
		if o.StatusCode != http.StatusInternalServerError {
			reason = "upstream_5xx"
		}
		return arcade.NewError(arcade.KindFacilitatorError,
			arcade.WithMessage("facilitator returned status %d", o.StatusCode),
			arcade.WithDetail("reason", reason),
			arcade.WithDetail("statusCode", o.StatusCode),
			arcade.WithRetryAfter(c.defaultBackoff()))

	case o.StatusCode >= 400:
		return c.classifyUpstreamRejection(o)
	}

	// A non-success outcome with no transport signal and no error status
	// should not happen; fall back rather than guess.
	return arcade.NewError(arcade.KindInternal,
		arcade.WithMessage("unclassifiable settlement outcome"),
		arcade.WithDetail("statusCode", o.StatusCode))
}

func (c Classifier) classifyTransport(o Outcome) *arcade.TaxonomyError {
	switch o.Transport {
	case TransportTimeout:
		return arcade.NewError(arcade.KindTimeout,
			arcade.WithRetryAfter(backoffTimeout))
	case TransportConnectionRefused:
		return arcade.NewError(arcade.KindNetworkError,
			arcade.WithMessage("facilitator refused the connection"),
			arcade.WithDetail("signal", string(o.Transport)),
			arcade.WithRetryAfter(backoffConnRefused))
	case TransportConnectionReset:
		return arcade.NewError(arcade.KindNetworkError,
			arcade.WithMessage("connection to facilitator was reset"),
			arcade.WithDetail("signal", string(o.Transport)),
			arcade.WithRetryAfter(backoffConnReset))
	case TransportDNSFailure:
		return arcade.NewError(arcade.KindNetworkError,
			arcade.WithMessage("facilitator host could not be resolved"),
			arcade.WithDetail("signal", string(o.Transport)),
			arcade.WithRetryAfter(backoffDNS))
	default:
		return arcade.NewError(arcade.KindNetworkError,
			arcade.WithDetail("signal", string(o.Transport)),
			arcade.WithRetryAfter(c.defaultBackoff()))
	}
}

// classifyUpstreamRejection handles facilitator 4xx responses. A mapped code
// names a permanent fact about the authorization and keeps HTTP 400; an
// unmapped or absent code becomes a non-retryable facilitator error.
func (c Classifier) classifyUpstreamRejection(o Outcome) *arcade.TaxonomyError {
	if kind, ok := upstreamCodeKinds[strings.ToLower(o.Code)]; ok {
		opts := []arcade.ErrorOption{
			arcade.WithDetail("upstreamCode", o.Code),
			arcade.WithDetail("statusCode", o.StatusCode),
		}
		if o.Message != "" {
			opts = append(opts, arcade.WithDetail("upstreamMessage", o.Message))
		}
		return arcade.NewError(kind, opts...)
	}

	opts := []arcade.ErrorOption{
		arcade.WithMessage("facilitator rejected the payment"),
		arcade.WithDetail("statusCode", o.StatusCode),
		arcade.WithRetryable(false),
	}
	if o.Code != "" {
		opts = append(opts, arcade.WithDetail("upstreamCode", o.Code))
	}
	if o.Message != "" {
		opts = append(opts, arcade.WithDetail("upstreamMessage", o.Message))
	}
	return arcade.NewError(arcade.KindFacilitatorError, opts...)
}

func (c Classifier) defaultBackoff() time.Duration {
	if c.DefaultBackoff > 0 {
		return c.DefaultBackoff
	}
	return arcade.DefaultFacilitatorBackoff
}
