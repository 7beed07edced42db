// Package validation implements the authorization validation pipeline: the
// structural schema checks and the window and match business rules. Both run
// without I/O and before any facilitator call, so an authorization that can
// never succeed is rejected without wasting a settlement round-trip.
package validation

import (
	"encoding/json"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	arcade "github.com/quarterslot/arcade-x402"
)

var (
	// bytes32Regex matches a 32-byte value encoded as 0x + 64 hex chars.
	bytes32Regex = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

	// packedSigRegex matches a packed 65-byte ECDSA signature.
	packedSigRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{130}$`)

	// decimalRegex matches an unsigned base-10 integer string.
	decimalRegex = regexp.MustCompile(`^[0-9]+$`)
)

// requiredFields lists the exact-scheme payload fields in reporting order.
var requiredFields = []string{
	"from", "to", "value", "validAfter", "validBefore", "nonce", "signature",
}

// Schema validates the decoded payment envelope and produces a strongly
// typed authorization, or a validation-phase taxonomy error.
//
// Checks run in a fixed order and the order is a contract: version, scheme,
// network, field presence (all missing fields reported together), address
// format, value format, timestamps, nonce, signature components (all
// component problems reported together). The cheapest, most fundamental
// checks run first and short-circuit the rest.
func Schema(env arcade.Envelope, vctx arcade.ValidationContext) (*arcade.Authorization, *arcade.TaxonomyError) {
	if env.X402Version != vctx.ProtocolVersion {
		return nil, arcade.NewError(arcade.KindUnsupportedVersion,
			arcade.WithDetail("received", env.X402Version),
			arcade.WithDetail("supported", vctx.ProtocolVersion))
	}

	if env.Scheme != vctx.Scheme {
		return nil, arcade.NewError(arcade.KindUnsupportedScheme,
			arcade.WithDetail("received", env.Scheme),
			arcade.WithDetail("supported", vctx.Scheme))
	}

	if env.Network != vctx.Network {
		return nil, arcade.NewError(arcade.KindNetworkMismatch,
			arcade.WithDetail("received", env.Network),
			arcade.WithDetail("expected", vctx.Network))
	}

	var fields map[string]json.RawMessage
	if len(env.Payload) == 0 || json.Unmarshal(env.Payload, &fields) != nil {
		return nil, arcade.NewError(arcade.KindMalformedField,
			arcade.WithMessage("payload is not a JSON object"),
			arcade.WithDetail("field", "payload"))
	}

	// Presence and typing. All missing or mistyped fields are reported in a
	// single error rather than one at a time across retries.
	strs := make(map[string]string, len(requiredFields))
	var bad []string
	for _, name := range requiredFields {
		raw, ok := fields[name]
		if !ok {
			bad = append(bad, name)
			continue
		}
		if name == "signature" {
			// Checked separately: a signature may be a string or an object.
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			bad = append(bad, name)
			continue
		}
		strs[name] = s
	}
	if len(bad) > 0 {
		return nil, arcade.NewError(arcade.KindMalformedField,
			arcade.WithMessage("missing or mistyped fields: %s", strings.Join(bad, ", ")),
			arcade.WithDetail("fields", bad))
	}

	for _, name := range []string{"from", "to"} {
		if !isHexAddress(strs[name]) {
			return nil, arcade.NewError(arcade.KindMalformedField,
				arcade.WithMessage("%s is not a valid address", name),
				arcade.WithDetail("field", name),
				arcade.WithDetail("reason", "expected 0x followed by 40 hex characters"))
		}
	}

	value, terr := parseValue(strs["value"])
	if terr != nil {
		return nil, terr
	}

	validAfter, terr := parseTimestamp("validAfter", strs["validAfter"])
	if terr != nil {
		return nil, terr
	}
	validBefore, terr := parseTimestamp("validBefore", strs["validBefore"])
	if terr != nil {
		return nil, terr
	}
	if validAfter >= validBefore {
		return nil, arcade.NewError(arcade.KindMalformedField,
			arcade.WithMessage("validAfter must be before validBefore"),
			arcade.WithDetail("validAfter", strs["validAfter"]),
			arcade.WithDetail("validBefore", strs["validBefore"]))
	}

	if !bytes32Regex.MatchString(strs["nonce"]) {
		return nil, arcade.NewError(arcade.KindMalformedField,
			arcade.WithMessage("nonce is not a valid 32-byte value"),
			arcade.WithDetail("field", "nonce"),
			arcade.WithDetail("reason", "expected 0x followed by 64 hex characters"))
	}

	sig, problems := parseSignature(fields["signature"])
	if len(problems) > 0 {
		return nil, arcade.NewError(arcade.KindMalformedField,
			arcade.WithMessage("invalid signature: %s", strings.Join(problems, "; ")),
			arcade.WithDetail("field", "signature"),
			arcade.WithDetail("problems", problems))
	}

	return &arcade.Authorization{
		From:        common.HexToAddress(strs["from"]),
		To:          common.HexToAddress(strs["to"]),
		Value:       value,
		ValidAfter:  validAfter,
		ValidBefore: validBefore,
		Nonce:       strings.ToLower(strs["nonce"]),
		Signature:   sig,
		Network:     env.Network,
		Scheme:      env.Scheme,
	}, nil
}

// isHexAddress requires the 0x prefix; common.IsHexAddress alone treats the
// prefix as optional.
func isHexAddress(s string) bool {
	return strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
}

// parseValue parses the payment value as a non-negative base-10 integer that
// fits the token's 256-bit smallest-unit domain.
func parseValue(s string) (*big.Int, *arcade.TaxonomyError) {
	if !decimalRegex.MatchString(s) {
		return nil, arcade.NewError(arcade.KindMalformedField,
			arcade.WithMessage("value is not a non-negative integer string"),
			arcade.WithDetail("field", "value"),
			arcade.WithDetail("reason", "expected base-10 digits only"))
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.BitLen() > 256 {
		return nil, arcade.NewError(arcade.KindMalformedField,
			arcade.WithMessage("value does not fit the token amount domain"),
			arcade.WithDetail("field", "value"),
			arcade.WithDetail("reason", "exceeds 256 bits"))
	}
	return v, nil
}

// parseTimestamp parses a Unix-seconds timestamp encoded as a decimal string.
func parseTimestamp(name, s string) (int64, *arcade.TaxonomyError) {
	if !decimalRegex.MatchString(s) {
		return 0, arcade.NewError(arcade.KindMalformedField,
			arcade.WithMessage("%s is not a Unix timestamp string", name),
			arcade.WithDetail("field", name),
			arcade.WithDetail("reason", "expected seconds as base-10 digits"))
	}
	ts, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, arcade.NewError(arcade.KindMalformedField,
			arcade.WithMessage("%s is out of range", name),
			arcade.WithDetail("field", name),
			arcade.WithCause(err))
	}
	return ts, nil
}

// parseSignature accepts either a packed hex signature string or a {v, r, s}
// component object. Component problems are aggregated so the caller gets one
// combined diagnostic instead of three sequential failures across retries.
func parseSignature(raw json.RawMessage) (arcade.Signature, []string) {
	var packed string
	if err := json.Unmarshal(raw, &packed); err == nil {
		if !packedSigRegex.MatchString(packed) {
			return arcade.Signature{}, []string{"packed signature must be 0x followed by 130 hex characters"}
		}
		return arcade.Signature{Packed: packed}, nil
	}

	var comp struct {
		V json.RawMessage `json:"v"`
		R *string         `json:"r"`
		S *string         `json:"s"`
	}
	if err := json.Unmarshal(raw, &comp); err != nil {
		return arcade.Signature{}, []string{"signature must be a hex string or a {v, r, s} object"}
	}

	var problems []string

	var v uint64
	switch {
	case len(comp.V) == 0:
		problems = append(problems, "v is required")
	default:
		if err := json.Unmarshal(comp.V, &v); err != nil {
			var vs string
			strErr := json.Unmarshal(comp.V, &vs)
			parsed, parseErr := strconv.ParseUint(vs, 10, 64)
			if strErr != nil || parseErr != nil {
				problems = append(problems, "v must be a recovery id number")
			} else {
				v = parsed
			}
		}
	}

	switch {
	case comp.R == nil:
		problems = append(problems, "r is required")
	case !bytes32Regex.MatchString(*comp.R):
		problems = append(problems, "r must be 0x followed by 64 hex characters")
	}

	switch {
	case comp.S == nil:
		problems = append(problems, "s is required")
	case !bytes32Regex.MatchString(*comp.S):
		problems = append(problems, "s must be 0x followed by 64 hex characters")
	}

	if len(problems) > 0 {
		return arcade.Signature{}, problems
	}
	return arcade.Signature{V: v, R: strings.ToLower(*comp.R), S: strings.ToLower(*comp.S)}, nil
}
