package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	arcade "github.com/quarterslot/arcade-x402"
)

const (
	payerAddr     = "0x1111111111111111111111111111111111111111"
	recipientAddr = "0x2222222222222222222222222222222222222222"
	testNonce     = "0xAABB567890123456789012345678901234567890123456789012345678901234"
)

var packedSig = "0x" + strings.Repeat("ab", 65)

func testContext() arcade.ValidationContext {
	return arcade.ValidationContext{
		Network:           "base-sepolia",
		ExpectedRecipient: common.HexToAddress(recipientAddr),
		ExpectedAmount:    "250000",
		ProtocolVersion:   arcade.ProtocolVersion,
		Scheme:            arcade.SchemeExact,
		Now:               time.Unix(1_700_000_000, 0),
	}
}

// payload returns a valid exact-scheme payload with the given overrides.
// A nil override deletes the field.
func payload(overrides map[string]any) json.RawMessage {
	fields := map[string]any{
		"from":        payerAddr,
		"to":          recipientAddr,
		"value":       "250000",
		"validAfter":  "1699999000",
		"validBefore": "1700001000",
		"nonce":       testNonce,
		"signature":   packedSig,
	}
	for k, v := range overrides {
		if v == nil {
			delete(fields, k)
			continue
		}
		fields[k] = v
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		panic(err)
	}
	return raw
}

func envelope(p json.RawMessage) arcade.Envelope {
	return arcade.Envelope{
		X402Version: arcade.ProtocolVersion,
		Scheme:      arcade.SchemeExact,
		Network:     "base-sepolia",
		Payload:     p,
	}
}

func TestSchemaValidPayload(t *testing.T) {
	auth, terr := Schema(envelope(payload(nil)), testContext())
	if terr != nil {
		t.Fatalf("unexpected error: %v", terr)
	}
	if auth.From != common.HexToAddress(payerAddr) {
		t.Errorf("From = %s", auth.From.Hex())
	}
	if auth.To != common.HexToAddress(recipientAddr) {
		t.Errorf("To = %s", auth.To.Hex())
	}
	if auth.Value.String() != "250000" {
		t.Errorf("Value = %s", auth.Value)
	}
	if auth.ValidAfter != 1699999000 || auth.ValidBefore != 1700001000 {
		t.Errorf("window = [%d, %d)", auth.ValidAfter, auth.ValidBefore)
	}
	if auth.Nonce != strings.ToLower(testNonce) {
		t.Errorf("nonce should be lowercased, got %s", auth.Nonce)
	}
	if auth.Signature.Packed != packedSig {
		t.Errorf("Signature = %+v", auth.Signature)
	}
}

func TestSchemaComponentSignature(t *testing.T) {
	r := "0x" + strings.Repeat("11", 32)
	s := "0x" + strings.Repeat("22", 32)

	tests := []struct {
		name string
		sig  any
	}{
		{"numeric v", map[string]any{"v": 27, "r": r, "s": s}},
		{"string v", map[string]any{"v": "27", "r": r, "s": s}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth, terr := Schema(envelope(payload(map[string]any{"signature": tt.sig})), testContext())
			if terr != nil {
				t.Fatalf("unexpected error: %v", terr)
			}
			if auth.Signature.V != 27 || auth.Signature.R != r || auth.Signature.S != s {
				t.Errorf("Signature = %+v", auth.Signature)
			}
		})
	}
}

func TestSchemaFramingChecks(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*arcade.Envelope)
		want   arcade.Kind
	}{
		{"unsupported version", func(e *arcade.Envelope) { e.X402Version = 2 }, arcade.KindUnsupportedVersion},
		{"unsupported scheme", func(e *arcade.Envelope) { e.Scheme = "upto" }, arcade.KindUnsupportedScheme},
		{"network mismatch", func(e *arcade.Envelope) { e.Network = "polygon" }, arcade.KindNetworkMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := envelope(payload(nil))
			tt.mutate(&env)
			_, terr := Schema(env, testContext())
			if terr == nil {
				t.Fatal("expected error")
			}
			if terr.Kind != tt.want {
				t.Errorf("Kind = %q, want %q", terr.Kind, tt.want)
			}
		})
	}
}

func TestSchemaCheckOrderIsStable(t *testing.T) {
	// A wrong network and a gutted payload must report the network mismatch:
	// framing checks run before any field inspection.
	env := envelope(json.RawMessage(`{}`))
	env.Network = "polygon"
	_, terr := Schema(env, testContext())
	if terr == nil {
		t.Fatal("expected error")
	}
	if terr.Kind != arcade.KindNetworkMismatch {
		t.Errorf("Kind = %q, want %q", terr.Kind, arcade.KindNetworkMismatch)
	}

	// Same envelope with the right network now reports the payload problem.
	env.Network = "base-sepolia"
	_, terr = Schema(env, testContext())
	if terr == nil {
		t.Fatal("expected error")
	}
	if terr.Kind != arcade.KindMalformedField {
		t.Errorf("Kind = %q, want %q", terr.Kind, arcade.KindMalformedField)
	}
}

func TestSchemaPayloadNotAnObject(t *testing.T) {
	for _, raw := range []string{``, `"just a string"`, `[1,2,3]`} {
		env := envelope(json.RawMessage(raw))
		_, terr := Schema(env, testContext())
		if terr == nil {
			t.Fatalf("payload %q: expected error", raw)
		}
		if terr.Kind != arcade.KindMalformedField {
			t.Errorf("payload %q: Kind = %q", raw, terr.Kind)
		}
	}
}

func TestSchemaMissingFieldsAggregated(t *testing.T) {
	env := envelope(payload(map[string]any{
		"from":  nil,
		"nonce": nil,
		"value": 250000, // number instead of string counts as mistyped
	}))
	_, terr := Schema(env, testContext())
	if terr == nil {
		t.Fatal("expected error")
	}
	if terr.Kind != arcade.KindMalformedField {
		t.Fatalf("Kind = %q", terr.Kind)
	}
	fields, ok := terr.Details["fields"].([]string)
	if !ok {
		t.Fatalf("details fields = %T", terr.Details["fields"])
	}
	if len(fields) != 3 {
		t.Errorf("fields = %v, want from, value, nonce", fields)
	}
	for _, want := range []string{"from", "value", "nonce"} {
		if !strings.Contains(terr.Message, want) {
			t.Errorf("message %q should name %q", terr.Message, want)
		}
	}
}

func TestSchemaFieldFormats(t *testing.T) {
	tests := []struct {
		name     string
		override map[string]any
	}{
		{"from not an address", map[string]any{"from": "0x1234"}},
		{"from missing 0x prefix", map[string]any{"from": strings.TrimPrefix(payerAddr, "0x")}},
		{"to not an address", map[string]any{"to": "nope"}},
		{"value has decimal point", map[string]any{"value": "250.000"}},
		{"value negative", map[string]any{"value": "-250000"}},
		{"value over 256 bits", map[string]any{"value": fmt.Sprintf("1%0100d", 0)}},
		{"validAfter not numeric", map[string]any{"validAfter": "soon"}},
		{"validBefore not numeric", map[string]any{"validBefore": "later"}},
		{"window inverted", map[string]any{"validAfter": "1700001000", "validBefore": "1699999000"}},
		{"window empty", map[string]any{"validAfter": "1700000000", "validBefore": "1700000000"}},
		{"nonce too short", map[string]any{"nonce": "0x1234"}},
		{"nonce not hex", map[string]any{"nonce": "0x" + strings.Repeat("zz", 32)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, terr := Schema(envelope(payload(tt.override)), testContext())
			if terr == nil {
				t.Fatal("expected error")
			}
			if terr.Kind != arcade.KindMalformedField {
				t.Errorf("Kind = %q, want %q", terr.Kind, arcade.KindMalformedField)
			}
		})
	}
}

func TestSchemaSignatureProblemsAggregated(t *testing.T) {
	// v missing, r malformed, s missing: one error naming all three.
	env := envelope(payload(map[string]any{
		"signature": map[string]any{"r": "0x1234"},
	}))
	_, terr := Schema(env, testContext())
	if terr == nil {
		t.Fatal("expected error")
	}
	if terr.Kind != arcade.KindMalformedField {
		t.Fatalf("Kind = %q", terr.Kind)
	}
	problems, ok := terr.Details["problems"].([]string)
	if !ok {
		t.Fatalf("details problems = %T", terr.Details["problems"])
	}
	if len(problems) != 3 {
		t.Errorf("problems = %v, want 3 entries", problems)
	}
}

func TestSchemaPackedSignatureWrongLength(t *testing.T) {
	env := envelope(payload(map[string]any{"signature": "0xabcdef"}))
	_, terr := Schema(env, testContext())
	if terr == nil {
		t.Fatal("expected error")
	}
	if terr.Kind != arcade.KindMalformedField {
		t.Errorf("Kind = %q", terr.Kind)
	}
}
