// Package encoding provides the base64+JSON codec for x402 payment headers.
// The payment envelope travels in the X-PAYMENT request header and the
// settlement receipt in the X-PAYMENT-RESPONSE response header.
package encoding

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	arcade "github.com/quarterslot/arcade-x402"
)

// EncodeEnvelope converts a payment envelope to a base64-encoded JSON string
// suitable for the X-PAYMENT header.
func EncodeEnvelope(env arcade.Envelope) (string, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment envelope: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeEnvelope converts a base64-encoded JSON string to a payment envelope.
//
// Returns an error if base64 decoding or JSON unmarshaling fails. The caller
// classifies that error; this package does not touch the taxonomy.
func DecodeEnvelope(encoded string) (arcade.Envelope, error) {
	var env arcade.Envelope

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return env, fmt.Errorf("failed to decode base64: %w", err)
	}

	if err := json.Unmarshal(decoded, &env); err != nil {
		return env, fmt.Errorf("failed to unmarshal payment envelope: %w", err)
	}

	return env, nil
}

// EncodeReceipt converts a settlement receipt to a base64-encoded JSON string
// suitable for the X-PAYMENT-RESPONSE header.
func EncodeReceipt(receipt arcade.SettlementReceipt) (string, error) {
	data, err := json.Marshal(receipt)
	if err != nil {
		return "", fmt.Errorf("failed to marshal settlement receipt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeReceipt converts a base64-encoded JSON string to a settlement receipt.
func DecodeReceipt(encoded string) (arcade.SettlementReceipt, error) {
	var receipt arcade.SettlementReceipt

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return receipt, fmt.Errorf("failed to decode base64: %w", err)
	}

	if err := json.Unmarshal(decoded, &receipt); err != nil {
		return receipt, fmt.Errorf("failed to unmarshal settlement receipt: %w", err)
	}

	return receipt, nil
}
