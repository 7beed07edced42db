package arcade

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ProtocolVersion is the single supported x402 protocol version.
const ProtocolVersion = 1

// SchemeExact is the single supported payment scheme: the authorization must
// transfer exactly the advertised price.
const SchemeExact = "exact"

// HeaderPayment carries the base64-encoded payment envelope on inbound
// requests, and HeaderPaymentResponse carries the encoded settlement receipt
// on successful responses.
const (
	HeaderPayment         = "X-PAYMENT"
	HeaderPaymentResponse = "X-PAYMENT-RESPONSE"
)

// Envelope is the decoded form of the payment header: protocol framing plus
// an opaque scheme-specific payload. The payload stays raw until the schema
// validator has checked the framing fields.
type Envelope struct {
	// X402Version is the protocol version (currently 1).
	X402Version int `json:"x402Version"`

	// Scheme is the payment scheme identifier (e.g. "exact").
	Scheme string `json:"scheme"`

	// Network is the blockchain network identifier (e.g. "base").
	Network string `json:"network"`

	// Payload is the scheme-specific signed payment data.
	Payload json.RawMessage `json:"payload"`
}

// Signature carries the ECDSA signature of an authorization, either packed
// (65 bytes, 0x + 130 hex chars) or as v/r/s components.
type Signature struct {
	// Packed is the full hex-encoded signature. Empty when components are set.
	Packed string `json:"signature,omitempty"`

	// V is the recovery id, possibly EIP-155 encoded.
	V uint64 `json:"v,omitempty"`

	// R and S are 32-byte values encoded as 0x + 64 hex chars.
	R string `json:"r,omitempty"`
	S string `json:"s,omitempty"`
}

// Authorization is the validated, strongly typed form of a client-submitted
// transfer authorization. It is constructed once per request by the schema
// validator, is immutable afterwards, and owns no persistent state.
type Authorization struct {
	From        common.Address
	To          common.Address
	Value       *big.Int
	ValidAfter  int64
	ValidBefore int64
	Nonce       string
	Signature   Signature

	// Network and Scheme are carried from the envelope for downstream logging.
	Network string
	Scheme  string
}

// ValidationContext holds the server's expected values for one request.
// It is supplied by the caller per request and read-only to the validators.
type ValidationContext struct {
	// Network is the chain identifier this gateway settles on.
	Network string

	// ExpectedRecipient is the address payments must be made to.
	ExpectedRecipient common.Address

	// ExpectedAmount is the exact price in atomic token units, as a decimal
	// string. Compared as a big integer, never as a float.
	ExpectedAmount string

	// ProtocolVersion and Scheme pin the supported protocol surface.
	ProtocolVersion int
	Scheme          string

	// Now is the time source for the authorization window checks.
	Now time.Time
}

// PaymentRequirement describes one payment option advertised in a 402
// response: what to pay, in what token, on which network, to whom.
type PaymentRequirement struct {
	// Scheme is the payment scheme identifier (e.g. "exact").
	Scheme string `json:"scheme"`

	// Network is the blockchain network identifier.
	Network string `json:"network"`

	// MaxAmountRequired is the price in atomic units (e.g. wei).
	MaxAmountRequired string `json:"maxAmountRequired"`

	// Asset is the token contract address.
	Asset string `json:"asset"`

	// PayTo is the recipient address for the payment.
	PayTo string `json:"payTo"`

	// Resource is the URL of the protected resource.
	Resource string `json:"resource"`

	// Description is an optional human-readable payment description.
	Description string `json:"description"`

	// MimeType is the content type of the protected resource.
	MimeType string `json:"mimeType"`

	// MaxTimeoutSeconds is the validity period for the payment authorization.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds"`

	// Extra contains scheme-specific additional data, such as the EIP-3009
	// domain name and version for EVM tokens.
	Extra map[string]any `json:"extra,omitempty"`
}

// RequirementsResponse is the body of a 402 response: the protocol version,
// a human-readable reason, and the payment options the server accepts.
type RequirementsResponse struct {
	X402Version int                  `json:"x402Version"`
	Error       string               `json:"error"`
	Accepts     []PaymentRequirement `json:"accepts"`
}

// SettlementReceipt is the success result of a settled payment, returned to
// the client in the payment-response header.
type SettlementReceipt struct {
	// Success is true when the payment was settled on chain.
	Success bool `json:"success"`

	// Transaction is the blockchain transaction hash.
	Transaction string `json:"transaction,omitempty"`

	// Network is the blockchain network the payment settled on.
	Network string `json:"network"`

	// Payer is the address that made the payment.
	Payer string `json:"payer,omitempty"`
}
