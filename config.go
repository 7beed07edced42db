package arcade

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
)

// Timeouts bounds the facilitator operations. Settlement gets a longer budget
// because it waits on a blockchain transaction.
type Timeouts struct {
	VerifyTimeout  time.Duration
	SettleTimeout  time.Duration
	RequestTimeout time.Duration
}

// DefaultTimeouts are sensible bounds for facilitator operations.
var DefaultTimeouts = Timeouts{
	VerifyTimeout:  5 * time.Second,
	SettleTimeout:  60 * time.Second,
	RequestTimeout: 10 * time.Second,
}

// DefaultFacilitatorBackoff is the suggested retry delay attached to generic
// facilitator errors that carry no more specific guidance. Overridable via
// Config.FacilitatorBackoff.
const DefaultFacilitatorBackoff = 2 * time.Second

// Config holds the gateway-wide settings: which network and token payments
// settle on, who gets paid, what one play costs, and where the facilitator
// lives.
type Config struct {
	// Network is the chain identifier payments must target.
	Network string `validate:"required"`

	// PayTo is the recipient address for every play.
	PayTo string `validate:"required,eth_addr"`

	// Asset is the token contract address payments are denominated in.
	Asset string `validate:"required,eth_addr"`

	// Price is the cost of one play in atomic token units, as a decimal string.
	Price string `validate:"required"`

	// FacilitatorURL is the base URL of the settlement facilitator.
	FacilitatorURL string `validate:"required,url"`

	// Resource and Description annotate the advertised payment requirement.
	Resource    string
	Description string

	// MaxTimeoutSeconds is the advertised authorization validity window.
	// Defaults to 300.
	MaxTimeoutSeconds int

	// Extra is merged into the advertised requirement (EIP-3009 domain data).
	Extra map[string]any

	// Timeouts bounds facilitator calls. Zero fields fall back to
	// DefaultTimeouts.
	Timeouts Timeouts

	// FacilitatorBackoff is the retry delay suggested for generic facilitator
	// errors. Zero falls back to DefaultFacilitatorBackoff.
	FacilitatorBackoff time.Duration
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration. Struct tags cover presence and address
// format; the price needs a big-integer check the tag language cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	price, ok := new(big.Int).SetString(c.Price, 10)
	if !ok {
		return fmt.Errorf("invalid config: price %q is not a base-10 integer", c.Price)
	}
	if price.Sign() <= 0 {
		return fmt.Errorf("invalid config: price must be greater than 0, got %s", c.Price)
	}
	return nil
}

// Requirement builds the payment option advertised in 402 responses.
func (c *Config) Requirement() PaymentRequirement {
	timeout := c.MaxTimeoutSeconds
	if timeout <= 0 {
		timeout = 300
	}
	return PaymentRequirement{
		Scheme:            SchemeExact,
		Network:           c.Network,
		MaxAmountRequired: c.Price,
		Asset:             c.Asset,
		PayTo:             c.PayTo,
		Resource:          c.Resource,
		Description:       c.Description,
		MimeType:          "application/json",
		MaxTimeoutSeconds: timeout,
		Extra:             c.Extra,
	}
}

// Context builds the per-request validation context at the given instant.
func (c *Config) Context(now time.Time) ValidationContext {
	return ValidationContext{
		Network:           c.Network,
		ExpectedRecipient: common.HexToAddress(c.PayTo),
		ExpectedAmount:    c.Price,
		ProtocolVersion:   ProtocolVersion,
		Scheme:            SchemeExact,
		Now:               now,
	}
}

// EffectiveTimeouts returns the configured timeouts with zero fields filled
// from DefaultTimeouts.
func (c *Config) EffectiveTimeouts() Timeouts {
	t := c.Timeouts
	if t.VerifyTimeout <= 0 {
		t.VerifyTimeout = DefaultTimeouts.VerifyTimeout
	}
	if t.SettleTimeout <= 0 {
		t.SettleTimeout = DefaultTimeouts.SettleTimeout
	}
	if t.RequestTimeout <= 0 {
		t.RequestTimeout = DefaultTimeouts.RequestTimeout
	}
	return t
}

// EffectiveFacilitatorBackoff returns the configured generic backoff or the
// default.
func (c *Config) EffectiveFacilitatorBackoff() time.Duration {
	if c.FacilitatorBackoff > 0 {
		return c.FacilitatorBackoff
	}
	return DefaultFacilitatorBackoff
}
