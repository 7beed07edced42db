package arcade

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ChainConfig contains chain-specific configuration for USDC payments.
// All USDC addresses and EIP-3009 parameters were verified on 2025-10-28.
type ChainConfig struct {
	// NetworkID is the x402 protocol network identifier (e.g. "base").
	NetworkID string

	// USDCAddress is the official Circle USDC contract address.
	USDCAddress string

	// Decimals is the number of decimal places for USDC (always 6).
	Decimals uint8

	// EIP3009Name and EIP3009Version are the EIP-3009 domain parameters.
	EIP3009Name    string
	EIP3009Version string
}

// Mainnet chain configurations.
var (
	BaseMainnet = ChainConfig{
		NetworkID:      "base",
		USDCAddress:    "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		Decimals:       6,
		EIP3009Name:    "USD Coin",
		EIP3009Version: "2",
	}

	PolygonMainnet = ChainConfig{
		NetworkID:      "polygon",
		USDCAddress:    "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
		Decimals:       6,
		EIP3009Name:    "USD Coin",
		EIP3009Version: "2",
	}

	AvalancheMainnet = ChainConfig{
		NetworkID:      "avalanche",
		USDCAddress:    "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E",
		Decimals:       6,
		EIP3009Name:    "USD Coin",
		EIP3009Version: "2",
	}
)

// Testnet chain configurations.
var (
	BaseSepolia = ChainConfig{
		NetworkID:      "base-sepolia",
		USDCAddress:    "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Decimals:       6,
		EIP3009Name:    "USDC",
		EIP3009Version: "2",
	}

	PolygonAmoy = ChainConfig{
		NetworkID:      "polygon-amoy",
		USDCAddress:    "0x41E94Eb019C0762f9Bfcf9Fb1E58725BfB0e7582",
		Decimals:       6,
		EIP3009Name:    "USDC",
		EIP3009Version: "2",
	}
)

var knownChains = []ChainConfig{
	BaseMainnet, PolygonMainnet, AvalancheMainnet, BaseSepolia, PolygonAmoy,
}

// FindChain looks up a chain configuration by network identifier.
func FindChain(networkID string) (ChainConfig, bool) {
	for _, c := range knownChains {
		if c.NetworkID == networkID {
			return c, true
		}
	}
	return ChainConfig{}, false
}

// AtomicAmount converts a human-readable token amount (e.g. "0.25") into an
// atomic-unit decimal string (e.g. "250000" for 6 decimals). Amounts with
// more precision than the token supports are rejected rather than rounded.
func AtomicAmount(amount string, decimals uint8) (string, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return "", fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return "", fmt.Errorf("amount cannot be negative: %s", amount)
	}

	shifted := d.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return "", fmt.Errorf("amount %s has more than %d decimal places", amount, decimals)
	}
	return shifted.Truncate(0).String(), nil
}

// USDCConfig builds a gateway Config for a USDC pay-per-play resource.
// price is the human-readable USDC amount for one play (e.g. "0.25").
func USDCConfig(chain ChainConfig, price, payTo, facilitatorURL string) (*Config, error) {
	atomic, err := AtomicAmount(price, chain.Decimals)
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		Network:        chain.NetworkID,
		PayTo:          payTo,
		Asset:          chain.USDCAddress,
		Price:          atomic,
		FacilitatorURL: facilitatorURL,
		Extra: map[string]any{
			"name":    chain.EIP3009Name,
			"version": chain.EIP3009Version,
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
