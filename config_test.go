package arcade

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Network:        "base-sepolia",
		PayTo:          "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
		Asset:          "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Price:          "250000",
		FacilitatorURL: "https://facilitator.example",
		Resource:       "https://arcade.example/play",
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing network", func(c *Config) { c.Network = "" }, true},
		{"bad recipient address", func(c *Config) { c.PayTo = "not-an-address" }, true},
		{"bad asset address", func(c *Config) { c.Asset = "0x1234" }, true},
		{"bad facilitator url", func(c *Config) { c.FacilitatorURL = "::nope" }, true},
		{"price not integer", func(c *Config) { c.Price = "0.25" }, true},
		{"price zero", func(c *Config) { c.Price = "0" }, true},
		{"price negative", func(c *Config) { c.Price = "-5" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestConfigRequirement(t *testing.T) {
	cfg := validConfig()
	req := cfg.Requirement()

	if req.Scheme != SchemeExact {
		t.Errorf("Scheme = %q", req.Scheme)
	}
	if req.MaxAmountRequired != cfg.Price {
		t.Errorf("MaxAmountRequired = %q", req.MaxAmountRequired)
	}
	if req.MaxTimeoutSeconds != 300 {
		t.Errorf("MaxTimeoutSeconds default = %d, want 300", req.MaxTimeoutSeconds)
	}

	cfg.MaxTimeoutSeconds = 60
	if got := cfg.Requirement().MaxTimeoutSeconds; got != 60 {
		t.Errorf("MaxTimeoutSeconds = %d, want 60", got)
	}
}

func TestConfigContext(t *testing.T) {
	cfg := validConfig()
	now := time.Unix(1_700_000_000, 0)
	vctx := cfg.Context(now)

	if vctx.Network != cfg.Network {
		t.Errorf("Network = %q", vctx.Network)
	}
	if vctx.ExpectedAmount != cfg.Price {
		t.Errorf("ExpectedAmount = %q", vctx.ExpectedAmount)
	}
	if vctx.ProtocolVersion != ProtocolVersion {
		t.Errorf("ProtocolVersion = %d", vctx.ProtocolVersion)
	}
	if !vctx.Now.Equal(now) {
		t.Errorf("Now = %v", vctx.Now)
	}
}

func TestEffectiveTimeouts(t *testing.T) {
	cfg := validConfig()
	got := cfg.EffectiveTimeouts()
	if got != DefaultTimeouts {
		t.Errorf("zero timeouts should fall back to defaults, got %+v", got)
	}

	cfg.Timeouts.SettleTimeout = 90 * time.Second
	got = cfg.EffectiveTimeouts()
	if got.SettleTimeout != 90*time.Second {
		t.Errorf("SettleTimeout = %v", got.SettleTimeout)
	}
	if got.VerifyTimeout != DefaultTimeouts.VerifyTimeout {
		t.Errorf("VerifyTimeout = %v", got.VerifyTimeout)
	}
}

func TestEffectiveFacilitatorBackoff(t *testing.T) {
	cfg := validConfig()
	if got := cfg.EffectiveFacilitatorBackoff(); got != DefaultFacilitatorBackoff {
		t.Errorf("default backoff = %v", got)
	}
	cfg.FacilitatorBackoff = 7 * time.Second
	if got := cfg.EffectiveFacilitatorBackoff(); got != 7*time.Second {
		t.Errorf("backoff = %v", got)
	}
}
