package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"

	arcade "github.com/quarterslot/arcade-x402"
	"github.com/quarterslot/arcade-x402/logger"
)

// maxErrorBody bounds how much of an upstream error body is read.
const maxErrorBody = 1 << 20

// Client talks to the x402 settlement facilitator. It never returns a Go
// error from Settle: every failure mode, including transport failures, is
// captured in the Outcome so the classifier can produce a taxonomy verdict.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeouts   arcade.Timeouts

	// Authorization is an optional static Authorization header value for the
	// facilitator, e.g. "Bearer api-key".
	Authorization string

	Logger logger.Logger
}

// NewClient creates a facilitator client with the given base URL.
func NewClient(baseURL string, timeouts arcade.Timeouts) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{},
		Timeouts:   timeouts,
		Logger:     logger.NoopLogger{},
	}
}

// settleRequest is the payload sent to the facilitator /settle endpoint.
type settleRequest struct {
	X402Version         int                       `json:"x402Version"`
	PaymentPayload      arcade.Envelope           `json:"paymentPayload"`
	PaymentRequirements arcade.PaymentRequirement `json:"paymentRequirements"`
}

// settleResponse is the facilitator's 200 response body.
type settleResponse struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network"`
	Payer       string `json:"payer,omitempty"`
}

// verifyResponse is the facilitator's /verify 200 response body.
type verifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// upstreamError is a tolerant view of facilitator error bodies. Different
// facilitator builds use different field names; a body matching none of them
// still yields a structured outcome with an empty code.
type upstreamError struct {
	Error        string `json:"error,omitempty"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorReason  string `json:"errorReason,omitempty"`
	Code         string `json:"code,omitempty"`
	Message      string `json:"message,omitempty"`
	RetryAfterMs int64  `json:"retryAfterMs,omitempty"`
}

func (u upstreamError) code() string {
	for _, c := range []string{u.ErrorCode, u.Code, u.ErrorReason} {
		if c != "" {
			return c
		}
	}
	return ""
}

func (u upstreamError) message() string {
	for _, m := range []string{u.Message, u.Error, u.ErrorReason} {
		if m != "" {
			return m
		}
	}
	return ""
}

// Settle submits the validated payment for settlement. The call is bounded
// by the settle timeout and aborted if ctx is cancelled, e.g. when the
// inbound client disconnects while settlement is pending.
func (c *Client) Settle(ctx context.Context, env arcade.Envelope, requirement arcade.PaymentRequirement) Outcome {
	timeout := c.Timeouts.SettleTimeout
	if timeout <= 0 {
		timeout = arcade.DefaultTimeouts.SettleTimeout
	}
	return c.post(ctx, "/settle", timeout, env, requirement, c.decodeSettled)
}

// Verify asks the facilitator to check the authorization (signature, balance,
// nonce) without settling it. Bounded by the verify timeout.
func (c *Client) Verify(ctx context.Context, env arcade.Envelope, requirement arcade.PaymentRequirement) Outcome {
	timeout := c.Timeouts.VerifyTimeout
	if timeout <= 0 {
		timeout = arcade.DefaultTimeouts.VerifyTimeout
	}
	return c.post(ctx, "/verify", timeout, env, requirement, c.decodeVerified)
}

// post runs one facilitator call end to end. decode handles the 200 body;
// everything else goes through decodeRejection.
func (c *Client) post(ctx context.Context, path string, timeout time.Duration, env arcade.Envelope, requirement arcade.PaymentRequirement, decode func(*http.Response) Outcome) Outcome {
	body, err := json.Marshal(settleRequest{
		X402Version:         arcade.ProtocolVersion,
		PaymentPayload:      env,
		PaymentRequirements: requirement,
	})
	if err != nil {
		return Outcome{Transport: TransportOther, Message: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return Outcome{Transport: TransportOther, Message: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.Authorization != "" {
		httpReq.Header.Set("Authorization", c.Authorization)
	}

	start := time.Now()
	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		signal := transportSignal(err)
		c.log().Warn("facilitator transport failure", map[string]any{
			"path":    path,
			"signal":  string(signal),
			"error":   err.Error(),
			"elapsed": time.Since(start).String(),
		})
		return Outcome{Transport: signal, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return decode(resp)
	}
	return c.decodeRejection(resp)
}

func (c *Client) decodeVerified(resp *http.Response) Outcome {
	var verified verifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&verified); err != nil {
		return Outcome{StatusCode: resp.StatusCode, Message: "unparsable verify response: " + err.Error()}
	}
	if !verified.IsValid {
		return Outcome{
			StatusCode: http.StatusBadRequest,
			Code:       verified.InvalidReason,
			Message:    verified.InvalidReason,
			Payer:      verified.Payer,
		}
	}
	return Outcome{
		Success:    true,
		StatusCode: resp.StatusCode,
		Payer:      verified.Payer,
	}
}

func (c *Client) decodeSettled(resp *http.Response) Outcome {
	var settled settleResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&settled); err != nil {
		return Outcome{StatusCode: resp.StatusCode, Message: "unparsable settle response: " + err.Error()}
	}
	if !settled.Success {
		// Some facilitator builds report rejection inside a 200 body.
		return Outcome{
			StatusCode: http.StatusBadRequest,
			Code:       settled.ErrorReason,
			Message:    settled.ErrorReason,
			Network:    settled.Network,
			Payer:      settled.Payer,
		}
	}
	c.log().Info("payment settled", map[string]any{
		"transaction": settled.Transaction,
		"network":     settled.Network,
		"payer":       settled.Payer,
	})
	return Outcome{
		Success:     true,
		StatusCode:  resp.StatusCode,
		Transaction: settled.Transaction,
		Network:     settled.Network,
		Payer:       settled.Payer,
	}
}

func (c *Client) decodeRejection(resp *http.Response) Outcome {
	var upstream upstreamError
	// A malformed body still produces a structured outcome.
	_ = json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&upstream)

	outcome := Outcome{
		StatusCode: resp.StatusCode,
		Code:       upstream.code(),
		Message:    upstream.message(),
	}
	if upstream.RetryAfterMs > 0 {
		outcome.RetryAfter = time.Duration(upstream.RetryAfterMs) * time.Millisecond
	} else if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && seconds > 0 {
		outcome.RetryAfter = time.Duration(seconds) * time.Second
	}
	return outcome
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) log() logger.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logger.NoopLogger{}
}

// transportSignal maps a transport-level error onto the closed signal set
// the classifier understands.
func transportSignal(err error) TransportSignal {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return TransportTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return TransportTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return TransportDNSFailure
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return TransportConnectionRefused
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return TransportConnectionReset
	}
	return TransportOther
}
