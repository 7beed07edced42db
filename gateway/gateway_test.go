package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	arcade "github.com/quarterslot/arcade-x402"
	"github.com/quarterslot/arcade-x402/encoding"
	"github.com/quarterslot/arcade-x402/receipts"
	"github.com/quarterslot/arcade-x402/sessions"
	"github.com/quarterslot/arcade-x402/settlement"
)

const (
	payerAddr     = "0x1111111111111111111111111111111111111111"
	recipientAddr = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"
)

var frozenNow = time.Unix(1_700_000_000, 0)

func testConfig() *arcade.Config {
	return &arcade.Config{
		Network:        "base-sepolia",
		PayTo:          recipientAddr,
		Asset:          "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Price:          "250000",
		FacilitatorURL: "https://facilitator.example",
		Resource:       "https://arcade.example/play",
	}
}

// fakeSettler records whether it was called and replies with a fixed outcome.
type fakeSettler struct {
	mu      sync.Mutex
	calls   int
	outcome settlement.Outcome
	panics  bool
}

func (f *fakeSettler) Settle(context.Context, arcade.Envelope, arcade.PaymentRequirement) settlement.Outcome {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.panics {
		panic("settler exploded")
	}
	return f.outcome
}

func (f *fakeSettler) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func settledOutcome() settlement.Outcome {
	return settlement.Outcome{
		Success:     true,
		StatusCode:  200,
		Transaction: "0xdeadbeef",
		Network:     "base-sepolia",
		Payer:       payerAddr,
	}
}

// paymentHeader builds an encoded envelope whose window brackets frozenNow.
func paymentHeader(t *testing.T, overrides map[string]any) string {
	t.Helper()
	fields := map[string]any{
		"from":        payerAddr,
		"to":          recipientAddr,
		"value":       "250000",
		"validAfter":  "1699999000",
		"validBefore": "1700001000",
		"nonce":       "0x" + strings.Repeat("ab", 32),
		"signature":   "0x" + strings.Repeat("cd", 65),
	}
	for k, v := range overrides {
		fields[k] = v
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		t.Fatal(err)
	}
	header, err := encoding.EncodeEnvelope(arcade.Envelope{
		X402Version: arcade.ProtocolVersion,
		Scheme:      arcade.SchemeExact,
		Network:     "base-sepolia",
		Payload:     payload,
	})
	if err != nil {
		t.Fatal(err)
	}
	return header
}

func newGateway(t *testing.T, settler Settler, opts ...Option) *Gateway {
	t.Helper()
	opts = append(opts, WithClock(func() time.Time { return frozenNow }))
	gw, err := New(testConfig(), settler, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return gw
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Price = "0"
	if _, err := New(cfg, &fakeSettler{}); err == nil {
		t.Error("expected config error")
	}
}

func TestApproveMissingHeader(t *testing.T) {
	settler := &fakeSettler{outcome: settledOutcome()}
	gw := newGateway(t, settler)

	_, terr := gw.Approve(context.Background(), "")
	if terr == nil {
		t.Fatal("expected error")
	}
	if terr.Kind != arcade.KindMissingHeader {
		t.Errorf("Kind = %q", terr.Kind)
	}
	if terr.HTTPStatus() != 402 {
		t.Errorf("HTTPStatus() = %d, want 402", terr.HTTPStatus())
	}
	accepts, ok := terr.Details["accepts"].([]arcade.PaymentRequirement)
	if !ok || len(accepts) != 1 {
		t.Errorf("accepts detail = %v", terr.Details["accepts"])
	}
	if settler.callCount() != 0 {
		t.Error("settler must not be called without a header")
	}
}

func TestApproveMalformedHeader(t *testing.T) {
	settler := &fakeSettler{outcome: settledOutcome()}
	gw := newGateway(t, settler)

	_, terr := gw.Approve(context.Background(), "!!!not-base64!!!")
	if terr == nil {
		t.Fatal("expected error")
	}
	if terr.Kind != arcade.KindMalformedHeader {
		t.Errorf("Kind = %q", terr.Kind)
	}
	if settler.callCount() != 0 {
		t.Error("settler must not be called for an undecodable header")
	}
}

func TestApproveNeverSettlesAfterValidationFailure(t *testing.T) {
	tests := []struct {
		name     string
		override map[string]any
		want     arcade.Kind
	}{
		{"expired", map[string]any{"validBefore": "1699999500"}, arcade.KindExpired},
		{"not yet valid", map[string]any{"validAfter": "1700000500"}, arcade.KindNotYetValid},
		{"wrong amount", map[string]any{"value": "1"}, arcade.KindAmountMismatch},
		{"wrong recipient", map[string]any{"to": payerAddr}, arcade.KindRecipientMismatch},
		{"bad nonce", map[string]any{"nonce": "0x1234"}, arcade.KindMalformedField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settler := &fakeSettler{outcome: settledOutcome()}
			gw := newGateway(t, settler)

			_, terr := gw.Approve(context.Background(), paymentHeader(t, tt.override))
			if terr == nil {
				t.Fatal("expected error")
			}
			if terr.Kind != tt.want {
				t.Errorf("Kind = %q, want %q", terr.Kind, tt.want)
			}
			if settler.callCount() != 0 {
				t.Error("settler must not be called after a validation failure")
			}
		})
	}
}

func TestApproveSettlesValidPayment(t *testing.T) {
	settler := &fakeSettler{outcome: settledOutcome()}
	gw := newGateway(t, settler)

	approval, terr := gw.Approve(context.Background(), paymentHeader(t, nil))
	if terr != nil {
		t.Fatalf("unexpected error: %v", terr)
	}
	if settler.callCount() != 1 {
		t.Errorf("settler calls = %d, want 1", settler.callCount())
	}
	if !approval.Receipt.Success || approval.Receipt.Transaction != "0xdeadbeef" {
		t.Errorf("Receipt = %+v", approval.Receipt)
	}
	if approval.Authorization == nil || approval.Authorization.Value.String() != "250000" {
		t.Errorf("Authorization = %+v", approval.Authorization)
	}
	if approval.Session != nil {
		t.Error("no session store configured, Session should be nil")
	}
}

func TestApproveFillsReceiptGaps(t *testing.T) {
	// A facilitator reply without network or payer still yields a complete
	// receipt from the config and the authorization.
	settler := &fakeSettler{outcome: settlement.Outcome{Success: true, StatusCode: 200, Transaction: "0xfeed"}}
	gw := newGateway(t, settler)

	approval, terr := gw.Approve(context.Background(), paymentHeader(t, nil))
	if terr != nil {
		t.Fatalf("unexpected error: %v", terr)
	}
	if approval.Receipt.Network != "base-sepolia" {
		t.Errorf("Network = %q", approval.Receipt.Network)
	}
	if approval.Receipt.Payer != payerAddr {
		t.Errorf("Payer = %q", approval.Receipt.Payer)
	}
}

func TestApproveClassifiesSettlementFailure(t *testing.T) {
	settler := &fakeSettler{outcome: settlement.Outcome{StatusCode: 400, Code: "nonce_used"}}
	gw := newGateway(t, settler)

	_, terr := gw.Approve(context.Background(), paymentHeader(t, nil))
	if terr == nil {
		t.Fatal("expected error")
	}
	if terr.Kind != arcade.KindNonceUsed {
		t.Errorf("Kind = %q, want %q", terr.Kind, arcade.KindNonceUsed)
	}
	if terr.Retryable() {
		t.Error("a used nonce must not be retryable")
	}
}

func TestApproveContainsSettlerPanic(t *testing.T) {
	settler := &fakeSettler{panics: true}
	gw := newGateway(t, settler)

	_, terr := gw.Approve(context.Background(), paymentHeader(t, nil))
	if terr == nil {
		t.Fatal("expected error")
	}
	if terr.Kind != arcade.KindInternal {
		t.Errorf("Kind = %q, want %q", terr.Kind, arcade.KindInternal)
	}
}

func TestApproveIssuesSession(t *testing.T) {
	store := sessions.NewMemoryStore()
	settler := &fakeSettler{outcome: settledOutcome()}
	gw := newGateway(t, settler, WithSessions(store, 2*time.Minute))

	approval, terr := gw.Approve(context.Background(), paymentHeader(t, nil))
	if terr != nil {
		t.Fatalf("unexpected error: %v", terr)
	}
	if approval.Session == nil {
		t.Fatal("expected a session grant")
	}
	if approval.Session.Payer != payerAddr {
		t.Errorf("Payer = %q", approval.Session.Payer)
	}
	if got := approval.Session.ExpiresAt.Sub(approval.Session.IssuedAt); got != 2*time.Minute {
		t.Errorf("session lifetime = %v, want 2m", got)
	}

	grant, err := store.Redeem(context.Background(), approval.Session.Token)
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if grant.Transaction != "0xdeadbeef" {
		t.Errorf("Transaction = %q", grant.Transaction)
	}
}

// fakeVerifier mirrors fakeSettler for the verify call.
type fakeVerifier struct {
	mu      sync.Mutex
	calls   int
	outcome settlement.Outcome
}

func (f *fakeVerifier) Verify(context.Context, arcade.Envelope, arcade.PaymentRequirement) settlement.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.outcome
}

func TestApproveVerificationBlocksSettlement(t *testing.T) {
	settler := &fakeSettler{outcome: settledOutcome()}
	verifier := &fakeVerifier{outcome: settlement.Outcome{StatusCode: 400, Code: "invalid_signature"}}
	gw := newGateway(t, settler, WithVerification(verifier))

	_, terr := gw.Approve(context.Background(), paymentHeader(t, nil))
	if terr == nil {
		t.Fatal("expected error")
	}
	if terr.Kind != arcade.KindInvalidSignature {
		t.Errorf("Kind = %q, want %q", terr.Kind, arcade.KindInvalidSignature)
	}
	if settler.callCount() != 0 {
		t.Error("settler must not be called when verification fails")
	}
}

func TestApproveVerificationPassThrough(t *testing.T) {
	settler := &fakeSettler{outcome: settledOutcome()}
	verifier := &fakeVerifier{outcome: settlement.Outcome{Success: true, StatusCode: 200}}
	gw := newGateway(t, settler, WithVerification(verifier))

	if _, terr := gw.Approve(context.Background(), paymentHeader(t, nil)); terr != nil {
		t.Fatalf("unexpected error: %v", terr)
	}
	if verifier.calls != 1 || settler.callCount() != 1 {
		t.Errorf("verifier calls = %d, settler calls = %d", verifier.calls, settler.callCount())
	}
}

// recordingReceipts captures receipts in memory.
type recordingReceipts struct {
	mu       sync.Mutex
	recorded []receipts.Receipt
}

func (r *recordingReceipts) Record(_ context.Context, receipt receipts.Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorded = append(r.recorded, receipt)
	return nil
}

func TestApproveRecordsReceipt(t *testing.T) {
	recorder := &recordingReceipts{}
	settler := &fakeSettler{outcome: settledOutcome()}
	gw := newGateway(t, settler, WithReceipts(recorder))

	if _, terr := gw.Approve(context.Background(), paymentHeader(t, nil)); terr != nil {
		t.Fatalf("unexpected error: %v", terr)
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.recorded) != 1 {
		t.Fatalf("recorded %d receipts, want 1", len(recorder.recorded))
	}
	got := recorder.recorded[0]
	if got.Payer != payerAddr || got.Amount != "250000" || got.Transaction != "0xdeadbeef" {
		t.Errorf("receipt = %+v", got)
	}
}
