// Package gateway wires the validation pipeline, settlement delegation, and
// outcome classification into a single approval flow shared by the HTTP,
// Gin, Chi, and gRPC adapters.
//
// The ordering is the load-bearing invariant: validation always completes
// before any settlement call is attempted, so an authorization that can only
// fail permanently never costs a facilitator round-trip.
package gateway

import (
	"context"
	"time"

	arcade "github.com/quarterslot/arcade-x402"
	"github.com/quarterslot/arcade-x402/encoding"
	"github.com/quarterslot/arcade-x402/logger"
	"github.com/quarterslot/arcade-x402/metrics"
	"github.com/quarterslot/arcade-x402/receipts"
	"github.com/quarterslot/arcade-x402/sessions"
	"github.com/quarterslot/arcade-x402/settlement"
	"github.com/quarterslot/arcade-x402/validation"
)

// Settler abstracts the facilitator call so tests and alternative transports
// can stand in for the HTTP client.
type Settler interface {
	Settle(ctx context.Context, env arcade.Envelope, requirement arcade.PaymentRequirement) settlement.Outcome
}

// Verifier abstracts the facilitator's dry-run check of an authorization.
type Verifier interface {
	Verify(ctx context.Context, env arcade.Envelope, requirement arcade.PaymentRequirement) settlement.Outcome
}

// DefaultSessionTTL bounds how long a granted play session stays redeemable.
const DefaultSessionTTL = 5 * time.Minute

// Gateway runs the pay-per-play approval flow.
type Gateway struct {
	cfg        *arcade.Config
	settler    Settler
	verifier   Verifier
	classifier settlement.Classifier
	sessions   sessions.Store
	receipts   receipts.Recorder
	log        logger.Logger
	metrics    metrics.Recorder
	now        func() time.Time
	sessionTTL time.Duration
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithSessions enables play-session grants backed by the given store.
// A non-positive ttl falls back to DefaultSessionTTL.
func WithSessions(store sessions.Store, ttl time.Duration) Option {
	return func(g *Gateway) {
		g.sessions = store
		if ttl > 0 {
			g.sessionTTL = ttl
		}
	}
}

// WithVerification runs a facilitator verify call before settlement. A
// rejected verification is classified exactly like a settlement rejection
// and no settle call is made.
func WithVerification(v Verifier) Option {
	return func(g *Gateway) { g.verifier = v }
}

// WithReceipts enables settled-play recording.
func WithReceipts(recorder receipts.Recorder) Option {
	return func(g *Gateway) { g.receipts = recorder }
}

// WithLogger sets the structured logger.
func WithLogger(log logger.Logger) Option {
	return func(g *Gateway) { g.log = log }
}

// WithMetrics sets the telemetry recorder.
func WithMetrics(rec metrics.Recorder) Option {
	return func(g *Gateway) { g.metrics = rec }
}

// WithClock overrides the time source. Used by tests to pin the
// authorization window.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// New builds a Gateway for the given configuration and settler.
func New(cfg *arcade.Config, settler Settler, opts ...Option) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := &Gateway{
		cfg:        cfg,
		settler:    settler,
		classifier: settlement.Classifier{DefaultBackoff: cfg.EffectiveFacilitatorBackoff()},
		receipts:   receipts.Noop{},
		log:        logger.NoopLogger{},
		metrics:    metrics.NoopRecorder{},
		now:        time.Now,
		sessionTTL: DefaultSessionTTL,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Requirement exposes the advertised payment option for 402 responses.
func (g *Gateway) Requirement() arcade.PaymentRequirement {
	return g.cfg.Requirement()
}

// Approval is the successful result of one approved play.
type Approval struct {
	Authorization *arcade.Authorization
	Receipt       arcade.SettlementReceipt

	// Session is nil when no session store is configured.
	Session *sessions.Grant
}

// Approve runs the full pipeline for one inbound payment header: decode,
// schema validation, window and match validation, settlement, and outcome
// classification. Any failure at any stage is a taxonomy error; callers
// render it with their transport's envelope serializer.
func (g *Gateway) Approve(ctx context.Context, header string) (*Approval, *arcade.TaxonomyError) {
	labels := map[string]string{"network": g.cfg.Network}

	if header == "" {
		g.metrics.IncCounter(metrics.EventPaymentRequired, labels)
		return nil, arcade.NewError(arcade.KindMissingHeader,
			arcade.WithDetail("accepts", []arcade.PaymentRequirement{g.cfg.Requirement()}))
	}

	env, err := encoding.DecodeEnvelope(header)
	if err != nil {
		g.metrics.IncCounter(metrics.EventValidationFailed, labels)
		return nil, arcade.NewError(arcade.KindMalformedHeader, arcade.WithCause(err))
	}

	vctx := g.cfg.Context(g.now())

	auth, terr := validation.Schema(env, vctx)
	if terr != nil {
		g.metrics.IncCounter(metrics.EventValidationFailed, labels)
		g.log.Warn("authorization failed schema validation", map[string]any{
			"kind":    string(terr.Kind),
			"network": env.Network,
		})
		return nil, terr
	}

	report, terr := validation.WindowAndMatch(auth, vctx)
	if report.Failed() {
		g.log.Warn("authorization failed window/match checks", map[string]any{
			"kinds": report.Kinds(),
			"payer": auth.From.Hex(),
		})
	}
	if terr != nil {
		g.metrics.IncCounter(metrics.EventValidationFailed, labels)
		return nil, terr
	}

	// Validation passed; facilitator calls are allowed from here on.
	if g.verifier != nil {
		start := time.Now()
		outcome := g.verifier.Verify(ctx, env, g.cfg.Requirement())
		g.metrics.ObserveLatency("verify", time.Since(start), labels)
		if terr := g.classifier.Classify(outcome); terr != nil {
			g.metrics.IncCounter(metrics.EventSettlementFailed, labels)
			g.log.Warn("facilitator rejected authorization on verify", map[string]any{
				"kind":  string(terr.Kind),
				"payer": auth.From.Hex(),
			})
			return nil, terr
		}
	}

	start := time.Now()
	outcome := g.settleSafely(ctx, env)
	g.metrics.ObserveLatency("settle", time.Since(start), labels)

	if terr := g.classifier.Classify(outcome); terr != nil {
		g.metrics.IncCounter(metrics.EventSettlementFailed, labels)
		g.log.Warn("settlement failed", map[string]any{
			"kind":      string(terr.Kind),
			"retryable": terr.Retryable(),
			"payer":     auth.From.Hex(),
		})
		return nil, terr
	}

	receipt := arcade.SettlementReceipt{
		Success:     true,
		Transaction: outcome.Transaction,
		Network:     outcome.Network,
		Payer:       outcome.Payer,
	}
	if receipt.Network == "" {
		receipt.Network = g.cfg.Network
	}
	if receipt.Payer == "" {
		receipt.Payer = auth.From.Hex()
	}

	if err := g.receipts.Record(ctx, receipts.Receipt{
		Payer:       receipt.Payer,
		Recipient:   g.cfg.PayTo,
		Asset:       g.cfg.Asset,
		Network:     receipt.Network,
		Amount:      auth.Value.String(),
		Transaction: receipt.Transaction,
		Resource:    g.cfg.Resource,
		SettledAt:   g.now(),
	}); err != nil {
		// The payment already settled; a lost receipt must not fail the play.
		g.log.Error("failed to record play receipt", map[string]any{"error": err.Error()})
	}

	approval := &Approval{Authorization: auth, Receipt: receipt}

	if g.sessions != nil {
		grant, err := g.issueSession(ctx, receipt)
		if err != nil {
			g.log.Error("failed to issue play session", map[string]any{"error": err.Error()})
		} else {
			approval.Session = &grant
		}
	}

	g.metrics.IncCounter(metrics.EventPaymentSettled, labels)
	g.log.Info("play approved", map[string]any{
		"payer":       receipt.Payer,
		"transaction": receipt.Transaction,
	})
	return approval, nil
}

func (g *Gateway) issueSession(ctx context.Context, receipt arcade.SettlementReceipt) (sessions.Grant, error) {
	token, err := sessions.NewToken()
	if err != nil {
		return sessions.Grant{}, err
	}
	now := g.now()
	grant := sessions.Grant{
		Token:       token,
		Payer:       receipt.Payer,
		Resource:    g.cfg.Resource,
		Transaction: receipt.Transaction,
		IssuedAt:    now,
		ExpiresAt:   now.Add(g.sessionTTL),
	}
	if err := g.sessions.Put(ctx, grant); err != nil {
		return sessions.Grant{}, err
	}
	return grant, nil
}

// settleSafely keeps a panicking settler inside the taxonomy contract: the
// classifier turns the empty outcome into the internal fallback kind instead
// of letting the panic propagate to the transport layer.
func (g *Gateway) settleSafely(ctx context.Context, env arcade.Envelope) (outcome settlement.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error("settler panicked", map[string]any{"panic": r})
			outcome = settlement.Outcome{}
		}
	}()
	return g.settler.Settle(ctx, env, g.cfg.Requirement())
}
