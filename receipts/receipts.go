// Package receipts records settled plays for bookkeeping. Recording is
// best-effort from the gateway's point of view: the payment has already
// settled on chain when a receipt is written.
package receipts

import (
	"context"
	"time"
)

// Receipt is one settled play.
type Receipt struct {
	Payer       string
	Recipient   string
	Asset       string
	Network     string
	Amount      string
	Transaction string
	Resource    string
	SettledAt   time.Time
}

// Recorder persists receipts.
type Recorder interface {
	Record(ctx context.Context, receipt Receipt) error
}

// Noop discards receipts. Useful in tests and verify-only deployments.
type Noop struct{}

func (Noop) Record(context.Context, Receipt) error { return nil }
