package validation

import (
	"math/big"

	arcade "github.com/quarterslot/arcade-x402"
)

// Report collects every window and match failure for one authorization.
// The checks do not short-circuit: all four run so operators get the full
// picture in the logs, but the first failing check is the canonical error
// returned to the caller.
type Report struct {
	Failures []*arcade.TaxonomyError
}

// Failed reports whether any check failed.
func (r *Report) Failed() bool {
	return len(r.Failures) > 0
}

// Canonical returns the first failure, or nil when all checks passed.
func (r *Report) Canonical() *arcade.TaxonomyError {
	if len(r.Failures) == 0 {
		return nil
	}
	return r.Failures[0]
}

// Kinds lists the failed kinds for structured logging.
func (r *Report) Kinds() []string {
	kinds := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		kinds = append(kinds, string(f.Kind))
	}
	return kinds
}

// WindowAndMatch verifies the business invariants a structural check cannot
// express: exact amount, exact recipient, and the validity window. The
// window is inclusive at validAfter and exclusive at validBefore, so an
// authorization checked exactly at validBefore is already expired.
//
// The verdict is a pure function of (authorization, context): the same
// inputs produce the same result on every call.
func WindowAndMatch(auth *arcade.Authorization, vctx arcade.ValidationContext) (*Report, *arcade.TaxonomyError) {
	report := &Report{}

	expected, ok := new(big.Int).SetString(vctx.ExpectedAmount, 10)
	if !ok {
		// Misconfigured context, not a client fault.
		terr := arcade.NewError(arcade.KindInternal,
			arcade.WithMessage("expected amount %q is not a base-10 integer", vctx.ExpectedAmount))
		return report, terr
	}

	if auth.Value.Cmp(expected) != 0 {
		report.Failures = append(report.Failures, arcade.NewError(arcade.KindAmountMismatch,
			arcade.WithDetail("expected", expected.String()),
			arcade.WithDetail("actual", auth.Value.String())))
	}

	if auth.To != vctx.ExpectedRecipient {
		report.Failures = append(report.Failures, arcade.NewError(arcade.KindRecipientMismatch,
			arcade.WithDetail("expected", vctx.ExpectedRecipient.Hex()),
			arcade.WithDetail("actual", auth.To.Hex())))
	}

	now := vctx.Now.Unix()

	if now < auth.ValidAfter {
		report.Failures = append(report.Failures, arcade.NewError(arcade.KindNotYetValid,
			arcade.WithDetail("secondsUntilValid", auth.ValidAfter-now)))
	}

	if now >= auth.ValidBefore {
		report.Failures = append(report.Failures, arcade.NewError(arcade.KindExpired,
			arcade.WithDetail("secondsSinceExpiry", now-auth.ValidBefore)))
	}

	return report, report.Canonical()
}
