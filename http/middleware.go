package http

import (
	"context"
	"net/http"

	arcade "github.com/quarterslot/arcade-x402"
	"github.com/quarterslot/arcade-x402/encoding"
	"github.com/quarterslot/arcade-x402/gateway"
)

type contextKey string

const approvalKey contextKey = "arcade.approval"

// ApprovalFromContext returns the approval stored by the middleware for the
// current request, or nil for requests that did not go through payment
// gating.
func ApprovalFromContext(ctx context.Context) *gateway.Approval {
	approval, _ := ctx.Value(approvalKey).(*gateway.Approval)
	return approval
}

// WithApproval stores an approval in the context. Exposed for the adapter
// subpackages and for handler tests.
func WithApproval(ctx context.Context, approval *gateway.Approval) context.Context {
	return context.WithValue(ctx, approvalKey, approval)
}

// Middleware gates a handler behind x402 payment. Requests without a valid,
// settled payment get the taxonomy error envelope; approved requests carry
// the approval in their context and the settlement receipt in the
// X-PAYMENT-RESPONSE header.
func Middleware(gw *gateway.Gateway) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			approval, terr := gw.Approve(r.Context(), r.Header.Get(arcade.HeaderPayment))
			if terr != nil {
				WriteError(w, terr)
				return
			}
			if header, err := encoding.EncodeReceipt(approval.Receipt); err == nil {
				w.Header().Set(arcade.HeaderPaymentResponse, header)
			}
			next.ServeHTTP(w, r.WithContext(WithApproval(r.Context(), approval)))
		})
	}
}
