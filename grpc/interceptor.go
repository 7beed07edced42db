// Package grpc gates unary RPCs behind x402 payment. The payment envelope
// travels in request metadata and the settlement receipt comes back in the
// response headers, mirroring the HTTP header exchange.
package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	arcade "github.com/quarterslot/arcade-x402"
	"github.com/quarterslot/arcade-x402/encoding"
	"github.com/quarterslot/arcade-x402/gateway"
)

// Metadata keys. gRPC metadata keys are lowercase by convention.
const (
	MetadataPayment         = "x402-payment"
	MetadataPaymentResponse = "x402-payment-response"
)

type contextKey string

const approvalKey contextKey = "arcade.approval"

// ApprovalFromContext returns the approval stored by the interceptor, or nil
// for RPCs that were not payment-gated.
func ApprovalFromContext(ctx context.Context) *gateway.Approval {
	approval, _ := ctx.Value(approvalKey).(*gateway.Approval)
	return approval
}

// PaymentFromIncomingContext extracts the payment envelope header from
// request metadata. Empty when absent.
func PaymentFromIncomingContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(MetadataPayment)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// AppendPayment attaches a payment envelope to an outgoing RPC context.
// Clients use this the way HTTP clients set the X-PAYMENT header.
func AppendPayment(ctx context.Context, header string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, MetadataPayment, header)
}

// UnaryServerInterceptor runs the approval flow before the handler. Methods
// listed in skip are passed through ungated.
func UnaryServerInterceptor(gw *gateway.Gateway, skip ...string) grpc.UnaryServerInterceptor {
	skipped := make(map[string]struct{}, len(skip))
	for _, method := range skip {
		skipped[method] = struct{}{}
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := skipped[info.FullMethod]; ok {
			return handler(ctx, req)
		}

		approval, terr := gw.Approve(ctx, PaymentFromIncomingContext(ctx))
		if terr != nil {
			return nil, Status(terr)
		}

		if header, err := encoding.EncodeReceipt(approval.Receipt); err == nil {
			_ = grpc.SetHeader(ctx, metadata.Pairs(MetadataPaymentResponse, header))
		}
		return handler(context.WithValue(ctx, approvalKey, approval), req)
	}
}

// Status converts a taxonomy error into a gRPC status error. The taxonomy
// kind rides along as the message prefix so clients can still dispatch on it.
func Status(terr *arcade.TaxonomyError) error {
	return status.Error(Code(terr), terr.Error())
}

// Code maps a taxonomy error's HTTP status onto the closest gRPC code.
// Payment-required maps to ResourceExhausted, the conventional stand-in for
// HTTP 402.
func Code(terr *arcade.TaxonomyError) codes.Code {
	switch terr.HTTPStatus() {
	case 402:
		return codes.ResourceExhausted
	case 400:
		return codes.InvalidArgument
	case 502:
		return codes.Unavailable
	case 504:
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}
