// Package gin gates Gin handlers behind x402 payment.
package gin

import (
	"strconv"

	"github.com/gin-gonic/gin"

	arcade "github.com/quarterslot/arcade-x402"
	"github.com/quarterslot/arcade-x402/encoding"
	"github.com/quarterslot/arcade-x402/gateway"
	arcadehttp "github.com/quarterslot/arcade-x402/http"
)

// ApprovalKey is where the middleware stores the approval in the Gin context.
const ApprovalKey = "arcade.approval"

// Approval returns the approval for the current request, or nil when the
// request was not payment-gated.
func Approval(c *gin.Context) *gateway.Approval {
	value, ok := c.Get(ApprovalKey)
	if !ok {
		return nil
	}
	approval, _ := value.(*gateway.Approval)
	return approval
}

// Middleware returns a Gin middleware that runs the approval flow. Failures
// abort the request with the shared error envelope; approved requests carry
// the settlement receipt in the X-PAYMENT-RESPONSE header.
func Middleware(gw *gateway.Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		approval, terr := gw.Approve(c.Request.Context(), c.GetHeader(arcade.HeaderPayment))
		if terr != nil {
			if terr.Retryable() && terr.RetryAfter > 0 {
				secs := (terr.RetryAfter.Milliseconds() + 999) / 1000
				c.Header("Retry-After", strconv.FormatInt(secs, 10))
			}
			c.AbortWithStatusJSON(terr.HTTPStatus(), arcadehttp.NewErrorEnvelope(terr))
			return
		}
		if header, err := encoding.EncodeReceipt(approval.Receipt); err == nil {
			c.Header(arcade.HeaderPaymentResponse, header)
		}
		c.Set(ApprovalKey, approval)
		c.Next()
	}
}
