// Package chi gates chi routes behind x402 payment. The middleware is a
// plain func(http.Handler) http.Handler, so it slots into router.Use or
// router.With without glue.
package chi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quarterslot/arcade-x402/gateway"
	arcadehttp "github.com/quarterslot/arcade-x402/http"
)

// Middleware returns a chi-compatible payment gate. Approvals are available
// to downstream handlers via arcadehttp.ApprovalFromContext.
func Middleware(gw *gateway.Gateway) func(http.Handler) http.Handler {
	return arcadehttp.Middleware(gw)
}

// Protect returns a sub-router with the payment gate applied, for grouping
// several paid endpoints under one gateway.
func Protect(r chi.Router, gw *gateway.Gateway) chi.Router {
	return r.With(Middleware(gw))
}

// NewRouter builds a router with the payment gate installed on every route.
func NewRouter(gw *gateway.Gateway) chi.Router {
	r := chi.NewRouter()
	r.Use(Middleware(gw))
	return r
}
