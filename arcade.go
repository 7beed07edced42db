// Package arcade implements the payment side of an x402 pay-per-play
// gateway: clients present a signed transfer authorization in place of an
// API key, and the gateway decides whether that authorization is well-formed,
// current, addressed correctly, and ultimately honored by the settlement
// facilitator before a game session is granted.
//
// The root package holds the shared vocabulary: the payment envelope and
// authorization types, the validation context, the closed error taxonomy,
// and the gateway configuration. The pipeline itself lives in the
// subpackages:
//
//   - encoding: base64+JSON codec for the payment headers
//   - validation: schema, window, and match checks (no I/O)
//   - settlement: facilitator client and settlement-outcome classifier
//   - gateway: wires the pipeline into a single approval flow
//   - http, http/gin, http/chi, grpc: transport adapters
//   - sessions, receipts: play-session grants and settled-play records
//   - retry: caller-side retry driven by the taxonomy's retry guidance
//   - logger, metrics: observability surfaces with zap and Prometheus backends
package arcade
