// Package observability provides structured logging, metrics and tracing
// plumbing for the LLM black box.
//
// This package implements:
//   - zap logger construction from LOG_LEVEL / LOG_FORMAT
//   - a context-aware Logger that stamps request and trace ids
//   - OpenTelemetry tracer and meter providers with otlp, stdout,
//     prometheus or no-op exporters
//   - request id propagation through context.Context
//
// Domain signals (latency, tokens, cost, safety) are emitted by
// services/telemetry on top of the providers built here.
package observability
