// Package tracing configures OpenTelemetry.
//
// Components declare a package-level tracer (otel.Tracer("<name>")) and wrap
// event handling and reconcile runs in spans; Setup decides whether those spans
// are exported.
package tracing
