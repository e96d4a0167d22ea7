// Package idempotency remembers which event deliveries were already handled.
//
// Every pipeline handler is safe to re-run, so this layer is an optimization: it
// keeps a redelivered event from opening another document store transaction.
// A handler claims the event key before work and releases it on failure.
package idempotency
