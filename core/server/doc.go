// Package server holds the HTTP server configuration and constants.
//
// The start command builds the fiber app from this Config: the listening port,
// the API key guarding webhook and admin routes, and which event sources feed
// the pipeline (webhook deliveries, the bucket notification listener, or both).
package server
