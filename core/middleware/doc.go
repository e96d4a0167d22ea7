// Package middleware groups the Fiber middleware of the HTTP surface.
//
//   - auth: API key check on webhook and admin routes.
//   - rayid: assigns every request an id, stored in locals and echoed in the
//     X-Ray-ID response header, so logs of one delivery can be correlated.
package middleware
