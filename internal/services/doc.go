// Package services defines shared utilities consumed by the relay handlers and
// the upstream integrations (file cloud and task tracker).
//
// Key responsibilities:
//   - Context helpers that stamp task IDs, operation names, and correlation
//     identifiers for logging.
//   - Structured error markers, the Wrap helper, and StatusError so callers can
//     branch on "not found" or "transient" without parsing messages.
//
// Subpackages hold the HTTP clients for each upstream.
package services
