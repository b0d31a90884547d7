// Package dispatch runs fire-and-forget units of work while keeping enough
// bookkeeping for shutdown and tests to wait for them deterministically.
package dispatch
