// Package daemon coordinates the long-running linkrelay process.
//
// It wires configuration, the journal store, the remote clients, the intake
// handler, and the recovery scheduler behind one HTTP listener, with
// flock-based locking to prevent two relays from sharing a journal. Shutdown
// stops accepting webhooks first, then drains in-flight units of work.
package daemon
