// Command linkrelay runs the tracker-to-Nextcloud link relay and offers
// maintenance commands over its journal.
//
// `linkrelay serve` runs the daemon in the foreground. `status` and
// `recovery run` talk to a running daemon over its admin API; the `journal`
// commands read and edit the journal store directly. `check` verifies
// directories and remote credentials without a daemon.
package main
