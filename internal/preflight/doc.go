// Package preflight provides readiness checks for the directories and remote
// services linkrelay depends on.
//
// The daemon logs RunAll results at startup without refusing to serve, and
// "linkrelay check" prints the same results and exits non-zero on failure.
package preflight
