// Package testsupport provides shared fixtures for linkrelay tests: temp-dir
// configs, journal stores, and a recording fake of the remote APIs.
package testsupport
