// Package httpapi exposes the tracker webhook endpoints, health and metrics,
// and a token-protected admin API over the journal and recovery sweep.
package httpapi
