// Package observability owns the Prometheus instruments exported on /metrics.
package observability
