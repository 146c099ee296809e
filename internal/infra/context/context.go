// Package context carries per-connection values such as the trace ID and
// peer address through request handling.
package context

type contextKey string
