// Package httputil provides HTTP handler utilities for consistent JSON
// responses, request parsing, and common middleware (logging, panic
// recovery, request IDs).
package httputil
