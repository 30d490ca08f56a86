// Package pipeline composes admission control, handler execution, and
// outcome reporting into one explicit request path.
//
// Stage order is fixed: the rate limiter runs first and a rejection
// stops the event before any counter is touched; the handler runs
// second; the outcome reporters (monitor, metrics store, prometheus)
// run last and their failures are contained within the metrics
// subsystem.
package pipeline
