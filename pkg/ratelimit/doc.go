// Package ratelimit provides per-actor sliding-window admission control.
//
// The quota is evaluated over the trailing window ending at the instant of
// each check, not over fixed-aligned intervals: an actor that exhausts the
// limit regains admissions as its oldest events age out of the window.
//
// State is in-process only. Each service instance enforces its own
// independent budget; there is no cross-process coordination.
package ratelimit
