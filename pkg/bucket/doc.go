// Package bucket derives fixed-granularity time bucket keys from instants.
//
// Keys are produced at minute, hour, day, and week-start granularity with
// zero-padded components, so they sort lexicographically in time order.
// The package is stateless; every function is a pure mapping from a
// time.Time to one or more string keys.
package bucket
