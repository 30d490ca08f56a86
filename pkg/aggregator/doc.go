// Package aggregator composes the metrics store and the monitor into
// the administrative status views and drives the periodic retention
// cleanup.
//
// The views are explicit result records with named, typed fields; the
// aggregator never mutates the state it reads.
package aggregator
