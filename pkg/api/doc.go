// Package api provides the administrative HTTP surface: system status,
// user statistics, per-user lookups, and an event ingestion endpoint
// that runs inbound events through the admission pipeline.
package api
