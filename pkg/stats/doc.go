// Package stats implements the dual-mode real-time metrics store.
//
// # Overview
//
// The store counts activity per time bucket (minute, hour, day), tracks
// distinct active actors per bucket, and estimates the online-now
// population. While the shared redis backend is reachable every
// operation targets it; on the first operation failure the store
// degrades to process-local approximations for the remainder of the
// process lifetime. The degradation is visible only in logs and in the
// snapshot's data_source field, never as an error on the request path.
//
// # Consistency
//
// Counter mutations are atomic at the storage layer (HINCRBY, SADD), so
// concurrent events for the same actor commute. Exactly one of the
// durable and fallback paths is active at a time; the mode flips only
// inside the store, under its lock.
//
// # Retention
//
// Every durable write sets key expirations (day buckets 7 days, hour
// buckets 25 hours, per-actor records 30 days, minute counters 1 hour).
// CleanupExpired additionally prunes the fields of the rolling hashes,
// which redis key expiry cannot reach.
package stats
