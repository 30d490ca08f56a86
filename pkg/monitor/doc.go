// Package monitor tracks service health: host resource samples, a
// bounded rolling log of request outcomes, and derived status and trend
// classification.
//
// Sampling and accounting are decoupled. Sampler reads CPU, memory,
// disk, and network state on demand and keeps nothing between calls;
// Monitor owns the outcome history, the hourly rollups, and the last
// error, and every mutation goes through its methods.
//
// Monitoring failures never propagate: a probe that cannot be read
// degrades its fields to zero and the snapshot is still served.
package monitor
