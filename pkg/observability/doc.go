// Package observability provides logging, metrics, and health checking.
//
// # Overview
//
// This package wires the service's ambient concerns: a configured logrus
// logger, a Prometheus registry with the service's counters and gauges,
// and HTTP health probes that distinguish a degraded durable backend
// from an unhealthy process.
//
// # Usage
//
//	log := observability.NewLogger("info", "json", os.Stdout)
//	metrics := observability.NewMetrics(nil)
//	checker := observability.NewHealthChecker(redisClient)
//
//	mux := http.NewServeMux()
//	mux.Handle("/metrics", metrics.Handler())
//	observability.RegisterHealthRoutes(mux, checker)
package observability
