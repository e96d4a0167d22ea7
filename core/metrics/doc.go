// Package metrics declares the Prometheus collectors of the pipeline.
//
// The start command registers them on the default registry, which fiberprometheus
// serves at /metrics next to its HTTP request metrics.
package metrics
