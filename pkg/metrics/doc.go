// Package metrics defines and registers the daemon's Prometheus
// collectors, exposed on an optional HTTP listener.
package metrics
