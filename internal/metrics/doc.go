// Package metrics exposes Prometheus collectors for the broadcast core.
package metrics
