// Package metrics defines the process's Prometheus instrumentation.
// cmd/server/main.go registers promhttp.Handler() at /metrics behind
// Config.Metrics.Enabled; every collector here lives on the default
// registry so that's the only wiring main.go needs to do.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts every HTTP request the server answers,
	// labeled by route and outcome status.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orthanc",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests handled.",
	}, []string{"route", "method", "status"})

	// RequestDuration observes how long each request took, labeled the
	// same way as RequestsTotal.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orthanc",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	// InstancesStored counts successful Store calls, split by whether
	// the instance was new or already stored under the same identifiers.
	InstancesStored = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orthanc",
		Name:      "instances_stored_total",
		Help:      "Total number of instances passed through ServerIndex.Store.",
	}, []string{"outcome"})

	// ResourcesDeleted counts DeleteResource calls, labeled by the kind
	// of resource deleted.
	ResourcesDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orthanc",
		Name:      "resources_deleted_total",
		Help:      "Total number of resources removed via DeleteResource.",
	}, []string{"kind"})

	// ModificationOperations counts modify/anonymize requests, labeled
	// by operation and whether they targeted a single instance or an
	// ancestor level.
	ModificationOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orthanc",
		Name:      "modification_operations_total",
		Help:      "Total number of modify/anonymize requests handled.",
	}, []string{"operation", "scope"})
)
