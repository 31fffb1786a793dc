package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline and gateway instrumentation. Registered on the default
// registry and exposed by the server's /metrics endpoint.
var (
	FilesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invoice_files_processed_total",
		Help: "Files dispatched through the pipeline by kind and outcome.",
	}, []string{"kind", "outcome"})

	PipelineDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "invoice_pipeline_duration_seconds",
		Help:    "Wall time of one full pipeline run.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	GatewayCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invoice_gateway_calls_total",
		Help: "Extraction gateway calls by result.",
	}, []string{"result"})

	GatewayRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invoice_gateway_retries_total",
		Help: "Rate-limit retries performed against the extraction gateway.",
	})
)
