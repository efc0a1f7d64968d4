package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "beacon_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "beacon_http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "endpoint"},
	)

	// Node metrics
	NodesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "beacon_nodes_active",
			Help: "Number of registered reachability nodes",
		},
	)

	NodesRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_nodes_rejected_total",
			Help: "Node creations dropped because the node limit was reached",
		},
	)

	ProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_probes_total",
			Help: "Total number of liveness probe cycles",
		},
		[]string{"protocol", "result"}, // result: success, unreachable
	)

	ProbeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "beacon_probe_rtt_seconds",
			Help:    "Round trip time of successful liveness probes",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"protocol"},
	)

	// SNMP walk metrics
	WalkRounds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "beacon_walk_rounds",
			Help:    "GETNEXT rounds needed to finish a walk",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	WalkBindings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_walk_bindings_total",
			Help: "Variable bindings accepted from walks",
		},
	)

	WalkStatus = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_walk_status_total",
			Help: "Walk completions by status",
		},
		[]string{"status"}, // status: success, timeout, error
	)

	WalkTruncated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_walk_truncated_total",
			Help: "Walks stopped at the round limit",
		},
	)

	SNMPOutstanding = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "beacon_snmp_outstanding_requests",
			Help: "SNMP requests awaiting a response on the shared session",
		},
	)

	// Derivation metrics
	CriticalEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_critical_events_total",
			Help: "Threshold transitions raised by the derivation pipeline",
		},
		[]string{"state"}, // state: critical, normal
	)

	SamplesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_samples_dropped_total",
			Help: "Samples skipped before derivation",
		},
		[]string{"reason"}, // reason: malformed
	)

	// Discovery metrics
	ClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_classifications_total",
			Help: "One-shot reachability tests",
		},
		[]string{"protocol", "result"},
	)

	SweepProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_sweep_probes_total",
			Help: "Requests sent by subnet sweeps",
		},
		[]string{"result"}, // result: answered, silent
	)

	DiscoveriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_discoveries_total",
			Help: "SNMP agents found by subnet sweeps",
		},
	)

	// Event publication metrics
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_events_total",
			Help: "Domain events handed to the publisher",
		},
		[]string{"origin", "status"}, // status: queued, dropped, invalid
	)

	// Worker metrics
	WorkerQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "beacon_worker_queue_size",
			Help: "Current size of the worker queue",
		},
	)

	WorkerQueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "beacon_worker_queue_capacity",
			Help: "Capacity of the worker queue",
		},
	)

	WorkerProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_worker_processed_total",
			Help: "Total number of events processed by workers",
		},
	)

	WorkerFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_worker_failed_total",
			Help: "Total number of events failed in workers",
		},
	)

	WorkerBatchPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "beacon_worker_batch_publish_duration_seconds",
			Help:    "Time taken to publish a batch",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// Kafka producer metrics
	KafkaPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_kafka_publish_total",
			Help: "Total number of messages published to Kafka",
		},
		[]string{"status"}, // status: success, failed
	)

	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "beacon_kafka_publish_duration_seconds",
			Help:    "Time taken to publish to Kafka",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	KafkaPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_kafka_publish_retries_total",
			Help: "Total number of Kafka publish retries",
		},
	)

	KafkaBytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_kafka_bytes_written_total",
			Help: "Total bytes written to Kafka",
		},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
