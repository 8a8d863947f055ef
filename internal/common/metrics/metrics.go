package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PushRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_push_runs_total",
			Help: "Total number of push runs by result",
		},
		[]string{"result"},
	)

	PushRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_push_records_total",
			Help: "Pending client records processed by final state",
		},
		[]string{"state"},
	)

	RemoteCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_remote_calls_total",
			Help: "Remote API calls issued during push runs",
		},
		[]string{"step", "outcome"},
	)

	RemoteCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_remote_call_duration_seconds",
			Help:    "Duration of remote API calls including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"step"},
	)

	PullCollections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_pull_collections_total",
			Help: "Reference collections resolved during pull by source",
		},
		[]string{"source"},
	)

	PendingRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_pending_records",
			Help: "Client records waiting for a push run",
		},
	)

	StorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_storage_errors_total",
			Help: "Storage adapter failures swallowed into fallbacks",
		},
		[]string{"op"},
	)
)
