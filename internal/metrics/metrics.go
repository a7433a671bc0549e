package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AssistantIntentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallwatch_assistant_intents_total",
			Help: "Total number of classified utterances by intent",
		},
		[]string{"intent"},
	)

	AssistantOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallwatch_assistant_outcomes_total",
			Help: "Total number of synthesized responses by outcome",
		},
		[]string{"outcome"},
	)

	AssistantQueriesIgnored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fallwatch_assistant_queries_ignored_total",
			Help: "Status queries dropped because another query was in flight",
		},
	)

	StoreQueryDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fallwatch_store_query_duration_seconds",
			Help:    "Duration of event store queries in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"operation"},
	)

	EngineSnapshotsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallwatch_engine_snapshots_total",
			Help: "Total number of window snapshots handled by aggregation engines",
		},
		[]string{"result"},
	)

	EnginesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fallwatch_engines_active",
			Help: "Number of aggregation engines holding a live subscription",
		},
	)

	IngestEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallwatch_ingest_events_total",
			Help: "Total number of device events processed by ingestion",
		},
		[]string{"source", "result"},
	)

	WebSocketConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fallwatch_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
		[]string{"channel"},
	)
)
