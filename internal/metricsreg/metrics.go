// Package metricsreg registers the Prometheus counters/gauges the
// orchestrator and vector store emit during analysis and retrieval,
// adapted from cmd/metrics-server's minimal exporter.
package metricsreg

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ChunkAnalyses = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "contract_review_chunk_analyses_total", Help: "Per-chunk map-phase analysis calls, by outcome"},
		[]string{"outcome"}, // ok | placeholder
	)
	ReducerDegradations = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "contract_review_reducer_degradations_total", Help: "Times the reduce phase fell back to the chunk-only aggregate"},
	)
	RetrievalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "contract_review_retrieval_requests_total", Help: "Semantic search requests, by scope and backend path"},
		[]string{"scope", "path"}, // scope: document|global ; path: backend|fallback
	)
	IndexedChunks = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "contract_review_indexed_chunks_total", Help: "Chunks persisted by index_document"},
	)
	startupTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "contract_review_metrics_startup_timestamp", Help: "Unix time when the metrics server started"},
	)
)

func init() {
	prometheus.MustRegister(ChunkAnalyses, ReducerDegradations, RetrievalRequests, IndexedChunks, startupTimestamp)
	startupTimestamp.Set(float64(time.Now().Unix()))
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
