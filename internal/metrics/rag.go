package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline metrics covering ingestion, retrieval and workflow execution.
var (
	DocumentsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "policyrag",
			Name:      "documents_ingested_total",
			Help:      "Total number of documents ingested",
		},
		[]string{"doc_type", "status"},
	)

	ChunksIndexedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "policyrag",
			Name:      "chunks_indexed_total",
			Help:      "Total number of chunks written to the vector store",
		},
	)

	RetrievalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "policyrag",
			Name:      "retrievals_total",
			Help:      "Total number of retrieval queries",
		},
		[]string{"status"},
	)

	RetrievalChunksUsed = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "policyrag",
			Name:      "retrieval_chunks_used",
			Help:      "Number of chunks included per assembled context",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 10, 15, 20},
		},
	)

	WorkflowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "policyrag",
			Name:      "workflows_total",
			Help:      "Total number of workflow operations",
		},
		[]string{"operation", "status"},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers pipeline metrics. Must be called once
// from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(DocumentsIngestedTotal)
	prometheus.MustRegister(ChunksIndexedTotal)
	prometheus.MustRegister(RetrievalsTotal)
	prometheus.MustRegister(RetrievalChunksUsed)
	prometheus.MustRegister(WorkflowsTotal)
	pipelineMetricsRegistered = true
}
