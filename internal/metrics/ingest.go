package metrics

import "github.com/prometheus/client_golang/prometheus"

// IngestMetrics instruments one ingestion run. The ingest CLI is short-lived,
// so these register on a caller-owned registry instead of the global one.
type IngestMetrics struct {
	DocumentsTotal    *prometheus.CounterVec
	SkippedTotal      prometheus.Counter
	BatchDuration     prometheus.Histogram
	TokensTotal       prometheus.Counter
	SnapshotDocuments prometheus.Gauge
}

// NewIngestMetrics creates and registers ingestion metrics on reg.
func NewIngestMetrics(reg prometheus.Registerer) *IngestMetrics {
	m := &IngestMetrics{
		DocumentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semdex",
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Documents produced by the corpus reader, by source.",
		}, []string{"source"}),
		SkippedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "semdex",
			Subsystem: "ingest",
			Name:      "skipped_total",
			Help:      "Files and records skipped during corpus loading.",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "semdex",
			Subsystem: "ingest",
			Name:      "batch_duration_seconds",
			Help:      "Embedding batch duration.",
			Buckets:   prometheus.DefBuckets,
		}),
		TokensTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "semdex",
			Subsystem: "ingest",
			Name:      "tokens_total",
			Help:      "Embedding tokens consumed by the run.",
		}),
		SnapshotDocuments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "semdex",
			Subsystem: "ingest",
			Name:      "snapshot_documents",
			Help:      "Documents in the snapshot written by the run.",
		}),
	}

	reg.MustRegister(
		m.DocumentsTotal,
		m.SkippedTotal,
		m.BatchDuration,
		m.TokensTotal,
		m.SnapshotDocuments,
	)
	return m
}
