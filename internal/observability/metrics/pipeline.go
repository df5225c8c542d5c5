// Package metrics provides pipeline metrics for observability
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics contains Prometheus metrics for ingestion pipeline operations
type PipelineMetrics struct {
	registry *prometheus.Registry

	// Intake metrics
	recordsReadTotal    *prometheus.CounterVec
	recordsDroppedTotal *prometheus.CounterVec

	// Identity metrics
	postsCreatedTotal     prometheus.Counter
	duplicatesMergedTotal prometheus.Counter
	hashConflictsTotal    prometheus.Counter

	// Write metrics
	commitsTotal         prometheus.Counter
	commitDuration       prometheus.Histogram
	imagesRelocatedTotal *prometheus.CounterVec

	// Stage metrics
	stageErrorsTotal *prometheus.CounterVec

	// collectors is a slice of all collectors for easier iteration
	collectors []prometheus.Collector
}

// NewPipelineMetrics creates and registers new pipeline metrics
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// initMetrics initializes all Prometheus metrics
func (m *PipelineMetrics) initMetrics() error {
	m.recordsReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tagdex_records_read_total",
			Help: "Total number of source records read",
		},
		[]string{"source"},
	)

	m.recordsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tagdex_records_dropped_total",
			Help: "Total number of source records dropped before reaching the store",
		},
		[]string{"reason"},
	)

	m.postsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tagdex_posts_created_total",
			Help: "Total number of new image identities created",
		},
	)

	m.duplicatesMergedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tagdex_duplicates_merged_total",
			Help: "Total number of records merged into an existing identity",
		},
	)

	m.hashConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tagdex_hash_conflicts_total",
			Help: "Total number of hash collisions with differing pixel content",
		},
	)

	m.commitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tagdex_commits_total",
			Help: "Total number of committed write batches",
		},
	)

	m.commitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tagdex_commit_duration_seconds",
			Help:    "Time taken to commit a write batch",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
	)

	m.imagesRelocatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tagdex_images_relocated_total",
			Help: "Total number of image files placed into the content-addressed layout",
		},
		[]string{"mode"},
	)

	m.stageErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tagdex_stage_errors_total",
			Help: "Total number of non-fatal stage errors",
		},
		[]string{"stage"},
	)

	m.collectors = []prometheus.Collector{
		m.recordsReadTotal,
		m.recordsDroppedTotal,
		m.postsCreatedTotal,
		m.duplicatesMergedTotal,
		m.hashConflictsTotal,
		m.commitsTotal,
		m.commitDuration,
		m.imagesRelocatedTotal,
		m.stageErrorsTotal,
	}

	return nil
}

// Describe implements the Collector interface
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordRead records one source record read from the given source kind.
func (m *PipelineMetrics) RecordRead(source string) {
	m.recordsReadTotal.WithLabelValues(source).Inc()
}

// RecordDropped records a record dropped for the given reason.
func (m *PipelineMetrics) RecordDropped(reason string) {
	m.recordsDroppedTotal.WithLabelValues(reason).Inc()
}

// RecordPostCreated records a new identity entering the store.
func (m *PipelineMetrics) RecordPostCreated() {
	m.postsCreatedTotal.Inc()
}

// RecordDuplicateMerged records a record folded into an existing identity.
func (m *PipelineMetrics) RecordDuplicateMerged() {
	m.duplicatesMergedTotal.Inc()
}

// RecordHashConflict records a same-hash different-pixels collision.
func (m *PipelineMetrics) RecordHashConflict() {
	m.hashConflictsTotal.Inc()
}

// RecordCommit records one committed batch and its duration in seconds.
func (m *PipelineMetrics) RecordCommit(duration float64) {
	m.commitsTotal.Inc()
	m.commitDuration.Observe(duration)
}

// RecordImageRelocated records an image placed into the output layout.
// Mode is "move" or "copy".
func (m *PipelineMetrics) RecordImageRelocated(mode string) {
	m.imagesRelocatedTotal.WithLabelValues(mode).Inc()
}

// RecordStageError records a non-fatal error in the named stage.
func (m *PipelineMetrics) RecordStageError(stage string) {
	m.stageErrorsTotal.WithLabelValues(stage).Inc()
}
