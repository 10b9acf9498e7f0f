package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CorpusMetrics contains Prometheus metrics for corpus preparation runs
type CorpusMetrics struct {
	registry *prometheus.Registry

	// Run metrics
	runsTotal          *prometheus.CounterVec
	runDurationSeconds *prometheus.HistogramVec
	lastRunTimestamp   *prometheus.GaugeVec

	// Record metrics
	filesTotal       *prometheus.CounterVec
	annotationsTotal *prometheus.CounterVec

	// Outcome of the last run
	subsetRecords  *prometheus.GaugeVec
	groups         *prometheus.GaugeVec
	classes        *prometheus.GaugeVec
	unresolvedKeys *prometheus.GaugeVec
}

// NewCorpusMetrics creates and registers new corpus metrics
func NewCorpusMetrics(registry *prometheus.Registry) (*CorpusMetrics, error) {
	m := &CorpusMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// initMetrics initializes all Prometheus metrics
func (m *CorpusMetrics) initMetrics() {
	m.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corpusprep_runs_total",
			Help: "Total number of command runs",
		},
		[]string{"command", "status"}, // status: success, error
	)

	m.runDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "corpusprep_run_duration_seconds",
			Help:    "Wall time of command runs",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount14),
		},
		[]string{"command"},
	)

	m.lastRunTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "corpusprep_last_run_timestamp_seconds",
			Help: "Unix time of the last finished run",
		},
		[]string{"command"},
	)

	m.filesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corpusprep_files_total",
			Help: "Total number of corpus files by outcome",
		},
		[]string{"command", "outcome"},
	)

	m.annotationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corpusprep_annotations_total",
			Help: "Total number of annotation lines by outcome",
		},
		[]string{"outcome"}, // outcome: read, written, dropped, malformed
	)

	m.subsetRecords = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "corpusprep_subset_records",
			Help: "Records placed in each subset by the last split",
		},
		[]string{"subset"},
	)

	m.groups = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "corpusprep_groups",
			Help: "Groups seen by the last run, by state",
		},
		[]string{"command", "state"},
	)

	m.classes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "corpusprep_classes",
			Help: "Classes of the last consolidation, by kind",
		},
		[]string{"kind"}, // kind: input, retained, rare, output
	)

	m.unresolvedKeys = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "corpusprep_unresolved_keys",
			Help: "Distinct keys the last run could not resolve",
		},
		[]string{"kind"}, // kind: code, species, class_id
	)
}

// Describe implements the Collector interface
func (m *CorpusMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.runsTotal.Describe(ch)
	m.runDurationSeconds.Describe(ch)
	m.lastRunTimestamp.Describe(ch)
	m.filesTotal.Describe(ch)
	m.annotationsTotal.Describe(ch)
	m.subsetRecords.Describe(ch)
	m.groups.Describe(ch)
	m.classes.Describe(ch)
	m.unresolvedKeys.Describe(ch)
}

// Collect implements the Collector interface
func (m *CorpusMetrics) Collect(ch chan<- prometheus.Metric) {
	m.runsTotal.Collect(ch)
	m.runDurationSeconds.Collect(ch)
	m.lastRunTimestamp.Collect(ch)
	m.filesTotal.Collect(ch)
	m.annotationsTotal.Collect(ch)
	m.subsetRecords.Collect(ch)
	m.groups.Collect(ch)
	m.classes.Collect(ch)
	m.unresolvedKeys.Collect(ch)
}

// RecordRun records a finished run of command
func (m *CorpusMetrics) RecordRun(command, status string, duration time.Duration, finished time.Time) {
	m.runsTotal.WithLabelValues(command, status).Inc()
	m.runDurationSeconds.WithLabelValues(command).Observe(duration.Seconds())
	m.lastRunTimestamp.WithLabelValues(command).Set(float64(finished.Unix()))
}

// RecordFiles adds count files with the given outcome
func (m *CorpusMetrics) RecordFiles(command, outcome string, count int) {
	m.filesTotal.WithLabelValues(command, outcome).Add(float64(count))
}

// RecordAnnotations adds count annotation lines with the given outcome
func (m *CorpusMetrics) RecordAnnotations(outcome string, count int) {
	m.annotationsTotal.WithLabelValues(outcome).Add(float64(count))
}

// SetSubsetRecords sets the record count of a split subset
func (m *CorpusMetrics) SetSubsetRecords(subset string, count int) {
	m.subsetRecords.WithLabelValues(subset).Set(float64(count))
}

// SetGroups sets the number of groups of command in the given state
func (m *CorpusMetrics) SetGroups(command, state string, count int) {
	m.groups.WithLabelValues(command, state).Set(float64(count))
}

// SetClasses sets the number of classes of a kind
func (m *CorpusMetrics) SetClasses(kind string, count int) {
	m.classes.WithLabelValues(kind).Set(float64(count))
}

// SetUnresolved sets the number of distinct unresolved keys of a kind
func (m *CorpusMetrics) SetUnresolved(kind string, count int) {
	m.unresolvedKeys.WithLabelValues(kind).Set(float64(count))
}
