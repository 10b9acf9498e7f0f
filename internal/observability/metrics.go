// Package observability records corpus preparation runs as Prometheus
// metrics and exports them in the node exporter textfile format.
package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/corpusprep/internal/consolidate"
	"github.com/tphakala/corpusprep/internal/errors"
	"github.com/tphakala/corpusprep/internal/logger"
	"github.com/tphakala/corpusprep/internal/observability/metrics"
	"github.com/tphakala/corpusprep/internal/reorganize"
	"github.com/tphakala/corpusprep/internal/split"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry
	Corpus   *metrics.CorpusMetrics
}

// NewMetrics creates a new instance of Metrics on a private registry
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	corpusMetrics, err := metrics.NewCorpusMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create corpus metrics: %w", err)
	}

	return &Metrics{registry: registry, Corpus: corpusMetrics}, nil
}

// Registry returns the registry the collectors are registered with
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordConsolidation records the outcome of a consolidation run. report may
// be nil when the run failed before counting.
func (m *Metrics) RecordConsolidation(report *consolidate.Report, runErr error) {
	if report != nil {
		c := m.Corpus
		c.RecordFiles(metrics.CommandConsolidate, metrics.FileProcessed, report.Files)
		c.RecordFiles(metrics.CommandConsolidate, metrics.FileRewritten, report.FilesRewritten)
		c.RecordFiles(metrics.CommandConsolidate, metrics.FileUnchanged, report.FilesUnchanged)
		c.RecordAnnotations(metrics.AnnotationRead, report.LinesRead)
		c.RecordAnnotations(metrics.AnnotationWritten, report.LinesWritten)
		c.RecordAnnotations(metrics.AnnotationDropped, report.LinesDropped)
		c.RecordAnnotations(metrics.AnnotationMalformed, len(report.Malformed))
		c.SetUnresolved("class_id", len(report.UnknownIDs))
		if p := report.Plan; p != nil {
			c.SetClasses("input", len(p.Retained)+len(p.Rare))
			c.SetClasses("retained", len(p.Retained))
			c.SetClasses("rare", len(p.Rare))
			c.SetClasses("output", len(p.Manifest))
		}
	}
	m.recordRun(metrics.CommandConsolidate, durationOf(report), runErr)
}

// RecordSplit records the outcome of a split run started by command
func (m *Metrics) RecordSplit(command string, result *split.Result, runErr error) {
	var d time.Duration
	if result != nil {
		m.recordSplitCounts(command, result, true)
		d = result.Duration
	}
	m.recordRun(command, d, runErr)
}

// RecordReorganize records the outcome of a reorganization started by command
func (m *Metrics) RecordReorganize(command string, report *reorganize.Report, runErr error) {
	var d time.Duration
	if report != nil {
		m.recordReorganizeCounts(command, report)
		d = report.Duration
	}
	m.recordRun(command, d, runErr)
}

// RecordFamily records a reorganization followed by a split as a single run.
// Files placed by the split are the ones the reorganization already counted.
func (m *Metrics) RecordFamily(report *reorganize.Report, result *split.Result, runErr error) {
	var d time.Duration
	if report != nil {
		m.recordReorganizeCounts(metrics.CommandFamily, report)
		d += report.Duration
	}
	if result != nil {
		m.recordSplitCounts(metrics.CommandFamily, result, false)
		d += result.Duration
	}
	m.recordRun(metrics.CommandFamily, d, runErr)
}

func (m *Metrics) recordSplitCounts(command string, result *split.Result, countPlaced bool) {
	c := m.Corpus
	if countPlaced {
		c.RecordFiles(command, metrics.FilePlaced, result.Total)
	}
	c.SetSubsetRecords("train", result.TrainTotal)
	c.SetSubsetRecords("val", result.ValTotal)
	c.SetGroups(command, "split", len(result.Groups)-len(result.SkippedGroups))
	c.SetGroups(command, "skipped", len(result.SkippedGroups))
}

func (m *Metrics) recordReorganizeCounts(command string, report *reorganize.Report) {
	c := m.Corpus
	c.RecordFiles(command, metrics.FileProcessed, report.Processed)
	c.RecordFiles(command, metrics.FilePlaced, report.Placed)
	c.RecordFiles(command, metrics.FileUnresolved, report.Unresolved())
	c.SetGroups(command, "placed", len(report.PerGroup))
	c.SetUnresolved("code", len(report.UnknownCodes))
	c.SetUnresolved("species", len(report.UnresolvedSpecies))
}

func (m *Metrics) recordRun(command string, d time.Duration, runErr error) {
	status := metrics.StatusSuccess
	if runErr != nil {
		status = metrics.StatusError
	}
	m.Corpus.RecordRun(command, status, d, time.Now())
}

func durationOf(report *consolidate.Report) time.Duration {
	if report == nil {
		return 0
	}
	return report.Duration
}

// WriteTextfile writes every collected metric to path in the text
// exposition format. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.New(err).
			Component("observability").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	GetLogger().Debug("metrics textfile written", logger.String("path", path))
	return nil
}
