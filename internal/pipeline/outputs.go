package pipeline

import (
	"context"

	"github.com/tphakala/corpusprep/internal/conf"
	"github.com/tphakala/corpusprep/internal/datastore"
	"github.com/tphakala/corpusprep/internal/errors"
	"github.com/tphakala/corpusprep/internal/logger"
	"github.com/tphakala/corpusprep/internal/observability"
	"github.com/tphakala/corpusprep/internal/report"
)

// outputs records a finished run in the optional sinks
type outputs struct {
	metrics func(m *observability.Metrics)
	ledger  func(l *ledgerWriter) error
}

// ledgerWriter pairs an open ledger with the run being recorded
type ledgerWriter struct {
	store *datastore.Store
	run   *datastore.Run
	seed  uint64
}

// describeSplit fills the split parameters of the run
func (l *ledgerWriter) describeSplit(s *conf.SplitSettings, source string) {
	l.run.SetSeed(l.seed)
	l.run.Ratio = s.Ratio
	l.run.Policy = s.Policy
	l.run.Source = source
	l.run.Output = s.OutputRoot
	if l.run.Output == "" {
		l.run.Output = s.CorpusRoot
	}
}

// finish prints the summary and writes every enabled output. An engine error
// takes precedence over output errors, which are then only logged.
func (e *Env) finish(ctx context.Context, doc *report.Document, runErr error, out outputs) error {
	log := GetLogger().WithContext(ctx)
	doc.SetError(runErr)
	settings := e.Settings

	var errs []error
	if err := report.Print(e.Out, doc); err != nil {
		errs = append(errs, err)
	}
	if settings.Report != "" {
		if err := report.WriteYAML(e.Fs, settings.Report, doc); err != nil {
			errs = append(errs, err)
		} else {
			log.Info("report written", logger.String("path", settings.Report))
		}
	}
	if settings.Chart != "" && runErr == nil {
		if err := report.WriteChart(e.Fs, settings.Chart, doc); err != nil {
			errs = append(errs, err)
		} else {
			log.Info("chart written", logger.String("path", settings.Chart))
		}
	}
	if settings.Metrics.Enabled && out.metrics != nil {
		if err := writeMetrics(settings.Metrics.Textfile, out.metrics); err != nil {
			errs = append(errs, err)
		}
	}
	if settings.Ledger.Enabled && out.ledger != nil {
		if err := e.recordLedger(doc, out.ledger); err != nil {
			errs = append(errs, err)
		}
	}

	if runErr != nil {
		for _, err := range errs {
			log.Error("output failed", logger.Error(err))
		}
		log.Error("run failed", logger.String("command", doc.Command), logger.Error(runErr))
		return runErr
	}
	log.Info("run finished", logger.String("command", doc.Command))
	return errors.Join(errs...)
}

func writeMetrics(path string, record func(m *observability.Metrics)) error {
	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}
	record(m)
	return m.WriteTextfile(path)
}

func (e *Env) recordLedger(doc *report.Document, record func(l *ledgerWriter) error) error {
	store, err := datastore.Open(e.Settings.Ledger.Path, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			GetLogger().Warn("failed to close ledger", logger.Error(err))
		}
	}()

	run := datastore.NewRun(e.RunID, doc.Command)
	run.StartedAt = doc.Started
	return record(&ledgerWriter{store: store, run: run, seed: e.Settings.Seed})
}
