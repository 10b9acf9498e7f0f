// Package pipeline runs the corpusprep commands. Each pipeline turns the
// loaded settings into engine options, runs the engine and hands the outcome
// to the summary, report, metrics and ledger outputs.
package pipeline

import (
	"context"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/tphakala/corpusprep/internal/conf"
	"github.com/tphakala/corpusprep/internal/consolidate"
	"github.com/tphakala/corpusprep/internal/fsutil"
	"github.com/tphakala/corpusprep/internal/logger"
	"github.com/tphakala/corpusprep/internal/observability"
	"github.com/tphakala/corpusprep/internal/observability/metrics"
	"github.com/tphakala/corpusprep/internal/report"
	"github.com/tphakala/corpusprep/internal/reorganize"
	"github.com/tphakala/corpusprep/internal/split"
	"github.com/tphakala/corpusprep/internal/taxonomy"
)

// Env holds what the pipelines of one invocation share
type Env struct {
	Settings *conf.Settings
	// RunID identifies the run in logs, reports and the ledger
	RunID string
	// Fs is where the corpus lives. The ledger and the metrics textfile are
	// always written to the OS filesystem.
	Fs  afero.Fs
	Out io.Writer // summary destination
}

// NewEnv returns an Env on the OS filesystem writing summaries to stdout
func NewEnv(settings *conf.Settings) *Env {
	return &Env{
		Settings: settings,
		RunID:    uuid.NewString(),
		Fs:       afero.NewOsFs(),
		Out:      os.Stdout,
	}
}

// start attaches the run ID to ctx as the trace ID every engine logs with
func (e *Env) start(ctx context.Context, command string) (context.Context, *report.Document) {
	if e.RunID == "" {
		e.RunID = uuid.NewString()
	}
	if e.Fs == nil {
		e.Fs = afero.NewOsFs()
	}
	if e.Out == nil {
		e.Out = os.Stdout
	}
	ctx = logger.WithTraceID(ctx, e.RunID)
	GetLogger().WithContext(ctx).Info("run started", logger.String("command", command))
	return ctx, report.NewDocument(e.RunID, command)
}

// Consolidate merges rare classes and rewrites the label files
func Consolidate(ctx context.Context, env *Env) error {
	s := &env.Settings.Consolidate
	if err := conf.RequireConsolidatePaths(s); err != nil {
		return err
	}
	ctx, doc := env.start(ctx, metrics.CommandConsolidate)

	c, err := consolidate.New(consolidate.Options{
		ManifestPath:   s.Manifest,
		LabelDir:       s.LabelDir,
		OutputDir:      s.OutputDir,
		OutputManifest: s.OutputManifest,
		MinSupport:     s.MinSupport,
		RareName:       s.RareName,
		Strict:         s.Strict,
		DryRun:         s.DryRun,
		Fs:             env.Fs,
	})
	if err != nil {
		return err
	}

	result, runErr := c.Run(ctx)
	doc.SetConsolidation(result)
	return env.finish(ctx, doc, runErr, outputs{
		metrics: func(m *observability.Metrics) { m.RecordConsolidation(result, runErr) },
		ledger: func(l *ledgerWriter) error {
			l.run.Source = s.LabelDir
			if result != nil {
				l.run.Output = result.OutputManifest
			}
			return l.store.RecordConsolidation(ctx, l.run, result, runErr)
		},
	})
}

// Split partitions a grouped corpus into train and validation subsets
func Split(ctx context.Context, env *Env) error {
	s := &env.Settings.Split
	if err := conf.RequireSplitPaths(s); err != nil {
		return err
	}
	ctx, doc := env.start(ctx, metrics.CommandSplit)

	opts := splitOptions(s, env.Settings.Seed)
	opts.Fs = env.Fs
	sp, err := split.New(opts)
	if err != nil {
		return err
	}

	result, runErr := runSplit(ctx, sp, s.DryRun)
	doc.SetSplit(result, env.Settings.Seed, s.Ratio)
	return env.finish(ctx, doc, runErr, outputs{
		metrics: func(m *observability.Metrics) { m.RecordSplit(metrics.CommandSplit, result, runErr) },
		ledger: func(l *ledgerWriter) error {
			l.describeSplit(s, s.CorpusRoot)
			return l.store.RecordSplit(ctx, l.run, result, runErr)
		},
	})
}

// Reorganize routes a flat image folder into one folder per group
func Reorganize(ctx context.Context, env *Env) error {
	s := &env.Settings.Reorganize
	if err := conf.RequireReorganizePaths(s); err != nil {
		return err
	}
	ctx, doc := env.start(ctx, metrics.CommandReorganize)

	r, err := newReorganizer(ctx, env, s)
	if err != nil {
		return err
	}

	result, runErr := r.Run(ctx)
	doc.Reorganize = result
	return env.finish(ctx, doc, runErr, outputs{
		metrics: func(m *observability.Metrics) { m.RecordReorganize(metrics.CommandReorganize, result, runErr) },
		ledger: func(l *ledgerWriter) error {
			l.run.Source = s.SourceDir
			l.run.Output = s.OutputRoot
			return l.store.RecordReorganize(ctx, l.run, result, runErr)
		},
	})
}

// Family reorganizes the source folder by family and then splits the family
// folders. The split always moves: the reorganization already produced the
// copies it works on. It uses the family policy, so a family of one image
// still lands in val unless guarantee-validation is asked for.
func Family(ctx context.Context, env *Env) error {
	rs := &env.Settings.Reorganize
	if err := conf.RequireReorganizePaths(rs); err != nil {
		return err
	}
	ctx, doc := env.start(ctx, metrics.CommandFamily)

	r, err := newReorganizer(ctx, env, rs)
	if err != nil {
		return err
	}
	ss := env.Settings.Split
	ss.CorpusRoot = rs.OutputRoot
	ss.Mode = string(fsutil.ModeMove)
	ss.Policy = env.Settings.Family.Policy
	if ss.Policy == "" {
		ss.Policy = string(split.Truncate)
	}
	opts := splitOptions(&ss, env.Settings.Seed)
	opts.Fs = env.Fs
	sp, err := split.New(opts)
	if err != nil {
		return err
	}

	reorganized, runErr := r.Run(ctx)
	var result *split.Result
	if runErr == nil {
		result, runErr = runSplit(ctx, sp, ss.DryRun)
	}

	doc.Reorganize = reorganized
	if result != nil {
		doc.SetSplit(result, env.Settings.Seed, ss.Ratio)
	}
	return env.finish(ctx, doc, runErr, outputs{
		metrics: func(m *observability.Metrics) { m.RecordFamily(reorganized, result, runErr) },
		ledger: func(l *ledgerWriter) error {
			l.describeSplit(&ss, rs.SourceDir)
			return l.store.RecordFamily(ctx, l.run, reorganized, result, runErr)
		},
	})
}

func runSplit(ctx context.Context, sp *split.Splitter, dryRun bool) (*split.Result, error) {
	if dryRun {
		return sp.Plan(ctx)
	}
	return sp.Run(ctx)
}

func splitOptions(s *conf.SplitSettings, seed uint64) split.Options {
	return split.Options{
		CorpusRoot:  s.CorpusRoot,
		OutputRoot:  s.OutputRoot,
		Ratio:       s.Ratio,
		Seed:        seed,
		Policy:      split.Policy(s.Policy),
		Mode:        fsutil.Mode(s.Mode),
		SmallGroups: split.SmallGroupPolicy(s.SmallGroups),
		MinMembers:  s.MinMembers,
		TrainDir:    s.TrainDir,
		ValDir:      s.ValDir,
	}
}

// newReorganizer loads the code resolver and, when grouping by family, the
// species to family table
func newReorganizer(ctx context.Context, env *Env, s *conf.ReorganizeSettings) (*reorganize.Reorganizer, error) {
	groupBy, err := reorganize.ParseGroupBy(s.GroupBy)
	if err != nil {
		return nil, err
	}
	codes, err := taxonomy.BuildCodeResolver(env.Fs, s.SpeciesRoot, s.Splits, nil)
	if err != nil {
		return nil, err
	}
	var families *taxonomy.SpeciesFamilyMap
	if groupBy == reorganize.ByFamily {
		families, err = taxonomy.LoadSpeciesFamilyMap(env.Fs, s.ReferenceTable, nil)
		if err != nil {
			return nil, err
		}
	}
	GetLogger().WithContext(ctx).Debug("lookups loaded",
		logger.Int("codes", codes.Len()),
		logger.Bool("families", families != nil))

	return reorganize.New(reorganize.Options{
		SourceDir:  s.SourceDir,
		OutputRoot: s.OutputRoot,
		GroupBy:    groupBy,
		Mode:       fsutil.Mode(s.Mode),
		Fs:         env.Fs,
	}, codes, families)
}
