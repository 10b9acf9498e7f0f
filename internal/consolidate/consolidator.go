package consolidate

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"time"

	"github.com/spf13/afero"

	"github.com/tphakala/corpusprep/internal/errors"
	"github.com/tphakala/corpusprep/internal/fsutil"
	"github.com/tphakala/corpusprep/internal/labels"
	"github.com/tphakala/corpusprep/internal/logger"
)

// DefaultOutputManifestName is the file name of the consolidated manifest,
// written next to the input manifest unless configured otherwise
const DefaultOutputManifestName = "classes_final.txt"

// Options configures a consolidation run
type Options struct {
	// ManifestPath is the input class manifest
	ManifestPath string
	// LabelDir holds the label files; it is not searched recursively
	LabelDir string
	// OutputDir receives the rewritten label files. Empty rewrites in place.
	OutputDir string
	// OutputManifest is where the new manifest is written
	OutputManifest string
	MinSupport     int
	RareName       string
	// Strict aborts before any write if an annotation references a class
	// missing from the manifest
	Strict bool
	// DryRun builds the plan and the report without writing anything
	DryRun bool

	Fs     afero.Fs
	Logger logger.Logger
}

func (o *Options) applyDefaults() {
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.Logger == nil {
		o.Logger = GetLogger()
	}
	if o.RareName == "" {
		o.RareName = DefaultRareName
	}
	if o.OutputManifest == "" {
		o.OutputManifest = filepath.Join(filepath.Dir(o.ManifestPath), DefaultOutputManifestName)
	}
}

// FileIssue is a skipped or dropped line of one file
type FileIssue struct {
	File   string `yaml:"file"`
	Line   int    `yaml:"line,omitempty"`
	Text   string `yaml:"text,omitempty"`
	Reason string `yaml:"reason"`
}

// Report summarizes a consolidation run. UnknownIDs counts the annotations
// per class id that the manifest does not declare.
type Report struct {
	Files          int                `yaml:"files"`
	FilesRewritten int                `yaml:"files_rewritten"`
	FilesUnchanged int                `yaml:"files_unchanged"`
	LinesRead      int                `yaml:"lines_read"`
	LinesWritten   int                `yaml:"lines_written"`
	LinesDropped   int                `yaml:"lines_dropped"`
	Support        SupportCount       `yaml:"support"`
	UnknownIDs     map[int]int        `yaml:"unknown_ids,omitempty"`
	Malformed      []FileIssue        `yaml:"malformed,omitempty"`
	ManifestIssues []labels.Malformed `yaml:"manifest_issues,omitempty"`
	Plan           *Plan              `yaml:"-"`
	OutputManifest string             `yaml:"output_manifest"`
	DryRun         bool               `yaml:"dry_run"`
	Duration       time.Duration      `yaml:"duration"`
}

// Consolidator runs consolidation against a filesystem
type Consolidator struct {
	opts Options
	log  logger.Logger
}

// New validates opts and returns a Consolidator
func New(opts Options) (*Consolidator, error) {
	opts.applyDefaults()
	if opts.ManifestPath == "" || opts.LabelDir == "" {
		return nil, errors.Newf("manifest path and label directory are required").
			Component("consolidate").
			Category(errors.CategoryValidation).
			Build()
	}
	if opts.MinSupport < 0 {
		return nil, errors.Newf("minimum support must be non-negative, got %d", opts.MinSupport).
			Component("consolidate").
			Category(errors.CategoryValidation).
			Build()
	}
	return &Consolidator{opts: opts, log: opts.Logger}, nil
}

// Run counts the corpus, builds the plan and rewrites every label file.
// Each file is replaced atomically; the manifest is written last.
func (c *Consolidator) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	fsys := c.opts.Fs
	log := c.log.WithContext(ctx)

	manifest, manifestIssues, err := labels.ReadManifest(fsys, c.opts.ManifestPath)
	if err != nil {
		return nil, err
	}
	for _, mi := range manifestIssues {
		log.Warn("manifest line skipped",
			logger.Int("line", mi.Line),
			logger.String("text", mi.Text),
			logger.String("reason", mi.Reason))
	}

	names, err := labels.ListLabelFiles(fsys, c.opts.LabelDir, c.excludedNames()...)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Files:          len(names),
		Support:        make(SupportCount),
		UnknownIDs:     make(map[int]int),
		OutputManifest: c.opts.OutputManifest,
		DryRun:         c.opts.DryRun,
		ManifestIssues: manifestIssues,
	}

	// Counting pass; must finish before any decision is made
	declared := make(map[int]struct{}, len(manifest))
	for _, id := range manifest.IDs() {
		declared[id] = struct{}{}
	}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lf, malformed, err := labels.ReadLabelFile(fsys, filepath.Join(c.opts.LabelDir, name))
		if err != nil {
			return nil, err
		}
		for _, m := range malformed {
			report.Malformed = append(report.Malformed, FileIssue{File: name, Line: m.Line, Text: m.Text, Reason: m.Reason})
		}
		report.Support.Add(lf.Lines)
		for _, l := range lf.Lines {
			if _, ok := declared[l.ClassID]; !ok {
				report.UnknownIDs[l.ClassID]++
			}
		}
	}
	report.LinesRead = report.Support.Total()

	for _, m := range report.Malformed {
		log.Warn("malformed label line skipped",
			logger.String("file", m.File),
			logger.Int("line", m.Line),
			logger.String("reason", m.Reason))
	}
	for _, id := range slices.Sorted(maps.Keys(report.UnknownIDs)) {
		log.Warn("annotations reference a class missing from the manifest",
			logger.Int("class_id", id),
			logger.Int("lines", report.UnknownIDs[id]))
	}
	if c.opts.Strict && len(report.UnknownIDs) > 0 {
		return report, errors.New(fmt.Errorf("%w: %d class ids", ErrUnmappedClass, len(report.UnknownIDs))).
			Component("consolidate").
			Category(errors.CategoryValidation).
			Context("unknown_ids", slices.Sorted(maps.Keys(report.UnknownIDs))).
			Build()
	}

	plan, err := BuildPlan(manifest, report.Support, c.opts.MinSupport, c.opts.RareName)
	if err != nil {
		return nil, err
	}
	report.Plan = plan
	log.Info("consolidation plan built",
		logger.Int("classes", len(manifest)),
		logger.Int("retained", len(plan.Retained)),
		logger.Int("merged", len(plan.Rare)),
		logger.Int("rare_id", plan.RareID))

	// Rewrite pass
	if !c.opts.DryRun && c.opts.OutputDir != "" {
		if err := fsutil.EnsureDir(fsys, c.opts.OutputDir); err != nil {
			return nil, err
		}
	}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := c.rewriteFile(name, plan, report, log); err != nil {
			return nil, err
		}
	}

	if !c.opts.DryRun {
		if err := fsutil.EnsureDir(fsys, filepath.Dir(c.opts.OutputManifest)); err != nil {
			return nil, err
		}
		if err := fsutil.AtomicWriteFile(fsys, c.opts.OutputManifest, plan.Manifest.Format(), fsutil.FilePermissions); err != nil {
			return nil, err
		}
	}

	report.Duration = time.Since(start)
	log.Info("consolidation finished",
		logger.Int("files", report.Files),
		logger.Int("rewritten", report.FilesRewritten),
		logger.Int("unchanged", report.FilesUnchanged),
		logger.Int("lines_dropped", report.LinesDropped),
		logger.Bool("dry_run", report.DryRun),
		logger.Duration("elapsed", report.Duration))
	return report, nil
}

// rewriteFile remaps one label file. In-place files whose content would not
// change are left untouched.
func (c *Consolidator) rewriteFile(name string, plan *Plan, report *Report, log logger.Logger) error {
	fsys := c.opts.Fs
	src := filepath.Join(c.opts.LabelDir, name)

	raw, err := afero.ReadFile(fsys, src)
	if err != nil {
		return errors.FileError(err, src)
	}
	lines, _, err := labels.ParseLabel(bytes.NewReader(raw))
	if err != nil {
		return errors.New(err).
			Component("consolidate").
			Category(errors.CategoryFileParsing).
			FileContext(src).
			Build()
	}

	remapped, dropped := plan.Remap(lines)
	report.LinesWritten += len(remapped)
	report.LinesDropped += len(dropped)
	for _, d := range dropped {
		log.Debug("annotation dropped",
			logger.String("file", name),
			logger.Int("class_id", d.ClassID))
	}

	out := labels.FormatLabel(remapped)
	dst := src
	if c.opts.OutputDir != "" {
		dst = filepath.Join(c.opts.OutputDir, name)
	} else if bytes.Equal(out, raw) {
		report.FilesUnchanged++
		return nil
	}

	report.FilesRewritten++
	if c.opts.DryRun {
		return nil
	}
	if err := fsutil.AtomicWriteFile(fsys, dst, out, fsutil.FilePermissions); err != nil {
		return err
	}
	log.Trace("label file rewritten",
		logger.String("file", name),
		logger.Int("lines", len(remapped)),
		logger.Int("dropped", len(dropped)))
	return nil
}

// excludedNames keeps manifests stored alongside the labels out of the corpus
func (c *Consolidator) excludedNames() []string {
	var names []string
	for _, p := range []string{c.opts.ManifestPath, c.opts.OutputManifest} {
		if filepath.Clean(filepath.Dir(p)) == filepath.Clean(c.opts.LabelDir) {
			names = append(names, filepath.Base(p))
		}
	}
	return names
}
