package reorganize

import (
	"context"
	"maps"
	"path/filepath"
	"slices"
	"time"

	"github.com/spf13/afero"

	"github.com/tphakala/corpusprep/internal/errors"
	"github.com/tphakala/corpusprep/internal/fsutil"
	"github.com/tphakala/corpusprep/internal/logger"
	"github.com/tphakala/corpusprep/internal/taxonomy"
)

// Options configures a reorganization run
type Options struct {
	// SourceDir is the flat folder of images to route
	SourceDir string
	// OutputRoot receives one folder per group
	OutputRoot string
	GroupBy    GroupBy
	Mode       fsutil.Mode

	Fs     afero.Fs
	Logger logger.Logger
}

func (o *Options) applyDefaults() {
	if o.GroupBy == "" {
		o.GroupBy = ByFamily
	}
	if o.Mode == "" {
		o.Mode = fsutil.ModeCopy
	}
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.Logger == nil {
		o.Logger = GetLogger()
	}
}

// Placement records where one file was routed
type Placement struct {
	File  string `yaml:"file"`
	Group string `yaml:"group"`
}

// Report summarizes a reorganization run. UnknownCodes lists each
// unresolvable code once and UnresolvedSpecies each species without a group,
// both sorted.
type Report struct {
	Processed                int            `yaml:"processed"`
	Placed                   int            `yaml:"placed"`
	PerGroup                 map[string]int `yaml:"per_group"`
	UnknownCodes             []string       `yaml:"unknown_codes,omitempty"`
	UnknownCodeRecords       int            `yaml:"unknown_code_records"`
	UnresolvedSpecies        []string       `yaml:"unresolved_species,omitempty"`
	UnresolvedSpeciesRecords int            `yaml:"unresolved_species_records"`
	Placements               []Placement    `yaml:"-"`
	GroupBy                  GroupBy        `yaml:"group_by"`
	Mode                     fsutil.Mode    `yaml:"mode"`
	Duration                 time.Duration  `yaml:"duration"`
}

// Unresolved returns the number of records that could not be routed
func (r *Report) Unresolved() int {
	return r.UnknownCodeRecords + r.UnresolvedSpeciesRecords
}

// Reorganizer routes images into group folders
type Reorganizer struct {
	opts     Options
	codes    *taxonomy.CodeResolver
	families *taxonomy.SpeciesFamilyMap
	log      logger.Logger
}

// New validates opts and returns a Reorganizer. families is required when
// grouping by family.
func New(opts Options, codes *taxonomy.CodeResolver, families *taxonomy.SpeciesFamilyMap) (*Reorganizer, error) {
	opts.applyDefaults()
	if opts.SourceDir == "" || opts.OutputRoot == "" {
		return nil, errors.Newf("source directory and output root are required").
			Component("reorganize").
			Category(errors.CategoryValidation).
			Build()
	}
	if _, err := ParseGroupBy(string(opts.GroupBy)); err != nil {
		return nil, err
	}
	if _, err := fsutil.ParseMode(string(opts.Mode)); err != nil {
		return nil, err
	}
	if codes == nil {
		return nil, errors.Newf("code resolver is required").
			Component("reorganize").
			Category(errors.CategoryValidation).
			Build()
	}
	if opts.GroupBy == ByFamily && families == nil {
		return nil, errors.Newf("species to family map is required when grouping by family").
			Component("reorganize").
			Category(errors.CategoryValidation).
			Build()
	}
	return &Reorganizer{opts: opts, codes: codes, families: families, log: opts.Logger}, nil
}

// Run routes every image of the source folder. Unresolved records are
// reported and skipped; an I/O failure undoes the transfers made so far and
// aborts the run.
func (r *Reorganizer) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	fsys := r.opts.Fs
	log := r.log.WithContext(ctx)

	if !fsutil.DirExists(fsys, r.opts.SourceDir) {
		return nil, errors.Newf("source directory %s does not exist", r.opts.SourceDir).
			Component("reorganize").
			Category(errors.CategoryFileIO).
			Context("path", r.opts.SourceDir).
			Build()
	}
	images, err := fsutil.ListImages(fsys, r.opts.SourceDir)
	if err != nil {
		return nil, err
	}

	report := &Report{
		PerGroup: make(map[string]int),
		GroupBy:  r.opts.GroupBy,
		Mode:     r.opts.Mode,
	}
	unknownCodes := make(map[string]struct{})
	unresolvedSpecies := make(map[string]struct{})

	tx := fsutil.NewTransaction(fsys)
	for _, name := range images {
		if err := ctx.Err(); err != nil {
			return nil, r.abort(tx, err, log)
		}
		report.Processed++

		out := Route(name, r.codes, r.families, r.opts.GroupBy)
		switch out.Reason {
		case ReasonUnknownCode:
			report.UnknownCodeRecords++
			if _, seen := unknownCodes[out.Code]; !seen {
				unknownCodes[out.Code] = struct{}{}
				log.Warn("unknown code", logger.String("code", out.Code), logger.String("file", name))
			}
			continue
		case ReasonUnknownGroup:
			report.UnresolvedSpeciesRecords++
			unresolvedSpecies[out.Species] = struct{}{}
			continue
		}

		src := filepath.Join(r.opts.SourceDir, name)
		dst := filepath.Join(r.opts.OutputRoot, out.Group, name)
		if err := tx.Transfer(r.opts.Mode, src, dst); err != nil {
			return nil, r.abort(tx, err, log)
		}
		report.Placed++
		report.PerGroup[out.Group]++
		report.Placements = append(report.Placements, Placement{File: name, Group: out.Group})
		log.Trace("record placed", logger.String("file", name), logger.String("group", out.Group))
	}
	if err := tx.Commit(); err != nil {
		log.Warn("failed to remove replaced files", logger.Error(err))
	}

	report.UnknownCodes = slices.Sorted(maps.Keys(unknownCodes))
	report.UnresolvedSpecies = slices.Sorted(maps.Keys(unresolvedSpecies))
	for _, species := range report.UnresolvedSpecies {
		log.Warn("unknown group membership", logger.String("species", species))
	}

	report.Duration = time.Since(start)
	log.Info("reorganization finished",
		logger.Int("processed", report.Processed),
		logger.Int("placed", report.Placed),
		logger.Int("groups", len(report.PerGroup)),
		logger.Int("unknown_codes", len(report.UnknownCodes)),
		logger.Int("unresolved_species", len(report.UnresolvedSpecies)),
		logger.String("mode", string(report.Mode)),
		logger.Duration("elapsed", report.Duration))
	return report, nil
}

func (r *Reorganizer) abort(tx *fsutil.Transaction, cause error, log logger.Logger) error {
	if err := tx.Rollback(); err != nil {
		log.Error("rollback incomplete", logger.Error(err))
		return errors.Join(cause, err)
	}
	log.Warn("reorganization rolled back", logger.Error(cause))
	return cause
}
