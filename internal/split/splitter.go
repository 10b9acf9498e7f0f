// Package split partitions a grouped corpus into training and validation
// subsets. Each group (one folder per species or family) is shuffled with a
// seeded generator and cut at a fixed ratio; the subsets are materialized as
// parallel train/ and val/ trees that keep the group folder names.
//
// The shuffle is driven by a single generator per run and groups are visited
// in sorted order, so the same seed, ratio and input produce the same split.
package split

import (
	"context"
	"math/rand/v2"
	"path/filepath"
	"slices"
	"time"

	"github.com/spf13/afero"

	"github.com/tphakala/corpusprep/internal/errors"
	"github.com/tphakala/corpusprep/internal/fsutil"
	"github.com/tphakala/corpusprep/internal/logger"
)

// Defaults for subset folder names and the train ratio
const (
	DefaultTrainDir = "train"
	DefaultValDir   = "val"
	DefaultRatio    = 0.8
	DefaultSeed     = 5
)

// Options configures a split run
type Options struct {
	// CorpusRoot holds one folder per group
	CorpusRoot string
	// OutputRoot receives train/ and val/. Defaults to CorpusRoot.
	OutputRoot string
	// Ratio is the train fraction, strictly between 0 and 1
	Ratio  float64
	Seed   uint64
	Policy Policy
	Mode   fsutil.Mode
	// SmallGroups decides what happens to groups with fewer than MinMembers
	// members. Groups with no members are always skipped.
	SmallGroups SmallGroupPolicy
	// MinMembers defaults to the policy's DefaultMinMembers
	MinMembers int
	TrainDir   string
	ValDir     string

	// Source overrides the generator seeded from Seed. An injected source
	// keeps its state between runs.
	Source rand.Source
	Fs     afero.Fs
	Logger logger.Logger
}

func (o *Options) applyDefaults() {
	if o.OutputRoot == "" {
		o.OutputRoot = o.CorpusRoot
	}
	if o.Policy == "" {
		o.Policy = GuaranteeNonEmptyValidation
	}
	if o.Mode == "" {
		o.Mode = fsutil.ModeCopy
	}
	if o.SmallGroups == "" {
		o.SmallGroups = SmallGroupSkip
	}
	if o.MinMembers <= 0 {
		o.MinMembers = o.Policy.DefaultMinMembers()
	}
	if o.TrainDir == "" {
		o.TrainDir = DefaultTrainDir
	}
	if o.ValDir == "" {
		o.ValDir = DefaultValDir
	}
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.Logger == nil {
		o.Logger = GetLogger()
	}
}

// GroupResult is the split of one group
type GroupResult struct {
	Group   string   `yaml:"group"`
	Members int      `yaml:"members"`
	Train   []string `yaml:"train,omitempty"`
	Val     []string `yaml:"val,omitempty"`
	Skipped bool     `yaml:"skipped,omitempty"`
	Reason  string   `yaml:"reason,omitempty"`
}

// Result summarizes a split run. Total is the number of records placed in
// either subset.
type Result struct {
	Groups        []GroupResult `yaml:"groups"`
	TrainTotal    int           `yaml:"train_total"`
	ValTotal      int           `yaml:"val_total"`
	Total         int           `yaml:"total"`
	SkippedGroups []string      `yaml:"skipped_groups,omitempty"`
	Mode          fsutil.Mode   `yaml:"mode"`
	Duration      time.Duration `yaml:"duration"`
}

// Splitter runs grouped splits against a filesystem
type Splitter struct {
	opts Options
	log  logger.Logger
}

// New validates opts and returns a Splitter
func New(opts Options) (*Splitter, error) {
	opts.applyDefaults()
	if opts.CorpusRoot == "" {
		return nil, errors.Newf("corpus root is required").
			Component("split").
			Category(errors.CategoryValidation).
			Build()
	}
	if err := ValidateRatio(opts.Ratio); err != nil {
		return nil, err
	}
	if _, err := ParsePolicy(string(opts.Policy)); err != nil {
		return nil, err
	}
	if _, err := ParseSmallGroupPolicy(string(opts.SmallGroups)); err != nil {
		return nil, err
	}
	if _, err := fsutil.ParseMode(string(opts.Mode)); err != nil {
		return nil, err
	}
	if opts.TrainDir == opts.ValDir {
		return nil, errors.Newf("train and validation folders must differ, both are %q", opts.TrainDir).
			Component("split").
			Category(errors.CategoryValidation).
			Build()
	}
	return &Splitter{opts: opts, log: opts.Logger}, nil
}

// Plan enumerates the groups and assigns every member to a subset without
// touching the filesystem
func (s *Splitter) Plan(ctx context.Context) (*Result, error) {
	fsys := s.opts.Fs
	if !fsutil.DirExists(fsys, s.opts.CorpusRoot) {
		return nil, errors.Newf("corpus root %s does not exist", s.opts.CorpusRoot).
			Component("split").
			Category(errors.CategoryFileIO).
			Context("path", s.opts.CorpusRoot).
			Build()
	}

	groups, err := fsutil.ListDirs(fsys, s.opts.CorpusRoot)
	if err != nil {
		return nil, err
	}
	if filepath.Clean(s.opts.OutputRoot) == filepath.Clean(s.opts.CorpusRoot) {
		groups = slices.DeleteFunc(groups, func(g string) bool {
			return g == s.opts.TrainDir || g == s.opts.ValDir
		})
	}

	src := s.opts.Source
	if src == nil {
		src = rand.NewPCG(s.opts.Seed, s.opts.Seed)
	}
	rng := rand.New(src)
	result := &Result{Mode: s.opts.Mode}
	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		members, err := fsutil.ListImages(fsys, filepath.Join(s.opts.CorpusRoot, group))
		if err != nil {
			return nil, err
		}

		gr := GroupResult{Group: group, Members: len(members)}
		switch {
		case len(members) == 0:
			gr.Skipped, gr.Reason = true, "no images"
		case len(members) < s.opts.MinMembers && s.opts.SmallGroups == SmallGroupSkip:
			gr.Skipped, gr.Reason = true, "fewer images than the minimum group size"
		default:
			gr.Train, gr.Val = Partition(members, s.opts.Ratio, s.opts.Policy, rng)
			result.TrainTotal += len(gr.Train)
			result.ValTotal += len(gr.Val)
		}
		if gr.Skipped {
			result.SkippedGroups = append(result.SkippedGroups, group)
		}
		result.Groups = append(result.Groups, gr)
	}
	result.Total = result.TrainTotal + result.ValTotal
	return result, nil
}

// Run plans the split and materializes it, so the train and val folders of
// every split group hold exactly this run's assignment. In copy mode those
// folders are emptied first. In move mode they may hold the only copy of an
// earlier run's records, so a group whose folders are not empty fails the
// run before anything is transferred. If any transfer fails, the run is
// undone before the error is returned.
func (s *Splitter) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	log := s.log.WithContext(ctx)

	result, err := s.Plan(ctx)
	if err != nil {
		return nil, err
	}

	if s.opts.Mode == fsutil.ModeMove {
		if err := s.checkMoveDestinations(result); err != nil {
			return nil, err
		}
	}

	tx := fsutil.NewTransaction(s.opts.Fs)
	if err := s.materialize(ctx, tx, result, log); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error("rollback incomplete", logger.Error(rbErr))
			return nil, errors.Join(err, rbErr)
		}
		log.Warn("split rolled back", logger.Error(err))
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		log.Warn("failed to remove replaced files", logger.Error(err))
	}

	result.Duration = time.Since(start)
	log.Info("split finished",
		logger.Int("groups", len(result.Groups)-len(result.SkippedGroups)),
		logger.Int("skipped_groups", len(result.SkippedGroups)),
		logger.Int("train", result.TrainTotal),
		logger.Int("val", result.ValTotal),
		logger.Int("total", result.Total),
		logger.String("mode", string(result.Mode)),
		logger.Duration("elapsed", result.Duration))
	return result, nil
}

func (s *Splitter) materialize(ctx context.Context, tx *fsutil.Transaction, result *Result, log logger.Logger) error {
	for _, gr := range result.Groups {
		if gr.Skipped {
			log.Info("group skipped",
				logger.String("group", gr.Group),
				logger.Int("members", gr.Members),
				logger.String("reason", gr.Reason))
			continue
		}
		// Copies of an earlier run must not survive next to this one
		if s.opts.Mode == fsutil.ModeCopy {
			for _, subset := range []string{s.opts.TrainDir, s.opts.ValDir} {
				if err := tx.ClearDir(filepath.Join(s.opts.OutputRoot, subset, gr.Group)); err != nil {
					return err
				}
			}
		}

		srcDir := filepath.Join(s.opts.CorpusRoot, gr.Group)
		for _, subset := range []struct {
			dir     string
			members []string
		}{
			{s.opts.TrainDir, gr.Train},
			{s.opts.ValDir, gr.Val},
		} {
			dstDir := filepath.Join(s.opts.OutputRoot, subset.dir, gr.Group)
			for _, name := range subset.members {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := tx.Transfer(s.opts.Mode, filepath.Join(srcDir, name), filepath.Join(dstDir, name)); err != nil {
					return err
				}
			}
		}

		if s.opts.Mode == fsutil.ModeMove {
			removed, err := fsutil.RemoveDirIfEmpty(s.opts.Fs, srcDir)
			if err != nil {
				return err
			}
			if removed {
				log.Debug("empty group folder removed", logger.String("group", gr.Group))
			}
		}

		log.Info("group split",
			logger.String("group", gr.Group),
			logger.Int("train", len(gr.Train)),
			logger.Int("val", len(gr.Val)))
	}
	return nil
}

// checkMoveDestinations rejects a move into subset folders that already hold
// images
func (s *Splitter) checkMoveDestinations(result *Result) error {
	for _, gr := range result.Groups {
		if gr.Skipped {
			continue
		}
		for _, subset := range []string{s.opts.TrainDir, s.opts.ValDir} {
			dir := filepath.Join(s.opts.OutputRoot, subset, gr.Group)
			if !fsutil.DirExists(s.opts.Fs, dir) {
				continue
			}
			names, err := fsutil.ListImages(s.opts.Fs, dir)
			if err != nil {
				return err
			}
			if len(names) > 0 {
				return errors.Newf("%s already holds %d images from an earlier split; move into an empty output root", dir, len(names)).
					Component("split").
					Category(errors.CategoryConflict).
					Context("group", gr.Group).
					FileContext(dir).
					Build()
			}
		}
	}
	return nil
}
