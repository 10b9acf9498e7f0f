// Package datastore keeps a SQLite ledger of corpusprep runs: which command
// ran with which seed and ratio, where every file of a split landed, how each
// class was remapped by a consolidation and where each image was routed.
// Comparing the assignments of two runs shows whether a rerun reproduced
// the same split.
package datastore

import (
	"context"
	"maps"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/corpusprep/internal/consolidate"
	"github.com/tphakala/corpusprep/internal/errors"
	"github.com/tphakala/corpusprep/internal/fsutil"
	"github.com/tphakala/corpusprep/internal/logger"
	"github.com/tphakala/corpusprep/internal/reorganize"
	"github.com/tphakala/corpusprep/internal/split"
)

// Subset names stored in assignments, independent of the folder names
const (
	SubsetTrain = "train"
	SubsetVal   = "val"
)

const (
	defaultBatchSize   = 500
	slowQueryThreshold = 200 * time.Millisecond
)

// Store is the run ledger
type Store struct {
	db  *gorm.DB
	log logger.Logger
}

// Open opens or creates the ledger at path and migrates its schema
func Open(path string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = GetLogger()
	}
	if err := fsutil.EnsureDir(afero.NewOsFs(), filepath.Dir(path)); err != nil {
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:          logger.NewGormLoggerAdapter(log, slowQueryThreshold),
		CreateBatchSize: defaultBatchSize,
	})
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "open").
			Context("path", path).
			Build()
	}

	if err := db.AutoMigrate(&Run{}, &Assignment{}, &ClassMapping{}, &Placement{}); err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "auto-migrate").
			Build()
	}

	log.Debug("ledger opened", logger.String("path", path))
	return &Store{db: db, log: log}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// NewRun starts a ledger entry for command. id is the run identifier shared
// with logs and reports; a value that is not a UUID is replaced by a new one.
func NewRun(id, command string) *Run {
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}
	return &Run{
		UUID:      id,
		Command:   command,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
}

// RecordSplit stores run together with the assignment of every split member.
// result may be nil when the run failed before planning.
func (s *Store) RecordSplit(ctx context.Context, run *Run, result *split.Result, runErr error) error {
	addAssignments(run, result)
	return s.save(ctx, run, runErr)
}

// RecordConsolidation stores run together with the class mapping of the plan
func (s *Store) RecordConsolidation(ctx context.Context, run *Run, report *consolidate.Report, runErr error) error {
	if report != nil && report.Plan != nil {
		plan := report.Plan
		for _, oldID := range slices.Sorted(maps.Keys(plan.Reindex)) {
			newID := plan.Reindex[oldID]
			name, _ := plan.Manifest.Lookup(newID)
			run.ClassMappings = append(run.ClassMappings, ClassMapping{
				OldID:   oldID,
				NewID:   newID,
				Name:    name,
				Support: report.Support[oldID],
				Rare:    newID == plan.RareID,
			})
		}
	}
	return s.save(ctx, run, runErr)
}

// RecordReorganize stores run together with the group of every placed image
func (s *Store) RecordReorganize(ctx context.Context, run *Run, report *reorganize.Report, runErr error) error {
	addPlacements(run, report)
	return s.save(ctx, run, runErr)
}

// RecordFamily stores a reorganization followed by a split of its output as
// one run carrying both placements and assignments
func (s *Store) RecordFamily(ctx context.Context, run *Run, report *reorganize.Report, result *split.Result, runErr error) error {
	addPlacements(run, report)
	addAssignments(run, result)
	return s.save(ctx, run, runErr)
}

func addAssignments(run *Run, result *split.Result) {
	if result == nil {
		return
	}
	run.Mode = string(result.Mode)
	for _, g := range result.Groups {
		for _, f := range g.Train {
			run.Assignments = append(run.Assignments, Assignment{GroupName: g.Group, File: f, Subset: SubsetTrain})
		}
		for _, f := range g.Val {
			run.Assignments = append(run.Assignments, Assignment{GroupName: g.Group, File: f, Subset: SubsetVal})
		}
	}
}

func addPlacements(run *Run, report *reorganize.Report) {
	if report == nil {
		return
	}
	run.Mode = string(report.Mode)
	for _, p := range report.Placements {
		run.Placements = append(run.Placements, Placement{File: p.File, GroupName: p.Group})
	}
}

func (s *Store) save(ctx context.Context, run *Run, runErr error) error {
	run.FinishedAt = time.Now()
	run.Status = StatusSuccess
	if runErr != nil {
		run.Status = StatusFailed
		run.Error = runErr.Error()
	}

	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "record-run").
			Context("run_id", run.UUID).
			Build()
	}

	s.log.Info("run recorded",
		logger.String("run_id", run.UUID),
		logger.String("command", run.Command),
		logger.String("status", run.Status),
		logger.Int("assignments", len(run.Assignments)),
		logger.Int("class_mappings", len(run.ClassMappings)),
		logger.Int("placements", len(run.Placements)))
	return nil
}

// Runs returns the recorded runs of command, newest first. An empty command
// returns every run.
func (s *Store) Runs(ctx context.Context, command string) ([]Run, error) {
	var runs []Run
	q := s.db.WithContext(ctx).Order("started_at DESC, id DESC")
	if command != "" {
		q = q.Where("command = ?", command)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "list-runs").
			Build()
	}
	return runs, nil
}

// GetRun loads the run with the given UUID and all of its records
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	err := s.db.WithContext(ctx).
		Preload("Assignments", func(db *gorm.DB) *gorm.DB { return db.Order("group_name, file") }).
		Preload("ClassMappings", func(db *gorm.DB) *gorm.DB { return db.Order("old_id") }).
		Preload("Placements", func(db *gorm.DB) *gorm.DB { return db.Order("file") }).
		Where("uuid = ?", id).
		First(&run).Error
	if err != nil {
		category := errors.CategoryDatabase
		if errors.Is(err, gorm.ErrRecordNotFound) {
			category = errors.CategoryNotFound
		}
		return nil, errors.New(err).
			Component("datastore").
			Category(category).
			Context("run_id", id).
			Build()
	}
	return &run, nil
}
