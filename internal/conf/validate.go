// conf/validate.go

package conf

import (
	"fmt"
	"slices"
	"strings"

	"github.com/tphakala/corpusprep/internal/errors"
	"github.com/tphakala/corpusprep/internal/fsutil"
	"github.com/tphakala/corpusprep/internal/reorganize"
	"github.com/tphakala/corpusprep/internal/split"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings validates the entire Settings struct. Paths are checked
// separately by the Require* functions since each command needs different ones.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateLoggingSettings(settings); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	ve.Errors = append(ve.Errors, validateSplitSettings(&settings.Split)...)
	ve.Errors = append(ve.Errors, validateReorganizeSettings(&settings.Reorganize)...)
	ve.Errors = append(ve.Errors, validateConsolidateSettings(&settings.Consolidate)...)
	if settings.Family.Policy != "" {
		if _, err := split.ParsePolicy(settings.Family.Policy); err != nil {
			ve.Errors = append(ve.Errors, "family "+err.Error())
		}
	}

	if settings.Metrics.Enabled && settings.Metrics.Textfile == "" {
		ve.Errors = append(ve.Errors, "metrics textfile path is required when metrics are enabled")
	}
	if settings.Ledger.Enabled && settings.Ledger.Path == "" {
		ve.Errors = append(ve.Errors, "ledger path is required when the ledger is enabled")
	}

	if len(ve.Errors) > 0 {
		return errors.New(ve).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

func validateLoggingSettings(settings *Settings) error {
	if settings.Logging.DefaultLevel == "" {
		return nil
	}
	return validateEnvLogLevel(settings.Logging.DefaultLevel)
}

func validateSplitSettings(s *SplitSettings) []string {
	var errs []string
	if err := split.ValidateRatio(s.Ratio); err != nil {
		errs = append(errs, err.Error())
	}
	if _, err := split.ParsePolicy(s.Policy); err != nil {
		errs = append(errs, err.Error())
	}
	if _, err := split.ParseSmallGroupPolicy(s.SmallGroups); err != nil {
		errs = append(errs, err.Error())
	}
	if _, err := fsutil.ParseMode(s.Mode); err != nil {
		errs = append(errs, err.Error())
	}
	if s.MinMembers < 0 {
		errs = append(errs, fmt.Sprintf("split minimum group size must be non-negative, got %d", s.MinMembers))
	}
	if s.TrainDir == "" || s.ValDir == "" || s.TrainDir == s.ValDir {
		errs = append(errs, fmt.Sprintf("split subset folders must be distinct and non-empty, got %q and %q", s.TrainDir, s.ValDir))
	}
	return errs
}

func validateReorganizeSettings(s *ReorganizeSettings) []string {
	var errs []string
	if _, err := reorganize.ParseGroupBy(s.GroupBy); err != nil {
		errs = append(errs, err.Error())
	}
	if _, err := fsutil.ParseMode(s.Mode); err != nil {
		errs = append(errs, err.Error())
	}
	return errs
}

func validateConsolidateSettings(s *ConsolidateSettings) []string {
	var errs []string
	if s.MinSupport < 1 {
		errs = append(errs, fmt.Sprintf("minimum support must be at least 1, got %d", s.MinSupport))
	}
	if strings.TrimSpace(s.RareName) == "" {
		errs = append(errs, "rare class name must not be empty")
	}
	return errs
}

// RequireSplitPaths checks the paths the split command needs
func RequireSplitPaths(s *SplitSettings) error {
	return requirePaths(map[string]string{"split corpus root": s.CorpusRoot})
}

// RequireReorganizePaths checks the paths the reorganize command needs. The
// reference table is only required when grouping by family.
func RequireReorganizePaths(s *ReorganizeSettings) error {
	paths := map[string]string{
		"reorganize source directory": s.SourceDir,
		"reorganize species root":     s.SpeciesRoot,
		"reorganize output root":      s.OutputRoot,
	}
	if g, err := reorganize.ParseGroupBy(s.GroupBy); err == nil && g == reorganize.ByFamily {
		paths["reorganize reference table"] = s.ReferenceTable
	}
	return requirePaths(paths)
}

// RequireConsolidatePaths checks the paths the consolidate command needs
func RequireConsolidatePaths(s *ConsolidateSettings) error {
	return requirePaths(map[string]string{
		"consolidate manifest":        s.Manifest,
		"consolidate label directory": s.LabelDir,
	})
}

func requirePaths(paths map[string]string) error {
	ve := ValidationError{}
	for name, path := range paths {
		if strings.TrimSpace(path) == "" {
			ve.Errors = append(ve.Errors, name+" is required")
		}
	}
	if len(ve.Errors) == 0 {
		return nil
	}
	slices.Sort(ve.Errors)
	return errors.New(ve).
		Component("conf").
		Category(errors.CategoryValidation).
		Build()
}
