// env.go - environment variable overrides for corpusprep settings
package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/tphakala/corpusprep/internal/fsutil"
	"github.com/tphakala/corpusprep/internal/reorganize"
	"github.com/tphakala/corpusprep/internal/split"
)

// EnvPrefix prefixes every environment variable read by corpusprep
const EnvPrefix = "CORPUSPREP_"

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", EnvPrefix + "DEBUG", validateEnvBool},
		{"seed", EnvPrefix + "SEED", validateEnvSeed},
		{"report", EnvPrefix + "REPORT", nil},
		{"chart", EnvPrefix + "CHART", nil},

		// Logging
		{"logging.default_level", EnvPrefix + "LOG_LEVEL", validateEnvLogLevel},
		{"logging.file_output.enabled", EnvPrefix + "LOG_FILE_ENABLED", validateEnvBool},
		{"logging.file_output.path", EnvPrefix + "LOG_FILE", nil},

		// Split
		{"split.corpusroot", EnvPrefix + "SPLIT_CORPUSROOT", nil},
		{"split.outputroot", EnvPrefix + "SPLIT_OUTPUTROOT", nil},
		{"split.ratio", EnvPrefix + "SPLIT_RATIO", validateEnvRatio},
		{"split.policy", EnvPrefix + "SPLIT_POLICY", validateEnvPolicy},
		{"split.mode", EnvPrefix + "SPLIT_MODE", validateEnvMode},
		{"split.smallgroups", EnvPrefix + "SPLIT_SMALLGROUPS", validateEnvSmallGroups},
		{"split.minmembers", EnvPrefix + "SPLIT_MINMEMBERS", validateEnvNonNegativeInt},
		{"split.dryrun", EnvPrefix + "SPLIT_DRYRUN", validateEnvBool},
		{"family.policy", EnvPrefix + "FAMILY_POLICY", validateEnvPolicy},

		// Reorganize
		{"reorganize.sourcedir", EnvPrefix + "REORGANIZE_SOURCEDIR", nil},
		{"reorganize.speciesroot", EnvPrefix + "REORGANIZE_SPECIESROOT", nil},
		{"reorganize.referencetable", EnvPrefix + "REORGANIZE_REFERENCETABLE", nil},
		{"reorganize.outputroot", EnvPrefix + "REORGANIZE_OUTPUTROOT", nil},
		{"reorganize.groupby", EnvPrefix + "REORGANIZE_GROUPBY", validateEnvGroupBy},
		{"reorganize.mode", EnvPrefix + "REORGANIZE_MODE", validateEnvMode},

		// Consolidate
		{"consolidate.manifest", EnvPrefix + "CONSOLIDATE_MANIFEST", nil},
		{"consolidate.labeldir", EnvPrefix + "CONSOLIDATE_LABELDIR", nil},
		{"consolidate.outputdir", EnvPrefix + "CONSOLIDATE_OUTPUTDIR", nil},
		{"consolidate.outputmanifest", EnvPrefix + "CONSOLIDATE_OUTPUTMANIFEST", nil},
		{"consolidate.minsupport", EnvPrefix + "CONSOLIDATE_MINSUPPORT", validateEnvPositiveInt},
		{"consolidate.rarename", EnvPrefix + "CONSOLIDATE_RARENAME", nil},
		{"consolidate.strict", EnvPrefix + "CONSOLIDATE_STRICT", validateEnvBool},
		{"consolidate.dryrun", EnvPrefix + "CONSOLIDATE_DRYRUN", validateEnvBool},

		// Outputs
		{"metrics.enabled", EnvPrefix + "METRICS_ENABLED", validateEnvBool},
		{"metrics.textfile", EnvPrefix + "METRICS_TEXTFILE", nil},
		{"ledger.enabled", EnvPrefix + "LEDGER_ENABLED", validateEnvBool},
		{"ledger.path", EnvPrefix + "LEDGER_PATH", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

// Environment variable validation functions

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true/false, 1/0, t/f")
	}
	return nil
}

func validateEnvSeed(value string) error {
	if _, err := strconv.ParseUint(value, 10, 64); err != nil {
		return fmt.Errorf("seed must be a non-negative integer")
	}
	return nil
}

func validateEnvLogLevel(value string) error {
	switch strings.ToLower(value) {
	case "trace", "debug", "info", "warn", "warning", "error":
		return nil
	}
	return fmt.Errorf("must be one of: trace, debug, info, warn, error")
}

func validateEnvRatio(value string) error {
	ratio, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid ratio: %w", err)
	}
	return split.ValidateRatio(ratio)
}

func validateEnvPolicy(value string) error {
	_, err := split.ParsePolicy(value)
	return err
}

func validateEnvSmallGroups(value string) error {
	_, err := split.ParseSmallGroupPolicy(value)
	return err
}

func validateEnvMode(value string) error {
	_, err := fsutil.ParseMode(value)
	return err
}

func validateEnvGroupBy(value string) error {
	_, err := reorganize.ParseGroupBy(value)
	return err
}

func validateEnvNonNegativeInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer: %w", err)
	}
	if n < 0 {
		return fmt.Errorf("must be non-negative, got %d", n)
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer: %w", err)
	}
	if n < 1 {
		return fmt.Errorf("must be at least 1, got %d", n)
	}
	return nil
}
