package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/corpusprep/internal/errors"
)

// resetViper isolates a test from the global viper state and from config
// files in the user's home directory
func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("HOME", t.TempDir())
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpusprep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	resetViper(t)

	settings, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, uint64(5), settings.Seed)
	assert.InDelta(t, 0.8, settings.Split.Ratio, 1e-9)
	assert.Equal(t, "guarantee-validation", settings.Split.Policy)
	assert.Equal(t, "truncate", settings.Family.Policy, "families default to their own policy")
	assert.Equal(t, "copy", settings.Split.Mode)
	assert.Equal(t, "skip", settings.Split.SmallGroups)
	assert.Equal(t, "train", settings.Split.TrainDir)
	assert.Equal(t, "val", settings.Split.ValDir)
	assert.Equal(t, []string{"train", "val"}, settings.Reorganize.Splits)
	assert.Equal(t, "family", settings.Reorganize.GroupBy)
	assert.Equal(t, DefaultMinSupport, settings.Consolidate.MinSupport)
	assert.Equal(t, "rare_species", settings.Consolidate.RareName)
	assert.Equal(t, "info", settings.Logging.DefaultLevel)
	require.NotNil(t, settings.Logging.Console)
	assert.True(t, settings.Logging.Console.Enabled)
	assert.False(t, settings.Ledger.Enabled)
	assert.False(t, settings.Metrics.Enabled)
}

func TestLoadPrecedence(t *testing.T) {
	resetViper(t)

	path := writeConfig(t, `
seed: 42
split:
  ratio: 0.7
  policy: truncate
consolidate:
  minsupport: 3
reorganize:
  splits: [train]
`)
	t.Setenv("CORPUSPREP_SPLIT_RATIO", "0.6")

	settings, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, uint64(42), settings.Seed)
	assert.InDelta(t, 0.6, settings.Split.Ratio, 1e-9, "environment overrides the file")
	assert.Equal(t, "truncate", settings.Split.Policy)
	assert.Equal(t, 3, settings.Consolidate.MinSupport)
	assert.Equal(t, []string{"train"}, settings.Reorganize.Splits)
}

func TestLoadFamilyPolicyFromEnv(t *testing.T) {
	resetViper(t)
	t.Setenv("CORPUSPREP_FAMILY_POLICY", "guarantee-validation")

	settings, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "guarantee-validation", settings.Family.Policy)
	assert.Equal(t, "guarantee-validation", settings.Split.Policy)
}

func TestLoadFlagOverridesEnv(t *testing.T) {
	resetViper(t)
	t.Setenv("CORPUSPREP_SPLIT_RATIO", "0.6")

	newCmd := func(name string) *cobra.Command {
		cmd := &cobra.Command{Use: name}
		cmd.Flags().Float64("ratio", 0.8, "train fraction")
		require.NoError(t, MapFlags(cmd, map[string]string{"ratio": "split.ratio"}))
		return cmd
	}
	run, other := newCmd("split"), newCmd("family")
	require.NoError(t, run.ParseFlags([]string{"--ratio", "0.5"}))
	require.NoError(t, other.ParseFlags(nil))

	require.NoError(t, BindFlags(run))
	settings, err := Load("")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, settings.Split.Ratio, 1e-9)
}

func TestLoadUnsetFlagKeepsDefault(t *testing.T) {
	resetViper(t)

	cmd := &cobra.Command{Use: "consolidate"}
	cmd.Flags().Int("min-support", 1, "minimum support")
	require.NoError(t, MapFlags(cmd, map[string]string{"min-support": "consolidate.minsupport"}))
	require.NoError(t, cmd.ParseFlags(nil))
	require.NoError(t, BindFlags(cmd))

	settings, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultMinSupport, settings.Consolidate.MinSupport)
}

func TestLoadErrors(t *testing.T) {
	t.Run("explicit file missing", func(t *testing.T) {
		resetViper(t)
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	})

	t.Run("invalid environment value", func(t *testing.T) {
		resetViper(t)
		t.Setenv("CORPUSPREP_SPLIT_RATIO", "1.5")
		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "CORPUSPREP_SPLIT_RATIO")
	})

	t.Run("invalid file value", func(t *testing.T) {
		resetViper(t)
		path := writeConfig(t, "reorganize:\n  groupby: genus\n")
		_, err := Load(path)
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	})
}

func validSettings() *Settings {
	return &Settings{
		Split: SplitSettings{
			Ratio: 0.8, Policy: "truncate", Mode: "copy", SmallGroups: "skip",
			TrainDir: "train", ValDir: "val",
		},
		Reorganize:  ReorganizeSettings{GroupBy: "family", Mode: "move"},
		Consolidate: ConsolidateSettings{MinSupport: 1, RareName: "rare_species"},
	}
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateSettings(validSettings()))

	s := validSettings()
	s.Split.Ratio = 1
	s.Split.ValDir = "train"
	s.Consolidate.MinSupport = 0
	s.Ledger = LedgerSettings{Enabled: true}

	err := ValidateSettings(s)
	require.Error(t, err)
	var ve ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Errors, 4)

	s = validSettings()
	s.Family.Policy = "round"
	err = ValidateSettings(s)
	require.Error(t, err)
	require.True(t, errors.As(err, &ve))
	require.Len(t, ve.Errors, 1)
	assert.Contains(t, ve.Errors[0], "family invalid split policy")
}

func TestRequirePaths(t *testing.T) {
	t.Parallel()

	err := RequireConsolidatePaths(&ConsolidateSettings{Manifest: "classes.txt"})
	require.Error(t, err)
	var ve ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{"consolidate label directory is required"}, ve.Errors)

	require.NoError(t, RequireSplitPaths(&SplitSettings{CorpusRoot: "/corpus"}))

	species := &ReorganizeSettings{SourceDir: "/a", SpeciesRoot: "/b", OutputRoot: "/c", GroupBy: "species"}
	require.NoError(t, RequireReorganizePaths(species))
	species.GroupBy = "family"
	require.Error(t, RequireReorganizePaths(species), "family grouping needs the reference table")
}
