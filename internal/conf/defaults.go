// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"

	"github.com/tphakala/corpusprep/internal/consolidate"
	"github.com/tphakala/corpusprep/internal/fsutil"
	"github.com/tphakala/corpusprep/internal/logger"
	"github.com/tphakala/corpusprep/internal/reorganize"
	"github.com/tphakala/corpusprep/internal/split"
	"github.com/tphakala/corpusprep/internal/taxonomy"
)

// Default values that have no home in an engine package
const (
	DefaultMinSupport = 10
	DefaultLedgerPath = "corpusprep.db"
	DefaultTextfile   = "corpusprep.prom"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)
	viper.SetDefault("seed", split.DefaultSeed)
	viper.SetDefault("report", "")
	viper.SetDefault("chart", "")

	viper.SetDefault("logging.default_level", logger.DefaultLogLevel)
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	viper.SetDefault("logging.console.level", logger.DefaultLogLevel)
	viper.SetDefault("logging.file_output.enabled", logger.DefaultFileEnabled)
	viper.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	viper.SetDefault("logging.file_output.level", logger.DefaultLogLevel)

	viper.SetDefault("split.corpusroot", "")
	viper.SetDefault("split.outputroot", "")
	viper.SetDefault("split.ratio", split.DefaultRatio)
	viper.SetDefault("split.policy", string(split.GuaranteeNonEmptyValidation))
	viper.SetDefault("split.mode", string(fsutil.ModeCopy))
	viper.SetDefault("split.smallgroups", string(split.SmallGroupSkip))
	viper.SetDefault("split.minmembers", 0)
	viper.SetDefault("split.traindir", split.DefaultTrainDir)
	viper.SetDefault("split.valdir", split.DefaultValDir)
	viper.SetDefault("split.dryrun", false)

	// Single-image families still get a validation member
	viper.SetDefault("family.policy", string(split.Truncate))

	viper.SetDefault("reorganize.sourcedir", "")
	viper.SetDefault("reorganize.speciesroot", "")
	viper.SetDefault("reorganize.splits", taxonomy.DefaultSplits)
	viper.SetDefault("reorganize.referencetable", "")
	viper.SetDefault("reorganize.outputroot", "")
	viper.SetDefault("reorganize.groupby", string(reorganize.ByFamily))
	viper.SetDefault("reorganize.mode", string(fsutil.ModeCopy))

	viper.SetDefault("consolidate.manifest", "")
	viper.SetDefault("consolidate.labeldir", "")
	viper.SetDefault("consolidate.outputdir", "")
	viper.SetDefault("consolidate.outputmanifest", "")
	viper.SetDefault("consolidate.minsupport", DefaultMinSupport)
	viper.SetDefault("consolidate.rarename", consolidate.DefaultRareName)
	viper.SetDefault("consolidate.strict", false)
	viper.SetDefault("consolidate.dryrun", false)

	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.textfile", DefaultTextfile)

	viper.SetDefault("ledger.enabled", false)
	viper.SetDefault("ledger.path", DefaultLedgerPath)
}
