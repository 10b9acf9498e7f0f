// config.go: settings structs for corpusprep and the functions that load them
package conf

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"

	"github.com/tphakala/corpusprep/internal/errors"
	"github.com/tphakala/corpusprep/internal/logger"
)

// ConfigName is the base name of the optional YAML config file
const ConfigName = "corpusprep"

// SplitSettings contains settings for the grouped splitter
type SplitSettings struct {
	CorpusRoot  string  // folder holding one subfolder per group
	OutputRoot  string  // receives the train and val trees, empty for CorpusRoot
	Ratio       float64 // train fraction, strictly between 0 and 1
	Policy      string  // truncate or guarantee-validation
	Mode        string  // copy or move
	SmallGroups string  // skip or keep groups below MinMembers
	MinMembers  int     // 0 selects the policy default
	TrainDir    string  // name of the training subset folder
	ValDir      string  // name of the validation subset folder
	DryRun      bool    // plan and report without transferring files
}

// ReorganizeSettings contains settings for routing a flat image folder into
// group folders
type ReorganizeSettings struct {
	SourceDir      string   // flat folder of images to route
	SpeciesRoot    string   // root of the class folders the code resolver is built from
	Splits         []string // subfolders of SpeciesRoot scanned for class folders
	ReferenceTable string   // species to family CSV
	OutputRoot     string   // receives one folder per group
	GroupBy        string   // family or species
	Mode           string   // copy or move
}

// ConsolidateSettings contains settings for class consolidation
type ConsolidateSettings struct {
	Manifest       string // class manifest, one "id: name" per line
	LabelDir       string // folder of annotation files
	OutputDir      string // rewrite into this folder instead of in place
	OutputManifest string // empty for classes_final.txt next to Manifest
	MinSupport     int    // classes with fewer annotations are merged
	RareName       string // name of the merged rare class
	Strict         bool   // abort when a label references an unknown class
	DryRun         bool   // plan and report without writing
}

// FamilySettings holds the options of the family pipeline that differ from
// the standalone split
type FamilySettings struct {
	Policy string // split policy of the family groups, truncate by default
}

// MetricsSettings controls the Prometheus textfile export
type MetricsSettings struct {
	Enabled  bool
	Textfile string // output path, usually inside the node exporter textfile directory
}

// LedgerSettings controls the SQLite run ledger
type LedgerSettings struct {
	Enabled bool
	Path    string // database file
}

// Settings contains all configuration options for corpusprep
type Settings struct {
	Debug   bool                 // true to enable debug logging
	Seed    uint64               // seed of the split shuffle
	Report  string               // path of the YAML run report, empty to skip
	Chart   string               // path of the HTML chart page, empty to skip
	Logging logger.LoggingConfig // logging configuration

	Split       SplitSettings
	Reorganize  ReorganizeSettings
	Consolidate ConsolidateSettings
	Family      FamilySettings
	Metrics     MetricsSettings
	Ledger      LedgerSettings
}

var settingsMutex sync.Mutex

// Load reads the configuration. configFile names an explicit YAML file; when
// empty, corpusprep.yaml is looked up in the default config paths and its
// absence is not an error. Values resolve as flags > environment > file >
// defaults.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// initViper registers defaults and environment bindings and reads the config file
func initViper(configFile string) error {
	setDefaultConfig()

	if err := bindEnvVars(); err != nil {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "bind-env").
			Build()
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName(ConfigName)
		viper.SetConfigType("yaml")
		for _, path := range DefaultConfigPaths() {
			viper.AddConfigPath(path)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			GetLogger().Debug("no config file found, using defaults")
			return nil
		}
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("config_file", configFile).
			Build()
	}

	GetLogger().Debug("config file loaded", logger.String("path", viper.ConfigFileUsed()))
	return nil
}

// DefaultConfigPaths returns the folders searched for corpusprep.yaml
func DefaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", ConfigName))
	}
	return paths
}
