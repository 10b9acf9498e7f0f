package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/corpusprep/cmd/consolidate"
	"github.com/tphakala/corpusprep/cmd/family"
	"github.com/tphakala/corpusprep/cmd/ledger"
	"github.com/tphakala/corpusprep/cmd/reorganize"
	"github.com/tphakala/corpusprep/cmd/split"
	"github.com/tphakala/corpusprep/internal/conf"
	"github.com/tphakala/corpusprep/internal/logger"
)

// RootCommand creates and returns the root command. settings is filled from
// flags, environment, config file and defaults before a subcommand runs.
func RootCommand(settings *conf.Settings) *cobra.Command {
	var configFile string
	var central *logger.CentralLogger

	rootCmd := &cobra.Command{
		Use:   "corpusprep",
		Short: "Prepare image training corpora",
		Long: "corpusprep consolidates rare annotation classes into a single class and " +
			"splits grouped image corpora into reproducible train and validation subsets.",
		SilenceUsage: true,
	}

	// Set up the global flags for the root command.
	cobra.CheckErr(setupFlags(rootCmd, &configFile))

	subcommands := []*cobra.Command{
		consolidate.Command(settings),
		split.Command(settings),
		reorganize.Command(settings),
		family.Command(settings),
		ledger.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Flags of the executing command take precedence over env, file and defaults
		if err := conf.BindFlags(cmd); err != nil {
			return err
		}
		loaded, err := conf.Load(configFile)
		if err != nil {
			return err
		}
		*settings = *loaded

		central, err = initLogging(settings)
		return err
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if central == nil {
			return nil
		}
		return central.Close()
	}

	return rootCmd
}

// initLogging replaces the fallback console logger with one built from the
// loaded settings
func initLogging(settings *conf.Settings) (*logger.CentralLogger, error) {
	cfg := settings.Logging
	if settings.Debug {
		cfg.DefaultLevel = logger.MoreVerbose(cfg.DefaultLevel, string(logger.LogLevelDebug))
	}
	// The console never hides what the modules log
	if cfg.Console != nil {
		console := *cfg.Console
		console.Level = logger.MoreVerbose(console.Level, cfg.DefaultLevel)
		cfg.Console = &console
	}

	central, err := logger.NewCentralLogger(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)
	return central, nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(configFile, "config", "c", "", "Config file (default is corpusprep.yaml in . or $HOME/.config/corpusprep)")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("log-level", logger.DefaultLogLevel, "Log level: trace, debug, info, warn or error")
	flags.Uint64("seed", 5, "Seed of the split shuffle")
	flags.String("report", "", "Write a YAML report of the run to this path")
	flags.String("chart", "", "Write an HTML chart page of the run to this path")
	flags.Bool("metrics", false, "Export run metrics to a Prometheus textfile")
	flags.String("metrics-textfile", conf.DefaultTextfile, "Path of the Prometheus textfile")
	flags.Bool("ledger", false, "Record the run in the SQLite ledger")
	flags.String("ledger-path", conf.DefaultLedgerPath, "Path of the SQLite ledger")

	return conf.MapPersistentFlags(rootCmd, map[string]string{
		"debug":            "debug",
		"log-level":        "logging.default_level",
		"seed":             "seed",
		"report":           "report",
		"chart":            "chart",
		"metrics":          "metrics.enabled",
		"metrics-textfile": "metrics.textfile",
		"ledger":           "ledger.enabled",
		"ledger-path":      "ledger.path",
	})
}
