package conf

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeyAnnotation marks a flag with the config key it overrides
const flagKeyAnnotation = "corpusprep_config_key"

// MapFlags records the config key each local flag of cmd overrides. keys maps
// a flag name to a viper key. Binding happens in BindFlags, once the command
// to run is known, so commands sharing a key do not steal each other's flags.
func MapFlags(cmd *cobra.Command, keys map[string]string) error {
	return mapFlags(cmd.Flags(), keys)
}

// MapPersistentFlags is MapFlags for flags inherited by subcommands
func MapPersistentFlags(cmd *cobra.Command, keys map[string]string) error {
	return mapFlags(cmd.PersistentFlags(), keys)
}

func mapFlags(flags *pflag.FlagSet, keys map[string]string) error {
	for name, key := range keys {
		if err := flags.SetAnnotation(name, flagKeyAnnotation, []string{key}); err != nil {
			return fmt.Errorf("error mapping flag %s: %w", name, err)
		}
	}
	return nil
}

// BindFlags binds every mapped flag of the executing command to viper. A flag
// only takes precedence over env, file and defaults when it was set.
func BindFlags(cmd *cobra.Command) error {
	var bindErr error
	bind := func(f *pflag.Flag) {
		keys := f.Annotations[flagKeyAnnotation]
		if len(keys) == 0 || bindErr != nil {
			return
		}
		if err := viper.BindPFlag(keys[0], f); err != nil {
			bindErr = fmt.Errorf("error binding flag %s: %w", f.Name, err)
		}
	}
	cmd.Flags().VisitAll(bind)
	cmd.InheritedFlags().VisitAll(bind)
	return bindErr
}
