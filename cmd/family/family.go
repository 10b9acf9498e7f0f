package family

import (
	"maps"

	"github.com/spf13/cobra"

	"github.com/tphakala/corpusprep/cmd/reorganize"
	"github.com/tphakala/corpusprep/cmd/split"
	"github.com/tphakala/corpusprep/internal/conf"
	"github.com/tphakala/corpusprep/internal/pipeline"
	splitter "github.com/tphakala/corpusprep/internal/split"
)

// Command creates a new cobra.Command that reorganizes by family and splits
// the result in one run.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "family",
		Short: "Reorganize images by family, then split the family folders",
		Long: "Route a flat image folder into family folders under the output root and " +
			"move the members of every family into train and val subsets.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env := pipeline.NewEnv(settings)
			env.Out = cmd.OutOrStdout()
			return pipeline.Family(cmd.Context(), env)
		},
	}

	cobra.CheckErr(setupFlags(cmd))

	return cmd
}

func setupFlags(cmd *cobra.Command) error {
	f := cmd.Flags()
	keys := reorganize.RoutingFlags(f)
	maps.Copy(keys, split.PartitionFlags(f, splitter.Truncate))
	keys["policy"] = "family.policy"

	f.String("split-output-root", "", "Folder receiving the train and val trees (default output root)")
	keys["split-output-root"] = "split.outputroot"
	return conf.MapFlags(cmd, keys)
}
