package split

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tphakala/corpusprep/internal/conf"
	"github.com/tphakala/corpusprep/internal/fsutil"
	"github.com/tphakala/corpusprep/internal/pipeline"
	splitter "github.com/tphakala/corpusprep/internal/split"
)

// Command creates a new cobra.Command for splitting a grouped corpus.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split [corpus-root]",
		Short: "Split a grouped corpus into train and validation subsets",
		Long: "Shuffle the members of every group folder under the corpus root with a " +
			"seeded generator and copy or move them into train and val subsets.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				settings.Split.CorpusRoot = args[0]
			}
			env := pipeline.NewEnv(settings)
			env.Out = cmd.OutOrStdout()
			return pipeline.Split(cmd.Context(), env)
		},
	}

	cobra.CheckErr(setupFlags(cmd))

	return cmd
}

// setupFlags defines flags specific to the split command.
func setupFlags(cmd *cobra.Command) error {
	f := cmd.Flags()
	f.String("corpus-root", "", "Folder holding one subfolder per group")
	f.StringP("output-root", "o", "", "Folder receiving the train and val trees (default corpus root)")
	f.String("mode", string(fsutil.ModeCopy), "Transfer mode: copy or move")

	keys := PartitionFlags(f, splitter.GuaranteeNonEmptyValidation)
	keys["corpus-root"] = "split.corpusroot"
	keys["output-root"] = "split.outputroot"
	keys["mode"] = "split.mode"
	return conf.MapFlags(cmd, keys)
}

// PartitionFlags defines the flags that shape a split and returns their
// config keys. policy is the default shown for the policy flag.
func PartitionFlags(f *pflag.FlagSet, policy splitter.Policy) map[string]string {
	f.Float64("ratio", splitter.DefaultRatio, "Fraction of each group assigned to train")
	f.String("policy", string(policy), "Split policy: truncate or guarantee-validation")
	f.String("small-groups", string(splitter.SmallGroupSkip), "Groups below the minimum size: skip or keep")
	f.Int("min-members", 0, "Minimum group size (default depends on the policy)")
	f.String("train-dir", splitter.DefaultTrainDir, "Name of the training subset folder")
	f.String("val-dir", splitter.DefaultValDir, "Name of the validation subset folder")
	f.Bool("dry-run", false, "Plan and report the split without transferring files")

	return map[string]string{
		"ratio":        "split.ratio",
		"policy":       "split.policy",
		"small-groups": "split.smallgroups",
		"min-members":  "split.minmembers",
		"train-dir":    "split.traindir",
		"val-dir":      "split.valdir",
		"dry-run":      "split.dryrun",
	}
}
