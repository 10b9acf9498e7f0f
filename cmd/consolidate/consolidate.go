package consolidate

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/corpusprep/internal/conf"
	"github.com/tphakala/corpusprep/internal/consolidate"
	"github.com/tphakala/corpusprep/internal/pipeline"
)

// Command creates a new cobra.Command for merging rare annotation classes.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Merge rare annotation classes into a single class",
		Long: "Count the annotations of every class in the label files, merge the classes " +
			"below the minimum support into one rare class and renumber the rest.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env := pipeline.NewEnv(settings)
			env.Out = cmd.OutOrStdout()
			return pipeline.Consolidate(cmd.Context(), env)
		},
	}

	cobra.CheckErr(setupFlags(cmd))

	return cmd
}

// setupFlags defines flags specific to the consolidate command.
func setupFlags(cmd *cobra.Command) error {
	f := cmd.Flags()
	f.StringP("manifest", "m", "", "Class manifest, one \"id: name\" per line")
	f.StringP("labels", "l", "", "Folder of annotation files")
	f.StringP("output-dir", "o", "", "Write rewritten label files here instead of in place")
	f.String("output-manifest", "", "Path of the new manifest (default "+consolidate.DefaultOutputManifestName+" next to the manifest)")
	f.Int("min-support", conf.DefaultMinSupport, "Classes with fewer annotations are merged")
	f.String("rare-name", consolidate.DefaultRareName, "Name of the merged rare class")
	f.Bool("strict", false, "Abort when a label references a class missing from the manifest")
	f.Bool("dry-run", false, "Plan and report without writing")

	return conf.MapFlags(cmd, map[string]string{
		"manifest":        "consolidate.manifest",
		"labels":          "consolidate.labeldir",
		"output-dir":      "consolidate.outputdir",
		"output-manifest": "consolidate.outputmanifest",
		"min-support":     "consolidate.minsupport",
		"rare-name":       "consolidate.rarename",
		"strict":          "consolidate.strict",
		"dry-run":         "consolidate.dryrun",
	})
}
