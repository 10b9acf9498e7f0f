package reorganize

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tphakala/corpusprep/internal/conf"
	"github.com/tphakala/corpusprep/internal/fsutil"
	"github.com/tphakala/corpusprep/internal/pipeline"
	"github.com/tphakala/corpusprep/internal/reorganize"
	"github.com/tphakala/corpusprep/internal/taxonomy"
)

// Command creates a new cobra.Command for routing a flat image folder into
// group folders.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reorganize",
		Short: "Route a flat image folder into one folder per family or species",
		Long: "Resolve the species code at the start of every image name and copy or " +
			"move the image into the folder of its family or species.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env := pipeline.NewEnv(settings)
			env.Out = cmd.OutOrStdout()
			return pipeline.Reorganize(cmd.Context(), env)
		},
	}

	cobra.CheckErr(conf.MapFlags(cmd, RoutingFlags(cmd.Flags())))

	return cmd
}

// RoutingFlags defines the flags that locate the images and lookups of a
// reorganization and returns their config keys
func RoutingFlags(f *pflag.FlagSet) map[string]string {
	f.StringP("source", "s", "", "Flat folder of images to route")
	f.String("species-root", "", "Root of the class folders species codes are resolved from")
	f.StringSlice("splits", taxonomy.DefaultSplits, "Subfolders of the species root scanned for class folders")
	f.String("reference", "", "Species to family reference CSV")
	f.StringP("output-root", "o", "", "Folder receiving one subfolder per group")
	f.String("group-by", string(reorganize.ByFamily), "Grouping: family or species")
	f.String("mode", string(fsutil.ModeCopy), "Transfer mode: copy or move")

	return map[string]string{
		"source":       "reorganize.sourcedir",
		"species-root": "reorganize.speciesroot",
		"splits":       "reorganize.splits",
		"reference":    "reorganize.referencetable",
		"output-root":  "reorganize.outputroot",
		"group-by":     "reorganize.groupby",
		"mode":         "reorganize.mode",
	}
}
