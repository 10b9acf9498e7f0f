package report

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tphakala/corpusprep/internal/datastore"
)

// PrintRuns writes one line per recorded run, newest first as given
func PrintRuns(w io.Writer, runs []datastore.Run, now time.Time) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "RUN\tCOMMAND\tSTATUS\tSTARTED\tSEED\tSOURCE")
	for i := range runs {
		r := &runs[i]
		seed := ""
		if r.Ratio > 0 {
			seed = fmt.Sprintf("%d (%.2f)", r.SeedValue(), r.Ratio)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.UUID, r.Command, r.Status, humanize.RelTime(r.StartedAt, now, "ago", "from now"), seed, r.Source)
	}
	return tw.Flush()
}

// PrintRun writes the details of one recorded run
func PrintRun(w io.Writer, r *datastore.Run) error {
	tw := newTable(w)
	fmt.Fprintf(tw, "Run\t%s\n", r.UUID)
	fmt.Fprintf(tw, "Command\t%s\n", r.Command)
	fmt.Fprintf(tw, "Status\t%s\n", r.Status)
	if r.Error != "" {
		fmt.Fprintf(tw, "Error\t%s\n", r.Error)
	}
	fmt.Fprintf(tw, "Started\t%s\n", r.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "Duration\t%s\n", r.FinishedAt.Sub(r.StartedAt).Round(durationPrecision))
	if r.Ratio > 0 {
		fmt.Fprintf(tw, "Seed\t%d\n", r.SeedValue())
		fmt.Fprintf(tw, "Ratio\t%g\n", r.Ratio)
		fmt.Fprintf(tw, "Policy\t%s\n", r.Policy)
	}
	if r.Mode != "" {
		fmt.Fprintf(tw, "Mode\t%s\n", r.Mode)
	}
	fmt.Fprintf(tw, "Source\t%s\n", r.Source)
	fmt.Fprintf(tw, "Output\t%s\n", r.Output)
	if len(r.Placements) > 0 {
		fmt.Fprintf(tw, "Placements\t%s\n", count(len(r.Placements)))
	}
	if len(r.Assignments) > 0 {
		train := 0
		for _, a := range r.Assignments {
			if a.Subset == datastore.SubsetTrain {
				train++
			}
		}
		fmt.Fprintf(tw, "Assignments\t%s train, %s val\n", count(train), count(len(r.Assignments)-train))
	}
	for _, m := range r.ClassMappings {
		marker := ""
		if m.Rare {
			marker = " (merged)"
		}
		fmt.Fprintf(tw, "Class %d\t-> %d %s, %s annotations%s\n", m.OldID, m.NewID, m.Name, count(m.Support), marker)
	}
	return tw.Flush()
}

// PrintSplitDiff writes the differences between two split runs
func PrintSplitDiff(w io.Writer, first, second string, d *datastore.SplitDiff) error {
	if d.Identical() {
		_, err := fmt.Fprintf(w, "Runs %s and %s assigned every file to the same subset\n", first, second)
		return err
	}
	tw := newTable(w)
	fmt.Fprintf(tw, "Runs %s and %s differ\n", first, second)
	if len(d.Changed) > 0 {
		fmt.Fprintln(tw, "  GROUP\tFILE\tFIRST\tSECOND")
		for _, c := range d.Changed {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", c.GroupName, c.File, c.First, c.Second)
		}
	}
	if len(d.OnlyInFirst) > 0 {
		fmt.Fprintf(tw, "  Only in first\t%s\n", joinLimited(d.OnlyInFirst))
	}
	if len(d.OnlyInSecond) > 0 {
		fmt.Fprintf(tw, "  Only in second\t%s\n", joinLimited(d.OnlyInSecond))
	}
	return tw.Flush()
}
