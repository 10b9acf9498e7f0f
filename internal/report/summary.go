package report

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tphakala/corpusprep/internal/consolidate"
	"github.com/tphakala/corpusprep/internal/reorganize"
	"github.com/tphakala/corpusprep/internal/split"
)

const (
	// maxListed caps the ids and names printed inline in a summary line
	maxListed         = 20
	durationPrecision = time.Millisecond
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func count(n int) string {
	return humanize.Comma(int64(n))
}

// joinLimited joins items, replacing everything past maxListed with a count
func joinLimited(items []string) string {
	if len(items) <= maxListed {
		return strings.Join(items, ", ")
	}
	rest := len(items) - maxListed
	return fmt.Sprintf("%s (+%d more)", strings.Join(items[:maxListed], ", "), rest)
}

func intsToStrings(ids []int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strconv.Itoa(id)
	}
	return out
}

// PrintConsolidation writes a human readable summary of a consolidation
func PrintConsolidation(w io.Writer, r *consolidate.Report) error {
	if r == nil {
		return nil
	}
	tw := newTable(w)
	title := "Consolidation"
	if r.DryRun {
		title += " (dry run)"
	}
	fmt.Fprintln(tw, title)
	fmt.Fprintf(tw, "  Label files\t%s\n", count(r.Files))
	fmt.Fprintf(tw, "  Rewritten\t%s\n", count(r.FilesRewritten))
	fmt.Fprintf(tw, "  Unchanged\t%s\n", count(r.FilesUnchanged))
	fmt.Fprintf(tw, "  Annotations read\t%s\n", count(r.LinesRead))
	fmt.Fprintf(tw, "  Annotations written\t%s\n", count(r.LinesWritten))
	if r.LinesDropped > 0 {
		fmt.Fprintf(tw, "  Annotations dropped\t%s\n", count(r.LinesDropped))
	}
	if len(r.Malformed) > 0 {
		fmt.Fprintf(tw, "  Malformed lines\t%s\n", count(len(r.Malformed)))
	}
	if len(r.ManifestIssues) > 0 {
		fmt.Fprintf(tw, "  Manifest issues\t%s\n", count(len(r.ManifestIssues)))
	}
	if len(r.UnknownIDs) > 0 {
		ids := slices.Sorted(maps.Keys(r.UnknownIDs))
		fmt.Fprintf(tw, "  Unknown class ids\t%s\n", joinLimited(intsToStrings(ids)))
	}

	if p := r.Plan; p != nil {
		fmt.Fprintf(tw, "  Classes retained\t%s\n", count(len(p.Retained)))
		fmt.Fprintf(tw, "  Classes merged\t%s\n", count(len(p.Rare)))
		if len(p.Rare) > 0 {
			fmt.Fprintf(tw, "  Merged into %s (id %d)\t%s\n", p.RareName, p.RareID, joinLimited(intsToStrings(p.Rare)))
		}
		fmt.Fprintf(tw, "  Output classes\t%s\n", count(len(p.Manifest)))
	}
	if r.OutputManifest != "" && !r.DryRun {
		fmt.Fprintf(tw, "  Manifest\t%s\n", r.OutputManifest)
	}
	fmt.Fprintf(tw, "  Duration\t%s\n", r.Duration.Round(durationPrecision))
	return tw.Flush()
}

// PrintSplit writes the per-group table and totals of a split
func PrintSplit(w io.Writer, r *split.Result) error {
	if r == nil {
		return nil
	}
	tw := newTable(w)
	fmt.Fprintf(tw, "Split (%s)\n", r.Mode)
	fmt.Fprintln(tw, "  GROUP\tMEMBERS\tTRAIN\tVAL\tNOTE")
	for _, g := range r.Groups {
		note := ""
		if g.Skipped {
			note = "skipped"
			if g.Reason != "" {
				note += ": " + g.Reason
			}
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n",
			g.Group, count(g.Members), count(len(g.Train)), count(len(g.Val)), note)
	}
	fmt.Fprintf(tw, "  TOTAL\t\t%s\t%s\t%s placed\n", count(r.TrainTotal), count(r.ValTotal), count(r.Total))
	if len(r.SkippedGroups) > 0 {
		fmt.Fprintf(tw, "  Skipped groups\t%s\n", joinLimited(r.SkippedGroups))
	}
	fmt.Fprintf(tw, "  Duration\t%s\n", r.Duration.Round(durationPrecision))
	return tw.Flush()
}

// PrintReorganize writes the per-group counts and unresolved keys of a
// reorganization
func PrintReorganize(w io.Writer, r *reorganize.Report) error {
	if r == nil {
		return nil
	}
	tw := newTable(w)
	fmt.Fprintf(tw, "Reorganize by %s (%s)\n", r.GroupBy, r.Mode)
	fmt.Fprintln(tw, "  GROUP\tIMAGES")
	for _, group := range slices.Sorted(maps.Keys(r.PerGroup)) {
		fmt.Fprintf(tw, "  %s\t%s\n", group, count(r.PerGroup[group]))
	}
	fmt.Fprintf(tw, "  Processed\t%s\n", count(r.Processed))
	fmt.Fprintf(tw, "  Placed\t%s\n", count(r.Placed))
	if len(r.UnknownCodes) > 0 {
		fmt.Fprintf(tw, "  Unknown codes (%s images)\t%s\n", count(r.UnknownCodeRecords), joinLimited(r.UnknownCodes))
	}
	if len(r.UnresolvedSpecies) > 0 {
		fmt.Fprintf(tw, "  Species without group (%s images)\t%s\n",
			count(r.UnresolvedSpeciesRecords), joinLimited(r.UnresolvedSpecies))
	}
	fmt.Fprintf(tw, "  Duration\t%s\n", r.Duration.Round(durationPrecision))
	return tw.Flush()
}

// Print writes the summary of every section present in the document
func Print(w io.Writer, d *Document) error {
	if d.Reorganize != nil {
		if err := PrintReorganize(w, d.Reorganize); err != nil {
			return err
		}
	}
	if d.Split != nil {
		if err := PrintSplit(w, d.Split); err != nil {
			return err
		}
	}
	if d.Consolidation != nil {
		if err := PrintConsolidation(w, &d.Consolidation.Report); err != nil {
			return err
		}
	}
	return nil
}
