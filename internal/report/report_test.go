package report

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/corpusprep/internal/consolidate"
	"github.com/tphakala/corpusprep/internal/datastore"
	"github.com/tphakala/corpusprep/internal/errors"
	"github.com/tphakala/corpusprep/internal/fsutil"
	"github.com/tphakala/corpusprep/internal/labels"
	"github.com/tphakala/corpusprep/internal/reorganize"
	"github.com/tphakala/corpusprep/internal/split"
)

func consolidationReport(t *testing.T) *consolidate.Report {
	t.Helper()
	manifest := labels.Manifest{{ID: 0, Name: "blacktip"}, {ID: 1, Name: "goblin"}, {ID: 2, Name: "hammerhead"}}
	support := consolidate.SupportCount{0: 5, 1: 1, 2: 7}
	plan, err := consolidate.BuildPlan(manifest, support, 2, consolidate.DefaultRareName)
	require.NoError(t, err)
	return &consolidate.Report{
		Files:          3,
		FilesRewritten: 2,
		FilesUnchanged: 1,
		LinesRead:      13,
		LinesWritten:   13,
		Support:        support,
		Plan:           plan,
		OutputManifest: "labels/classes_final.txt",
		Duration:       1500 * time.Millisecond,
	}
}

func splitResult() *split.Result {
	return &split.Result{
		Groups: []split.GroupResult{
			{Group: "Carcharhinidae", Members: 4, Train: []string{"a.jpg", "b.jpg", "c.jpg"}, Val: []string{"d.jpg"}},
			{Group: "Mitsukurinidae", Members: 1, Skipped: true, Reason: "fewer than 2 members"},
		},
		TrainTotal:    3,
		ValTotal:      1,
		Total:         4,
		SkippedGroups: []string{"Mitsukurinidae"},
		Mode:          fsutil.ModeCopy,
	}
}

func reorganizeReport() *reorganize.Report {
	return &reorganize.Report{
		Processed:          5,
		Placed:             4,
		PerGroup:           map[string]int{"Sphyrnidae": 1, "Carcharhinidae": 3},
		UnknownCodes:       []string{"XXX"},
		UnknownCodeRecords: 1,
		GroupBy:            reorganize.ByFamily,
		Mode:               fsutil.ModeMove,
	}
}

func TestWriteYAML(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()

	doc := NewDocument("run-1", "consolidate")
	doc.SetConsolidation(consolidationReport(t))
	require.NoError(t, WriteYAML(fsys, "reports/run.yaml", doc))

	data, err := afero.ReadFile(fsys, "reports/run.yaml")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, "run-1", got["run_id"])
	assert.NotContains(t, got, "split", "absent sections are omitted")
	assert.NotContains(t, got, "seed")

	section, ok := got["consolidation"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 3, section["files"], "report counts are inlined")
	assert.Equal(t, 2, section["rare_id"])
	assert.Equal(t, consolidate.DefaultRareName, section["rare_name"])
	assert.Equal(t, []any{1}, section["rare_classes"])
	assert.Equal(t, map[string]any{"0": 0, "1": 2, "2": 1}, stringKeys(section["mapping"]))
	assert.Equal(t, "1.5s", section["duration"])
}

// stringKeys normalizes a decoded YAML map whose keys are integers
func stringKeys(v any) map[string]any {
	out := map[string]any{}
	m, ok := v.(map[string]any)
	if ok {
		return m
	}
	if mi, ok := v.(map[any]any); ok {
		for k, val := range mi {
			out[fmt.Sprint(k)] = val
		}
	}
	return out
}

func TestDocumentSplitAndError(t *testing.T) {
	t.Parallel()

	doc := NewDocument("run-2", "family")
	doc.Reorganize = reorganizeReport()
	doc.SetSplit(splitResult(), 5, 0.8)
	doc.SetError(errors.NewStd("interrupted"))
	doc.SetError(nil)

	data, err := doc.Marshal()
	require.NoError(t, err)

	var got Document
	require.NoError(t, yaml.Unmarshal(data, &got))
	require.NotNil(t, got.Seed)
	assert.Equal(t, uint64(5), *got.Seed)
	assert.InDelta(t, 0.8, got.Ratio, 1e-9)
	assert.Equal(t, "interrupted", got.Error, "a nil error keeps the recorded one")
	require.NotNil(t, got.Split)
	assert.Equal(t, []string{"a.jpg", "b.jpg", "c.jpg"}, got.Split.Groups[0].Train)
	require.NotNil(t, got.Reorganize)
	assert.Equal(t, 3, got.Reorganize.PerGroup["Carcharhinidae"])
	assert.Nil(t, got.Consolidation)
}

func TestSetConsolidationWithoutPlan(t *testing.T) {
	t.Parallel()

	doc := NewDocument("run-3", "consolidate")
	doc.SetConsolidation(nil)
	assert.Nil(t, doc.Consolidation)

	doc.SetConsolidation(&consolidate.Report{Files: 2, UnknownIDs: map[int]int{9: 3}})
	require.NotNil(t, doc.Consolidation)
	assert.Equal(t, 2, doc.Consolidation.Files)
	assert.Empty(t, doc.Consolidation.Mapping)
	assert.Empty(t, doc.Consolidation.RareName)
}

func TestPrintSummaries(t *testing.T) {
	t.Parallel()

	doc := NewDocument("run-4", "family")
	doc.Reorganize = reorganizeReport()
	doc.SetSplit(splitResult(), 5, 0.8)
	doc.SetConsolidation(consolidationReport(t))

	var buf bytes.Buffer
	require.NoError(t, Print(&buf, doc))
	out := buf.String()

	assert.Contains(t, out, "Reorganize by family (move)")
	assert.Contains(t, out, "Unknown codes (1 images)")
	assert.Contains(t, out, "XXX")
	assert.Contains(t, out, "Split (copy)")
	assert.Contains(t, out, "skipped: fewer than 2 members")
	assert.Contains(t, out, "Merged into rare_species (id 2)")
	assert.Contains(t, out, "labels/classes_final.txt")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("Reorganize")), bytes.Index(buf.Bytes(), []byte("Split")),
		"sections follow the pipeline order")
}

func TestPrintLargeCounts(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, PrintConsolidation(&buf, &consolidate.Report{Files: 1234567, DryRun: true}))
	assert.Contains(t, buf.String(), "1,234,567")
	assert.Contains(t, buf.String(), "Consolidation (dry run)")
}

func TestJoinLimited(t *testing.T) {
	t.Parallel()

	items := make([]string, maxListed+3)
	for i := range items {
		items[i] = fmt.Sprintf("c%d", i)
	}
	got := joinLimited(items)
	assert.Contains(t, got, "(+3 more)")
	assert.NotContains(t, got, fmt.Sprintf("c%d", maxListed))
	assert.Equal(t, "a, b", joinLimited([]string{"a", "b"}))
}

func TestWriteChart(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()

	doc := NewDocument("run-5", "family")
	doc.Reorganize = reorganizeReport()
	doc.SetSplit(splitResult(), 5, 0.8)
	doc.SetConsolidation(consolidationReport(t))
	require.NoError(t, WriteChart(fsys, "charts/run.html", doc))

	data, err := afero.ReadFile(fsys, "charts/run.html")
	require.NoError(t, err)
	html := string(data)
	assert.Contains(t, html, "<html")
	assert.Contains(t, html, "corpusprep family")
	assert.Contains(t, html, "Carcharhinidae")
	assert.Contains(t, html, "Class support")
	assert.NotContains(t, html, "Mitsukurinidae", "skipped groups are not charted")
}

func TestPrintLedger(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	run := datastore.Run{
		UUID:       "5f0c6b43-2d7e-4a53-9f1e-3c1d7a4e8b21",
		Command:    "split",
		Status:     datastore.StatusSuccess,
		Ratio:      0.8,
		Source:     "/corpus",
		StartedAt:  now.Add(-2 * time.Hour),
		FinishedAt: now.Add(-2*time.Hour + 3*time.Second),
		Assignments: []datastore.Assignment{
			{GroupName: "Carcharhinidae", File: "a.jpg", Subset: datastore.SubsetTrain},
			{GroupName: "Carcharhinidae", File: "b.jpg", Subset: datastore.SubsetVal},
		},
	}
	run.SetSeed(5)

	var buf bytes.Buffer
	require.NoError(t, PrintRuns(&buf, []datastore.Run{run}, now))
	assert.Contains(t, buf.String(), "2 hours ago")
	assert.Contains(t, buf.String(), "5 (0.80)")

	buf.Reset()
	require.NoError(t, PrintRun(&buf, &run))
	assert.Contains(t, buf.String(), "1 train, 1 val")
	assert.Contains(t, buf.String(), "3s")

	buf.Reset()
	require.NoError(t, PrintSplitDiff(&buf, "a", "b", &datastore.SplitDiff{}))
	assert.Contains(t, buf.String(), "same subset")

	buf.Reset()
	require.NoError(t, PrintSplitDiff(&buf, "a", "b", &datastore.SplitDiff{
		Changed:      []datastore.AssignmentChange{{GroupName: "Sphyrnidae", File: "c.jpg", First: "train", Second: "val"}},
		OnlyInSecond: []string{"Sphyrnidae/d.jpg"},
	}))
	assert.Contains(t, buf.String(), "Runs a and b differ")
	assert.Contains(t, buf.String(), "c.jpg")
	assert.Contains(t, buf.String(), "Sphyrnidae/d.jpg")
}
