package observability

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/corpusprep/internal/consolidate"
	"github.com/tphakala/corpusprep/internal/errors"
	"github.com/tphakala/corpusprep/internal/reorganize"
	"github.com/tphakala/corpusprep/internal/split"
)

func TestWriteTextfile(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.RecordSplit("split", &split.Result{
		Groups:        []split.GroupResult{{Group: "Carcharhinidae"}, {Group: "Lamnidae", Skipped: true}},
		SkippedGroups: []string{"Lamnidae"},
		TrainTotal:    8,
		ValTotal:      2,
		Total:         10,
		Duration:      time.Second,
	}, nil)
	m.RecordReorganize("reorganize", &reorganize.Report{
		Processed:          4,
		Placed:             3,
		PerGroup:           map[string]int{"Sphyrnidae": 3},
		UnknownCodes:       []string{"XYZ"},
		UnknownCodeRecords: 1,
	}, nil)
	m.RecordConsolidation(nil, errors.NewStd("manifest missing"))

	path := filepath.Join(t.TempDir(), "corpusprep.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `corpusprep_subset_records{subset="train"} 8`)
	assert.Contains(t, text, `corpusprep_subset_records{subset="val"} 2`)
	assert.Contains(t, text, `corpusprep_groups{command="split",state="skipped"} 1`)
	assert.Contains(t, text, `corpusprep_files_total{command="reorganize",outcome="unresolved"} 1`)
	assert.Contains(t, text, `corpusprep_unresolved_keys{kind="code"} 1`)
	assert.Contains(t, text, `corpusprep_runs_total{command="consolidate",status="error"} 1`)
}

func TestRecordConsolidationClasses(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.RecordConsolidation(&consolidate.Report{
		Files:     2,
		LinesRead: 5,
		Plan: &consolidate.Plan{
			Retained: []int{0, 2},
			Rare:     []int{1},
		},
	}, nil)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range families {
		if mf.GetName() != "corpusprep_classes" {
			continue
		}
		found = true
		values := map[string]float64{}
		for _, metric := range mf.GetMetric() {
			values[metric.GetLabel()[0].GetValue()] = metric.GetGauge().GetValue()
		}
		assert.InDelta(t, 3, values["input"], 0)
		assert.InDelta(t, 2, values["retained"], 0)
		assert.InDelta(t, 1, values["rare"], 0)
	}
	assert.True(t, found)
}

func TestWriteTextfileFailure(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	err = m.WriteTextfile(filepath.Join(t.TempDir(), "missing", "corpusprep.prom"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))
}

func TestRecordFamilyCountsOneRun(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	m.RecordFamily(&reorganize.Report{
		Processed: 6,
		Placed:    5,
		PerGroup:  map[string]int{"Carcharhinidae": 5},
		Duration:  time.Second,
	}, &split.Result{
		Groups:     []split.GroupResult{{Group: "Carcharhinidae"}},
		TrainTotal: 4,
		ValTotal:   1,
		Total:      5,
		Duration:   time.Second,
	}, nil)

	path := filepath.Join(t.TempDir(), "corpusprep.prom")
	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `corpusprep_runs_total{command="family",status="success"} 1`)
	assert.Contains(t, text, `corpusprep_files_total{command="family",outcome="placed"} 5`,
		"split placements are not counted twice")
	assert.Contains(t, text, `corpusprep_run_duration_seconds_sum{command="family"} 2`)
}
