package report

import (
	"bytes"
	"maps"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/spf13/afero"

	"github.com/tphakala/corpusprep/internal/errors"
	"github.com/tphakala/corpusprep/internal/fsutil"
	"github.com/tphakala/corpusprep/internal/logger"
)

const chartHeight = "540px"

func newBar(title, subtitle string) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
	)
	return bar
}

func barData(values []int) []opts.BarData {
	data := make([]opts.BarData, len(values))
	for i, v := range values {
		data[i] = opts.BarData{Value: v}
	}
	return data
}

// supportChart shows the annotation count of every original class, split
// into the classes kept and the classes merged into the rare class
func supportChart(c *Consolidation) *charts.Bar {
	ids := slices.Sorted(maps.Keys(c.Support))
	x := make([]string, len(ids))
	kept := make([]int, len(ids))
	merged := make([]int, len(ids))
	for i, id := range ids {
		x[i] = strconv.Itoa(id)
		if slices.Contains(c.RareClasses, id) {
			merged[i] = c.Support[id]
		} else {
			kept[i] = c.Support[id]
		}
	}

	subtitle := "annotations per original class id"
	if c.RareName != "" {
		subtitle += ", merged classes go to " + c.RareName
	}
	bar := newBar("Class support", subtitle)
	bar.SetXAxis(x).
		AddSeries("retained", barData(kept), charts.WithBarChartOpts(opts.BarChart{Stack: "support"})).
		AddSeries("merged", barData(merged), charts.WithBarChartOpts(opts.BarChart{Stack: "support"}))
	return bar
}

func splitChart(d *Document) *charts.Bar {
	var x []string
	var train, val []int
	for _, g := range d.Split.Groups {
		if g.Skipped {
			continue
		}
		x = append(x, g.Group)
		train = append(train, len(g.Train))
		val = append(val, len(g.Val))
	}

	subtitle := "records per group"
	if d.Seed != nil {
		subtitle += ", seed " + strconv.FormatUint(*d.Seed, 10)
	}
	bar := newBar("Train and validation subsets", subtitle)
	bar.SetXAxis(x).
		AddSeries("train", barData(train), charts.WithBarChartOpts(opts.BarChart{Stack: "subset"})).
		AddSeries("val", barData(val), charts.WithBarChartOpts(opts.BarChart{Stack: "subset"}))
	return bar
}

func groupChart(d *Document) *charts.Bar {
	groups := slices.Sorted(maps.Keys(d.Reorganize.PerGroup))
	counts := make([]int, len(groups))
	for i, g := range groups {
		counts[i] = d.Reorganize.PerGroup[g]
	}
	bar := newBar("Images per group", "grouped by "+string(d.Reorganize.GroupBy))
	bar.SetXAxis(groups).
		AddSeries("images", barData(counts), charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))
	return bar
}

// RenderChart renders an HTML page with a bar chart per document section
func RenderChart(d *Document) ([]byte, error) {
	page := components.NewPage()
	page.SetPageTitle("corpusprep " + d.Command)
	if d.Reorganize != nil {
		page.AddCharts(groupChart(d))
	}
	if d.Split != nil {
		page.AddCharts(splitChart(d))
	}
	if d.Consolidation != nil {
		page.AddCharts(supportChart(d.Consolidation))
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, errors.New(err).
			Component("report").
			Category(errors.CategoryProcessing).
			Context("operation", "render-chart").
			Build()
	}
	return buf.Bytes(), nil
}

// WriteChart renders the chart page of the document to path
func WriteChart(fsys afero.Fs, path string, d *Document) error {
	data, err := RenderChart(d)
	if err != nil {
		return err
	}
	if err := fsutil.EnsureDir(fsys, filepath.Dir(path)); err != nil {
		return err
	}
	if err := fsutil.AtomicWriteFile(fsys, path, data, fsutil.FilePermissions); err != nil {
		return err
	}
	GetLogger().Debug("chart written", logger.String("path", path))
	return nil
}
