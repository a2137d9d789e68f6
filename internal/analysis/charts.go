package analysis

import (
	"fmt"
	"io"
	"math"

	chart "github.com/wcharczuk/go-chart/v2"
)

const (
	chartWidth  = 1024
	chartHeight = 640
	// maxChartGroups keeps bar labels legible.
	maxChartGroups = 30
)

// renderChart writes a PNG for the groups. Line charts with fewer than two
// points and pie charts with non-positive slices are drawn as bars instead.
func renderChart(chartType, title string, groups []Group, w io.Writer) error {
	if len(groups) == 0 {
		return fmt.Errorf("nothing to plot: no rows matched the query")
	}
	if len(groups) > maxChartGroups {
		groups = groups[:maxChartGroups]
	}

	switch {
	case chartType == ChartLine && len(groups) >= 2:
		return renderLine(title, groups, w)
	case chartType == ChartPie && allPositive(groups):
		return renderPie(title, groups, w)
	default:
		return renderBar(title, groups, w)
	}
}

func renderBar(title string, groups []Group, w io.Writer) error {
	bars := make([]chart.Value, 0, len(groups))
	for _, g := range groups {
		bars = append(bars, chart.Value{Label: g.Label, Value: g.Value})
	}

	barWidth := (chartWidth-120)/len(groups) - 10
	if barWidth < 8 {
		barWidth = 8
	}
	if barWidth > 120 {
		barWidth = 120
	}

	graph := chart.BarChart{
		Title:      title,
		Width:      chartWidth,
		Height:     chartHeight,
		BarWidth:   barWidth,
		BarSpacing: 10,
		Background: chart.Style{Padding: chart.Box{Top: 48}},
		YAxis:      chart.YAxis{Range: valueRange(groups)},
		Bars:       bars,
	}
	return graph.Render(chart.PNG, w)
}

func renderLine(title string, groups []Group, w io.Writer) error {
	xs := make([]float64, len(groups))
	ys := make([]float64, len(groups))
	ticks := make([]chart.Tick, len(groups))
	for i, g := range groups {
		xs[i] = float64(i)
		ys[i] = g.Value
		ticks[i] = chart.Tick{Value: float64(i), Label: g.Label}
	}

	graph := chart.Chart{
		Title:      title,
		Width:      chartWidth,
		Height:     chartHeight,
		Background: chart.Style{Padding: chart.Box{Top: 48}},
		XAxis:      chart.XAxis{Ticks: ticks},
		YAxis:      chart.YAxis{Range: valueRange(groups)},
		Series: []chart.Series{
			chart.ContinuousSeries{Name: title, XValues: xs, YValues: ys},
		},
	}
	return graph.Render(chart.PNG, w)
}

func renderPie(title string, groups []Group, w io.Writer) error {
	values := make([]chart.Value, 0, len(groups))
	for _, g := range groups {
		values = append(values, chart.Value{Label: g.Label, Value: g.Value})
	}
	graph := chart.PieChart{
		Title:  title,
		Width:  chartHeight,
		Height: chartHeight,
		Values: values,
	}
	return graph.Render(chart.PNG, w)
}

// valueRange always includes zero and never collapses to an empty range.
func valueRange(groups []Group) *chart.ContinuousRange {
	lo, hi := 0.0, 0.0
	for _, g := range groups {
		lo = math.Min(lo, g.Value)
		hi = math.Max(hi, g.Value)
	}
	if hi-lo == 0 {
		hi = lo + 1
	}
	pad := (hi - lo) * 0.05
	if lo < 0 {
		lo -= pad
	}
	return &chart.ContinuousRange{Min: lo, Max: hi + pad}
}

func allPositive(groups []Group) bool {
	for _, g := range groups {
		if g.Value <= 0 {
			return false
		}
	}
	return true
}
