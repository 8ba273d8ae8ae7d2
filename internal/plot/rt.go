// Package plot renders RT histogram and choice curve comparisons as PNG
// charts.
package plot

import (
	"fmt"
	"io"

	"github.com/manvincent/aDDM-Toolbox/internal/histogram"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Chart size in pixels.
const (
	Width  = 900
	Height = 500
)

var (
	dataColor = drawing.Color{R: 40, G: 90, B: 200, A: 255}
	simColor  = drawing.Color{R: 230, G: 120, B: 0, A: 255}
)

// RTHistograms draws the normalized data and simulated RT histograms of both
// choices. Left choices are drawn above the axis and right choices mirrored
// below it.
func RTHistograms(w io.Writer, title string, data, sim *histogram.RT) error {
	if data.Binning != sim.Binning {
		return fmt.Errorf("histograms use different binnings")
	}
	if data.Binning.NumBins() < 2 {
		return fmt.Errorf("need at least two bins to plot, got %d", data.Binning.NumBins())
	}
	if data.Total() == 0 && sim.Total() == 0 {
		return fmt.Errorf("both histograms are empty")
	}

	d, s := data.Normalized(), sim.Normalized()
	x := d.Binning.Centers()

	series := []chart.Series{
		chart.ContinuousSeries{
			Name:    "data (left)",
			XValues: x,
			YValues: d.Left,
			Style:   chart.Style{StrokeColor: dataColor, StrokeWidth: 2.0},
		},
		chart.ContinuousSeries{
			Name:    "simulated (left)",
			XValues: x,
			YValues: s.Left,
			Style:   chart.Style{StrokeColor: simColor, StrokeWidth: 2.0},
		},
		chart.ContinuousSeries{
			Name:    "data (right)",
			XValues: x,
			YValues: negate(d.Right),
			Style:   chart.Style{StrokeColor: dataColor, StrokeWidth: 2.0, StrokeDashArray: []float64{5.0, 3.0}},
		},
		chart.ContinuousSeries{
			Name:    "simulated (right)",
			XValues: x,
			YValues: negate(s.Right),
			Style:   chart.Style{StrokeColor: simColor, StrokeWidth: 2.0, StrokeDashArray: []float64{5.0, 3.0}},
		},
	}

	graph := chart.Chart{
		Title:  title,
		Width:  Width,
		Height: Height,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: chart.XAxis{
			Name:  "RT (ms)",
			Style: chart.Style{FontSize: 10.0},
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%d", int(v.(float64)))
			},
		},
		YAxis: chart.YAxis{
			Name:  "proportion (left above, right below)",
			Style: chart.Style{FontSize: 10.0},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

func negate(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, v := range xs {
		out[i] = -v
	}
	return out
}
