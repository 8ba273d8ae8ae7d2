package plot

import (
	"fmt"
	"io"

	"github.com/manvincent/aDDM-Toolbox/internal/histogram"
	"github.com/wcharczuk/go-chart/v2"
)

// ChoiceCurves draws P(choose left) against the left-minus-right value
// difference for the data and the simulation. Each curve needs at least two
// value differences.
func ChoiceCurves(w io.Writer, title string, data, sim *histogram.ChoiceCurve) error {
	if len(data.ValueDiffs) < 2 || len(sim.ValueDiffs) < 2 {
		return fmt.Errorf("need at least two value differences per curve, got %d and %d",
			len(data.ValueDiffs), len(sim.ValueDiffs))
	}

	dot := func(c chart.Style) chart.Style {
		c.StrokeWidth = 2.0
		c.DotWidth = 4.0
		c.DotColor = c.StrokeColor
		return c
	}
	graph := chart.Chart{
		Title:  title,
		Width:  Width,
		Height: Height,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: chart.XAxis{
			Name:  "value left - value right",
			Style: chart.Style{FontSize: 10.0},
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%g", v.(float64))
			},
		},
		YAxis: chart.YAxis{
			Name:  "P(choose left)",
			Style: chart.Style{FontSize: 10.0},
			Range: &chart.ContinuousRange{Min: 0, Max: 1},
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "data",
				XValues: data.ValueDiffs,
				YValues: data.Proportions(),
				Style:   dot(chart.Style{StrokeColor: dataColor}),
			},
			chart.ContinuousSeries{
				Name:    "simulated",
				XValues: sim.ValueDiffs,
				YValues: sim.Proportions(),
				Style:   dot(chart.Style{StrokeColor: simColor, StrokeDashArray: []float64{5.0, 3.0}}),
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}
