package workbook

import (
	"bytes"
	"fmt"
	"math"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/rewired-gh/trfret/internal/models"
)

var curveColors = []drawing.Color{
	chart.ColorRed,
	chart.ColorGreen,
	{R: 255, G: 165, B: 0, A: 255},
	{R: 128, G: 0, B: 128, A: 255},
}

// renderChart plots the averaged normalized signal against log10 concentration
// with every fitted curve overlaid, as PNG.
func renderChart(view models.SignalView, curves []curve) ([]byte, error) {
	if view.Concentrations.Len() < 2 {
		return nil, fmt.Errorf("need at least 2 points to plot, got %d", view.Concentrations.Len())
	}

	series := []chart.Series{
		chart.ContinuousSeries{
			Name:    "Average",
			XValues: view.Concentrations.Log10,
			YValues: view.Statistics.Average,
			Style: chart.Style{
				StrokeWidth: chart.Disabled,
				DotWidth:    5,
				DotColor:    chart.ColorBlue,
			},
		},
	}
	for k, c := range curves {
		logs := make([]float64, len(c.x))
		for i, v := range c.x {
			logs[i] = math.Log10(v)
		}
		series = append(series, chart.ContinuousSeries{
			Name:    c.model,
			XValues: logs,
			YValues: c.y,
			Style:   chart.Style{StrokeColor: curveColors[k%len(curveColors)], StrokeWidth: 2.0},
		})
	}

	graph := chart.Chart{
		Width:  800,
		Height: 500,
		XAxis: chart.XAxis{
			Name:  "log10 Concentration (nM)",
			Style: chart.Style{FontSize: 10.0},
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%.1f", v.(float64))
			},
		},
		YAxis: chart.YAxis{
			Name:  "Normalized Signal",
			Style: chart.Style{FontSize: 10.0},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	return buffer.Bytes(), nil
}
