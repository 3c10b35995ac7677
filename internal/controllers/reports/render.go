package reports

import (
	"fmt"
	"math"

	"github.com/hydrometrie/watertracker/internal/indicators"
	"github.com/hydrometrie/watertracker/internal/types"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var monthNames = [12]string{
	"Janvier", "Février", "Mars", "Avril", "Mai", "Juin",
	"Juillet", "Août", "Septembre", "Octobre", "Novembre", "Décembre",
}

// RenderDistribution draws the stacked per-month drought level distribution
// and saves it to path; the extension selects the output format.
func RenderDistribution(dist []indicators.MonthDistribution, title string, path string) error {
	months := make([]indicators.MonthDistribution, 0, len(dist))
	for _, m := range dist {
		if m.Total > 0 {
			months = append(months, m)
		}
	}
	if len(months) == 0 {
		return fmt.Errorf("distribution is empty")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s : répartition de la sécheresse depuis 1 an", title)
	p.Y.Label.Text = "Proportion des stations (%)"
	p.Y.Max = 100

	// one stacked bar layer per level, bottom-up
	var previous *plotter.BarChart
	for levelCode := len(indicators.DroughtLevels) - 1; levelCode >= 0; levelCode-- {
		level := indicators.DroughtLevels[levelCode]
		values := make(plotter.Values, len(months))
		for i, m := range months {
			values[i] = m.Percents[levelCode]
		}

		bars, err := plotter.NewBarChart(values, vg.Points(22))
		if err != nil {
			return fmt.Errorf("building bar layer: %w", err)
		}
		bars.Color = parseHexColor(level.Color)
		bars.LineStyle.Width = 0
		if previous != nil {
			bars.StackOn(previous)
		}
		p.Add(bars)
		p.Legend.Add(level.Label, bars)
		previous = bars
	}

	names := make([]string, len(months))
	for i, m := range months {
		names[i] = monthNames[m.Month-1]
	}
	p.NominalX(names...)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = -1
	p.Legend.Top = true

	return p.Save(9*vg.Inch, 4.5*vg.Inch, path)
}

// RenderIndicatorSeries draws a station's standardized indicator chronicle.
func RenderIndicatorSeries(points []types.IndicatorPoint, station string, path string) error {
	xys := make(plotter.XYs, 0, len(points))
	for _, pt := range points {
		if math.IsNaN(pt.Score) {
			continue
		}
		xys = append(xys, plotter.XY{
			X: float64(pt.Timestamp.Unix()),
			Y: pt.Score,
		})
	}
	if len(xys) == 0 {
		return fmt.Errorf("no finite scores for station %s", station)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Indicateur standardisé : %s", station)
	p.Y.Label.Text = "Score"
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01"}

	line, err := plotter.NewLine(xys)
	if err != nil {
		return fmt.Errorf("building line: %w", err)
	}
	line.Color = parseHexColor("#1e73c3")
	p.Add(line, plotter.NewGrid())

	return p.Save(9*vg.Inch, 3.5*vg.Inch, path)
}
