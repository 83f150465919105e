package visualization

import (
	"image/color"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotLagSweep plots the score of each trial lag and marks the best one. The
// plot format follows the extension of filename.
func PlotLagSweep(title string, lagsMs, scores []float64, bestLagMs float64, filename string) error {
	if len(lagsMs) != len(scores) {
		return errors.Errorf("%d lags but %d scores", len(lagsMs), len(scores))
	}
	if len(lagsMs) == 0 {
		return errors.New("nothing to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Lag (ms)"
	p.Y.Label.Text = "Variance (mm²)"

	pts := make(plotter.XYs, 0, len(lagsMs))
	var best plotter.XYs
	for i, lag := range lagsMs {
		pts = append(pts, plotter.XY{X: lag, Y: scores[i]})
		if lag == bestLagMs {
			best = append(best, plotter.XY{X: lag, Y: scores[i]})
		}
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{B: 200, A: 255}
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("sweep", line)

	if len(best) > 0 {
		marker, err := plotter.NewScatter(best)
		if err != nil {
			return err
		}
		marker.Color = color.RGBA{R: 220, A: 255}
		marker.Radius = vg.Points(4)
		p.Add(marker)
		p.Legend.Add("best", marker)
	}

	return errors.Wrapf(p.Save(8*vg.Inch, 4*vg.Inch, filename), "saving plot %s", filename)
}
