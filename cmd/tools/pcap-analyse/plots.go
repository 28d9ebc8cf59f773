//go:build pcap
// +build pcap

package main

import (
	"fmt"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// writePlots saves a points-per-frame line chart and a histogram of the same
// series into dir, returning the file paths.
func writePlots(dir, base string, frames []FrameRecord) ([]string, error) {
	pts := make(plotter.XYs, 0, len(frames))
	values := make(plotter.Values, 0, len(frames))
	for _, f := range frames {
		pts = append(pts, plotter.XY{X: float64(f.Seq), Y: float64(f.Points)})
		values = append(values, float64(f.Points))
	}

	pLine := plot.New()
	pLine.Title.Text = fmt.Sprintf("%s: points per frame", base)
	pLine.X.Label.Text = "Frame"
	pLine.Y.Label.Text = "Points"
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("points line: %w", err)
	}
	line.Width = vg.Points(1)
	pLine.Add(line, plotter.NewGrid())

	pHist := plot.New()
	pHist.Title.Text = fmt.Sprintf("%s: points per frame distribution", base)
	pHist.X.Label.Text = "Points"
	pHist.Y.Label.Text = "Frames"
	hist, err := plotter.NewHist(values, 40)
	if err != nil {
		return nil, fmt.Errorf("points histogram: %w", err)
	}
	pHist.Add(hist)

	linePath := filepath.Join(dir, base+"_points.png")
	if err := pLine.Save(14*vg.Inch, 6*vg.Inch, linePath); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", linePath, err)
	}
	histPath := filepath.Join(dir, base+"_points_hist.png")
	if err := pHist.Save(8*vg.Inch, 6*vg.Inch, histPath); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", histPath, err)
	}
	return []string{linePath, histPath}, nil
}
