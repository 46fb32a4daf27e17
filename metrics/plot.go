package metrics

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotLatency renders operation index against latency in milliseconds.
func PlotLatency(metrics []Metric, filename string) error {
	pts := make(plotter.XYs, len(metrics))
	for i, m := range metrics {
		pts[i].X = float64(m.OperationIndex)
		pts[i].Y = m.Latency * 1000
	}
	return savePlot(pts, "Write latency", "Operation", "Latency (ms)", filename)
}

// PlotThroughput renders elapsed time against running throughput.
func PlotThroughput(metrics []Metric, filename string) error {
	pts := make(plotter.XYs, len(metrics))
	for i, m := range metrics {
		pts[i].X = m.Timestamp
		pts[i].Y = m.Throughput()
	}
	return savePlot(pts, "Write throughput", "Time (s)", "Operations/s", filename)
}

func savePlot(pts plotter.XYs, title, xLabel, yLabel, filename string) error {
	if len(pts) == 0 {
		return fmt.Errorf("no metrics to plot in %s", filename)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	p.Add(plotter.NewGrid())

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("could not build %s: %w", filename, err)
	}
	p.Add(line)

	if err := p.Save(6*vg.Inch, 4*vg.Inch, filename); err != nil {
		return fmt.Errorf("could not save %s: %w", filename, err)
	}
	return nil
}
