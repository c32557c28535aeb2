package replay

import (
	"context"
	"fmt"
	"image/color"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/balltrack/internal/cycler"
	"github.com/banshee-data/balltrack/internal/geometry"
)

var (
	truthColor     = color.RGBA{R: 0x35, G: 0xb7, B: 0x79, A: 255}
	detectionColor = color.RGBA{R: 0x90, G: 0x90, B: 0x90, A: 255}
	estimateColor  = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 255}
)

// TrajectoryPlot is a cycler.Sink that accumulates detections and the
// reported ball and renders them with the truth track as a PNG.
type TrajectoryPlot struct {
	title string

	mu         sync.Mutex
	truth      plotter.XYs
	detections plotter.XYs
	estimates  plotter.XYs
}

// NewTrajectoryPlot creates an empty plot. Truth is taken from frames when
// they carry it.
func NewTrajectoryPlot(title string, frames []Frame) *TrajectoryPlot {
	tp := &TrajectoryPlot{title: title}
	for _, f := range frames {
		if f.Truth != nil {
			tp.truth = append(tp.truth, xy(*f.Truth))
		}
	}
	return tp
}

func xy(p geometry.Point2) plotter.XY {
	return plotter.XY{X: p.X, Y: p.Y}
}

// Consume implements cycler.Sink.
func (tp *TrajectoryPlot) Consume(_ context.Context, record cycler.Record) error {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	for _, batch := range record.Input.Measurements {
		for _, d := range batch.Detections {
			tp.detections = append(tp.detections, xy(d))
		}
	}
	if b := record.Output.BallPosition; b != nil {
		tp.estimates = append(tp.estimates, xy(b.Position))
	}
	return nil
}

// Points returns how many truth, detection and estimate points are held.
func (tp *TrajectoryPlot) Points() (truth, detections, estimates int) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return len(tp.truth), len(tp.detections), len(tp.estimates)
}

// Save renders the plot to path. The format follows the extension.
func (tp *TrajectoryPlot) Save(path string) error {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	p := plot.New()
	p.Title.Text = tp.title
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	p.Add(plotter.NewGrid())

	if len(tp.detections) > 0 {
		scatter, err := plotter.NewScatter(tp.detections)
		if err != nil {
			return fmt.Errorf("detections: %w", err)
		}
		scatter.Color = detectionColor
		scatter.Radius = vg.Points(1.5)
		p.Add(scatter)
		p.Legend.Add("detections", scatter)
	}
	if len(tp.truth) > 0 {
		line, err := plotter.NewLine(tp.truth)
		if err != nil {
			return fmt.Errorf("truth: %w", err)
		}
		line.Color = truthColor
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add("truth", line)
	}
	if len(tp.estimates) > 0 {
		line, err := plotter.NewLine(tp.estimates)
		if err != nil {
			return fmt.Errorf("estimates: %w", err)
		}
		line.Color = estimateColor
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add("ball", line)
	}

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot %s: %w", path, err)
	}
	return nil
}
