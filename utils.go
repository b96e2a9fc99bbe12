package colorgan_go

import (
	"fmt"
	"image/color"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Dtype Type of every node and tensor of the model
var Dtype = tensor.Float64

// scalarValue Extracts float64 from scalar value read from the graph
func scalarValue(v gorgonia.Value) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("Value is nil")
	}
	switch val := v.Data().(type) {
	case float64:
		return val, nil
	case []float64:
		if len(val) != 1 {
			return 0, fmt.Errorf("Scalar expected, but got %d values", len(val))
		}
		return val[0], nil
	default:
		return 0, fmt.Errorf("Float64 value expected, but got %T", val)
	}
}

// cloneDense Copies value read from the graph, so it survives the next run of tape machine
func cloneDense(v gorgonia.Value) (*tensor.Dense, error) {
	if v == nil {
		return nil, fmt.Errorf("Value is nil")
	}
	dense, ok := v.(*tensor.Dense)
	if !ok {
		return nil, fmt.Errorf("*tensor.Dense expected, but got %T", v)
	}
	return dense.Clone().(*tensor.Dense), nil
}

// PlotLosses Plot chart of losses versus step
func PlotLosses(history []LossRecord, fname string) error {
	if len(history) == 0 {
		return fmt.Errorf("Loss history is empty")
	}
	series := []struct {
		name  string
		value func(r LossRecord) float64
		color color.RGBA
	}{
		{"D(real)", func(r LossRecord) float64 { return r.DisReal }, color.RGBA{R: 255, B: 128, A: 255}},
		{"D(fake)", func(r LossRecord) float64 { return r.DisFake }, color.RGBA{G: 160, B: 255, A: 255}},
		{"G", func(r LossRecord) float64 { return r.Gen }, color.RGBA{R: 40, G: 180, B: 40, A: 255}},
	}
	p := plot.New()
	p.Title.Text = "Losses"
	p.X.Label.Text = "Step"
	p.Y.Label.Text = "Loss"
	p.Add(plotter.NewGrid())
	for _, s := range series {
		xys := make(plotter.XYs, len(history))
		for i, r := range history {
			xys[i].X = float64(r.Step)
			xys[i].Y = s.value(r)
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't init new line for '%s'", s.name))
		}
		line.Color = s.color
		p.Add(line)
		p.Legend.Add(s.name, line)
	}
	p.Legend.Top = true
	// Save the plot to a PNG file.
	if err := p.Save(8*vg.Inch, 4*vg.Inch, fname); err != nil {
		return errors.Wrap(err, "Can't save plot")
	}
	return nil
}
