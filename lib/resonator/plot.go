package resonator

import (
	"fmt"
	"image/color"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// savePlot draws the block data, its linear trend and the ±zσ band.
func savePlot(dir string, n int, freq, mag []float64, r Resonance) error {
	alpha, beta, _ := fit(freq, mag)
	data := make(plotter.XYs, len(freq))
	trend := make(plotter.XYs, len(freq))
	upper := make(plotter.XYs, len(freq))
	lower := make(plotter.XYs, len(freq))
	band := r.Z * r.Sigma
	for i, f := range freq {
		t := alpha + beta*f
		data[i] = plotter.XY{X: f, Y: mag[i]}
		trend[i] = plotter.XY{X: f, Y: t}
		upper[i] = plotter.XY{X: f, Y: t + band}
		lower[i] = plotter.XY{X: f, Y: t - band}
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Resonator %d", n)
	p.X.Label.Text = "Frequency (Hz)"
	p.Y.Label.Text = "Magnitude (dB)"

	dl, err := plotter.NewLine(data)
	if err != nil {
		return err
	}
	dl.LineStyle.Color = color.RGBA{B: 255, A: 255}
	tl, err := plotter.NewLine(trend)
	if err != nil {
		return err
	}
	ul, err := plotter.NewLine(upper)
	if err != nil {
		return err
	}
	ll, err := plotter.NewLine(lower)
	if err != nil {
		return err
	}
	for _, l := range []*plotter.Line{ul, ll} {
		l.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	}
	p.Add(dl, tl, ul, ll)
	p.Legend.Add("data", dl)
	p.Legend.Add("linear fit", tl)
	p.Legend.Add(fmt.Sprintf("%gσ", r.Z), ul)

	name := filepath.Join(dir, fmt.Sprintf("resonator_%d.png", n))
	if err := p.Save(8*vg.Inch, 5*vg.Inch, name); err != nil {
		return fmt.Errorf("saving %s: %w", name, err)
	}
	return nil
}
