// Package resonator locates resonances in a wide transmission sweep. The
// sweep is cut into blocks, each block is detrended with a linear fit of
// |S21| in dB, and the blocks with the largest residual spread are searched
// for the points that stand out from the trend.
package resonator

import (
	"fmt"
	"math"
	"math/cmplx"
	"sort"

	"github.com/gotmc/cryolab"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Search defaults.
const (
	DefaultBlocks = 80
	DefaultCount  = 8

	linewidthCutoff   = 1e6
	fallbackLinewidth = 3e3
	startZ            = 4.0
	stepZ             = 0.5
	maxZ              = 7.0
)

// Resonance is one located resonator.
type Resonance struct {
	Center    float64 // Hz
	Linewidth float64 // Hz
	Block     int
	Sigma     float64 // residual standard deviation, dB
	Z         float64 // threshold multiplier that produced the estimate
}

type finder struct {
	blocks  int
	count   int
	plotDir string
	log     zerolog.Logger
}

// Option configures Find.
type Option func(*finder)

// WithBlocks sets the number of blocks the sweep is divided into.
func WithBlocks(n int) Option { return func(f *finder) { f.blocks = n } }

// WithCount sets how many resonators are searched for.
func WithCount(n int) Option { return func(f *finder) { f.count = n } }

// WithPlotDir saves a PNG of every located resonator into dir.
func WithPlotDir(dir string) Option { return func(f *finder) { f.plotDir = dir } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(f *finder) { f.log = l } }

// DB returns 20·log10|s| for every element.
func DB(s []complex128) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[i] = 20 * math.Log10(cmplx.Abs(v))
	}
	return out
}

// Find returns the resonances of the sweep ordered by frequency block.
func Find(freq []float64, s21 []complex128, opts ...Option) ([]Resonance, error) {
	f := &finder{blocks: DefaultBlocks, count: DefaultCount, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(f)
	}
	if len(freq) != len(s21) {
		return nil, fmt.Errorf("%w: %d frequencies for %d S21 points", cryolab.ErrMalformedData, len(freq), len(s21))
	}
	if f.blocks < 1 || len(freq) < 2*f.blocks {
		return nil, fmt.Errorf("%w: %d points cannot fill %d blocks", cryolab.ErrMalformedData, len(freq), f.blocks)
	}
	if f.count < 1 {
		return nil, fmt.Errorf("%w: resonator count %d", cryolab.ErrMalformedData, f.count)
	}
	if f.count > f.blocks {
		f.count = f.blocks
	}

	mag := DB(s21)
	bounds := split(len(freq), f.blocks)
	delta := make([]float64, len(bounds))
	for i, b := range bounds {
		_, _, resid := fit(freq[b[0]:b[1]], mag[b[0]:b[1]])
		delta[i] = floats.Max(resid) - floats.Min(resid)
	}

	inds := make([]int, len(delta))
	floats.Argsort(delta, inds)
	sel := inds[len(inds)-f.count:]
	sort.Ints(sel)

	f.log.Info().Int("blocks", f.blocks).Ints("selected", sel).Msg("finding blocks containing resonators")
	res := make([]Resonance, 0, len(sel))
	for n, i := range sel {
		b := bounds[i]
		r := findInBlock(freq[b[0]:b[1]], mag[b[0]:b[1]])
		r.Block = i
		res = append(res, r)
		f.log.Debug().Int("resonator", n+1).Float64("center", r.Center).Float64("linewidth", r.Linewidth).Float64("z", r.Z).Msg("resonator located")
		if f.plotDir != "" && r.Linewidth < linewidthCutoff {
			if err := savePlot(f.plotDir, n+1, freq[b[0]:b[1]], mag[b[0]:b[1]], r); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}

// split divides n points into k contiguous blocks; the first n%k blocks are
// one point longer.
func split(n, k int) [][2]int {
	out := make([][2]int, k)
	size, extra := n/k, n%k
	start := 0
	for i := range out {
		end := start + size
		if i < extra {
			end++
		}
		out[i] = [2]int{start, end}
		start = end
	}
	return out
}

// fit returns the least squares line y = alpha + beta·x and the residuals.
func fit(x, y []float64) (alpha, beta float64, resid []float64) {
	alpha, beta = stat.LinearRegression(x, y, nil, false)
	resid = make([]float64, len(y))
	for i := range y {
		resid[i] = y[i] - (alpha + beta*x[i])
	}
	return alpha, beta, resid
}

// findInBlock estimates a resonance from the points lying further than zσ
// from the trend, raising z while the estimate is implausibly wide.
func findInBlock(freq, mag []float64) Resonance {
	_, _, resid := fit(freq, mag)
	r := Resonance{Sigma: stat.PopStdDev(resid, nil), Z: startZ}
	for {
		var out []float64
		for i, v := range resid {
			if math.Abs(v) > r.Z*r.Sigma {
				out = append(out, freq[i])
			}
		}
		if len(out) == 0 {
			peak := 0
			for i, v := range resid {
				if math.Abs(v) > math.Abs(resid[peak]) {
					peak = i
				}
			}
			r.Center, r.Linewidth = freq[peak], fallbackLinewidth
			return r
		}
		r.Center = stat.Mean(out, nil)
		r.Linewidth = floats.Max(out) - floats.Min(out)
		if r.Linewidth == 0 {
			r.Linewidth = fallbackLinewidth
		}
		if r.Linewidth < linewidthCutoff || r.Z+stepZ >= maxZ {
			return r
		}
		r.Z += stepZ
	}
}
