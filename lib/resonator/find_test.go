package resonator

import (
	"fmt"
	"math"
	"math/cmplx"
	"os"
	"path/filepath"
	"testing"

	"github.com/gotmc/cryolab"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dipBlocks = []int{3, 10, 20, 33, 41, 50, 62, 77}

// sweep returns 8000 points from 4 to 5 GHz on a sloped baseline with a
// three point dip in the middle of each of dipBlocks.
func sweep() ([]float64, []complex128) {
	const n = 8000
	freq := make([]float64, n)
	s21 := make([]complex128, n)
	dips := map[int]float64{}
	for _, b := range dipBlocks {
		c := b*100 + 50
		dips[c] = -20
		dips[c-1] = -15
		dips[c+1] = -15
	}
	for i := range freq {
		freq[i] = 4e9 + float64(i)*125e3
		db := -3 - 2*float64(i)/n + dips[i]
		s21[i] = cmplx.Rect(math.Pow(10, db/20), float64(i)*0.01)
	}
	return freq, s21
}

func TestSplit(t *testing.T) {
	assert.Equal(t, [][2]int{{0, 3}, {3, 6}, {6, 8}, {8, 10}}, split(10, 4))
	assert.Equal(t, [][2]int{{0, 2}, {2, 4}}, split(4, 2))
}

func TestDB(t *testing.T) {
	assert.InDeltaSlice(t, []float64{0, -20, 20}, DB([]complex128{1i, 0.1, -10}), 1e-12)
}

func TestFind(t *testing.T) {
	freq, s21 := sweep()
	res, err := Find(freq, s21)
	require.NoError(t, err)
	require.Len(t, res, len(dipBlocks))
	for i, r := range res {
		assert.Equal(t, dipBlocks[i], r.Block)
		assert.InDelta(t, freq[dipBlocks[i]*100+50], r.Center, 1)
		assert.InDelta(t, 250e3, r.Linewidth, 1)
		assert.Equal(t, startZ, r.Z)
	}
}

func TestFindPlots(t *testing.T) {
	dir := t.TempDir()
	freq, s21 := sweep()
	_, err := Find(freq, s21, WithPlotDir(dir))
	require.NoError(t, err)
	for n := 1; n <= len(dipBlocks); n++ {
		_, err := os.Stat(filepath.Join(dir, fmt.Sprintf("resonator_%d.png", n)))
		assert.NoError(t, err)
	}
}

func TestFindRejectsBadInput(t *testing.T) {
	_, err := Find([]float64{1, 2}, []complex128{1})
	assert.ErrorIs(t, err, cryolab.ErrMalformedData)

	freq, s21 := sweep()
	_, err = Find(freq[:100], s21[:100])
	assert.ErrorIs(t, err, cryolab.ErrMalformedData)

	for _, n := range []int{0, -1} {
		_, err = Find(freq, s21, WithCount(n))
		assert.ErrorIs(t, err, cryolab.ErrMalformedData, "count %d", n)
	}
}

func TestFindInBlockFallback(t *testing.T) {
	// Alternating residuals never leave the 4σ band.
	freq := make([]float64, 10)
	mag := make([]float64, 10)
	for i := range freq {
		freq[i] = 6e9 + float64(i)*1e3
		mag[i] = -10 + float64(1-2*(i%2))
	}
	r := findInBlock(freq, mag)
	assert.Equal(t, fallbackLinewidth, r.Linewidth)
	assert.Contains(t, freq, r.Center)
}

func TestFindInBlockStopsAtMaxZ(t *testing.T) {
	// Two strong outliers 2 MHz apart stay outside every band.
	freq := make([]float64, 200)
	mag := make([]float64, 200)
	for i := range freq {
		freq[i] = 5e9 + float64(i)*20e3
	}
	mag[50] = -40
	mag[150] = -22
	r := findInBlock(freq, mag)
	assert.Equal(t, maxZ-stepZ, r.Z)
	assert.InDelta(t, 2e6, r.Linewidth, 1)
	assert.InDelta(t, (freq[50]+freq[150])/2, r.Center, 1)
}
