package bias

import (
	"fmt"
	"math"

	"github.com/gotmc/cryolab"
)

// Trajectory returns the setpoints from start to target spaced by step. Both
// endpoints are included: the last step is shortened so the sequence lands
// exactly on target.
func Trajectory(start, target, step float64) ([]float64, error) {
	if !(step > 0) {
		return nil, fmt.Errorf("%w: %g", cryolab.ErrInvalidStep, step)
	}
	span := target - start
	dir := 1.0
	if span < 0 {
		dir = -1
	}
	// tolerate float noise so 1.1/0.05 counts as 22 steps, not 23
	n := int(math.Ceil(math.Abs(span)/step - 1e-9))
	vs := make([]float64, 0, n+1)
	for k := 0; k < n; k++ {
		vs = append(vs, start+dir*float64(k)*step)
	}
	return append(vs, target), nil
}
