package vna

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/gotmc/cryolab"
	"gonum.org/v1/gonum/mat"
)

// Network is a captured multi-port S-parameter dataset. S[k] is the NxN
// scattering matrix at Frequency[k]; matrix index n corresponds to Ports[n].
type Network struct {
	Ports     []int
	Frequency []float64
	S         []*mat.CDense
}

// NPorts returns the number of ports in the network.
func (nw *Network) NPorts() int { return len(nw.Ports) }

// Len returns the number of frequency points.
func (nw *Network) Len() int { return len(nw.Frequency) }

// Param returns S_ij across frequency, where i and j are analyzer port
// numbers (S21 is Param(2, 1)).
func (nw *Network) Param(i, j int) ([]complex128, error) {
	n, m := nw.index(i), nw.index(j)
	if n < 0 || m < 0 {
		return nil, fmt.Errorf("S%d%d not in captured ports %v", i, j, nw.Ports)
	}
	out := make([]complex128, len(nw.S))
	for k, s := range nw.S {
		out[k] = s.At(n, m)
	}
	return out, nil
}

func (nw *Network) index(port int) int {
	for i, p := range nw.Ports {
		if p == port {
			return i
		}
	}
	return -1
}

// Reshape turns the flat SNP transfer of a capture into a Network. The
// transfer holds 2N²+1 rows of npoints values each: the frequency row, then
// real and imaginary rows for every pair i = n*N + m.
func Reshape(raw []float64, ports []int) (*Network, error) {
	nports := len(ports)
	if nports == 0 {
		return nil, fmt.Errorf("%w: no ports", cryolab.ErrMalformedData)
	}
	rows := 2*nports*nports + 1
	if len(raw) == 0 || len(raw)%rows != 0 {
		return nil, fmt.Errorf("%w: %d values do not fit %d rows", cryolab.ErrMalformedData, len(raw), rows)
	}
	npoints := len(raw) / rows

	nw := &Network{
		Ports:     append([]int(nil), ports...),
		Frequency: append([]float64(nil), raw[:npoints]...),
		S:         make([]*mat.CDense, npoints),
	}
	for k := range nw.S {
		nw.S[k] = mat.NewCDense(nports, nports, nil)
	}
	for n := 0; n < nports; n++ {
		for m := 0; m < nports; m++ {
			i := n*nports + m
			re := raw[(1+2*i)*npoints:]
			im := raw[(2+2*i)*npoints:]
			for k := 0; k < npoints; k++ {
				nw.S[k].Set(n, m, complex(re[k], im[k]))
			}
		}
	}
	return nw, nil
}

// WriteTouchstone writes the network as a Touchstone v1 file in RI format
// referenced to 50 ohm.
func (nw *Network) WriteTouchstone(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "! %d-port S-parameters, ports %v\n", nw.NPorts(), nw.Ports)
	fmt.Fprintln(bw, "# Hz S RI R 50")
	n := nw.NPorts()
	for k, s := range nw.S {
		bw.WriteString(fmtFloat(nw.Frequency[k]))
		switch {
		case n <= 2:
			// Two-port files are column major: 11 21 12 22.
			for col := 0; col < n; col++ {
				for row := 0; row < n; row++ {
					writeComplex(bw, s.At(row, col))
				}
			}
			bw.WriteByte('\n')
		default:
			for row := 0; row < n; row++ {
				for col := 0; col < n; col++ {
					if col > 0 && col%4 == 0 {
						bw.WriteString("\n ")
					}
					writeComplex(bw, s.At(row, col))
				}
				bw.WriteByte('\n')
				if row < n-1 {
					bw.WriteByte(' ')
				}
			}
		}
	}
	return bw.Flush()
}

func writeComplex(w *bufio.Writer, c complex128) {
	w.WriteByte(' ')
	w.WriteString(fmtFloat(real(c)))
	w.WriteByte(' ')
	w.WriteString(fmtFloat(imag(c)))
}

func fmtFloat(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }
