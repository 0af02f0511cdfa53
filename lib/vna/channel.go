package vna

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gotmc/cryolab"
	"github.com/gotmc/query"
)

// Source power limits of the analyzers, in dBm.
const (
	SourceFloor   = -90.0
	SourceCeiling = 0.0
)

// Measurement is a named S-parameter measurement on a channel.
type Measurement struct {
	Name  string
	Param string
}

// Channel is a PNA measurement channel.
type Channel struct {
	pna *PNA
	num int
}

// Num returns the channel number.
func (c *Channel) Num() int { return c.num }

// PowerLevel returns the source power in dBm.
func (c *Channel) PowerLevel() (float64, error) {
	return query.Float64f(c.pna.inst, "SOUR%d:POW?", c.num)
}

// SetPowerLevel sets the source power in dBm.
func (c *Channel) SetPowerLevel(dBm float64) error {
	if dBm < SourceFloor || dBm > SourceCeiling {
		return fmt.Errorf("%w: source power %g dBm (must be %g to %g)", cryolab.ErrPowerOutOfRange, dBm, SourceFloor, SourceCeiling)
	}
	return c.pna.inst.Command("SOUR%d:POW %g", c.num, dBm)
}

// RFPower reports whether the RF source is on.
func (c *Channel) RFPower() (bool, error) {
	n, err := query.Int(c.pna.inst, "OUTP:STAT?")
	return n != 0, err
}

// SetRFPower switches the RF source.
func (c *Channel) SetRFPower(on bool) error {
	return c.pna.inst.Command("OUTP:STAT %s", onOff(on))
}

// AveragingStatus returns the sum of 2^n over the traces n that have
// finished averaging: traces 1 and 2 done gives 2+4 = 6.
func (c *Channel) AveragingStatus() (int, error) {
	return query.Int(c.pna.inst, "STAT:OPER:AVER1:COND?")
}

// SelectTrace selects the measurement called name.
func (c *Channel) SelectTrace(name string) error {
	return c.pna.inst.Command("CALC%d:PAR:SEL '%s'", c.num, name)
}

// Measurements lists the channel's measurements.
func (c *Channel) Measurements() ([]Measurement, error) {
	s, err := query.Stringf(c.pna.inst, "CALC%d:PAR:CAT:EXT?", c.num)
	if err != nil {
		return nil, err
	}
	s = unquote(s)
	if s == "" || s == "NO CATALOG" {
		return nil, nil
	}
	f := strings.Split(s, ",")
	if len(f)%2 != 0 {
		return nil, fmt.Errorf("%w: measurement catalog %q", cryolab.ErrMalformedData, s)
	}
	ms := make([]Measurement, 0, len(f)/2)
	for i := 0; i < len(f); i += 2 {
		ms = append(ms, Measurement{Name: strings.TrimSpace(f[i]), Param: strings.TrimSpace(f[i+1])})
	}
	return ms, nil
}

// MeasurementNumbers lists the numbers of the channel's measurements.
func (c *Channel) MeasurementNumbers() ([]int, error) {
	s, err := query.Stringf(c.pna.inst, "SYST:MEAS:CAT? %d", c.num)
	if err != nil {
		return nil, err
	}
	s = unquote(s)
	if s == "" || s == "NO CATALOG" {
		return nil, nil
	}
	var nums []int
	for _, f := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("%w: measurement numbers %q", cryolab.ErrMalformedData, s)
		}
		nums = append(nums, n)
	}
	return nums, nil
}

// CreateMeasurement defines measurement name for param (e.g. "S21") and
// feeds it to the next free trace of window 1.
func (c *Channel) CreateMeasurement(name, param string) error {
	if err := c.pna.inst.Command("CALC%d:PAR:EXT '%s','%s'", c.num, name, param); err != nil {
		return err
	}
	trs, err := c.pna.traces()
	if err != nil {
		return err
	}
	next := trs[len(trs)-1] + 1
	return c.pna.inst.Command("DISP:WIND:TRAC%d:FEED '%s'", next, name)
}

// DeleteMeasurement removes measurement name.
func (c *Channel) DeleteMeasurement(name string) error {
	return c.pna.inst.Command("CALC%d:PAR:DEL '%s'", c.num, name)
}

// DeleteAllMeasurements removes every measurement of the channel.
func (c *Channel) DeleteAllMeasurements() error {
	ms, err := c.Measurements()
	if err != nil {
		return err
	}
	for _, m := range ms {
		if err := c.DeleteMeasurement(m.Name); err != nil {
			return err
		}
		c.pna.sleep(100 * time.Millisecond)
	}
	return nil
}

// NPoints returns the number of sweep points.
func (c *Channel) NPoints() (int, error) {
	return query.Intf(c.pna.inst, "SENS%d:SWE:POIN?", c.num)
}

// SetNPoints sets the number of sweep points.
func (c *Channel) SetNPoints(n int) error {
	return c.pna.inst.Command("SENS%d:SWE:POIN %d", c.num, n)
}

// Frequency returns the sweep start and stop frequency in Hz.
func (c *Channel) Frequency() (start, stop float64, err error) {
	if start, err = query.Float64f(c.pna.inst, "SENS%d:FREQ:STAR?", c.num); err != nil {
		return 0, 0, err
	}
	if stop, err = query.Float64f(c.pna.inst, "SENS%d:FREQ:STOP?", c.num); err != nil {
		return 0, 0, err
	}
	return start, stop, nil
}

// SetFrequency sets the sweep start and stop frequency in Hz.
func (c *Channel) SetFrequency(start, stop float64) error {
	if start >= stop {
		return fmt.Errorf("start frequency %g Hz must be below stop frequency %g Hz", start, stop)
	}
	if err := c.pna.inst.Command("SENS%d:FREQ:STAR %g", c.num, start); err != nil {
		return err
	}
	return c.pna.inst.Command("SENS%d:FREQ:STOP %g", c.num, stop)
}

// IFBandwidth returns the IF bandwidth in Hz.
func (c *Channel) IFBandwidth() (float64, error) {
	return query.Float64f(c.pna.inst, "SENS%d:BWID?", c.num)
}

// SetIFBandwidth sets the IF bandwidth in Hz.
func (c *Channel) SetIFBandwidth(hz float64) error {
	return c.pna.inst.Command("SENS%d:BWID %g", c.num, hz)
}

// SetAveraging enables sweep averaging over count sweeps and restarts it.
// A count of 1 or less disables averaging.
func (c *Channel) SetAveraging(count int) error {
	if count <= 1 {
		return c.pna.inst.Command("SENS%d:AVER:STAT OFF", c.num)
	}
	for _, cmd := range []string{
		fmt.Sprintf("SENS%d:AVER:COUN %d", c.num, count),
		fmt.Sprintf("SENS%d:AVER:STAT ON", c.num),
		fmt.Sprintf("SENS%d:AVER:CLE", c.num),
	} {
		if err := c.pna.inst.Command(cmd); err != nil {
			return err
		}
	}
	return nil
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
