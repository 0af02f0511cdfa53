package bias

import (
	"github.com/gotmc/cryolab"
	"github.com/gotmc/query"
)

// SCPISupply is a multi-channel bench supply addressed with SCPI channel
// lists, e.g. "VOLT 0.5,(@1)".
type SCPISupply struct {
	inst cryolab.Instrument
}

// NewSCPISupply wraps an instrument session.
func NewSCPISupply(inst cryolab.Instrument) *SCPISupply {
	return &SCPISupply{inst: inst}
}

// Output reports whether channel ch is enabled.
func (s *SCPISupply) Output(ch int) (bool, error) {
	n, err := query.Intf(s.inst, "OUTP? (@%d)", ch)
	if err != nil {
		return false, err
	}
	return n != 0, nil
}

// SetOutput enables or disables channel ch.
func (s *SCPISupply) SetOutput(ch int, on bool) error {
	state := "OFF"
	if on {
		state = "ON"
	}
	return s.inst.Command("OUTP %s,(@%d)", state, ch)
}

// Voltage returns the programmed voltage of channel ch.
func (s *SCPISupply) Voltage(ch int) (float64, error) {
	return query.Float64f(s.inst, "VOLT? (@%d)", ch)
}

// SetVoltage programs channel ch.
func (s *SCPISupply) SetVoltage(ch int, volts float64) error {
	return s.inst.Command("VOLT %.4f,(@%d)", volts, ch)
}
