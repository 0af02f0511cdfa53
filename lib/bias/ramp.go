// Package bias ramps the gate and drain bias of cryogenic HEMT amplifiers.
// Bias must move in small steps with a pause between them; abrupt changes
// overshoot the operating point and can destroy the device.
package bias

import (
	"fmt"
	"time"

	"github.com/gotmc/cryolab"
	"github.com/rs/zerolog"
)

// Supply is the bias controller: a power supply with one output channel per
// bias terminal.
type Supply interface {
	Output(ch int) (bool, error)
	SetOutput(ch int, on bool) error
	Voltage(ch int) (float64, error)
	SetVoltage(ch int, volts float64) error
}

// Channels maps the HEMT terminals to supply channels.
type Channels struct {
	Gate  int
	Drain int
}

// Setpoints is the operating point and ramp pacing used by On and Off.
type Setpoints struct {
	Gate  float64
	Drain float64
	Step  float64
	Delay time.Duration
}

// DefaultSetpoints is the operating point of the lab's amplifiers.
var DefaultSetpoints = Setpoints{Gate: 1.1, Drain: 0.7, Step: 0.05, Delay: 10 * time.Millisecond}

// State reports whether the gate and drain outputs are enabled.
type State struct {
	Gate  bool
	Drain bool
}

// Consistent reports whether both outputs agree.
func (s State) Consistent() bool { return s.Gate == s.Drain }

// On reports whether both outputs are enabled.
func (s State) On() bool { return s.Gate && s.Drain }

func (s State) String() string {
	switch {
	case s.On():
		return "on"
	case !s.Gate && !s.Drain:
		return "off"
	default:
		return fmt.Sprintf("mixed (gate %t, drain %t)", s.Gate, s.Drain)
	}
}

// Ramp owns the bias trajectory of one amplifier.
type Ramp struct {
	supply Supply
	ch     Channels
	set    Setpoints
	strict bool
	sleep  func(time.Duration)
	log    zerolog.Logger
}

// Option configures a Ramp.
type Option func(*Ramp)

// WithStrict makes RampDown of an unbiased amplifier return
// cryolab.ErrBiasAlreadyOff instead of succeeding.
func WithStrict() Option { return func(r *Ramp) { r.strict = true } }

// WithSleep replaces time.Sleep for the inter-step delay.
func WithSleep(fn func(time.Duration)) Option { return func(r *Ramp) { r.sleep = fn } }

// WithLogger sets the ramp's logger.
func WithLogger(l zerolog.Logger) Option { return func(r *Ramp) { r.log = l } }

// NewRamp returns a ramp driving the given supply channels.
func NewRamp(supply Supply, ch Channels, set Setpoints, opts ...Option) *Ramp {
	r := &Ramp{
		supply: supply,
		ch:     ch,
		set:    set,
		sleep:  time.Sleep,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Setpoints returns the configured operating point.
func (r *Ramp) Setpoints() Setpoints { return r.set }

// State reads the output state of both terminals.
func (r *Ramp) State() (State, error) {
	var s State
	var err error
	if s.Gate, err = r.supply.Output(r.ch.Gate); err != nil {
		return s, fmt.Errorf("reading gate output: %w", err)
	}
	if s.Drain, err = r.supply.Output(r.ch.Drain); err != nil {
		return s, fmt.Errorf("reading drain output: %w", err)
	}
	return s, nil
}

// On ramps up to the configured setpoints.
func (r *Ramp) On() error {
	return r.RampUp(r.set.Gate, r.set.Drain, r.set.Step, r.set.Delay)
}

// Off ramps down with the configured step and delay.
func (r *Ramp) Off() error {
	return r.RampDown(r.set.Step, r.set.Delay)
}

// RampUp brings gate and drain to their targets in lockstep. Unbiased outputs
// are zeroed and enabled first; biased outputs ramp from their present
// voltage.
func (r *Ramp) RampUp(gate, drain, step float64, delay time.Duration) error {
	st, err := r.State()
	if err != nil {
		return err
	}
	if !st.Consistent() {
		return fmt.Errorf("%w: %s", cryolab.ErrInconsistentBiasState, st)
	}

	var g0, d0 float64
	if st.On() {
		if g0, d0, err = r.voltages(); err != nil {
			return err
		}
	}
	gs, err := Trajectory(g0, gate, step)
	if err != nil {
		return err
	}
	ds, err := Trajectory(d0, drain, step)
	if err != nil {
		return err
	}

	if !st.On() {
		if err := r.supply.SetVoltage(r.ch.Gate, 0); err != nil {
			return fmt.Errorf("zeroing gate: %w", err)
		}
		if err := r.supply.SetVoltage(r.ch.Drain, 0); err != nil {
			return fmt.Errorf("zeroing drain: %w", err)
		}
		if err := r.supply.SetOutput(r.ch.Gate, true); err != nil {
			return fmt.Errorf("enabling gate: %w", err)
		}
		if err := r.supply.SetOutput(r.ch.Drain, true); err != nil {
			return fmt.Errorf("enabling drain: %w", err)
		}
	}

	r.log.Info().Float64("gate_v", gate).Float64("drain_v", drain).Int("steps", max(len(gs), len(ds))).Msg("ramping HEMT bias up")
	return r.walk(gs, ds, delay)
}

// RampDown brings gate and drain to zero in lockstep and disables both
// outputs.
func (r *Ramp) RampDown(step float64, delay time.Duration) error {
	if !(step > 0) {
		return fmt.Errorf("%w: %g", cryolab.ErrInvalidStep, step)
	}
	st, err := r.State()
	if err != nil {
		return err
	}
	if !st.Consistent() {
		return fmt.Errorf("%w: %s", cryolab.ErrInconsistentBiasState, st)
	}
	if !st.On() {
		if r.strict {
			return cryolab.ErrBiasAlreadyOff
		}
		r.log.Info().Msg("HEMTs are already off")
		return nil
	}

	g0, d0, err := r.voltages()
	if err != nil {
		return err
	}
	gs, err := Trajectory(g0, 0, step)
	if err != nil {
		return err
	}
	ds, err := Trajectory(d0, 0, step)
	if err != nil {
		return err
	}

	r.log.Info().Float64("gate_v", g0).Float64("drain_v", d0).Int("steps", max(len(gs), len(ds))).Msg("ramping HEMT bias down")
	if err := r.walk(gs, ds, delay); err != nil {
		return err
	}
	if err := r.supply.SetOutput(r.ch.Drain, false); err != nil {
		return fmt.Errorf("disabling drain: %w", err)
	}
	if err := r.supply.SetOutput(r.ch.Gate, false); err != nil {
		return fmt.Errorf("disabling gate: %w", err)
	}
	return nil
}

func (r *Ramp) voltages() (gate, drain float64, err error) {
	if gate, err = r.supply.Voltage(r.ch.Gate); err != nil {
		return 0, 0, fmt.Errorf("reading gate voltage: %w", err)
	}
	if drain, err = r.supply.Voltage(r.ch.Drain); err != nil {
		return 0, 0, fmt.Errorf("reading drain voltage: %w", err)
	}
	return gate, drain, nil
}

// walk applies both trajectories step by step. The shorter one holds its
// final value once exhausted.
func (r *Ramp) walk(gs, ds []float64, delay time.Duration) error {
	n := max(len(gs), len(ds))
	for i := 0; i < n; i++ {
		if i < len(gs) {
			if err := r.supply.SetVoltage(r.ch.Gate, gs[i]); err != nil {
				return fmt.Errorf("gate step %d (%g V): %w", i, gs[i], err)
			}
		}
		if i < len(ds) {
			if err := r.supply.SetVoltage(r.ch.Drain, ds[i]); err != nil {
				return fmt.Errorf("drain step %d (%g V): %w", i, ds[i], err)
			}
		}
		if i < n-1 {
			r.sleep(delay)
		}
	}
	return nil
}
