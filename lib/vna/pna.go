// Package vna drives Keysight PNA network analyzers over SCPI: source power
// (optionally extended below the source floor by external attenuators),
// measurement bookkeeping and multi-port S-parameter capture.
package vna

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gotmc/cryolab"
	"github.com/gotmc/query"
	"github.com/rs/zerolog"
)

// Model describes what a PNA model supports.
type Model struct {
	Name        string
	NPorts      int
	Unsupported []string
}

// Models lists the tested models. Other models fall back to "default".
var Models = map[string]Model{
	"default": {Name: "default", NPorts: 2},
	"E8362C":  {Name: "E8362C", NPorts: 2, Unsupported: []string{"nports", "freq_step", "fast_sweep"}},
	"N5227B":  {Name: "N5227B", NPorts: 4},
	"N5231B":  {Name: "N5231B", NPorts: 2},
}

// dummyMeasurement is created on channels without any measurement so the
// channel can be made active.
const dummyMeasurement = "DUMMY_S11"

// PNA is one analyzer session.
type PNA struct {
	inst  cryolab.BlockInstrument
	id    string
	model Model
	log   zerolog.Logger
	sleep func(time.Duration)
}

// Option configures a PNA.
type Option func(*PNA)

// WithLogger sets the analyzer's logger.
func WithLogger(l zerolog.Logger) Option { return func(p *PNA) { p.log = l } }

// WithSleep replaces time.Sleep for pauses between bulk commands.
func WithSleep(fn func(time.Duration)) Option { return func(p *PNA) { p.sleep = fn } }

// WithModel overrides the model read from *IDN?.
func WithModel(m Model) Option { return func(p *PNA) { p.model = m } }

// Open identifies the analyzer and makes channel 1 active. A channel without
// measurements cannot be activated, so a dummy S11 measurement is created
// when the analyzer has none.
func Open(inst cryolab.BlockInstrument, opts ...Option) (*PNA, error) {
	p := &PNA{inst: inst, log: zerolog.Nop(), sleep: time.Sleep}
	for _, opt := range opts {
		opt(p)
	}

	id, err := query.String(inst, "*IDN?")
	if err != nil {
		return nil, fmt.Errorf("identifying analyzer: %w", err)
	}
	p.id = strings.TrimSpace(id)
	fields := strings.Split(p.id, ",")
	if len(fields) < 2 {
		return nil, fmt.Errorf("%w: *IDN? reply %q", cryolab.ErrMalformedData, p.id)
	}
	if p.model.Name == "" {
		name := strings.TrimSpace(fields[1])
		m, ok := Models[name]
		if !ok {
			p.log.Warn().Str("model", name).Msg("this model has not been tested; all features are enabled but older instruments might be missing SCPI support for some commands")
			m = Models["default"]
			m.Name = name
		}
		p.model = m
	}

	ch1 := p.Channel(1)
	ms, err := ch1.Measurements()
	if err != nil {
		return nil, err
	}
	if len(ms) == 0 {
		p.log.Warn().Msg("no currently active measurement channels")
		if err := inst.Command("DISP:WIND ON"); err != nil {
			return nil, err
		}
		if err := ch1.CreateMeasurement(dummyMeasurement, "S11"); err != nil {
			return nil, err
		}
	}
	if err := p.SetActiveChannel(ch1); err != nil {
		return nil, err
	}
	if err := inst.Command("FORM:DATA REAL,64"); err != nil {
		return nil, err
	}
	return p, nil
}

// ID returns the *IDN? reply.
func (p *PNA) ID() string { return p.id }

// Model returns the analyzer model.
func (p *PNA) Model() Model { return p.model }

// Supports reports whether feature is usable on this model.
func (p *PNA) Supports(feature string) bool {
	for _, u := range p.model.Unsupported {
		if u == feature {
			return false
		}
	}
	return true
}

// Channel returns measurement channel n. Channels are created on the
// analyzer by their first measurement.
func (p *PNA) Channel(n int) *Channel { return &Channel{pna: p, num: n} }

// ActiveChannel returns the number of the active channel.
func (p *PNA) ActiveChannel() (int, error) {
	return query.Int(p.inst, "SYST:ACT:CHAN?")
}

// SetActiveChannel activates ch by selecting its first measurement.
func (p *PNA) SetActiveChannel(ch *Channel) error {
	if cur, err := p.ActiveChannel(); err == nil && cur == ch.num {
		return nil
	}
	nums, err := ch.MeasurementNumbers()
	if err != nil {
		return err
	}
	if len(nums) == 0 {
		return fmt.Errorf("channel %d has no measurements to activate", ch.num)
	}
	return p.inst.Command("CALC%d:PAR:MNUM %d", ch.num, nums[0])
}

// traces returns the trace numbers in use in window 1.
func (p *PNA) traces() ([]int, error) {
	s, err := query.String(p.inst, "DISP:WIND:CAT?")
	if err != nil {
		return nil, err
	}
	s = unquote(s)
	if s == "EMPTY" || s == "" {
		return []int{0}, nil
	}
	var trs []int
	for _, f := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("%w: trace catalog %q", cryolab.ErrMalformedData, s)
		}
		trs = append(trs, n)
	}
	return trs, nil
}

func unquote(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"'`)
}
