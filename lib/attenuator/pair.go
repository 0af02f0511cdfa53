// Package attenuator drives the programmable step attenuators placed in front
// of both VNA ports. The two units are always operated as a Pair so that both
// ports see the same attenuation.
package attenuator

import (
	"fmt"

	"github.com/gotmc/cryolab"
	"github.com/rs/zerolog"
)

// Attenuation limits of the units, in dB.
const (
	MinDB = 0
	MaxDB = 30
)

// Attenuator is a single programmable attenuator.
type Attenuator interface {
	SetAttenuation(dB float64) error
	Attenuation() (float64, error)
}

// Pair mirrors one attenuation setting across two units.
type Pair struct {
	port1, port2 Attenuator
	log          zerolog.Logger
}

// PairOption configures a Pair.
type PairOption func(*Pair)

// WithLogger sets the pair's logger.
func WithLogger(l zerolog.Logger) PairOption { return func(p *Pair) { p.log = l } }

// NewPair couples the attenuators in front of port 1 and port 2.
func NewPair(port1, port2 Attenuator, opts ...PairOption) *Pair {
	p := &Pair{port1: port1, port2: port2, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetAttenuation applies dB to both units.
func (p *Pair) SetAttenuation(dB float64) error {
	if dB < MinDB || dB > MaxDB {
		return fmt.Errorf("%w: %g dB", cryolab.ErrAttenuationOutOfRange, dB)
	}
	if err := p.port1.SetAttenuation(dB); err != nil {
		return fmt.Errorf("port 1 attenuator: %w", err)
	}
	if err := p.port2.SetAttenuation(dB); err != nil {
		return fmt.Errorf("port 2 attenuator: %w", err)
	}
	p.log.Debug().Float64("attenuation_db", dB).Msg("attenuation set")
	return nil
}

// Attenuation reads both units and returns the common value.
func (p *Pair) Attenuation() (float64, error) {
	a1, err := p.port1.Attenuation()
	if err != nil {
		return 0, fmt.Errorf("port 1 attenuator: %w", err)
	}
	a2, err := p.port2.Attenuation()
	if err != nil {
		return 0, fmt.Errorf("port 2 attenuator: %w", err)
	}
	if a1 != a2 {
		return 0, fmt.Errorf("%w: port 1 %g dB, port 2 %g dB", cryolab.ErrAttenuationMismatch, a1, a2)
	}
	return a1, nil
}
