package vna

import (
	"fmt"

	"github.com/gotmc/cryolab"
	"github.com/rs/zerolog"
)

// AttenuatedFloor is the lowest power reachable with the external
// attenuators at full attenuation.
const AttenuatedFloor = -120.0

// PowerController sets the power delivered at the analyzer's port 1.
type PowerController interface {
	SetPower(dBm float64) error
	Power() (float64, error)
}

// Source is the analyzer's RF source.
type Source interface {
	PowerLevel() (float64, error)
	SetPowerLevel(dBm float64) error
}

// Attenuator is the external attenuation in series with the source.
type Attenuator interface {
	SetAttenuation(dB float64) error
	Attenuation() (float64, error)
}

// NewPowerController returns an AttenuatedPower when att is non-nil and a
// DirectPower otherwise.
func NewPowerController(src Source, att Attenuator, log zerolog.Logger) PowerController {
	if att == nil {
		return &DirectPower{src: src}
	}
	return &AttenuatedPower{src: src, att: att, log: log}
}

// DirectPower drives the source alone.
type DirectPower struct {
	src Source
}

func (d *DirectPower) SetPower(dBm float64) error {
	if dBm < SourceFloor || dBm > SourceCeiling {
		return fmt.Errorf("%w: %g dBm (must be %g to %g without attenuators)", cryolab.ErrPowerOutOfRange, dBm, SourceFloor, SourceCeiling)
	}
	return d.src.SetPowerLevel(dBm)
}

func (d *DirectPower) Power() (float64, error) { return d.src.PowerLevel() }

// AttenuatedPower extends the source range below SourceFloor by pinning
// the source at the floor and attenuating the remainder.
type AttenuatedPower struct {
	src Source
	att Attenuator
	log zerolog.Logger
}

func (a *AttenuatedPower) SetPower(dBm float64) error {
	if dBm < AttenuatedFloor || dBm > SourceCeiling {
		return fmt.Errorf("%w: %g dBm (must be %g to %g)", cryolab.ErrPowerOutOfRange, dBm, AttenuatedFloor, SourceCeiling)
	}
	if dBm >= SourceFloor {
		if err := a.att.SetAttenuation(0); err != nil {
			return err
		}
		return a.src.SetPowerLevel(dBm)
	}
	atten := -dBm + SourceFloor
	if err := a.att.SetAttenuation(atten); err != nil {
		return err
	}
	if err := a.src.SetPowerLevel(SourceFloor); err != nil {
		return err
	}
	a.log.Info().Float64("attenuation", atten).Float64("source", SourceFloor).Msgf("power set to %g dBm", dBm)
	return nil
}

func (a *AttenuatedPower) Power() (float64, error) {
	src, err := a.src.PowerLevel()
	if err != nil {
		return 0, err
	}
	atten, err := a.att.Attenuation()
	if err != nil {
		return 0, err
	}
	return src - atten, nil
}
