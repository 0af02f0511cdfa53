// Package lab opens the instruments of a cryogenic measurement setup from
// configuration: the network analyzer with its optional external
// attenuators, the HEMT bias supply and the cryogenic switch.
package lab

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gotmc/cryolab"
	"github.com/gotmc/cryolab/lib/attenuator"
	"github.com/gotmc/cryolab/lib/bias"
	"github.com/gotmc/cryolab/lib/config"
	"github.com/gotmc/cryolab/lib/confirm"
	"github.com/gotmc/cryolab/lib/connutil"
	"github.com/gotmc/cryolab/lib/cryoswitch"
	"github.com/gotmc/cryolab/lib/vna"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// Part selects the instruments to open.
type Part uint8

const (
	PartVNA Part = 1 << iota
	PartBias
	// PartSwitch implies PartBias: the switch is never moved with the
	// amplifiers biased.
	PartSwitch

	PartAll = PartVNA | PartBias | PartSwitch
)

// Session is an open instrument transport.
type Session interface {
	cryolab.BlockInstrument
	Close() error
}

// Dialer opens the transport at addr.
type Dialer func(addr string) (Session, error)

// Lab is an open measurement setup. Fields of parts that were not opened
// are nil.
type Lab struct {
	VNA         *vna.PNA
	Channel     *vna.Channel
	Power       vna.PowerController
	Attenuators *attenuator.Pair
	Bias        *bias.Ramp
	Switch      *cryoswitch.Sequencer

	cfg      *config.Config
	log      zerolog.Logger
	dial     Dialer
	client   *http.Client
	confirm  confirm.Confirmer
	keepAtt  bool
	sessions []Session
}

// Option configures Open.
type Option func(*Lab)

func WithLogger(l zerolog.Logger) Option { return func(lab *Lab) { lab.log = l } }

// WithDialer replaces the transports built from addresses.
func WithDialer(d Dialer) Option { return func(lab *Lab) { lab.dial = d } }

// WithHTTPClient sets the client used for the attenuators.
func WithHTTPClient(c *http.Client) Option { return func(lab *Lab) { lab.client = c } }

// WithConfirmer sets the operator confirmation used by safe switching.
func WithConfirmer(c confirm.Confirmer) Option { return func(lab *Lab) { lab.confirm = c } }

// WithKeepAttenuation leaves the attenuators as they are on open instead of
// zeroing them.
func WithKeepAttenuation() Option { return func(lab *Lab) { lab.keepAtt = true } }

// Open opens parts of the setup described by cfg. On failure every
// transport opened so far is closed.
func Open(cfg *config.Config, parts Part, opts ...Option) (lab *Lab, err error) {
	lab = &Lab{cfg: cfg, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(lab)
	}
	if lab.dial == nil {
		conn := &connutil.Conn{
			Delay:   cfg.Connection.WriteDelay,
			Timeout: cfg.Connection.Timeout,
			Debug:   cfg.Connection.Trace,
			Log:     lab.log,
		}
		lab.dial = func(addr string) (Session, error) {
			s, err := conn.Open(addr)
			if err != nil {
				return nil, err
			}
			return s, nil
		}
	}
	if lab.client == nil {
		lab.client = &http.Client{Timeout: cfg.Attenuators.Timeout}
	}
	if parts&PartSwitch != 0 {
		parts |= PartBias
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, lab.Close())
			lab = nil
		}
	}()

	if parts&PartVNA != 0 {
		if err := lab.openVNA(); err != nil {
			return lab, fmt.Errorf("opening network analyzer: %w", err)
		}
	}
	if parts&PartBias != 0 {
		if err := lab.openBias(); err != nil {
			return lab, fmt.Errorf("opening bias supply: %w", err)
		}
	}
	if parts&PartSwitch != 0 {
		if err := lab.openSwitch(); err != nil {
			return lab, fmt.Errorf("opening cryoswitch: %w", err)
		}
	}
	return lab, nil
}

func (lab *Lab) session(what, addr string) (Session, error) {
	if addr == "" {
		return nil, fmt.Errorf("%w: no %s address configured", cryolab.ErrInvalidAddress, what)
	}
	s, err := lab.dial(addr)
	if err != nil {
		return nil, err
	}
	lab.sessions = append(lab.sessions, s)
	lab.log.Debug().Str("instrument", what).Str("addr", addr).Msg("connected")
	return s, nil
}

func (lab *Lab) openVNA() error {
	s, err := lab.session("vna", lab.cfg.VNA.Address)
	if err != nil {
		return err
	}
	pna, err := vna.Open(s, vna.WithLogger(lab.log.With().Str("instrument", "vna").Logger()))
	if err != nil {
		return err
	}
	lab.VNA = pna
	lab.Channel = pna.Channel(lab.cfg.VNA.Channel)

	var att vna.Attenuator
	if addrs := lab.cfg.Attenuators.Addresses; len(addrs) == 2 {
		lab.Attenuators = attenuator.NewPair(
			attenuator.NewMiniCircuits(addrs[0], lab.client),
			attenuator.NewMiniCircuits(addrs[1], lab.client),
			attenuator.WithLogger(lab.log),
		)
		if !lab.keepAtt {
			if err := lab.Attenuators.SetAttenuation(0); err != nil {
				return fmt.Errorf("zeroing attenuators: %w", err)
			}
		}
		att = lab.Attenuators
	}
	lab.Power = vna.NewPowerController(lab.Channel, att, lab.log)
	return nil
}

func (lab *Lab) openBias() error {
	s, err := lab.session("bias", lab.cfg.Bias.Address)
	if err != nil {
		return err
	}
	opts := []bias.Option{bias.WithLogger(lab.log.With().Str("instrument", "bias").Logger())}
	if lab.cfg.Bias.Strict {
		opts = append(opts, bias.WithStrict())
	}
	lab.Bias = bias.NewRamp(
		bias.NewSCPISupply(s),
		bias.Channels{Gate: lab.cfg.Bias.GateChannel, Drain: lab.cfg.Bias.DrainChannel},
		lab.cfg.Setpoints(),
		opts...,
	)
	return nil
}

func (lab *Lab) openSwitch() error {
	s, err := lab.session("switch", lab.cfg.Switch.Address)
	if err != nil {
		return err
	}
	m := cryoswitch.NewLineMatrix(s, lab.cfg.Switch.Commands)
	if err := m.Start(lab.cfg.Switch.Volts); err != nil {
		return err
	}
	aliases, err := cryoswitch.NewAliases(lab.cfg.Switch.Aliases)
	if err != nil {
		return err
	}
	opts := []cryoswitch.Option{
		cryoswitch.WithAliases(aliases),
		cryoswitch.WithSettle(lab.cfg.Switch.Settle),
		cryoswitch.WithLogger(lab.log.With().Str("instrument", "switch").Logger()),
	}
	if lab.confirm != nil {
		opts = append(opts, cryoswitch.WithConfirmer(lab.confirm))
	}
	lab.Switch = cryoswitch.NewSequencer(m, lab.Bias, opts...)
	return nil
}

// Connect routes the switch to target, a channel number or alias, with the
// configured safety confirmation.
func (lab *Lab) Connect(target string) (cryoswitch.Result, error) {
	if lab.Switch == nil {
		return cryoswitch.Result{}, errors.New("cryoswitch not opened")
	}
	return lab.Switch.Connect(cryoswitch.ParseTarget(target), lab.cfg.Switch.Safe)
}

// Close closes every transport, most recently opened first.
func (lab *Lab) Close() error {
	var err error
	for i := len(lab.sessions) - 1; i >= 0; i-- {
		err = multierr.Append(err, lab.sessions[i].Close())
	}
	lab.sessions = nil
	return err
}
