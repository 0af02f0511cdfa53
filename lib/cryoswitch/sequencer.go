// Package cryoswitch commutes the cryogenic switch matrix that selects the
// device under test. Switching with the HEMT amplifiers biased can destroy
// them, so the Sequencer always ramps bias down before touching the switch and
// ramps it back up afterwards.
package cryoswitch

import (
	"fmt"
	"os"
	"time"

	"github.com/gotmc/cryolab"
	"github.com/gotmc/cryolab/lib/bias"
	"github.com/gotmc/cryolab/lib/confirm"
	"github.com/rs/zerolog"
)

// DefaultSettle is the pause after each switch actuation.
const DefaultSettle = time.Second

// BiasController is the amplifier bias as seen by the sequencer.
type BiasController interface {
	State() (bias.State, error)
	On() error
	Off() error
}

// Result confirms where the switch ended up.
type Result struct {
	Channel int
	Alias   string
}

func (r Result) String() string {
	s := fmt.Sprintf("Cryoswitch is now on channel %d", r.Channel)
	if r.Alias != "" {
		s += fmt.Sprintf(" (DUT: %s)", r.Alias)
	}
	return s
}

// Sequencer switches devices safely.
type Sequencer struct {
	matrix  Matrix
	bias    BiasController
	confirm confirm.Confirmer
	aliases Aliases
	settle  time.Duration
	sleep   func(time.Duration)
	log     zerolog.Logger

	current int
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithAliases sets the alias table.
func WithAliases(a Aliases) Option { return func(s *Sequencer) { s.aliases = a } }

// WithConfirmer sets who is asked in safe mode. The default asks on the
// terminal.
func WithConfirmer(c confirm.Confirmer) Option { return func(s *Sequencer) { s.confirm = c } }

// WithSettle sets the pause after each switch actuation.
func WithSettle(d time.Duration) Option { return func(s *Sequencer) { s.settle = d } }

// WithSleep replaces time.Sleep for settle pauses.
func WithSleep(fn func(time.Duration)) Option { return func(s *Sequencer) { s.sleep = fn } }

// WithLogger sets the sequencer's logger.
func WithLogger(l zerolog.Logger) Option { return func(s *Sequencer) { s.log = l } }

// NewSequencer returns a sequencer for the given switch and amplifier bias.
func NewSequencer(m Matrix, b BiasController, opts ...Option) *Sequencer {
	s := &Sequencer{
		matrix:  m,
		bias:    b,
		aliases: Aliases{},
		settle:  DefaultSettle,
		sleep:   time.Sleep,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.confirm == nil {
		s.confirm = confirm.NewPrompt(os.Stdin, os.Stdout)
	}
	return s
}

// Aliases returns the alias table. Entries added to it are visible to later
// Connect calls.
func (s *Sequencer) Aliases() Aliases { return s.aliases }

// Current returns the channel of the last successful Connect.
func (s *Sequencer) Current() (int, bool) { return s.current, s.current != 0 }

// Connect routes both sides of the switch to target. With safe set, the
// operator must confirm that the amplifiers are unbiased before the switch
// moves.
func (s *Sequencer) Connect(target Target, safe bool) (Result, error) {
	ch, err := target.Resolve(s.aliases)
	if err != nil {
		return Result{}, err
	}
	log := s.log.With().Int("channel", ch).Logger()

	st, err := s.bias.State()
	if err != nil {
		return Result{}, err
	}
	switch {
	case st.On():
		log.Info().Msg("HEMTs are on, ramping voltage biases down")
		if err := s.bias.Off(); err != nil {
			return Result{}, fmt.Errorf("ramping bias down: %w", err)
		}
	case !st.Gate && !st.Drain:
		log.Info().Msg("HEMTs are already off")
	default:
		return Result{}, fmt.Errorf("%w: %s", cryolab.ErrInconsistentBiasState, st)
	}

	if safe {
		ok, err := s.confirm.Confirm("Check that the HEMTs are powered off.")
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return Result{}, cryolab.ErrUserAbortedSafety
		}
	}

	s.current = 0
	steps := []func() error{
		func() error { return s.matrix.DisconnectAll(SideA) },
		func() error { return s.matrix.DisconnectAll(SideB) },
		func() error { return s.matrix.Connect(SideA, ch) },
		func() error { return s.matrix.Connect(SideB, ch) },
	}
	for i, step := range steps {
		if i > 0 {
			s.sleep(s.settle)
		}
		if err := step(); err != nil {
			return Result{}, fmt.Errorf("switching to channel %d: %w", ch, err)
		}
	}
	s.current = ch

	if err := s.bias.On(); err != nil {
		return Result{}, fmt.Errorf("ramping bias up: %w", err)
	}

	res := Result{Channel: ch, Alias: target.Alias}
	log.Info().Str("dut", target.Alias).Msg(res.String())
	return res, nil
}
