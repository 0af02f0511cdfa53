package cryoswitch

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gotmc/cryolab"
	"github.com/gotmc/cryolab/lib/bias"
	"github.com/gotmc/cryolab/lib/confirm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects the calls of all fakes in one ordered log.
type recorder struct{ calls []string }

func (r *recorder) add(format string, a ...any) { r.calls = append(r.calls, fmt.Sprintf(format, a...)) }

type fakeMatrix struct {
	rec *recorder
	err error
}

func (m *fakeMatrix) DisconnectAll(side Side) error {
	m.rec.add("disconnect %s", side)
	return m.err
}

func (m *fakeMatrix) Connect(side Side, contact int) error {
	m.rec.add("connect %s %d", side, contact)
	return m.err
}

type fakeBias struct {
	rec   *recorder
	state bias.State
}

func (b *fakeBias) State() (bias.State, error) { return b.state, nil }

func (b *fakeBias) On() error {
	b.rec.add("bias on")
	b.state = bias.State{Gate: true, Drain: true}
	return nil
}

func (b *fakeBias) Off() error {
	b.rec.add("bias off")
	b.state = bias.State{}
	return nil
}

func newTestSequencer(t *testing.T, st bias.State, opts ...Option) (*Sequencer, *recorder) {
	t.Helper()
	rec := &recorder{}
	aliases, err := NewAliases(map[string]int{"resA": 2, "qubit": 5})
	require.NoError(t, err)
	opts = append([]Option{
		WithAliases(aliases),
		WithSleep(func(d time.Duration) { rec.add("settle %s", d) }),
		WithConfirmer(confirm.Func(func(string) (bool, error) {
			rec.add("confirm")
			return true, nil
		})),
	}, opts...)
	s := NewSequencer(&fakeMatrix{rec: rec}, &fakeBias{rec: rec, state: st}, opts...)
	return s, rec
}

func TestResolveNumbers(t *testing.T) {
	for ch := MinChannel; ch <= MaxChannel; ch++ {
		got, err := Number(ch).Resolve(nil)
		require.NoError(t, err)
		assert.Equal(t, ch, got)
	}
	for _, ch := range []int{0, 7, -1} {
		_, err := Number(ch).Resolve(nil)
		assert.True(t, errors.Is(err, cryolab.ErrInvalidChannel), "%d", ch)
	}
}

func TestResolveAliases(t *testing.T) {
	table := map[string]int{"resA": 1, "resB": 4, "thru": 6}
	a, err := NewAliases(table)
	require.NoError(t, err)
	for name, want := range table {
		got, err := Alias(name).Resolve(a)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	got, err := Alias("RESB").Resolve(a)
	require.NoError(t, err)
	assert.Equal(t, 4, got)

	_, err = Alias("nope").Resolve(a)
	assert.True(t, errors.Is(err, cryolab.ErrInvalidChannel))
}

func TestNewAliasesRejectsBadTables(t *testing.T) {
	_, err := NewAliases(map[string]int{"x": 9})
	assert.True(t, errors.Is(err, cryolab.ErrInvalidChannel))

	_, err = NewAliases(map[string]int{"dut": 1, "DUT": 2})
	assert.Error(t, err)
}

func TestParseTarget(t *testing.T) {
	assert.Equal(t, Number(3), ParseTarget("3"))
	assert.Equal(t, Alias("resA"), ParseTarget("resA"))
}

func TestConnectBiasOn(t *testing.T) {
	s, rec := newTestSequencer(t, bias.State{Gate: true, Drain: true})

	res, err := s.Connect(Number(3), false)
	require.NoError(t, err)
	assert.Equal(t, Result{Channel: 3}, res)
	assert.Equal(t, "Cryoswitch is now on channel 3", res.String())
	assert.Equal(t, []string{
		"bias off",
		"disconnect A",
		"settle 1s",
		"disconnect B",
		"settle 1s",
		"connect A 3",
		"settle 1s",
		"connect B 3",
		"bias on",
	}, rec.calls)

	cur, ok := s.Current()
	assert.True(t, ok)
	assert.Equal(t, 3, cur)
}

func TestConnectBiasOffSafeAlias(t *testing.T) {
	s, rec := newTestSequencer(t, bias.State{}, WithSettle(10*time.Millisecond))

	res, err := s.Connect(Alias("qubit"), true)
	require.NoError(t, err)
	assert.Equal(t, "Cryoswitch is now on channel 5 (DUT: qubit)", res.String())
	assert.Equal(t, []string{
		"confirm",
		"disconnect A",
		"settle 10ms",
		"disconnect B",
		"settle 10ms",
		"connect A 5",
		"settle 10ms",
		"connect B 5",
		"bias on",
	}, rec.calls)
}

func TestConnectInconsistentBias(t *testing.T) {
	s, rec := newTestSequencer(t, bias.State{Gate: true})
	_, err := s.Connect(Number(1), true)
	assert.True(t, errors.Is(err, cryolab.ErrInconsistentBiasState))
	assert.Empty(t, rec.calls, "no hardware may be touched")
}

func TestConnectInvalidChannel(t *testing.T) {
	s, rec := newTestSequencer(t, bias.State{Gate: true, Drain: true})
	_, err := s.Connect(Alias("unknown"), false)
	assert.True(t, errors.Is(err, cryolab.ErrInvalidChannel))
	_, err = s.Connect(Number(8), false)
	assert.True(t, errors.Is(err, cryolab.ErrInvalidChannel))
	assert.Empty(t, rec.calls)
}

func TestConnectUserAbort(t *testing.T) {
	s, rec := newTestSequencer(t, bias.State{Gate: true, Drain: true},
		WithConfirmer(confirm.Always(false)))
	_, err := s.Connect(Number(2), true)
	assert.True(t, errors.Is(err, cryolab.ErrUserAbortedSafety))
	assert.Equal(t, []string{"bias off"}, rec.calls, "switch must not move and bias must stay off")
}

func TestConnectSwitchFailure(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("serial timeout")
	s := NewSequencer(&fakeMatrix{rec: rec, err: boom}, &fakeBias{rec: rec},
		WithSleep(func(time.Duration) {}), WithConfirmer(confirm.Always(true)))
	_, err := s.Connect(Number(1), false)
	assert.ErrorIs(t, err, boom)
	assert.NotContains(t, rec.calls, "bias on", "bias stays off when the switch fails")
	_, ok := s.Current()
	assert.False(t, ok)
}

// scriptedInstrument records commands for LineMatrix.
type scriptedInstrument struct{ sent []string }

func (s *scriptedInstrument) Command(format string, a ...any) error {
	if a != nil {
		format = fmt.Sprintf(format, a...)
	}
	s.sent = append(s.sent, format)
	return nil
}

func (s *scriptedInstrument) Query(string) (string, error) { return "", nil }

func TestLineMatrix(t *testing.T) {
	inst := &scriptedInstrument{}
	m := NewLineMatrix(inst, Commands{Connect: "SW{side}:CLOSE {contact}"})

	require.NoError(t, m.Start(5.5))
	require.NoError(t, m.DisconnectAll(SideB))
	require.NoError(t, m.Connect(SideA, 4))
	assert.Equal(t, []string{"START", "VOLT 5.5", "DISC:ALL B", "SWA:CLOSE 4"}, inst.sent)
}
