package vna

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gotmc/cryolab"
	"github.com/gotmc/cryolab/lib/block"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePNA answers queries from a table and records commands.
type fakePNA struct {
	replies  map[string]string
	blocks   map[string][]byte
	failCmd  map[string]error
	blockErr error
	cmds     []string
}

func newFakePNA(replies map[string]string) *fakePNA {
	return &fakePNA{replies: replies, blocks: map[string][]byte{}, failCmd: map[string]error{}}
}

func (f *fakePNA) Command(format string, a ...any) error {
	cmd := format
	if a != nil {
		cmd = fmt.Sprintf(format, a...)
	}
	f.cmds = append(f.cmds, cmd)
	return f.failCmd[cmd]
}

func (f *fakePNA) Query(cmd string) (string, error) {
	r, ok := f.replies[cmd]
	if !ok {
		return "", fmt.Errorf("unexpected query %q", cmd)
	}
	return r, nil
}

func (f *fakePNA) QueryBlock(cmd string) ([]byte, error) {
	if f.blockErr != nil {
		return nil, f.blockErr
	}
	b, ok := f.blocks[cmd]
	if !ok {
		return nil, fmt.Errorf("unexpected block query %q", cmd)
	}
	return b, nil
}

func testPNA(f *fakePNA, model string) *PNA {
	return &PNA{inst: f, model: Models[model], log: zerolog.Nop(), sleep: func(time.Duration) {}}
}

// synthetic returns a 2-port transfer of npoints where pair i holds
// 10(i+1)+k on its real row and the negation on its imaginary row.
func synthetic(npoints int) []float64 {
	raw := make([]float64, 0, 9*npoints)
	for k := 0; k < npoints; k++ {
		raw = append(raw, float64(k+1)*1e9)
	}
	for i := 0; i < 4; i++ {
		re := make([]float64, npoints)
		im := make([]float64, npoints)
		for k := range re {
			re[k] = float64(10*(i+1) + k)
			im[k] = -re[k]
		}
		raw = append(raw, re...)
		raw = append(raw, im...)
	}
	return raw
}

func TestOpenCreatesDummyMeasurement(t *testing.T) {
	f := newFakePNA(map[string]string{
		"*IDN?":              "Keysight Technologies,N5227B,MY12345,A.13.95.06",
		"CALC1:PAR:CAT:EXT?": `"NO CATALOG"`,
		"DISP:WIND:CAT?":     `"EMPTY"`,
		"SYST:ACT:CHAN?":     "2",
		"SYST:MEAS:CAT? 1":   `"1"`,
	})
	p, err := Open(f)
	require.NoError(t, err)
	assert.Equal(t, 4, p.Model().NPorts)
	assert.Equal(t, []string{
		"DISP:WIND ON",
		"CALC1:PAR:EXT 'DUMMY_S11','S11'",
		"DISP:WIND:TRAC1:FEED 'DUMMY_S11'",
		"CALC1:PAR:MNUM 1",
		"FORM:DATA REAL,64",
	}, f.cmds)
}

func TestOpenUnknownModel(t *testing.T) {
	f := newFakePNA(map[string]string{
		"*IDN?":              "Agilent Technologies,E5071C,MY1,B.13",
		"CALC1:PAR:CAT:EXT?": `"CH1_S11_1,S11"`,
		"SYST:ACT:CHAN?":     "1",
	})
	p, err := Open(f)
	require.NoError(t, err)
	assert.Equal(t, "E5071C", p.Model().Name)
	assert.Equal(t, 2, p.Model().NPorts)
	assert.Equal(t, []string{"FORM:DATA REAL,64"}, f.cmds)
}

func TestOpenMalformedID(t *testing.T) {
	f := newFakePNA(map[string]string{"*IDN?": "garbage"})
	_, err := Open(f)
	assert.ErrorIs(t, err, cryolab.ErrMalformedData)
}

func TestSupports(t *testing.T) {
	p := testPNA(newFakePNA(nil), "E8362C")
	assert.False(t, p.Supports("fast_sweep"))
	assert.True(t, p.Supports("averaging"))
}

func TestChannelCommands(t *testing.T) {
	f := newFakePNA(map[string]string{
		"CALC2:PAR:CAT:EXT?": `"a,S21,b,S11"`,
		"SOUR2:POW?":         "-42.5",
		"OUTP:STAT?":         "1",
		"DISP:WIND:CAT?":     `"1,2"`,
	})
	ch := testPNA(f, "N5231B").Channel(2)

	require.NoError(t, ch.SetPowerLevel(-90))
	assert.ErrorIs(t, ch.SetPowerLevel(-91), cryolab.ErrPowerOutOfRange)
	assert.ErrorIs(t, ch.SetPowerLevel(1), cryolab.ErrPowerOutOfRange)
	pow, err := ch.PowerLevel()
	require.NoError(t, err)
	assert.Equal(t, -42.5, pow)
	on, err := ch.RFPower()
	require.NoError(t, err)
	assert.True(t, on)

	ms, err := ch.Measurements()
	require.NoError(t, err)
	assert.Equal(t, []Measurement{{"a", "S21"}, {"b", "S11"}}, ms)

	require.NoError(t, ch.CreateMeasurement("c", "S22"))
	require.NoError(t, ch.DeleteAllMeasurements())
	require.NoError(t, ch.SetAveraging(16))
	require.NoError(t, ch.SetAveraging(1))
	assert.Error(t, ch.SetFrequency(2e9, 1e9))

	assert.Equal(t, []string{
		"SOUR2:POW -90",
		"CALC2:PAR:EXT 'c','S22'",
		"DISP:WIND:TRAC3:FEED 'c'",
		"CALC2:PAR:DEL 'a'",
		"CALC2:PAR:DEL 'b'",
		"SENS2:AVER:COUN 16",
		"SENS2:AVER:STAT ON",
		"SENS2:AVER:CLE",
		"SENS2:AVER:STAT OFF",
	}, f.cmds)
}

func TestReshape(t *testing.T) {
	nw, err := Reshape(synthetic(3), []int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 3, nw.Len())
	assert.Equal(t, []float64{1e9, 2e9, 3e9}, nw.Frequency)

	// Pair i = n*N + m lands at S[n][m].
	s12, err := nw.Param(1, 2)
	require.NoError(t, err)
	assert.Equal(t, []complex128{complex(20, -20), complex(21, -21), complex(22, -22)}, s12)
	s21, err := nw.Param(2, 1)
	require.NoError(t, err)
	assert.Equal(t, complex(30, -30), s21[0])

	_, err = nw.Param(3, 1)
	assert.Error(t, err)
}

func TestReshapeMalformed(t *testing.T) {
	raw := synthetic(3)
	_, err := Reshape(raw[:len(raw)-1], []int{1, 2})
	assert.ErrorIs(t, err, cryolab.ErrMalformedData)
	_, err = Reshape(nil, []int{1})
	assert.ErrorIs(t, err, cryolab.ErrMalformedData)
}

func captureFake() *fakePNA {
	f := newFakePNA(map[string]string{
		"FORM:DATA?":               "ASC,+0",
		"FORM:BORD?":               "SWAP",
		"SYST:ACT:CHAN?":           "1",
		"MMEM:STOR:TRAC:FORM:SNP?": "MA",
		"*OPC?":                    "1",
	})
	f.blocks["CALC1:DATA:SNP:PORTS? '1,2'"] = block.PutFloat64s(synthetic(2), binary.BigEndian)
	return f
}

var restores = []string{
	"MMEM:STOR:TRAC:FORM:SNP MA",
	"FORM:BORD SWAP",
	"FORM:DATA ASC,+0",
}

func TestCaptureRoundTrip(t *testing.T) {
	f := captureFake()
	nw, err := testPNA(f, "N5231B").Channel(1).Capture()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, nw.Ports)
	assert.Equal(t, complex(11, -11), nw.S[1].At(0, 0))
	assert.Equal(t, complex(41, -41), nw.S[1].At(1, 1))

	want := append([]string{"FORM:DATA REAL,64", "FORM:BORD NORM", "MMEM:STOR:TRAC:FORM:SNP RI"}, restores...)
	assert.Equal(t, want, f.cmds)
}

func TestCaptureRestoresOnFailure(t *testing.T) {
	f := captureFake()
	f.blockErr = errors.New("timeout")
	f.failCmd["FORM:BORD SWAP"] = errors.New("bus error")

	_, err := testPNA(f, "N5231B").Channel(1).Capture()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
	assert.Contains(t, err.Error(), "bus error")
	assert.Equal(t, restores, f.cmds[len(f.cmds)-3:])
}

func TestCaptureInvalidPort(t *testing.T) {
	f := captureFake()
	_, err := testPNA(f, "N5231B").Channel(1).Capture(1, 3)
	assert.Error(t, err)
	assert.Empty(t, f.cmds)
}

func TestWriteTouchstone(t *testing.T) {
	nw, err := Reshape(synthetic(1), []int{1, 2})
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, nw.WriteTouchstone(&buf))
	assert.Equal(t,
		"! 2-port S-parameters, ports [1 2]\n"+
			"# Hz S RI R 50\n"+
			"1e+09 10 -10 30 -30 20 -20 40 -40\n",
		buf.String())
}

type fakeSource struct{ level float64 }

func (s *fakeSource) PowerLevel() (float64, error) { return s.level, nil }

func (s *fakeSource) SetPowerLevel(dBm float64) error {
	if dBm < SourceFloor || dBm > SourceCeiling {
		return cryolab.ErrPowerOutOfRange
	}
	s.level = dBm
	return nil
}

type fakeAtten struct{ db float64 }

func (a *fakeAtten) SetAttenuation(dB float64) error { a.db = dB; return nil }
func (a *fakeAtten) Attenuation() (float64, error)   { return a.db, nil }

func TestAttenuatedPower(t *testing.T) {
	tests := []struct {
		req, src, att float64
	}{
		{-95, -90, 5},
		{-50, -50, 0},
		{-90, -90, 0},
		{-120, -90, 30},
		{0, 0, 0},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprint(tc.req), func(t *testing.T) {
			src, att := &fakeSource{}, &fakeAtten{db: 12}
			pc := NewPowerController(src, att, zerolog.Nop())
			require.IsType(t, &AttenuatedPower{}, pc)
			require.NoError(t, pc.SetPower(tc.req))
			assert.Equal(t, tc.src, src.level)
			assert.Equal(t, tc.att, att.db)
			got, err := pc.Power()
			require.NoError(t, err)
			assert.Equal(t, tc.req, got)
		})
	}
}

func TestAttenuatedPowerOutOfRange(t *testing.T) {
	src, att := &fakeSource{level: -10}, &fakeAtten{}
	pc := NewPowerController(src, att, zerolog.Nop())
	assert.ErrorIs(t, pc.SetPower(-125), cryolab.ErrPowerOutOfRange)
	assert.ErrorIs(t, pc.SetPower(3), cryolab.ErrPowerOutOfRange)
	assert.Equal(t, -10.0, src.level)
}

func TestDirectPower(t *testing.T) {
	src := &fakeSource{}
	pc := NewPowerController(src, nil, zerolog.Nop())
	require.IsType(t, &DirectPower{}, pc)
	require.NoError(t, pc.SetPower(-50))
	assert.Equal(t, -50.0, src.level)
	assert.ErrorIs(t, pc.SetPower(-95), cryolab.ErrPowerOutOfRange)
}
