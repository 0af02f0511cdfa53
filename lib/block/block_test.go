package block

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead(t *testing.T) {
	vals := []float64{1e9, -0.5, 0.25}
	msg := append(Encode(PutFloat64s(vals, binary.BigEndian)), '\n')
	msg = append(msg, "next\n"...)
	r := bufio.NewReader(bytes.NewReader(msg))

	payload, err := Read(r)
	require.NoError(t, err)
	got, err := Float64s(payload, binary.BigEndian)
	require.NoError(t, err)
	assert.Equal(t, vals, got)

	rest, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "next\n", rest, "terminator should be consumed")
}

func TestReadErrors(t *testing.T) {
	cases := map[string]string{
		"no hash":    "12345",
		"indefinite": "#0abc",
		"short":      "#210abc",
		"bad digits": "#2x1abc",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Read(bufio.NewReader(bytes.NewReader([]byte(in))))
			assert.Error(t, err)
		})
	}
}

func TestUnpack(t *testing.T) {
	payload, err := Unpack([]byte("#15hello\n"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(payload))

	_, err = Unpack([]byte("#19hello"))
	assert.Error(t, err)
	_, err = Unpack([]byte("#"))
	assert.Error(t, err)
}

func TestFloat64sLength(t *testing.T) {
	_, err := Float64s(make([]byte, 7), binary.LittleEndian)
	assert.Error(t, err)
}
