package confirm

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptReprompts(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompt(strings.NewReader("yes\nY\n\ny\n"), &out)

	ok, err := p.Confirm("Check that the HEMTs are powered off")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, strings.Count(out.String(), "enter either 'y' or 'n'"))
}

func TestPromptNo(t *testing.T) {
	p := NewPrompt(strings.NewReader("n\n"), io.Discard)
	ok, err := p.Confirm("continue?")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPromptAnswerWithoutNewline(t *testing.T) {
	p := NewPrompt(strings.NewReader("y"), io.Discard)
	ok, err := p.Confirm("continue?")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPromptEOF(t *testing.T) {
	p := NewPrompt(strings.NewReader("maybe\n"), io.Discard)
	_, err := p.Confirm("continue?")
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}

func TestAlways(t *testing.T) {
	ok, err := Always(false).Confirm("anything")
	require.NoError(t, err)
	assert.False(t, ok)
}
