// Package confirm asks an operator to acknowledge a hardware state before a
// sequence continues.
package confirm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Confirmer answers a yes/no question.
type Confirmer interface {
	Confirm(question string) (bool, error)
}

// Func adapts a function to a Confirmer.
type Func func(question string) (bool, error)

// Confirm calls f.
func (f Func) Confirm(question string) (bool, error) { return f(question) }

// Always answers every question with v without asking.
func Always(v bool) Confirmer {
	return Func(func(string) (bool, error) { return v, nil })
}

var (
	QuestionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	HintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Prompt asks on a terminal. Only "y" and "n" are accepted; anything else
// repeats the question.
type Prompt struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompt reads answers from in and writes questions to out.
func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: bufio.NewReader(in), out: out}
}

// Confirm blocks until the operator answers y or n.
func (p *Prompt) Confirm(question string) (bool, error) {
	for {
		fmt.Fprintf(p.out, "%s %s ", QuestionStyle.Render(question), HintStyle.Render("enter y/n:"))
		line, err := p.in.ReadString('\n')
		answer := strings.TrimSpace(line)
		switch answer {
		case "y":
			return true, nil
		case "n":
			return false, nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return false, fmt.Errorf("no answer to %q: %w", question, io.ErrUnexpectedEOF)
			}
			return false, err
		}
		fmt.Fprintln(p.out, "enter either 'y' or 'n'")
	}
}
